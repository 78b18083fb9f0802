package openai

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/modelrelay/ag/internal/wire"
	"github.com/modelrelay/ag/messages"
	"github.com/modelrelay/ag/provider"
	"github.com/modelrelay/ag/tool"
)

// Generate performs a blocking Responses API call.
func (m *Model) Generate(ctx context.Context, params provider.Params) (*provider.Response, error) {
	payload, err := m.buildPayload(params, false)
	if err != nil {
		return nil, err
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.Log.Debug().Str("model", m.ModelID).Int("messages", len(params.Messages)).Msg("openai generate")

	body, err := wire.Post(ctx, m.HTTPClient, providerID, m.BaseURL, m.headers(), payload)
	if err != nil {
		return nil, err
	}
	return m.parseResponse(body, params.StructuredOutput)
}

func (m *Model) buildPayload(params provider.Params, stream bool) ([]byte, error) {
	input := make([]json.RawMessage, len(params.Messages))
	for i, msg := range params.Messages {
		p, err := projectMessage(msg)
		if err != nil {
			return nil, err
		}
		input[i] = p
	}

	maxTokens := params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = m.MaxOutputTokens
	}

	body := map[string]any{
		"input":             input,
		"model":             m.ModelID,
		"max_output_tokens": maxTokens,
		"reasoning":         map[string]any{"effort": string(m.Effort)},
		// the API must not retain anything, but reasoning models keep their
		// reasoning in context, so ask for it back in encrypted form
		"store":   false,
		"include": []string{"reasoning.encrypted_content"},
	}
	if stream {
		body["stream"] = true
	}

	if so := params.StructuredOutput; so != nil {
		body["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   so.Name,
				"strict": true,
				"schema": so.Schema,
			},
		}
	}

	if len(params.Tools) > 0 {
		specs := make([]json.RawMessage, len(params.Tools))
		for i, def := range params.Tools {
			specs[i] = toolSpec(def)
		}
		body["tools"] = specs
		body["parallel_tool_calls"] = params.ParallelToolCalls
		if params.ToolChoice != "" {
			body["tool_choice"] = string(params.ToolChoice)
		}
	}

	return json.Marshal(body)
}

// projectMessage renders a message into its Responses API form, memoized on
// the message itself.
func projectMessage(msg messages.Message) (json.RawMessage, error) {
	if payload, ok := msg.CachedPayload(providerID); ok {
		return payload, nil
	}

	var data []byte
	switch v := msg.(type) {
	case *messages.Content:
		data, _ = sjson.SetBytes([]byte(`{"type":"message"}`), "role", string(v.Role))
		data, _ = sjson.SetBytes(data, "content", v.Text)
	case *messages.Reasoning:
		data, _ = sjson.SetBytes([]byte(`{"type":"reasoning"}`), "encrypted_content", v.EncryptedContent)
		// summary must be present, even empty, for API compatibility
		data, _ = sjson.SetRawBytes(data, "summary", []byte(`[]`))
	case *messages.ToolCall:
		args, err := v.RawArgs()
		if err != nil {
			return nil, err
		}
		data, _ = sjson.SetBytes([]byte(`{"type":"function_call"}`), "call_id", v.CallID)
		data, _ = sjson.SetBytes(data, "name", v.Name)
		data, _ = sjson.SetBytes(data, "arguments", args)
	case *messages.ToolResult:
		data, _ = sjson.SetBytes([]byte(`{"type":"function_call_output"}`), "call_id", v.CallID)
		data, _ = sjson.SetBytes(data, "output", v.Result)
	default:
		return nil, fmt.Errorf("openai: unhandled message type %T", msg)
	}

	msg.StorePayload(providerID, data)
	return data, nil
}

func toolSpec(def tool.Definition) json.RawMessage {
	data, _ := sjson.SetBytes([]byte(`{"type":"function","strict":true}`), "name", def.Name)
	data, _ = sjson.SetBytes(data, "description", def.Description)
	data, _ = sjson.SetRawBytes(data, "parameters", def.ParametersJSON())
	return data
}

func (m *Model) parseResponse(body []byte, so *provider.StructuredOutput) (*provider.Response, error) {
	root := gjson.ParseBytes(body)
	for _, key := range []string{"model", "output", "usage"} {
		if !root.Get(key).Exists() {
			return nil, &provider.ResponseShapeError{Provider: providerID, Reason: fmt.Sprintf("response does not contain a %q key", key)}
		}
	}

	rawUsage := root.Get("usage")
	usage := messages.Usage{
		InputTokens:       rawUsage.Get("input_tokens").Int(),
		OutputTokens:      rawUsage.Get("output_tokens").Int(),
		CachedInputTokens: rawUsage.Get("input_tokens_details.cached_tokens").Int(),
		ReasoningTokens:   rawUsage.Get("output_tokens_details.reasoning_tokens").Int(),
	}
	cost, err := provider.TokenCost(m.ModelID, usage)
	if err != nil {
		return nil, err
	}
	usage.TokenCost = cost

	resp := &provider.Response{
		ModelID:    m.ModelID,
		APIModelID: root.Get("model").String(),
		Usage:      usage,
	}

	for _, item := range root.Get("output").Array() {
		switch typ := item.Get("type").String(); typ {
		case "message":
			if resp.Content != nil {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: "response carries multiple messages"}
			}
			blocks := item.Get("content").Array()
			if len(blocks) != 1 {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: fmt.Sprintf("message carries %d content blocks, expected 1", len(blocks))}
			}
			text := blocks[0].Get("text").String()
			if text == "" {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: "message content has no text"}
			}
			resp.Content = messages.NewContent(messages.RoleAssistant, text)
			resp.Messages = append(resp.Messages, resp.Content)

		case "function_call":
			tc, err := messages.NewToolCall(
				item.Get("call_id").String(),
				item.Get("name").String(),
				item.Get("arguments").String(),
			)
			if err != nil {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: err.Error()}
			}
			resp.Messages = append(resp.Messages, tc)
			resp.ToolCalls = append(resp.ToolCalls, tc)

		case "reasoning":
			r := messages.NewReasoning(item.Get("encrypted_content").String(), "")
			resp.Messages = append(resp.Messages, r)

		default:
			return nil, &provider.ResponseShapeError{Provider: providerID, Reason: fmt.Sprintf("unhandled output item type %q", typ)}
		}
	}

	if so != nil {
		if resp.Content == nil {
			return nil, &provider.ResponseShapeError{Provider: providerID, Reason: "structured output response generated no content"}
		}
		if err := so.Validate(json.RawMessage(resp.Content.Text)); err != nil {
			return nil, err
		}
		resp.StructuredOutput = json.RawMessage(resp.Content.Text)
	}

	return resp, nil
}
