package anthropic

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

// Generate performs a blocking Messages API call.
func (m *Model) Generate(ctx context.Context, params provider.Params) (*provider.Response, error) {
	if params.StructuredOutput != nil {
		return nil, &provider.UnsupportedFeatureError{Provider: providerID, Feature: "structured output"}
	}

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

	m.Log.Debug().Str("model", m.ModelID).Int("messages", len(params.Messages)).Msg("anthropic generate")

	body, err := wire.Post(ctx, m.HTTPClient, providerID, m.BaseURL, m.headers(), payload)
	if err != nil {
		return nil, err
	}
	return m.parseResponse(body)
}

func (m *Model) buildPayload(params provider.Params, stream bool) ([]byte, error) {
	msgs := params.Messages
	offset := 0

	// a leading system message moves into the top-level system field
	var system string
	if len(msgs) > 0 {
		if c, ok := msgs[0].(*messages.Content); ok && c.Role == messages.RoleSystem {
			system = c.Text
			msgs = msgs[1:]
			offset = 1
		}
	}

	projected := make([]json.RawMessage, len(msgs))
	for i, msg := range msgs {
		p, err := projectMessage(msg, i+offset)
		if err != nil {
			return nil, err
		}
		projected[i] = p
	}

	maxTokens := params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = m.MaxOutputTokens
	}

	body := map[string]any{
		"messages":   projected,
		"model":      m.ModelID,
		"max_tokens": maxTokens,
	}
	if stream {
		body["stream"] = true
	}
	if m.ThinkingBudget > 0 {
		body["thinking"] = map[string]any{"type": "enabled", "budget_tokens": m.ThinkingBudget}
	} else {
		body["thinking"] = map[string]any{"type": "disabled"}
	}
	if system != "" {
		body["system"] = system
	}

	if len(params.Tools) > 0 {
		specs := make([]json.RawMessage, len(params.Tools))
		for i, def := range params.Tools {
			specs[i] = toolSpec(def)
		}
		body["tools"] = specs

		choice := params.ToolChoice
		if choice == "" {
			choice = provider.ToolChoiceAuto
		}
		toolChoice := map[string]any{"type": string(choice)}
		if choice != provider.ToolChoiceNone && !params.ParallelToolCalls {
			toolChoice["disable_parallel_tool_use"] = true
		}
		body["tool_choice"] = toolChoice
	}

	return json.Marshal(body)
}

// projectMessage renders a message into its Messages API form, memoized on
// the message itself. index is the message's position in the full outgoing
// sequence, used for error reporting.
func projectMessage(msg messages.Message, index int) (json.RawMessage, error) {
	if payload, ok := msg.CachedPayload(providerID); ok {
		return payload, nil
	}

	var (
		data []byte
		err  error
	)
	switch v := msg.(type) {
	case *messages.Content:
		if v.Role == messages.RoleSystem {
			return nil, &provider.UnsupportedSystemPlacementError{Provider: providerID, Index: index}
		}
		data, _ = sjson.SetBytes([]byte(`{}`), "role", string(v.Role))
		data, _ = sjson.SetBytes(data, "content", v.Text)

	case *messages.Reasoning:
		data, err = json.Marshal(map[string]any{
			"role": "assistant",
			"content": []map[string]any{{
				"type":      "thinking",
				"signature": v.EncryptedContent,
				"thinking":  v.Content,
			}},
		})

	case *messages.ToolCall:
		parsed, perr := v.ParsedArgs()
		if perr != nil {
			return nil, perr
		}
		data, err = json.Marshal(map[string]any{
			"role": "assistant",
			"content": []map[string]any{{
				"type":  "tool_use",
				"id":    v.CallID,
				"name":  v.Name,
				"input": parsed,
			}},
		})

	case *messages.ToolResult:
		data, err = json.Marshal(map[string]any{
			"role": "user",
			"content": []map[string]any{{
				"type":        "tool_result",
				"tool_use_id": v.CallID,
				"content":     v.Result,
			}},
		})

	default:
		return nil, fmt.Errorf("anthropic: unhandled message type %T", msg)
	}
	if err != nil {
		return nil, err
	}

	msg.StorePayload(providerID, data)
	return data, nil
}

func toolSpec(def tool.Definition) json.RawMessage {
	params := def.ParametersJSON()
	schema, _ := sjson.SetBytes([]byte(`{"type":"object"}`), "properties", gjson.GetBytes(params, "properties").Value())
	schema, _ = sjson.SetBytes(schema, "required", gjson.GetBytes(params, "required").Value())

	data, _ := sjson.SetBytes([]byte(`{}`), "name", def.Name)
	data, _ = sjson.SetBytes(data, "description", def.Description)
	data, _ = sjson.SetRawBytes(data, "input_schema", schema)
	return data
}

func (m *Model) parseResponse(body []byte) (*provider.Response, error) {
	root := gjson.ParseBytes(body)
	for _, key := range []string{"model", "content", "usage"} {
		if !root.Get(key).Exists() {
			return nil, &provider.ResponseShapeError{Provider: providerID, Reason: fmt.Sprintf("response does not contain a %q key", key)}
		}
	}

	rawUsage := root.Get("usage")
	usage := messages.Usage{
		InputTokens:       rawUsage.Get("input_tokens").Int(),
		OutputTokens:      rawUsage.Get("output_tokens").Int(),
		CachedInputTokens: rawUsage.Get("cache_read_input_tokens").Int(),
		// the API does not report reasoning token counts
		ReasoningTokens: 0,
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

	for _, block := range root.Get("content").Array() {
		switch typ := block.Get("type").String(); typ {
		case "thinking":
			r := messages.NewReasoning(block.Get("signature").String(), block.Get("thinking").String())
			resp.Messages = append(resp.Messages, r)

		case "text":
			if resp.Content != nil {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: "response carries multiple text blocks"}
			}
			resp.Content = messages.NewContent(messages.RoleAssistant, block.Get("text").String())
			resp.Messages = append(resp.Messages, resp.Content)

		case "tool_use":
			input, ok := block.Get("input").Value().(map[string]any)
			if !ok {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: "tool_use block input is not an object"}
			}
			tc, err := messages.NewParsedToolCall(block.Get("id").String(), block.Get("name").String(), input)
			if err != nil {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: err.Error()}
			}
			resp.Messages = append(resp.Messages, tc)
			resp.ToolCalls = append(resp.ToolCalls, tc)

		default:
			return nil, &provider.ResponseShapeError{Provider: providerID, Reason: fmt.Sprintf("unhandled content block type %q", typ)}
		}
	}

	return resp, nil
}
