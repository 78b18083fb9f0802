package anthropic

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/modelrelay/ag/internal/wire"
	"github.com/modelrelay/ag/messages"
	"github.com/modelrelay/ag/provider"
)

// block accumulates one content block of a streamed response. Tool-use
// argument fragments gather in partialJSON and parse only when the block
// stops.
type block struct {
	typ         string
	id          string
	name        string
	text        strings.Builder
	thinking    strings.Builder
	signature   strings.Builder
	partialJSON strings.Builder

	toolCall *messages.ToolCall
}

// streamState assembles the response skeleton established by message_start
// and grown by the block events.
type streamState struct {
	started    bool
	apiModelID string
	usage      messages.Usage
	blocks     []*block
}

func (s *streamState) mergeUsage(raw gjson.Result) {
	if v := raw.Get("input_tokens"); v.Exists() {
		s.usage.InputTokens = v.Int()
	}
	if v := raw.Get("output_tokens"); v.Exists() {
		s.usage.OutputTokens = v.Int()
	}
	if v := raw.Get("cache_read_input_tokens"); v.Exists() {
		s.usage.CachedInputTokens = v.Int()
	}
}

// Stream performs a streaming Messages API call. Text deltas are forwarded
// as they arrive; tool calls parse and forward when their block stops;
// message_stop assembles the aggregate Response into the terminal Final
// event.
func (m *Model) Stream(ctx context.Context, params provider.Params) (<-chan provider.StreamEvent, error) {
	if params.StructuredOutput != nil {
		return nil, &provider.UnsupportedFeatureError{Provider: providerID, Feature: "structured output"}
	}

	payload, err := m.buildPayload(params, true)
	if err != nil {
		return nil, err
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	m.Log.Debug().Str("model", m.ModelID).Int("messages", len(params.Messages)).Msg("anthropic stream")

	body, err := wire.PostStream(ctx, m.HTTPClient, providerID, m.BaseURL, m.headers(), payload)
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		defer cancel()
		defer body.Close()

		fail := func(err error) {
			events <- provider.Fail{Err: err}
		}
		shape := func(format string, args ...any) {
			fail(&provider.ResponseShapeError{Provider: providerID, Reason: fmt.Sprintf(format, args...)})
		}

		var state streamState
		sc := wire.NewScanner(providerID, body)
		for sc.Next() {
			data := sc.Data()
			event := gjson.ParseBytes(data)

			switch eventType := event.Get("type").String(); eventType {
			case "message_start":
				if state.started {
					shape("multiple message_start events")
					return
				}
				state.started = true
				state.apiModelID = event.Get("message.model").String()
				state.mergeUsage(event.Get("message.usage"))

			case "content_block_start":
				if idx := event.Get("index").Int(); idx != int64(len(state.blocks)) {
					shape("content block index %d, expected %d", idx, len(state.blocks))
					return
				}
				cb := event.Get("content_block")
				b := &block{
					typ:  cb.Get("type").String(),
					id:   cb.Get("id").String(),
					name: cb.Get("name").String(),
				}
				b.text.WriteString(cb.Get("text").String())
				b.thinking.WriteString(cb.Get("thinking").String())
				b.signature.WriteString(cb.Get("signature").String())
				state.blocks = append(state.blocks, b)

			case "content_block_delta":
				idx := event.Get("index").Int()
				if idx < 0 || idx >= int64(len(state.blocks)) {
					shape("delta for unknown content block %d", idx)
					return
				}
				b := state.blocks[idx]
				delta := event.Get("delta")
				switch delta.Get("type").String() {
				case "text_delta":
					text := delta.Get("text").String()
					events <- provider.Delta{Text: text}
					b.text.WriteString(text)
				case "thinking_delta":
					b.thinking.WriteString(delta.Get("thinking").String())
				case "signature_delta":
					b.signature.WriteString(delta.Get("signature").String())
				case "input_json_delta":
					b.partialJSON.WriteString(delta.Get("partial_json").String())
				}

			case "content_block_stop":
				idx := event.Get("index").Int()
				if idx < 0 || idx >= int64(len(state.blocks)) {
					shape("stop for unknown content block %d", idx)
					return
				}
				b := state.blocks[idx]
				if b.typ != "tool_use" {
					continue
				}
				raw := b.partialJSON.String()
				if raw == "" {
					raw = "{}"
				}
				var parsed map[string]any
				if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
					shape("tool_use arguments do not parse: %v", err)
					return
				}
				tc, err := messages.NewParsedToolCall(b.id, b.name, parsed)
				if err != nil {
					shape("%v", err)
					return
				}
				b.toolCall = tc
				events <- provider.ToolCallDone{ToolCall: tc}

			case "message_delta":
				state.mergeUsage(event.Get("usage"))

			case "message_stop":
				resp, err := m.assembleResponse(&state)
				if err != nil {
					fail(err)
					return
				}
				events <- provider.Final{Response: resp}
				return
			}
		}

		if err := sc.Err(); err != nil {
			fail(err)
			return
		}
		shape("stream ended without message_stop")
	}()
	return events, nil
}

func (m *Model) assembleResponse(state *streamState) (*provider.Response, error) {
	usage := state.usage
	cost, err := provider.TokenCost(m.ModelID, usage)
	if err != nil {
		return nil, err
	}
	usage.TokenCost = cost

	resp := &provider.Response{
		ModelID:    m.ModelID,
		APIModelID: state.apiModelID,
		Usage:      usage,
	}

	for _, b := range state.blocks {
		switch b.typ {
		case "thinking":
			r := messages.NewReasoning(b.signature.String(), b.thinking.String())
			resp.Messages = append(resp.Messages, r)

		case "text":
			if resp.Content != nil {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: "response carries multiple text blocks"}
			}
			resp.Content = messages.NewContent(messages.RoleAssistant, b.text.String())
			resp.Messages = append(resp.Messages, resp.Content)

		case "tool_use":
			if b.toolCall == nil {
				return nil, &provider.ResponseShapeError{Provider: providerID, Reason: "tool_use block never stopped"}
			}
			resp.Messages = append(resp.Messages, b.toolCall)
			resp.ToolCalls = append(resp.ToolCalls, b.toolCall)

		default:
			return nil, &provider.ResponseShapeError{Provider: providerID, Reason: fmt.Sprintf("unhandled content block type %q", b.typ)}
		}
	}

	return resp, nil
}
