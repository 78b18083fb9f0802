package openai

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/modelrelay/ag/internal/wire"
	"github.com/modelrelay/ag/messages"
	"github.com/modelrelay/ag/provider"
)

var streamErrorTypes = map[string]bool{
	"response.failed":       true,
	"response.incomplete":   true,
	"response.refusal.done": true,
	"error":                 true,
}

// Stream performs a streaming Responses API call. Text deltas and completed
// tool calls are forwarded as they arrive; the response.completed event
// yields the aggregate Response as the terminal Final event.
func (m *Model) Stream(ctx context.Context, params provider.Params) (<-chan provider.StreamEvent, error) {
	if params.StructuredOutput != nil {
		return nil, &provider.UnsupportedFeatureError{Provider: providerID, Feature: "structured output on streaming calls"}
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

	m.Log.Debug().Str("model", m.ModelID).Int("messages", len(params.Messages)).Msg("openai stream")

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

		sc := wire.NewScanner(providerID, body)
		for sc.Next() {
			data := sc.Data()
			eventType := gjson.GetBytes(data, "type").String()

			switch {
			case eventType == "response.output_text.delta":
				events <- provider.Delta{Text: gjson.GetBytes(data, "delta").String()}

			case eventType == "response.output_item.done":
				item := gjson.GetBytes(data, "item")
				if item.Get("type").String() != "function_call" {
					continue
				}
				tc, err := messages.NewToolCall(
					item.Get("call_id").String(),
					item.Get("name").String(),
					item.Get("arguments").String(),
				)
				if err != nil {
					events <- provider.Fail{Err: &provider.ResponseShapeError{Provider: providerID, Reason: err.Error()}}
					return
				}
				events <- provider.ToolCallDone{ToolCall: tc}

			case streamErrorTypes[eventType]:
				events <- provider.Fail{Err: fmt.Errorf("%s: %w: %s", providerID, provider.ErrStreamFailed, formatStreamError(eventType, data))}
				return

			case eventType == "response.completed":
				resp, err := m.parseResponse([]byte(gjson.GetBytes(data, "response").Raw), nil)
				if err != nil {
					events <- provider.Fail{Err: err}
					return
				}
				events <- provider.Final{Response: resp}
				return
			}
		}

		if err := sc.Err(); err != nil {
			events <- provider.Fail{Err: err}
			return
		}
		events <- provider.Fail{Err: &provider.ResponseShapeError{Provider: providerID, Reason: "stream ended without a completed response"}}
	}()
	return events, nil
}

func formatStreamError(eventType string, data []byte) string {
	switch eventType {
	case "response.failed":
		return "response.failed: " + stringOr(data, "error.message", "unknown error")
	case "response.incomplete":
		return "response.incomplete: " + stringOr(data, "incomplete_details.reason", "unknown reason")
	case "response.refusal.done":
		return "response.refusal.done: " + stringOr(data, "refusal", "unknown refusal")
	default:
		return "error: " + stringOr(data, "message", "unknown error")
	}
}

func stringOr(data []byte, path, fallback string) string {
	if v := gjson.GetBytes(data, path); v.Exists() && v.String() != "" {
		return v.String()
	}
	return fallback
}
