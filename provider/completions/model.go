package completions

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/modelrelay/ag/internal/wire"
	"github.com/modelrelay/ag/messages"
	"github.com/modelrelay/ag/provider"
	"github.com/modelrelay/ag/tool"
)

const (
	providerName = "completions"
	apiKeyEnv    = "GEMINI_API_KEY"

	// GeminiBaseURL is the default endpoint, Gemini's OpenAI compatibility
	// layer.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// Effort is the reasoning intensity requested from the model.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Model is one model spoken to over an OpenAI-compatible Chat Completions
// endpoint.
type Model struct {
	ModelID         string
	APIKey          string
	BaseURL         string
	Effort          Effort
	MaxOutputTokens int
	HTTPClient      *http.Client
	Log             zerolog.Logger
}

// Option configures a Model at construction.
type Option = opts.Option[Model]

var (
	// APIKey overrides the GEMINI_API_KEY environment variable.
	APIKey = opts.ForName[Model, string]("APIKey")
	// BaseURL points the adapter at a different compatible endpoint. It must
	// end with a slash; chat/completions is appended.
	BaseURL = opts.ForName[Model, string]("BaseURL")
	// ReasoningEffort sets the requested reasoning intensity.
	ReasoningEffort = opts.ForName[Model, Effort]("Effort")
	// MaxOutputTokens caps response size for calls that do not set their own.
	MaxOutputTokens = opts.ForName[Model, int]("MaxOutputTokens")
	// HTTPClient overrides the HTTP client.
	HTTPClient = opts.ForName[Model, *http.Client]("HTTPClient")
	// Logger sets the logger.
	Logger = opts.ForName[Model, zerolog.Logger]("Log")
)

// New builds a Model for the given model id. The id must be priced in the
// rate table; the endpoint itself accepts arbitrary ids, so the table is
// the only guard against uncosted usage.
func New(modelID string, options ...Option) (*Model, error) {
	m := &Model{
		ModelID:         modelID,
		BaseURL:         GeminiBaseURL,
		Effort:          EffortLow,
		MaxOutputTokens: provider.DefaultMaxOutputTokens,
		HTTPClient:      http.DefaultClient,
		Log:             zerolog.Nop(),
	}
	if err := opts.Apply(m, options); err != nil {
		return nil, err
	}

	if !provider.KnownModel(modelID) {
		return nil, &provider.CostLookupError{ModelID: modelID}
	}
	switch m.Effort {
	case EffortLow, EffortMedium, EffortHigh:
	default:
		return nil, fmt.Errorf("completions: invalid reasoning effort %q", m.Effort)
	}
	if m.MaxOutputTokens < 1 {
		return nil, fmt.Errorf("completions: max output tokens %d, expected >= 1", m.MaxOutputTokens)
	}
	if m.APIKey == "" {
		m.APIKey = os.Getenv(apiKeyEnv)
	}
	if m.APIKey == "" {
		return nil, fmt.Errorf("completions: either pass APIKey or set %s in env", apiKeyEnv)
	}
	return m, nil
}

// ID returns the model id this instance was built with.
func (m *Model) ID() string { return m.ModelID }

// Generate performs a blocking Chat Completions call.
func (m *Model) Generate(ctx context.Context, params provider.Params) (*provider.Response, error) {
	if params.StructuredOutput != nil {
		return nil, &provider.UnsupportedFeatureError{Provider: providerName, Feature: "structured output"}
	}

	payload, err := m.buildPayload(params)
	if err != nil {
		return nil, err
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.Log.Debug().Str("model", m.ModelID).Str("base_url", m.BaseURL).Int("messages", len(params.Messages)).Msg("completions generate")

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + m.APIKey,
	}
	body, err := wire.Post(ctx, m.HTTPClient, providerName, m.BaseURL+"chat/completions", headers, payload)
	if err != nil {
		return nil, err
	}
	return m.parseResponse(body)
}

// Stream is not available on the Chat Completions adapter.
func (m *Model) Stream(ctx context.Context, params provider.Params) (<-chan provider.StreamEvent, error) {
	return nil, &provider.UnsupportedFeatureError{Provider: providerName, Feature: "streaming"}
}

func (m *Model) buildPayload(params provider.Params) ([]byte, error) {
	projected := make([]json.RawMessage, len(params.Messages))
	for i, msg := range params.Messages {
		p, err := m.projectMessage(msg)
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
		"messages":              projected,
		"model":                 m.ModelID,
		"max_completion_tokens": maxTokens,
		"reasoning_effort":      string(m.Effort),
	}

	if len(params.Tools) > 0 {
		specs := make([]json.RawMessage, len(params.Tools))
		for i, def := range params.Tools {
			specs[i] = toolSpec(def)
		}
		body["tools"] = specs
		if params.ToolChoice != "" {
			body["tool_choice"] = string(params.ToolChoice)
		}
	}

	return json.Marshal(body)
}

// projectMessage renders a message into its Chat Completions form, memoized
// on the message keyed by base URL since different compatible endpoints may
// be in play at once.
func (m *Model) projectMessage(msg messages.Message) (json.RawMessage, error) {
	if payload, ok := msg.CachedPayload(m.BaseURL); ok {
		return payload, nil
	}

	var data []byte
	switch v := msg.(type) {
	case *messages.Content:
		data, _ = sjson.SetBytes([]byte(`{}`), "role", string(v.Role))
		data, _ = sjson.SetBytes(data, "content", v.Text)

	case *messages.ToolCall:
		args, err := v.RawArgs()
		if err != nil {
			return nil, err
		}
		call, _ := sjson.SetBytes([]byte(`{"type":"function"}`), "id", v.CallID)
		call, _ = sjson.SetBytes(call, "function.name", v.Name)
		call, _ = sjson.SetBytes(call, "function.arguments", args)
		data, _ = sjson.SetRawBytes([]byte(`{"role":"assistant","tool_calls":[]}`), "tool_calls.-1", call)

	case *messages.ToolResult:
		data, _ = sjson.SetBytes([]byte(`{"role":"tool"}`), "tool_call_id", v.CallID)
		data, _ = sjson.SetBytes(data, "content", v.Result)

	case *messages.Reasoning:
		return nil, &provider.UnsupportedFeatureError{Provider: providerName, Feature: "reasoning replay"}

	default:
		return nil, fmt.Errorf("completions: unhandled message type %T", msg)
	}

	msg.StorePayload(m.BaseURL, data)
	return data, nil
}

func toolSpec(def tool.Definition) json.RawMessage {
	fn, _ := sjson.SetBytes([]byte(`{"strict":true}`), "name", def.Name)
	fn, _ = sjson.SetBytes(fn, "description", def.Description)
	fn, _ = sjson.SetRawBytes(fn, "parameters", def.ParametersJSON())

	data, _ := sjson.SetRawBytes([]byte(`{"type":"function"}`), "function", fn)
	return data
}

func (m *Model) parseResponse(body []byte) (*provider.Response, error) {
	root := gjson.ParseBytes(body)
	for _, key := range []string{"model", "choices", "usage"} {
		if !root.Get(key).Exists() {
			return nil, &provider.ResponseShapeError{Provider: providerName, Reason: fmt.Sprintf("response does not contain a %q key", key)}
		}
	}

	choices := root.Get("choices").Array()
	if len(choices) != 1 {
		return nil, &provider.ResponseShapeError{Provider: providerName, Reason: fmt.Sprintf("expected 1 choice, got %d", len(choices))}
	}

	rawUsage := root.Get("usage")
	usage := messages.Usage{
		InputTokens:  rawUsage.Get("prompt_tokens").Int(),
		OutputTokens: rawUsage.Get("completion_tokens").Int(),
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

	message := choices[0].Get("message")
	if text := message.Get("content").String(); text != "" {
		resp.Content = messages.NewContent(messages.RoleAssistant, text)
		resp.Messages = append(resp.Messages, resp.Content)
	}
	for _, call := range message.Get("tool_calls").Array() {
		tc, err := messages.NewToolCall(
			call.Get("id").String(),
			call.Get("function.name").String(),
			call.Get("function.arguments").String(),
		)
		if err != nil {
			return nil, &provider.ResponseShapeError{Provider: providerName, Reason: err.Error()}
		}
		resp.Messages = append(resp.Messages, tc)
		resp.ToolCalls = append(resp.ToolCalls, tc)
	}

	return resp, nil
}
