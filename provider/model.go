package provider

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/modelrelay/ag/messages"
	"github.com/modelrelay/ag/tool"
)

// Default request settings shared by the adapters.
const (
	DefaultTimeout         = 20 * time.Second
	DefaultMaxOutputTokens = 4096
)

// ToolChoice steers whether the model may, must, or must not call tools.
type ToolChoice string

const (
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
)

// StructuredOutput asks the model to answer with JSON conforming to the
// given schema instead of free text.
type StructuredOutput struct {
	// Name identifies the output format on the wire.
	Name string

	// Schema is the JSON schema the response payload must satisfy.
	Schema json.RawMessage
}

// Validate checks a structured response payload against the schema.
func (s *StructuredOutput) Validate(payload json.RawMessage) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(s.Schema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("structured output %s: %w", s.Name, err)
	}
	if !result.Valid() {
		return fmt.Errorf("structured output %s: payload does not satisfy schema: %v", s.Name, result.Errors())
	}
	return nil
}

// Params is a single model invocation: the full outgoing message sequence
// plus the knobs that vary per call.
type Params struct {
	// Messages is the complete outgoing conversation, in order.
	Messages []messages.Message

	// Tools the model may call this turn.
	Tools []tool.Definition

	// ToolChoice steers tool usage; empty means auto.
	ToolChoice ToolChoice

	// ParallelToolCalls permits multiple tool calls in one response.
	ParallelToolCalls bool

	// MaxOutputTokens caps the response size; zero means the adapter default.
	MaxOutputTokens int

	// StructuredOutput, when set, requests a schema-conforming JSON answer.
	StructuredOutput *StructuredOutput

	// Timeout bounds the whole call including streaming; zero means the
	// adapter default.
	Timeout time.Duration
}

// Response is the normalized result of one model invocation.
type Response struct {
	// ModelID is the adapter's model id, the one priced in the rate table.
	ModelID string

	// APIModelID is the model id the provider reported, which may carry a
	// version suffix.
	APIModelID string

	// Usage for this single invocation, token cost already computed.
	Usage messages.Usage

	// Messages holds every message of the response in provider order:
	// reasoning, content and tool calls interleaved as received.
	Messages []messages.Message

	// Content is the response's single text message, nil when the model
	// answered with tool calls only.
	Content *messages.Content

	// ToolCalls extracted from Messages, in provider order.
	ToolCalls []*messages.ToolCall

	// StructuredOutput is the validated JSON payload when the request asked
	// for structured output.
	StructuredOutput json.RawMessage
}

// Model is one configured model on one provider. Implementations are safe
// for concurrent use.
type Model interface {
	// ID returns the rate-table model id this instance was built with.
	ID() string

	// Generate performs a blocking invocation.
	Generate(ctx context.Context, params Params) (*Response, error)

	// Stream performs a streaming invocation. Errors detected before any
	// event is decoded (request building, transport, non-2xx status) return
	// synchronously; later failures arrive as a Fail event. The channel
	// carries exactly one terminal event and is then closed.
	Stream(ctx context.Context, params Params) (<-chan StreamEvent, error)
}
