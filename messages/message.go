package messages

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Role identifies the conversational role a content message carries.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the closed set of conversation entries. The four variants are
// Content, Reasoning, ToolCall and ToolResult; nothing outside this package
// can add a fifth. All variants are used through pointers so the attached
// payload cache is shared by everyone holding the message.
type Message interface {
	message()

	// CachedPayload returns the previously computed wire projection of this
	// message for the given provider id, if any.
	CachedPayload(provider string) (json.RawMessage, bool)

	// StorePayload memoizes the wire projection of this message for the
	// given provider id. Storing the same projection twice is harmless.
	StorePayload(provider string, payload json.RawMessage)
}

// Content is a plain text message authored by a role.
type Content struct {
	payloadCache

	Role Role
	Text string
}

// NewContent returns a content message for the given role.
func NewContent(role Role, text string) *Content {
	return &Content{Role: role, Text: text}
}

func (*Content) message() {}

// Reasoning carries a model's reasoning block. Providers that keep reasoning
// in context only hand back an encrypted form, which is what gets replayed
// on later turns; plaintext is present only when the provider exposes it.
type Reasoning struct {
	payloadCache

	EncryptedContent string
	Content          string
}

// NewReasoning returns a reasoning message from its encrypted payload and
// optional plaintext.
func NewReasoning(encrypted, content string) *Reasoning {
	return &Reasoning{EncryptedContent: encrypted, Content: content}
}

func (*Reasoning) message() {}

// ToolCall is a model request to invoke a named tool. At least one of the
// raw argument JSON and the parsed arguments is always set; when only the
// raw form is present it is parsed lazily on first use.
type ToolCall struct {
	payloadCache

	CallID string
	Name   string

	args       string
	parsedArgs map[string]any
}

// NewToolCall builds a tool call from the raw argument JSON as returned by a
// provider. The arguments are parsed lazily; see ParsedArgs.
func NewToolCall(callID, name, args string) (*ToolCall, error) {
	if args == "" {
		return nil, fmt.Errorf("tool call %s (%s): arguments are required", callID, name)
	}
	return &ToolCall{CallID: callID, Name: name, args: args}, nil
}

// NewParsedToolCall builds a tool call from already structured arguments,
// for providers that deliver them pre-parsed.
func NewParsedToolCall(callID, name string, parsed map[string]any) (*ToolCall, error) {
	if parsed == nil {
		return nil, fmt.Errorf("tool call %s (%s): parsed arguments are required", callID, name)
	}
	return &ToolCall{CallID: callID, Name: name, parsedArgs: parsed}, nil
}

func (*ToolCall) message() {}

// ParsedArgs returns the structured arguments, parsing the raw JSON on first
// use. A payload that does not parse is an *ArgumentParseError.
func (t *ToolCall) ParsedArgs() (map[string]any, error) {
	if t.parsedArgs != nil {
		return t.parsedArgs, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(t.args), &parsed); err != nil {
		return nil, &ArgumentParseError{CallID: t.CallID, Name: t.Name, Err: err}
	}
	t.parsedArgs = parsed
	return parsed, nil
}

// RawArgs returns the argument payload as JSON text, marshalling the parsed
// form when the provider never supplied a raw one.
func (t *ToolCall) RawArgs() (string, error) {
	if t.args != "" {
		return t.args, nil
	}
	raw, err := json.Marshal(t.parsedArgs)
	if err != nil {
		return "", fmt.Errorf("tool call %s (%s): %w", t.CallID, t.Name, err)
	}
	return string(raw), nil
}

// ToolResult pairs the textual outcome of a tool invocation with the call id
// it answers. Providers match results to calls strictly by this id.
type ToolResult struct {
	payloadCache

	CallID string
	Result string
}

// NewToolResult returns a tool result for the given call id.
func NewToolResult(callID, result string) *ToolResult {
	return &ToolResult{CallID: callID, Result: result}
}

func (*ToolResult) message() {}

// ArgumentParseError reports a tool-call argument payload that is not valid
// JSON. It is fatal for the call that carries it.
type ArgumentParseError struct {
	CallID string
	Name   string
	Err    error
}

func (e *ArgumentParseError) Error() string {
	return fmt.Sprintf("tool call %s (%s): arguments do not parse: %v", e.CallID, e.Name, e.Err)
}

func (e *ArgumentParseError) Unwrap() error { return e.Err }
