package messages

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Type tags used by the store serialization. Decode dispatches on these.
const (
	typeContent    = "content"
	typeReasoning  = "reasoning"
	typeToolCall   = "tool_call"
	typeToolResult = "tool_result"
)

// MarshalJSON serializes the message with its type tag for durable storage.
func (c *Content) MarshalJSON() ([]byte, error) {
	data, _ := sjson.SetBytes([]byte(`{}`), "type", typeContent)
	data, _ = sjson.SetBytes(data, "role", string(c.Role))
	data, _ = sjson.SetBytes(data, "text", c.Text)
	return data, nil
}

// MarshalJSON serializes the message with its type tag for durable storage.
func (r *Reasoning) MarshalJSON() ([]byte, error) {
	data, _ := sjson.SetBytes([]byte(`{}`), "type", typeReasoning)
	data, _ = sjson.SetBytes(data, "encrypted_content", r.EncryptedContent)
	data, _ = sjson.SetBytes(data, "content", r.Content)
	return data, nil
}

// MarshalJSON serializes the message with its type tag for durable storage.
// The arguments are stored in their raw JSON text form.
func (t *ToolCall) MarshalJSON() ([]byte, error) {
	args, err := t.RawArgs()
	if err != nil {
		return nil, err
	}
	data, _ := sjson.SetBytes([]byte(`{}`), "type", typeToolCall)
	data, _ = sjson.SetBytes(data, "call_id", t.CallID)
	data, _ = sjson.SetBytes(data, "name", t.Name)
	data, _ = sjson.SetBytes(data, "arguments", args)
	return data, nil
}

// MarshalJSON serializes the message with its type tag for durable storage.
func (t *ToolResult) MarshalJSON() ([]byte, error) {
	data, _ := sjson.SetBytes([]byte(`{}`), "type", typeToolResult)
	data, _ = sjson.SetBytes(data, "call_id", t.CallID)
	data, _ = sjson.SetBytes(data, "result", t.Result)
	return data, nil
}

// Decode reconstructs a message from its stored form, dispatching on the
// type tag. Unknown or missing tags fail decoding.
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode message: invalid JSON")
	}

	switch tag := gjson.GetBytes(data, "type").String(); tag {
	case typeContent:
		return NewContent(
			Role(gjson.GetBytes(data, "role").String()),
			gjson.GetBytes(data, "text").String(),
		), nil
	case typeReasoning:
		return NewReasoning(
			gjson.GetBytes(data, "encrypted_content").String(),
			gjson.GetBytes(data, "content").String(),
		), nil
	case typeToolCall:
		return NewToolCall(
			gjson.GetBytes(data, "call_id").String(),
			gjson.GetBytes(data, "name").String(),
			gjson.GetBytes(data, "arguments").String(),
		)
	case typeToolResult:
		return NewToolResult(
			gjson.GetBytes(data, "call_id").String(),
			gjson.GetBytes(data, "result").String(),
		), nil
	default:
		return nil, fmt.Errorf("decode message: unknown type tag %q", tag)
	}
}
