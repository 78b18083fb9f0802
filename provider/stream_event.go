package provider

import "github.com/modelrelay/ag/messages"

// StreamEvent is the closed set of events a streaming invocation emits.
// A well-formed stream is any number of Delta and ToolCallDone events
// followed by exactly one Final or Fail, after which the channel closes.
type StreamEvent interface {
	streamEvent()
}

// Delta is an incremental fragment of the response text.
type Delta struct {
	Text string
}

func (Delta) streamEvent() {}

// ToolCallDone is a tool call whose arguments finished streaming.
type ToolCallDone struct {
	ToolCall *messages.ToolCall
}

func (ToolCallDone) streamEvent() {}

// Final carries the aggregate response assembled from the whole stream. It
// is equivalent to what Generate would have returned for the same request.
type Final struct {
	Response *Response
}

func (Final) streamEvent() {}

// Fail terminates the stream with an error.
type Fail struct {
	Err error
}

func (Fail) streamEvent() {}
