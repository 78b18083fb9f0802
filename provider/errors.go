package provider

import (
	"errors"
	"fmt"
)

// ErrStreamFailed is wrapped by errors the provider signalled through its
// own stream error events, as opposed to transport failures.
var ErrStreamFailed = errors.New("stream failed")

// ProtocolError is a non-2xx HTTP response from the provider.
type ProtocolError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ResponseShapeError is a 2xx response whose body violates the provider's
// documented structure.
type ResponseShapeError struct {
	Provider string
	Reason   string
}

func (e *ResponseShapeError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Reason)
}

// UnsupportedFeatureError reports a request option the provider cannot
// honor. It is returned before any network traffic.
type UnsupportedFeatureError struct {
	Provider string
	Feature  string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s: %s is not supported", e.Provider, e.Feature)
}

// UnsupportedSystemPlacementError reports a system message anywhere but the
// head of the conversation, on providers that carry the system prompt in a
// dedicated top-level field.
type UnsupportedSystemPlacementError struct {
	Provider string
	Index    int
}

func (e *UnsupportedSystemPlacementError) Error() string {
	return fmt.Sprintf("%s: system message at index %d, only the leading position is supported", e.Provider, e.Index)
}

// CostLookupError reports a model id absent from the rate table.
type CostLookupError struct {
	ModelID string
}

func (e *CostLookupError) Error() string {
	return fmt.Sprintf("no cost rates known for model %q", e.ModelID)
}

// TimeoutError reports a call that exceeded its deadline.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
