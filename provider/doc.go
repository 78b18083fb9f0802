// Package provider defines the contract every model adapter implements, the
// streaming event union, the error taxonomy shared by adapters, and the
// static per-model rate table used for dollar cost accounting.
//
// Design decisions:
//   - Raw wire protocols: adapters speak HTTP/JSON directly so request
//     construction, response parsing and the streaming state machines are
//     fully under this module's control.
//   - Streaming as a channel: Stream returns a receive-only channel of
//     tagged events. Text deltas and completed tool calls arrive as they are
//     decoded; exactly one terminal event (Final or Fail) precedes close.
//   - Fail fast on money: an unknown model id is a CostLookupError at
//     construction time, never a silently uncosted response.
//   - No retries: a request is attempted once with a per-call timeout.
package provider
