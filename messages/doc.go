// Package messages defines the normalized conversation data model shared by
// every provider adapter: a closed set of message variants (content,
// reasoning, tool call, tool result), token/cost usage accounting, and the
// per-provider payload cache that avoids re-projecting the same immutable
// message into a provider's wire format on every turn.
//
// Design decisions:
//   - Closed sum type: the variant set is fixed, enforced through an
//     unexported marker method, and adapters switch exhaustively over it.
//   - Immutability: a message never changes after construction. The only
//     mutable attachment is the payload cache, which is pure memoization:
//     repopulating it is idempotent and concurrent population is safe.
//   - Store interop: every variant serializes to JSON with an explicit type
//     tag so the durable memory store can round-trip histories without
//     knowing provider wire formats.
package messages
