// Package memory persists per-session conversation histories and their
// cumulative usage. Sessions are append-only: a store only ever grows a
// session's message sequence and adds to its usage, which is what makes the
// durable store's read-through cache safe without invalidation.
package memory
