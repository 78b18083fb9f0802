package messages

import (
	"sync"

	"github.com/alphadose/haxmap"
	json "github.com/goccy/go-json"
)

// payloadCache memoizes provider wire projections of a single message,
// keyed by provider id. A message constructed once is resent, unmodified,
// across many requests in the same conversation; the cache exists solely so
// that projection happens once per provider instead of once per turn.
//
// The map is created lazily on first use. Population is idempotent and
// last-write-wins: two adapters racing to cache the same projection both
// compute the same bytes, so redundant stores are harmless.
type payloadCache struct {
	once     sync.Once
	payloads *haxmap.Map[string, json.RawMessage]
}

func (c *payloadCache) init() {
	c.once.Do(func() {
		c.payloads = haxmap.New[string, json.RawMessage]()
	})
}

// CachedPayload implements the cache read half of the Message interface.
func (c *payloadCache) CachedPayload(provider string) (json.RawMessage, bool) {
	c.init()
	return c.payloads.Get(provider)
}

// StorePayload implements the cache write half of the Message interface.
func (c *payloadCache) StorePayload(provider string, payload json.RawMessage) {
	c.init()
	c.payloads.Set(provider, payload)
}
