package auth

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache remembers which client an API key resolved to. Entries are
// keyed by the SHA-256 digest of the key, so plaintext keys do not outlive
// the request that carried them.
//
// An entry older than ttl is still served, and the first caller to see it
// is told to refresh it in the background. An entry older than
// ttl+maxStale is dropped and reads as a miss, which forces a synchronous
// lookup when refreshes keep failing to land.
type AuthCache struct {
	entries  sync.Map // [sha256.Size]byte -> *cacheEntry
	ttl      time.Duration
	maxStale time.Duration
	now      func() time.Time
}

type cacheEntry struct {
	client     *Client
	storedAt   time.Time
	refreshing atomic.Bool
}

// NewAuthCache creates a cache. A non-positive maxStale serves stale
// entries until they are replaced or deleted.
func NewAuthCache(ttl, maxStale time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl, maxStale: maxStale, now: time.Now}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Client       *Client
	Hit          bool // a value was found (fresh or stale)
	NeedsRefresh bool // stale, and this caller won the right to refresh it
}

func keyDigest(apiKey string) [sha256.Size]byte {
	return sha256.Sum256([]byte(apiKey))
}

// Get looks up the client for apiKey.
func (c *AuthCache) Get(apiKey string) GetResult {
	k := keyDigest(apiKey)
	val, ok := c.entries.Load(k)
	if !ok {
		return GetResult{}
	}
	entry := val.(*cacheEntry)

	age := c.now().Sub(entry.storedAt)
	switch {
	case age < c.ttl:
		return GetResult{Client: entry.client, Hit: true}
	case c.maxStale > 0 && age >= c.ttl+c.maxStale:
		// Only drop the entry we judged; a concurrent Set may have replaced it.
		c.entries.CompareAndDelete(k, entry)
		return GetResult{}
	}

	return GetResult{
		Client:       entry.client,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores client as the fresh result for apiKey.
func (c *AuthCache) Set(apiKey string, client *Client) {
	c.entries.Store(keyDigest(apiKey), &cacheEntry{
		client:   client,
		storedAt: c.now(),
	})
}

// Delete forgets apiKey.
func (c *AuthCache) Delete(apiKey string) {
	c.entries.Delete(keyDigest(apiKey))
}
