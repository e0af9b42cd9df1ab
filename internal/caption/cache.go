package caption

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	cacheKeyPrefix = "pictor:caption:"
	cacheTTL       = 24 * time.Hour
)

// CacheKey derives the cache key for an object path and style hint. Object
// paths embed a fresh UUID per upload and objects are never rewritten, so the
// path identifies the content.
func CacheKey(objectPath, styleHint string) string {
	sum := sha256.Sum256([]byte(objectPath + "\x00" + styleHint))
	return hex.EncodeToString(sum[:])
}

// Cache stores caption results in Valkey keyed by the image content digest,
// so recaptioning an unchanged image skips the paid analyzer call. All
// methods are safe on a nil receiver (cache disabled).
type Cache struct {
	client valkey.Client
}

// NewCache creates a caption cache backed by the given Valkey client.
func NewCache(client valkey.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the cached result for a content digest, or false on miss.
func (c *Cache) Get(ctx context.Context, digest string) (*Result, bool) {
	if c == nil {
		return nil, false
	}

	resp := c.client.Do(ctx, c.client.B().Get().Key(cacheKeyPrefix+digest).Build())
	data, err := resp.AsBytes()
	if err != nil {
		return nil, false
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// Set stores a result for a content digest with a TTL.
func (c *Cache) Set(ctx context.Context, digest string, r *Result) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal caption result: %w", err)
	}

	resp := c.client.Do(ctx, c.client.B().Set().
		Key(cacheKeyPrefix+digest).Value(string(data)).Ex(cacheTTL).Build())
	if err := resp.Error(); err != nil {
		return fmt.Errorf("cache caption result: %w", err)
	}
	return nil
}
