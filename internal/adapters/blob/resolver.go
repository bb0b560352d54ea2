package blob

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dkeye/Poker/internal/core"
)

// CachedResolver memoises another BlobStore.
type CachedResolver struct {
	next  core.BlobStore
	cache *expirable.LRU[string, string]

	// concurrent misses for one ref share a single call to next
	sf singleflight.Group
}

var _ core.BlobStore = (*CachedResolver)(nil)

// NewCachedResolver keeps at most size entries for ttl. ttl must stay below
// the lifetime of the URLs next hands out.
func NewCachedResolver(next core.BlobStore, size int, ttl time.Duration) *CachedResolver {
	if size <= 0 {
		size = 1024
	}
	return &CachedResolver{
		next:  next,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if url, ok := c.cache.Get(ref); ok {
		return url, nil
	}
	v, err, _ := c.sf.Do(ref, func() (interface{}, error) {
		url, err := c.next.Resolve(ctx, ref)
		if err != nil {
			return "", err
		}
		c.cache.Add(ref, url)
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *CachedResolver) Len() int {
	return c.cache.Len()
}

// ResolveOrEmpty degrades to no image when resolution fails; a broken avatar
// must never stop a room snapshot from going out.
func ResolveOrEmpty(ctx context.Context, bs core.BlobStore, ref string) string {
	if bs == nil || ref == "" {
		return ""
	}
	url, err := bs.Resolve(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.blob").Str("ref", ref).Msg("resolve failed")
		return ""
	}
	return url
}
