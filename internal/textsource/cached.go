package textsource

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL = 30 * time.Minute

	// DefaultLoadTimeout bounds a shared page load, which outlives the
	// caller that started it.
	DefaultLoadTimeout = 30 * time.Second
)

// Cached memoizes page text of an underlying Source. Concurrent requests for
// the same uncached page share one extraction. A caller that gives up does
// not fail the others.
type Cached struct {
	Source
	cache       *cache.Cache
	group       singleflight.Group
	loadTimeout time.Duration
}

// NewCached wraps src. A non-positive ttl uses DefaultCacheTTL.
func NewCached(src Source, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		Source:      src,
		cache:       cache.New(ttl, 2*ttl),
		loadTimeout: DefaultLoadTimeout,
	}
}

func (c *Cached) PageText(ctx context.Context, page int) (string, error) {
	key := strconv.Itoa(page)
	if text, ok := c.cache.Get(key); ok {
		return text.(string), nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if text, ok := c.cache.Get(key); ok {
			return text, nil
		}
		ctx, cancel := context.WithTimeout(loadCtx, c.loadTimeout)
		defer cancel()
		text, err := c.Source.PageText(ctx, page)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(key, text)
		return text, nil
	})

	var val interface{}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		val = res.Val
	}
	text, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("unexpected cached value type %T", val)
	}
	return text, nil
}

func (c *Cached) Close() error {
	c.cache.Flush()
	return c.Source.Close()
}
