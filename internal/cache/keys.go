package cache

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Key builds a deterministic cache key from the parts that affect a
// response: provider prefix, base URL, path, and query/header parameters.
// Parameters are emitted in sorted order so two logically-identical requests
// produce the same key regardless of map iteration order.
func Key(provider, baseURL, path string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(provider)
	b.WriteString(":")
	b.WriteString(baseURL)
	b.WriteString(":")
	b.WriteString(path)

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(":")
		for i, k := range keys {
			if i > 0 {
				b.WriteString("&")
			}
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(params[k])
		}
	}

	return b.String()
}

// Fetch is the single cached-fetch path for provider clients: look up the
// key, fall back to fetch on miss, store the result. A ttl <= 0 bypasses
// the cache entirely (no read, no write), which is how auth/session
// endpoints stay uncached. Cache failures degrade to misses.
func Fetch(ctx context.Context, c Cache, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if c != nil && ttl > 0 {
		if data, ok := c.Get(key); ok {
			return data, nil
		}
	}

	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if c != nil && ttl > 0 {
		c.Set(key, data, ttl)
	}

	return data, nil
}
