package pubmed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"litminer/internal/cache"
)

// Cache is the subset of cache.RedisCache used to memoise E-utility responses.
type Cache interface {
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (interface{}, error)) ([]byte, error)
}

var errEmpty = errors.New("empty result")

// CachedSource memoises summary, abstract and article lookups. Empty results
// are never stored, so a failed fetch is retried on the next request. Any
// cache error falls through to the wrapped source.
type CachedSource struct {
	Source
	cache Cache
	ttl   time.Duration
}

func NewCachedSource(source Source, c Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = cache.LiteratureTTL
	}
	return &CachedSource{Source: source, cache: c, ttl: ttl}
}

func (s *CachedSource) FetchSummaries(ctx context.Context, ids []string) map[string]Summary {
	if len(ids) == 0 {
		return map[string]Summary{}
	}
	var fresh map[string]Summary
	called := false
	out, ok := cached(ctx, s, cache.SummariesKey(ids), func() (map[string]Summary, bool) {
		called = true
		fresh = s.Source.FetchSummaries(ctx, ids)
		return fresh, len(fresh) > 0
	})
	if ok {
		return out
	}
	if called {
		return fresh
	}
	return s.Source.FetchSummaries(ctx, ids)
}

func (s *CachedSource) FetchAbstract(ctx context.Context, id string) string {
	var fresh string
	called := false
	out, ok := cached(ctx, s, cache.AbstractKey(id), func() (string, bool) {
		called = true
		fresh = s.Source.FetchAbstract(ctx, id)
		return fresh, fresh != ""
	})
	if ok {
		return out
	}
	if called {
		return fresh
	}
	return s.Source.FetchAbstract(ctx, id)
}

func (s *CachedSource) FetchArticles(ctx context.Context, ids []string) []ArticleRecord {
	if len(ids) == 0 {
		return nil
	}
	var fresh []ArticleRecord
	called := false
	out, ok := cached(ctx, s, cache.ArticlesKey(ids), func() ([]ArticleRecord, bool) {
		called = true
		fresh = s.Source.FetchArticles(ctx, ids)
		return fresh, len(fresh) > 0
	})
	if ok {
		return out
	}
	if called {
		return fresh
	}
	return s.Source.FetchArticles(ctx, ids)
}

// cached runs load through the cache. ok is false when the value did not come
// from, or could not be stored in, the cache.
func cached[T any](ctx context.Context, s *CachedSource, key string, load func() (T, bool)) (T, bool) {
	var zero T
	data, err := s.cache.GetOrSet(ctx, key, s.ttl, func() (interface{}, error) {
		v, ok := load()
		if !ok {
			return nil, errEmpty
		}
		return json.Marshal(v)
	})
	if err != nil {
		if !errors.Is(err, errEmpty) {
			log.Warn().Err(err).Str("key", key).Msg("Literature cache unavailable")
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		return zero, false
	}
	return v, true
}
