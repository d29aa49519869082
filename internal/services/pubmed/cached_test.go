package pubmed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memoryCache struct {
	data map[string][]byte
	err  error
}

func (m *memoryCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (interface{}, error)) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, fmt.Errorf("failed to generate value: %w", err)
	}
	b := v.([]byte)
	m.data[key] = b
	return b, nil
}

type countingSource struct {
	abstracts map[string]string
	calls     map[string]int
}

func (s *countingSource) SearchIDs(ctx context.Context, query string, maxResults int) []string {
	s.calls["search"]++
	return []string{"1"}
}

func (s *countingSource) FetchSummaries(ctx context.Context, ids []string) map[string]Summary {
	s.calls["summaries"]++
	out := map[string]Summary{}
	for _, id := range ids {
		out[id] = Summary{ID: id, Title: "title " + id}
	}
	return out
}

func (s *countingSource) FetchAbstract(ctx context.Context, id string) string {
	s.calls["abstract:"+id]++
	return s.abstracts[id]
}

func (s *countingSource) FetchArticles(ctx context.Context, ids []string) []ArticleRecord {
	s.calls["articles"]++
	return []ArticleRecord{{PMID: ids[0], Authors: []string{"Smith J"}}}
}

func newCounting() *countingSource {
	return &countingSource{
		abstracts: map[string]string{"1": "abstract one"},
		calls:     map[string]int{},
	}
}

func TestCachedSourceMemoises(t *testing.T) {
	ctx := context.Background()
	inner := newCounting()
	src := NewCachedSource(inner, &memoryCache{data: map[string][]byte{}}, time.Minute)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "abstract one", src.FetchAbstract(ctx, "1"))
		assert.Equal(t, "title 7", src.FetchSummaries(ctx, []string{"7"})["7"].Title)
		assert.Equal(t, []string{"Smith J"}, src.FetchArticles(ctx, []string{"9"})[0].Authors)
		src.SearchIDs(ctx, "q", 10)
	}

	assert.Equal(t, 1, inner.calls["abstract:1"])
	assert.Equal(t, 1, inner.calls["summaries"])
	assert.Equal(t, 1, inner.calls["articles"])
	assert.Equal(t, 3, inner.calls["search"])
}

func TestCachedSourceSkipsEmptyResults(t *testing.T) {
	ctx := context.Background()
	inner := newCounting()
	cache := &memoryCache{data: map[string][]byte{}}
	src := NewCachedSource(inner, cache, time.Minute)

	assert.Empty(t, src.FetchAbstract(ctx, "2"))
	assert.Empty(t, src.FetchAbstract(ctx, "2"))

	assert.Equal(t, 2, inner.calls["abstract:2"])
	assert.Empty(t, cache.data)
}

func TestCachedSourceFallsThroughOnCacheError(t *testing.T) {
	ctx := context.Background()
	inner := newCounting()
	src := NewCachedSource(inner, &memoryCache{err: errors.New("connection refused")}, time.Minute)

	assert.Equal(t, "abstract one", src.FetchAbstract(ctx, "1"))
	assert.Len(t, src.FetchSummaries(ctx, []string{"1", "2"}), 2)
	assert.Equal(t, 1, inner.calls["abstract:1"])
}

func TestCachedSourceIgnoresCorruptEntries(t *testing.T) {
	ctx := context.Background()
	inner := newCounting()
	cache := &memoryCache{data: map[string][]byte{}}
	src := NewCachedSource(inner, cache, time.Minute)

	assert.Equal(t, "abstract one", src.FetchAbstract(ctx, "1"))
	for k := range cache.data {
		cache.data[k] = []byte("{not json")
	}
	assert.Equal(t, "abstract one", src.FetchAbstract(ctx, "1"))
	assert.Equal(t, 2, inner.calls["abstract:1"])
}
