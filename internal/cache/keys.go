package cache

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"
)

const (
	LiteratureTTL = 6 * time.Hour
	RateLimitTTL  = time.Minute
	LockTTL       = 10 * time.Second
)

// SummariesKey generates the Redis key for an esummary batch.
func SummariesKey(ids []string) string {
	hash := sha1.Sum([]byte(strings.Join(ids, ",")))
	return fmt.Sprintf("pubmed:v1:summaries:%x", hash)
}

// AbstractKey generates the Redis key for a plain-text abstract.
func AbstractKey(pmid string) string {
	return fmt.Sprintf("pubmed:v1:abstract:%s", pmid)
}

// ArticlesKey generates the Redis key for an efetch XML batch.
func ArticlesKey(ids []string) string {
	hash := sha1.Sum([]byte(strings.Join(ids, ",")))
	return fmt.Sprintf("pubmed:v1:articles:%x", hash)
}

// RateLimitKey generates the Redis key for a client's request counter in the
// given one-minute window.
func RateLimitKey(clientIP string, window int64) string {
	return fmt.Sprintf("ratelimit:ip:%s:%d", clientIP, window)
}

// LockKey generates the key guarding a cache fill.
func LockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}
