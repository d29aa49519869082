package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"litminer/internal/cache"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
	}
}

// Counter increments a key that expires after ttl. *cache.RedisCache
// satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter limits requests per client IP. With a Counter it uses a shared
// fixed one-minute window; without one, or when the counter fails, it falls
// back to a per-process token bucket.
type RateLimiter struct {
	config  RateLimitConfig
	counter Counter
	local   *SimpleRateLimiter
	now     func() time.Time
}

func NewRateLimiter(config RateLimitConfig, counter Counter) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		counter: counter,
		local:   NewSimpleRateLimiter(config.RequestsPerMinute, config.BurstSize),
		now:     time.Now,
	}
}

func (rl *RateLimiter) allow(ctx context.Context, clientIP string) bool {
	if rl.counter != nil {
		window := rl.now().Unix() / 60
		n, err := rl.counter.Incr(ctx, cache.RateLimitKey(clientIP, window), cache.RateLimitTTL)
		if err == nil {
			return n <= int64(rl.config.RequestsPerMinute)
		}
		log.Warn().Err(err).Msg("Shared rate limit unavailable, using local limiter")
	}
	return rl.local.Allow(clientIP)
}

// Middleware rejects over-limit clients with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if !rl.allow(r.Context(), clientIP) {
			log.Warn().
				Str("client_ip", clientIP).
				Str("url", r.URL.String()).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(60))
			writeError(w, http.StatusTooManyRequests, errCodeRateLimit, "Rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the real client IP address
func getClientIP(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// SimpleRateLimiter is an in-memory token bucket per client.
type SimpleRateLimiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	burstSize         int
	clients           map[string]*clientLimit
	now               func() time.Time
}

type clientLimit struct {
	tokens     float64
	lastRefill time.Time
}

func NewSimpleRateLimiter(requestsPerMinute, burstSize int) *SimpleRateLimiter {
	if burstSize <= 0 {
		burstSize = 1
	}
	return &SimpleRateLimiter{
		requestsPerMinute: requestsPerMinute,
		burstSize:         burstSize,
		clients:           make(map[string]*clientLimit),
		now:               time.Now,
	}
}

func (rl *SimpleRateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, exists := rl.clients[clientIP]
	if !exists {
		client = &clientLimit{tokens: float64(rl.burstSize), lastRefill: now}
		rl.clients[clientIP] = client
	}

	refill := now.Sub(client.lastRefill).Minutes() * float64(rl.requestsPerMinute)
	client.tokens = min(client.tokens+refill, float64(rl.burstSize))
	client.lastRefill = now

	if client.tokens >= 1 {
		client.tokens--
		return true
	}
	return false
}
