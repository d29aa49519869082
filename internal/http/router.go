package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"litminer/internal/metrics"
	"litminer/internal/middleware"
)

type Router struct {
	chi.Router
}

type RouterOptions struct {
	// RequestTimeout bounds every request, including full search runs.
	RequestTimeout time.Duration
	RateLimiter    *middleware.RateLimiter
}

func NewRouter(opts RouterOptions) *Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(), nil)
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Use(opts.RateLimiter.Middleware)

	return &Router{r}
}

// RegisterResearchRoutes registers the search, listing and extraction routes
func (r *Router) RegisterResearchRoutes(h *ResearchHandler) {
	h.RegisterRoutes(r)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterHealthRoutes registers health check routes. /ready fails while the
// store is unreachable.
func (r *Router) RegisterHealthRoutes(store Pinger) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := store.Ping(req.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUpstream, "store unavailable: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ready",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}

// RegisterMetricsRoutes registers the Prometheus endpoint
func (r *Router) RegisterMetricsRoutes() {
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
}
