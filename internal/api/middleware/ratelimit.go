package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds the number of tracked clients
const DefaultMaxClients = 10000

// RateLimiter is a per-client token bucket limiter.
// Clients are tracked in a bounded LRU so memory stays flat under many distinct IPs.
type RateLimiter struct {
	clients *lru.Cache[string, *rate.Limiter]
	logger  *zap.Logger
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
}

// NewRateLimiter creates a new rate limiter
// requests: maximum number of requests allowed per window
// window: time window duration (e.g., 1 minute)
// maxClients: LRU capacity (0 uses DefaultMaxClients)
func NewRateLimiter(requests int, window time.Duration, maxClients int, logger *zap.Logger) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		// Only fails for non-positive sizes, which are handled above
		cache, _ = lru.New[string, *rate.Limiter](DefaultMaxClients)
	}

	return &RateLimiter{
		clients: cache,
		logger:  logger,
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
	}
}

// Middleware returns a rate limiting middleware
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := getClientIP(r)

		reservation := rl.limiterFor(clientID).Reserve()
		if !reservation.OK() || reservation.Delay() > 0 {
			retryAfter := 1
			if reservation.OK() {
				retryAfter = max(1, int(math.Ceil(reservation.Delay().Seconds())))
			}
			reservation.Cancel()

			rl.logger.Warn("[RATE-LIMIT] Request rejected",
				zap.String("client", clientID),
				zap.String("path", r.URL.Path))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "RateLimitExceeded",
				"message": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// limiterFor returns the client's limiter, creating it on first use
func (rl *RateLimiter) limiterFor(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.clients.Get(clientID); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients.Add(clientID, limiter)
	return limiter
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy); the first entry is the client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	// Fall back to RemoteAddr without the port
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
