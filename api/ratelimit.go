package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// requestsPerMinute is the sustained per-client budget.
	requestsPerMinute = 30

	// burstSize allows short bursts above the sustained rate.
	burstSize = 10

	// clientTTL is how long an idle client entry survives.
	clientTTL = 10 * time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter is a per-client token bucket keyed by IP.
type rateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*client
	trustProxy bool
}

func newRateLimiter(trustProxy bool) *rateLimiter {
	return &rateLimiter{
		clients:    make(map[string]*client),
		trustProxy: trustProxy,
	}
}

// clientIP extracts the caller's address. Behind a trusted proxy the first
// X-Forwarded-For hop is the real client.
func (rl *rateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			// Validate so arbitrary header text cannot become a limiter key.
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(requestsPerMinute)/60, burstSize)}
		rl.clients[ip] = c

		// Piggyback eviction on new-client arrivals.
		for addr, entry := range rl.clients {
			if now.Sub(entry.lastSeen) > clientTTL {
				delete(rl.clients, addr)
			}
		}
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(rl.clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
