package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long a client's bucket survives without requests.
const idleLimiterTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client address.
//
// Buckets are created on first use and swept once they have been idle for
// idleLimiterTTL, so the map stays bounded by the number of recently active
// clients.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows rps requests per second per client with the given
// burst. burst < 1 is treated as 1.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow consumes one token from key's bucket. When the bucket is empty it
// returns false and how long until the next token.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < idleLimiterTTL {
		return
	}
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) >= idleLimiterTTL {
			delete(rl.clients, key)
		}
	}
	rl.lastSweep = now
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. Clients are keyed by RemoteAddr, so forwarding headers only
// count when chi's RealIP runs in front.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := rl.Allow(clientKey(r))
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "too_many_requests",
				"message": fmt.Sprintf("Rate limit exceeded: %g per second", float64(rl.rps)),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the request's remote host without the port.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
