package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter tracks a rate limiter and its last access time
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter limits REST requests per client key with automatic cleanup
type RateLimiter struct {
	mu              sync.Mutex
	limiters        map[string]*clientLimiter
	rate            rate.Limit
	burst           int
	maxSize         int
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerSecond per client with burst
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters:        make(map[string]*clientLimiter),
		rate:            rate.Limit(requestsPerSecond),
		burst:           burst,
		maxSize:         10000,
		cleanupInterval: 5 * time.Minute,
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup removes clients idle for a whole cleanup interval
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.cleanupInterval)
	for key, l := range rl.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// Shutdown stops the cleanup goroutine
func (rl *RateLimiter) Shutdown() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow reports whether key may make a request now
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if l, ok := rl.limiters[key]; ok {
		l.lastAccess = now
		return l.limiter
	}

	if len(rl.limiters) >= rl.maxSize {
		var oldestKey string
		var oldest time.Time
		for k, l := range rl.limiters {
			if oldestKey == "" || l.lastAccess.Before(oldest) {
				oldestKey, oldest = k, l.lastAccess
			}
		}
		delete(rl.limiters, oldestKey)
	}

	l := &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst), lastAccess: now}
	rl.limiters[key] = l
	return l.limiter
}

// Middleware answers 429 once a client exceeds its rate.
// Clients are keyed by merchant header when present, else by remote IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"K429","message":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if merchant := r.Header.Get("X-Merchant-Id"); merchant != "" {
		return "merchant:" + merchant
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
