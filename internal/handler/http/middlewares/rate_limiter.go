package middlewares

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	ips        map[string]*clientLimiter
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	maxIdle    time.Duration
	maxClients int
	now        func() time.Time
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		ips:        make(map[string]*clientLimiter),
		rate:       r,
		burst:      b,
		maxIdle:    10 * time.Minute,
		maxClients: maxTrackedClients,
		now:        time.Now,
	}
}

// PerMinute builds a limiter allowing n requests per minute with the given burst.
func PerMinute(n, burst int) *RateLimiter {
	if n <= 0 {
		return NewRateLimiter(rate.Inf, burst)
	}
	return NewRateLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
}

func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, exists := rl.ips[ip]; exists {
		entry.lastSeen = now
		return entry.limiter
	}

	if len(rl.ips) >= rl.maxClients {
		rl.evictIdle(now)
	}
	// Every tracked client is active: drop the least recently seen one.
	if len(rl.ips) >= rl.maxClients {
		rl.evictOldest()
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.ips[ip] = &clientLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	for ip, entry := range rl.ips {
		if now.Sub(entry.lastSeen) > rl.maxIdle {
			delete(rl.ips, ip)
		}
	}
}

func (rl *RateLimiter) evictOldest() {
	var oldestIP string
	var oldest time.Time
	for ip, entry := range rl.ips {
		if oldestIP == "" || entry.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, entry.lastSeen
		}
	}
	delete(rl.ips, oldestIP)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.GetLimiter(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
