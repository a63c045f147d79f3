package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"golang.org/x/time/rate"
)

// Metrics records request count, latency and server errors per route.
func Metrics(m *aws.MetricsClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsEnabled() {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx := c.Request.Context()
		status := c.Writer.Status()
		dims := map[string]string{"Route": route, "Method": c.Request.Method, "Status": strconv.Itoa(status)}
		_ = m.RecordCount(ctx, aws.MetricHTTPRequests, dims)
		_ = m.RecordLatency(ctx, aws.MetricHTTPLatency, time.Since(start), map[string]string{"Route": route})
		if status >= http.StatusInternalServerError {
			_ = m.RecordCount(ctx, aws.MetricHTTP5xx, map[string]string{"Route": route})
		}
	}
}

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*ipLimiter
	rate  rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per IP with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	interval := time.Minute / time.Duration(perMinute)
	// a bucket untouched for this long has refilled, so forgetting it changes nothing
	idle := time.Duration(burst) * interval
	if idle < time.Minute {
		idle = time.Minute
	}
	return &RateLimiter{
		ips:   make(map[string]*ipLimiter),
		rate:  rate.Every(interval),
		burst: burst,
		idle:  idle,
		clock: time.Now,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	now := rl.clock()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if e, ok := rl.ips[ip]; ok {
		e.lastSeen = now
		return e.limiter
	}
	rl.pruneIdleLocked(now)
	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.ips[ip] = &ipLimiter{limiter: l, lastSeen: now}
	return l
}

func (rl *RateLimiter) pruneIdleLocked(now time.Time) {
	for ip, e := range rl.ips {
		if now.Sub(e.lastSeen) > rl.idle {
			delete(rl.ips, ip)
		}
	}
}

// size reports how many clients are tracked.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.ips)
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
