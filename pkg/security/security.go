package security

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func newOriginSet(allowedOrigins []string) map[string]bool {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return originSet
}

// OriginChecker accepts websocket upgrades from the same origins as CORS.
// Requests without an Origin header do not come from a browser and pass.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	originSet := newOriginSet(allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originSet[origin]
	}
}

// CORS 中间件 仅允许白名单中的Origin，支持Credentials
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := newOriginSet(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && originSet[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Secure 中间件
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP. Its limits can be changed at
// runtime with SetLimit.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	expiry   time.Duration
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	l := &RateLimiter{visitors: make(map[string]*visitor)}
	l.SetLimit(maxRequests, window)
	return l
}

// SetLimit replaces the limit for every current and future visitor.
func (l *RateLimiter) SetLimit(maxRequests int, window time.Duration) {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.every = rate.Every(window / time.Duration(maxRequests))
	l.burst = maxRequests
	l.expiry = window * 3
	if l.expiry < time.Minute {
		l.expiry = time.Minute
	}
	for _, v := range l.visitors {
		v.limiter.SetLimit(l.every)
		v.limiter.SetBurst(l.burst)
	}
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

// Sweep drops visitors idle longer than the expiry.
func (l *RateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if time.Since(v.lastSeen) > l.expiry {
			delete(l.visitors, ip)
		}
	}
}

// Middleware 按IP限流，自动清理过期条目
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.Sweep()
		}
	}()

	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
