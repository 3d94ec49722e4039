package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is the minimum time a client's bucket survives without
// requests. The TTL is stretched to the full refill time of the bucket, so
// an evicted bucket was already full.
const limiterIdleTTL = 10 * time.Minute

// RateLimit is the per-client token bucket for result ingestion. A zero
// PerSecond disables limiting.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientLimiter struct {
	limit     RateLimit
	ttl       time.Duration
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*clientEntry
	lastSweep time.Time
}

func newClientLimiter(limit RateLimit) *clientLimiter {
	if limit.Burst <= 0 {
		limit.Burst = 1
	}
	ttl := limiterIdleTTL
	if limit.PerSecond > 0 {
		if refill := time.Duration(float64(limit.Burst) / limit.PerSecond * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	return &clientLimiter{
		limit:   limit,
		ttl:     ttl,
		now:     time.Now,
		clients: make(map[string]*clientEntry),
	}
}

func (l *clientLimiter) get(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.ttl {
		l.evictIdle(now)
		l.lastSweep = now
	}

	if e, ok := l.clients[client]; ok {
		e.lastSeen = now
		return e.limiter
	}
	e := &clientEntry{
		limiter:  rate.NewLimiter(rate.Limit(l.limit.PerSecond), l.limit.Burst),
		lastSeen: now,
	}
	l.clients[client] = e
	return e.limiter
}

// evictIdle drops clients not seen within ttl. Callers hold mu.
func (l *clientLimiter) evictIdle(now time.Time) {
	for client, e := range l.clients {
		if now.Sub(e.lastSeen) >= l.ttl {
			delete(l.clients, client)
		}
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter.limit.PerSecond <= 0 {
			c.Next()
			return
		}
		if !s.limiter.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
