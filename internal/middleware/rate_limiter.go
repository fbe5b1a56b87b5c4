package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ipLimiters holds one token bucket per client IP. Buckets idle for longer
// than idleTTL are dropped by the purge loop.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const (
	purgeInterval = 5 * time.Minute
	idleTTL       = 10 * time.Minute
)

func (l *ipLimiters) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[ip]
	if !ok {
		e = &ipLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.lim
}

func (l *ipLimiters) purge(now time.Time) (purged, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.limiters {
		if now.Sub(e.lastSeen) > idleTTL {
			delete(l.limiters, ip)
			purged++
		}
	}
	return purged, len(l.limiters)
}

// RateLimiter allows limit requests per window per client IP, refilled
// continuously, with a burst of the full limit. Configured by RATE_LIMIT_PER_MINUTE.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	l := &ipLimiters{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
	}
	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for now := range ticker.C {
			if purged, remaining := l.purge(now); purged > 0 {
				log.Debug().
					Int("entries_purged", purged).
					Int("entries_remaining", remaining).
					Msg("rate limiter map purged")
			}
		}
	}()

	return func(c *gin.Context) {
		lim := l.get(c.ClientIP(), time.Now())
		r := lim.Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("too many requests"))
			return
		}
		c.Next()
	}
}
