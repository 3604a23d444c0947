package server

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gokatarajesh/certprep/internal/auth"
	httperrors "github.com/gokatarajesh/certprep/pkg/http/errors"
)

// UserLimiter hands every user their own token bucket.
type UserLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserLimiter allows perMinute events per user with the given burst.
func NewUserLimiter(perMinute float64, burst int) *UserLimiter {
	if perMinute <= 0 {
		perMinute = 6
	}
	if burst <= 0 {
		burst = 1
	}
	return &UserLimiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token from the user's bucket.
func (l *UserLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[userID]
	if !ok {
		l.evictLocked(now)
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// refill is how long one token takes to come back.
func (l *UserLimiter) refill() time.Duration {
	return time.Duration(math.Round(float64(time.Second) / float64(l.limit)))
}

func (l *UserLimiter) evictLocked(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, id)
		}
	}
}

// Middleware rejects requests past the caller's budget with 429.
func (l *UserLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := auth.UserIDFromContext(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.Allow(key) {
			httperrors.RespondTooManyRequests(w, httperrors.ErrCodeRateLimited, "Too many tests started, try again shortly", l.refill())
			return
		}
		next.ServeHTTP(w, r)
	})
}
