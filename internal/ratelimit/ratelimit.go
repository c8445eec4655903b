package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-connection token bucket that also counts how often
// the caller went over budget.
type Limiter struct {
	bucket *rate.Limiter

	mu         sync.Mutex
	violations int
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow consumes one token, recording a violation when none is left
func (l *Limiter) Allow() bool {
	return l.AllowAt(time.Now())
}

func (l *Limiter) AllowAt(now time.Time) bool {
	if l.bucket.AllowN(now, 1) {
		return true
	}
	l.mu.Lock()
	l.violations++
	l.mu.Unlock()
	return false
}

func (l *Limiter) Violations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.violations
}
