package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// submissionLimiter throttles POST /workloads per remote address, so a
// storm of submissions from one client cannot starve placement RPCs for
// everyone else.
type submissionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func newSubmissionLimiter(perSecond float64, burst int) *submissionLimiter {
	return &submissionLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perSecond),
		b:        burst,
	}
}

func (l *submissionLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = lim
	}
	return lim.Allow()
}
