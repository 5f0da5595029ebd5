package meta

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// adaptiveLimiter throttles Graph API calls. A rate-limit response halves
// the rate (down to a quarter of the initial rate); each success raises it
// by 20% up to the initial rate, never above what was configured.
type adaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	min     rate.Limit
	current rate.Limit
}

func newAdaptiveLimiter(rps float64, burst int) *adaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	r := rate.Limit(rps)
	return &adaptiveLimiter{
		limiter: rate.NewLimiter(r, burst),
		initial: r,
		min:     r / 4,
		current: r,
	}
}

func (a *adaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

func (a *adaptiveLimiter) onSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current >= a.initial {
		return
	}
	a.current = min(a.current*1.2, a.initial)
	a.limiter.SetLimit(a.current)
}

func (a *adaptiveLimiter) onRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = max(a.current*0.5, a.min)
	a.limiter.SetLimit(a.current)
	zap.L().Warn("meta: rate limited, reducing request rate",
		zap.Float64("requests_per_sec", float64(a.current)),
	)
}

// Limit returns the current request rate.
func (a *adaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
