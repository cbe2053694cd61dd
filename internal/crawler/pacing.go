package crawler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces requests out. In stealth mode each pause is drawn from
// [base, 3*base) so the request cadence carries no fixed period; plain
// mode sleeps the base delay exactly.
type Pacer struct {
	base    time.Duration
	stealth bool
	rng     *rand.Rand
}

// NewPacer builds a pacer. rng may be nil for the default source.
func NewPacer(base time.Duration, stealth bool, rng *rand.Rand) *Pacer {
	return &Pacer{base: base, stealth: stealth, rng: rng}
}

// Next returns the pause to apply before the next request.
func (p *Pacer) Next() time.Duration {
	if p.base <= 0 {
		return 0
	}
	if !p.stealth {
		return p.base
	}
	jitter := float64(2 * p.base)
	if p.rng != nil {
		return p.base + time.Duration(p.rng.Float64()*jitter)
	}
	return p.base + time.Duration(rand.Float64()*jitter)
}

// Wait sleeps for the next pause, returning early on context
// cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Next()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HostLimiter applies an optional token bucket per host on top of the
// pacer's delay.
type HostLimiter struct {
	requests int
	window   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter; it is inert when requests or window
// is zero.
func NewHostLimiter(requests int, window time.Duration) *HostLimiter {
	l := &HostLimiter{requests: requests, window: window}
	if requests > 0 && window > 0 {
		l.limiters = make(map[string]*rate.Limiter)
	}
	return l
}

// Wait blocks until the host's token bucket permits another request.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.limiters == nil || host == "" {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		interval := l.window / time.Duration(l.requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		limiter = rate.NewLimiter(rate.Every(interval), l.requests)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}
