package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrDaPoyo/indieseas/internal/metrics"
)

// DomainLimiter enforces a per-domain request rate so no single host is
// hammered regardless of how many workers pull its URLs.
type DomainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewDomainLimiter builds a limiter allowing rps requests per second per
// domain with a burst of 1.
func NewDomainLimiter(rps float64) *DomainLimiter {
	if rps <= 0 {
		rps = 1
	}
	return &DomainLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    1,
	}
}

func (d *DomainLimiter) limiter(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[domain]
	if !ok {
		l = rate.NewLimiter(d.rps, d.burst)
		d.limiters[domain] = l
	}
	return l
}

// Wait blocks until the domain's limiter grants a token or the context is
// canceled. The observed delay is exported as a metric.
func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	start := time.Now()
	err := d.limiter(domain).Wait(ctx)
	if err == nil {
		metrics.ObserveRateLimitDelay(domain, time.Since(start))
	}
	return err
}
