package activitypub

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter paces outbound deliveries per remote host.
type hostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// newHostLimiter allows r requests per second with burst b to each host.
func newHostLimiter(r rate.Limit, b int) *hostLimiter {
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

func (hl *hostLimiter) get(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	limiter, exists := hl.limiters[host]
	if !exists {
		// drop idle hosts wholesale to bound memory
		if len(hl.limiters) > 10000 {
			hl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(hl.rate, hl.burst)
		hl.limiters[host] = limiter
	}
	return limiter
}

// Wait blocks until a request to the host of rawURL may be sent.
func (hl *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	return hl.get(host).Wait(ctx)
}
