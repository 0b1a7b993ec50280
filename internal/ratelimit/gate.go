package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate blocks until the next request may proceed.
type Gate interface {
	// Wait blocks until a request is allowed or ctx is done.
	Wait(ctx context.Context) error
}

// limiterGate adapts a token bucket to the Gate interface.
type limiterGate struct {
	limiter *rate.Limiter
}

// Wait implements Gate.
func (g *limiterGate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// NewFixedInterval returns a Gate that admits one request per interval.
// The first request passes immediately; every later request waits until
// interval has elapsed since the previous one. A non-positive interval
// returns Unlimited.
//
// Design decision: We use a token bucket with burst 1 rather than sleeping
// after each request because the bucket measures the gap from the previous
// admission, so time spent parsing a page counts toward the delay.
func NewFixedInterval(interval time.Duration) Gate {
	if interval <= 0 {
		return Unlimited()
	}
	return &limiterGate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// NewPerSecond returns a Gate that admits n requests per second with a
// burst of n. A non-positive n returns Unlimited.
func NewPerSecond(n int) Gate {
	if n <= 0 {
		return Unlimited()
	}
	return &limiterGate{limiter: rate.NewLimiter(rate.Limit(n), n)}
}

// unlimited never blocks except on a cancelled context.
type unlimited struct{}

// Wait implements Gate.
func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Unlimited returns a Gate that never delays.
func Unlimited() Gate {
	return unlimited{}
}

// PerKey holds an independent Gate per key, created on first use.
type PerKey struct {
	factory func() Gate

	mu    sync.Mutex
	gates map[string]Gate
}

// NewPerKey creates a PerKey whose gates are built by factory.
func NewPerKey(factory func() Gate) *PerKey {
	if factory == nil {
		factory = Unlimited
	}
	return &PerKey{
		factory: factory,
		gates:   make(map[string]Gate),
	}
}

// Wait blocks on the gate belonging to key.
func (p *PerKey) Wait(ctx context.Context, key string) error {
	return p.gate(key).Wait(ctx)
}

// Len returns the number of keys seen so far.
func (p *PerKey) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.gates)
}

func (p *PerKey) gate(key string) Gate {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.gates[key]
	if !ok {
		g = p.factory()
		p.gates[key] = g
	}
	return g
}
