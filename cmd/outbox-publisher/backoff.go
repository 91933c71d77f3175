package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

type backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// next doubles the delay from base up to max and adds jitter.
func (b *backoff) next() time.Duration {
	switch {
	case b.current <= 0:
		b.current = b.base
	case b.current*2 > b.max:
		b.current = b.max
	default:
		b.current *= 2
	}
	return withJitter(b.current)
}

func (b *backoff) reset() {
	b.current = 0
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
