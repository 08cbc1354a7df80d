package utils

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff doubles a jittered delay per retry, starting at Base and capped at
// Max when Max > 0. The zero value starts at 500ms.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	next time.Duration
}

// Next returns the delay before the next retry and advances the schedule.
func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Base
	}
	if b.next <= 0 {
		b.next = 500 * time.Millisecond
	}
	// +/- 20%
	d := time.Duration(float64(b.next) * (0.8 + rand.Float64()*0.4))
	b.next *= 2
	if b.Max > 0 {
		d = min(d, b.Max)
		b.next = min(b.next, b.Max)
	}
	return d
}

// Wait sleeps for hint when positive (a server-provided delay), otherwise for
// Next(). It returns ctx.Err() as soon as ctx is done.
func (b *Backoff) Wait(ctx context.Context, hint time.Duration) error {
	d := hint
	if d <= 0 {
		d = b.Next()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
