package util

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// A Throttle keeps the bytes read by a batch under a given rate. Reads take
// credits from a bucket which refills continuously at Rate bytes per second,
// up to one second's worth. A read may take the balance negative, and the
// next read then waits until the balance is positive again.
//
// A Throttle may be shared by any number of goroutines.
type Throttle struct {
	rate float64 // bytes per second
	clk  clock.Clock

	m       sync.Mutex // protects below
	credits float64
	last    time.Time // when credits was last refilled
}

// NewThrottle returns a throttle allowing rate bytes per second. A nil clock
// means the wall clock.
func NewThrottle(rate float64, clk clock.Clock) *Throttle {
	if clk == nil {
		clk = clock.New()
	}
	if rate < 1 {
		rate = 1
	}
	return &Throttle{
		rate:    rate,
		clk:     clk,
		credits: rate,
		last:    clk.Now(),
	}
}

// refill adds the credits earned since the last call. The caller must hold m.
func (t *Throttle) refill() {
	now := t.clk.Now()
	t.credits += now.Sub(t.last).Seconds() * t.rate
	if t.credits > t.rate {
		t.credits = t.rate
	}
	t.last = now
}

// Use takes n credits from the bucket.
func (t *Throttle) Use(n int64) {
	t.m.Lock()
	t.refill()
	t.credits -= float64(n)
	t.m.Unlock()
}

// Wait blocks until the balance is positive or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	for {
		t.m.Lock()
		t.refill()
		debt := -t.credits
		t.m.Unlock()
		if debt < 0 {
			return nil
		}
		// the extra millisecond makes sure the balance is positive on wakeup
		d := time.Duration(debt/t.rate*float64(time.Second)) + time.Millisecond
		select {
		case <-t.clk.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReaderAt returns ra with every read first waiting on the throttle. Reads
// fail with the error of ctx once it is done.
func (t *Throttle) ReaderAt(ctx context.Context, ra io.ReaderAt) io.ReaderAt {
	return &throttledReaderAt{ctx: ctx, ra: ra, t: t}
}

type throttledReaderAt struct {
	ctx context.Context
	ra  io.ReaderAt
	t   *Throttle
}

func (r *throttledReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if err := r.t.Wait(r.ctx); err != nil {
		return 0, err
	}
	n, err := r.ra.ReadAt(p, off)
	r.t.Use(int64(n))
	return n, err
}
