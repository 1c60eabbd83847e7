package batch

import (
	"context"
	"log"
	"time"

	"github.com/facebookgo/clock"
)

// DefaultTick is how often a Monitor drains its bus.
const DefaultTick = time.Second

// A Monitor drains a Bus on a fixed tick, forwards what it finds to a Sink
// and, whenever something was found, calls Beat. Beat is called at most once
// every Interval, however many measurements arrive.
type Monitor struct {
	Bus      *Bus
	Sink     Sink                            // may be nil
	Beat     func(ctx context.Context) error // may be nil
	Interval time.Duration                   // minimum time between calls to Beat
	Tick     time.Duration                   // zero means DefaultTick
	Clock    clock.Clock                     // nil means the wall clock

	last time.Time // time of last call to Beat
}

// Start runs the monitor in a new goroutine. Calling the returned function
// makes the monitor do one last drain and exit. It waits for that to finish.
func (m *Monitor) Start(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		m.Run(ctx, done)
		close(finished)
	}()
	return func() {
		close(done)
		<-finished
	}
}

// Run drains the bus on every tick until done is closed. It then drains the
// bus one final time, so nothing put before done was closed is lost.
func (m *Monitor) Run(ctx context.Context, done <-chan struct{}) {
	clk := m.Clock
	if clk == nil {
		clk = clock.New()
	}
	tick := m.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := clk.Ticker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.flush(ctx, clk)
		case <-done:
			m.flush(ctx, clk)
			return
		}
	}
}

func (m *Monitor) flush(ctx context.Context, clk clock.Clock) {
	items := m.Bus.Drain()
	if len(items) == 0 {
		return
	}
	if m.Sink != nil {
		if err := m.Sink.Send(items); err != nil {
			log.Printf("monitor: sending %d measurements: %s", len(items), err)
		}
	}
	if m.Beat == nil {
		return
	}
	now := clk.Now()
	if !m.last.IsZero() && now.Sub(m.last) < m.Interval {
		return
	}
	m.last = now
	if err := m.Beat(ctx); err != nil {
		log.Printf("monitor: heartbeat: %s", err)
	}
}
