// Package batch runs a batch of independent jobs in parallel, while a monitor
// goroutine forwards the progress the jobs report and keeps the host
// scheduler informed that the batch is still alive.
//
// Every job gets its own slot in the results. A job which fails, whether by
// returning an error or by panicking, only fails its own slot.
package batch

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// Names of the measurements reported by the lambdas.
const (
	BytesProcessed = "bytesProcessed"
	FilesProcessed = "filesProcessed"
	FilesUnpacked  = "filesUnpacked"
	BytesUnpacked  = "bytesUnpacked"
)

// A Measurement is one point of a time series.
type Measurement struct {
	TsName    string `json:"tsName"`
	Value     int64  `json:"value"`
	Timestamp int64  `json:"timestamp"` // seconds since the epoch
}

// A Bus is a queue of measurements. Any number of goroutines may Put into
// it. It is drained by a single Monitor.
type Bus struct {
	clk clock.Clock

	m     sync.Mutex // protects items
	items []Measurement
}

// NewBus returns an empty Bus which timestamps measurements using clk. If clk
// is nil the wall clock is used.
func NewBus(clk clock.Clock) *Bus {
	if clk == nil {
		clk = clock.New()
	}
	return &Bus{clk: clk}
}

// Put adds m to the queue.
func (b *Bus) Put(m Measurement) {
	b.m.Lock()
	b.items = append(b.items, m)
	b.m.Unlock()
}

// Record adds a measurement for the series name, timestamped now. It is
// safe to call Record on a nil Bus, in which case nothing happens.
func (b *Bus) Record(name string, value int64) {
	if b == nil {
		return
	}
	b.Put(Measurement{
		TsName:    name,
		Value:     value,
		Timestamp: b.clk.Now().Unix(),
	})
}

// Drain removes and returns everything in the queue, in arrival order.
func (b *Bus) Drain() []Measurement {
	b.m.Lock()
	result := b.items
	b.items = nil
	b.m.Unlock()
	return result
}

// Now returns the time according to the bus clock.
func (b *Bus) Now() time.Time {
	return b.clk.Now()
}
