package server

import (
	"expvar"
	"time"

	"github.com/facebookgo/stats"
)

// ExpvarStats is a stats.Client which keeps its counters in an expvar map,
// so they are shown by /debug/vars. Averages and histograms only keep a
// running sum and count.
type ExpvarStats struct {
	m *expvar.Map
}

var _ stats.Client = ExpvarStats{}

// NewExpvarStats publishes a new map with the given name. It panics if the
// name is already in use, like expvar.NewMap.
func NewExpvarStats(name string) ExpvarStats {
	return ExpvarStats{m: expvar.NewMap(name)}
}

// BumpSum adds val to key.
func (s ExpvarStats) BumpSum(key string, val float64) {
	s.m.AddFloat(key, val)
}

// BumpAvg adds val to key.sum and one to key.count.
func (s ExpvarStats) BumpAvg(key string, val float64) {
	s.m.AddFloat(key+".sum", val)
	s.m.Add(key+".count", 1)
}

// BumpHistogram is BumpAvg.
func (s ExpvarStats) BumpHistogram(key string, val float64) {
	s.BumpAvg(key, val)
}

// BumpTime starts a timer. The seconds until End is called are added as
// with BumpAvg.
func (s ExpvarStats) BumpTime(key string) interface {
	End()
} {
	return timer{s: s, key: key, start: time.Now()}
}

type timer struct {
	s     ExpvarStats
	key   string
	start time.Time
}

func (t timer) End() {
	t.s.BumpAvg(t.key, time.Since(t.start).Seconds())
}
