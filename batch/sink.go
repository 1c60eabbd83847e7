package batch

import (
	"io"
	"sync"

	"github.com/facebookgo/stats"
	"github.com/goccy/go-json"
)

// A Sink receives the measurements drained by a Monitor.
type Sink interface {
	Send(ms []Measurement) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ms []Measurement) error

// Send calls f(ms).
func (f SinkFunc) Send(ms []Measurement) error { return f(ms) }

// StatsSink adds every measurement to a counter of a stats client, keyed by
// the series name.
type StatsSink struct {
	Client stats.Client
}

// Send bumps the counters.
func (s StatsSink) Send(ms []Measurement) error {
	for _, m := range ms {
		stats.BumpSum(s.Client, m.TsName, float64(m.Value))
	}
	return nil
}

// StreamSink writes each measurement as a line of JSON. This is the format
// the scheduler reads from a lambda's result pipe.
type StreamSink struct {
	m   sync.Mutex
	enc *json.Encoder
}

// NewStreamSink returns a StreamSink writing to w.
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{enc: json.NewEncoder(w)}
}

// Send writes ms to the stream.
func (s *StreamSink) Send(ms []Measurement) error {
	s.m.Lock()
	defer s.m.Unlock()
	for _, m := range ms {
		if err := s.enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

// MultiSink sends to every sink in turn. The first error is returned, but
// all sinks are tried.
type MultiSink []Sink

// Send sends ms to every sink.
func (ms MultiSink) Send(items []Measurement) error {
	var first error
	for _, s := range ms {
		if err := s.Send(items); err != nil && first == nil {
			first = err
		}
	}
	return first
}
