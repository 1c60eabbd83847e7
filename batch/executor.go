package batch

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	raven "github.com/getsentry/raven-go"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/onedata/automation-examples/util"
)

// A Job is one unit of work in a batch. It reports its progress on bus and
// returns a value which can be marshaled to JSON.
type Job func(ctx context.Context, bus *Bus) (interface{}, error)

// Result is the outcome of one job. If Exception is not nil the job failed
// and Value is meaningless.
type Result struct {
	Value     interface{}
	Exception interface{} // a string, or an object which marshals to JSON
}

// Failed returns true if the job did not succeed.
func (r Result) Failed() bool {
	return r.Exception != nil
}

// MarshalJSON encodes a result as {"result": value} or {"exception": e}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Exception != nil {
		return json.Marshal(struct {
			Exception interface{} `json:"exception"`
		}{r.Exception})
	}
	return json.Marshal(struct {
		Result interface{} `json:"result"`
	}{r.Value})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result) UnmarshalJSON(b []byte) error {
	var v struct {
		Result    interface{} `json:"result"`
		Exception interface{} `json:"exception"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r.Value = v.Result
	r.Exception = v.Exception
	return nil
}

// An Executor runs batches of jobs.
type Executor struct {
	// Workers is the maximum number of jobs running at once. Zero means
	// runtime.NumCPU().
	Workers int

	// Tick is how often progress is drained. Zero means DefaultTick.
	Tick time.Duration

	// Interval is the minimum time between heartbeats. Zero means
	// DefaultHeartbeatInterval.
	Interval time.Duration

	// Sink receives the progress of the jobs. May be nil.
	Sink Sink

	// Clock is the time source of the monitor. Nil means the wall clock.
	Clock clock.Clock
}

// Run runs every job and returns their results. Result i is the outcome of
// jobs[i]. A monitor goroutine runs for as long as the jobs do, and calls
// beat when there is progress, rate limited by Interval. Beat may be nil.
//
// Run always returns one result per job. A job failing does not stop the
// other jobs. If ctx is canceled, jobs which have not started yet fail with
// the context error.
func (e *Executor) Run(ctx context.Context, jobs []Job, beat func(context.Context) error) []Result {
	bus := NewBus(e.Clock)
	interval := e.Interval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	m := &Monitor{
		Bus:      bus,
		Sink:     e.Sink,
		Beat:     beat,
		Interval: interval,
		Tick:     e.Tick,
		Clock:    e.Clock,
	}
	stop := m.Start(ctx)

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	gate := util.NewGate(workers)
	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	for i := range jobs {
		if err := gate.EnterContext(ctx); err != nil {
			results[i] = Result{Exception: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer gate.Leave()
			results[i] = runJob(ctx, i, jobs[i], bus)
		}(i)
	}
	wg.Wait()
	stop()
	return results
}

// runJob runs one job, turning any failure into an exception result.
func runJob(ctx context.Context, i int, job Job, bus *Bus) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
			log.Printf("job %d: %s", i, msg)
			raven.CaptureMessage(msg, map[string]string{"job": strconv.Itoa(i)})
			result = Result{Exception: msg}
		}
	}()
	v, err := job(ctx, bus)
	if err != nil {
		return Result{Exception: Describe(err, map[string]string{"job": strconv.Itoa(i)})}
	}
	return Result{Value: v}
}

// expected is implemented by errors caused by bad input, such as a
// malformed bag. They are reported by message only.
type expected interface {
	Expected() bool
}

// IsExpected returns true if err, or an error it wraps, says it is caused
// by bad input rather than a bug or a system failure.
func IsExpected(err error) bool {
	var e expected
	return errors.As(err, &e) && e.Expected()
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Describe returns the text to report for a failed job. Expected errors are
// described by their message. Anything else also gets a stack trace, and is
// logged and sent to Sentry with the given tags.
func Describe(err error, tags map[string]string) string {
	if IsExpected(err) {
		return err.Error()
	}
	traced := err
	if _, ok := err.(stackTracer); !ok {
		traced = errors.WithStack(err)
	}
	msg := fmt.Sprintf("%+v", traced)
	log.Printf("unexpected error %v: %s", tags, msg)
	raven.CaptureError(err, tags)
	return msg
}
