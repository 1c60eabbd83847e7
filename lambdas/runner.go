package lambdas

import (
	"context"
	"io"
	"log"

	"github.com/goccy/go-json"

	"github.com/onedata/automation-examples/batch"
)

// Runner runs batches of jobs for the lambdas.
type Runner struct {
	Env      *Env
	Executor batch.Executor
}

// Run runs every job of req with the named lambda. Failed jobs have an
// exception in their result; the returned error is only for requests which
// cannot be run at all.
func (r *Runner) Run(ctx context.Context, name string, req *Request) (*Response, error) {
	h, ok := handlers[name]
	if !ok {
		return nil, &UnknownLambdaError{Name: name}
	}
	c, err := ParseCtx(req.Ctx)
	if err != nil {
		return nil, err
	}
	b := r.Env.newBatch(ctx, c)

	jobs := make([]batch.Job, len(req.ArgsBatch))
	for i := range req.ArgsBatch {
		args := req.ArgsBatch[i]
		jobs[i] = func(ctx context.Context, bus *batch.Bus) (interface{}, error) {
			return h(ctx, b, args, bus)
		}
	}
	hb := batch.NewHeartbeatState(c.HeartbeatURL)
	hb.Client = r.Env.Client
	hb.Clock = r.Executor.Clock

	log.Printf("%s: running %d jobs", name, len(jobs))
	results := r.Executor.Run(ctx, jobs, hb.Beat)
	var failed int
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	log.Printf("%s: finished %d jobs, %d failed", name, len(jobs), failed)
	return &Response{ResultsBatch: results}, nil
}

// Handle reads a request from in, runs it with the named lambda and writes
// the response to out.
func (r *Runner) Handle(ctx context.Context, name string, in io.Reader, out io.Writer) error {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return &JobError{Msg: "invalid request: " + err.Error()}
	}
	resp, err := r.Run(ctx, name, &req)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(resp)
}
