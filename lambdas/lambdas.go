// Package lambdas implements the batch handlers run by the workflow
// scheduler of Onedata. Each handler receives a batch of job arguments
// together with a context shared by the batch, and returns one result per
// job. The jobs of a batch run in parallel, see the batch package.
//
// Files are named by their Onedata file id. They are read from a
// store.Source, normally a mounted Oneclient, and unpacked files are
// written to a store.Store.
package lambdas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/antonholmquist/jason"
	"github.com/goccy/go-json"

	"github.com/onedata/automation-examples/bagit"
	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/checksum"
	"github.com/onedata/automation-examples/ledger"
	"github.com/onedata/automation-examples/metadata"
	"github.com/onedata/automation-examples/store"
	"github.com/onedata/automation-examples/util"
)

// The types of an AtmFile.
const (
	TypeRegular   = "REG"
	TypeDirectory = "DIR"
	TypeSymlink   = "SYMLNK"
)

// AtmFile is a file as described by the workflow scheduler.
type AtmFile struct {
	FileID string `json:"file_id"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// Request is one batch of jobs for a lambda.
type Request struct {
	Ctx       json.RawMessage   `json:"ctx"`
	ArgsBatch []json.RawMessage `json:"argsBatch"`
}

// Response holds one result per job of a Request, in the same order.
type Response struct {
	ResultsBatch []batch.Result `json:"resultsBatch"`
}

// Ctx is the part of the batch context the lambdas use. Anything else in
// the context is ignored.
type Ctx struct {
	HeartbeatURL      string
	AccessToken       string
	OneproviderDomain string

	// Config holds the lambda configuration, which newer schedulers send
	// in the context instead of with every job.
	Config *jason.Object
}

// ParseCtx extracts the fields of Ctx from a JSON object. Missing fields
// are left empty.
func ParseCtx(raw []byte) (Ctx, error) {
	var c Ctx
	if len(raw) == 0 || string(raw) == "null" {
		return c, nil
	}
	obj, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return c, &JobError{Msg: "invalid ctx: " + err.Error()}
	}
	c.HeartbeatURL, _ = obj.GetString("heartbeatUrl")
	c.AccessToken, _ = obj.GetString("accessToken")
	c.OneproviderDomain, _ = obj.GetString("oneproviderDomain")
	c.Config, _ = obj.GetObject("config")
	return c, nil
}

// configString returns a string from the lambda configuration in the
// context, or "" if it is not there.
func (c Ctx) configString(key string) string {
	if c.Config == nil {
		return ""
	}
	s, _ := c.Config.GetString(key)
	return s
}

// JobError is a failure caused by the job arguments or the files they name.
// It is reported by its message only.
type JobError struct {
	Msg string
}

func (e *JobError) Error() string { return e.Msg }

// Expected marks this as an error caused by the input, not by the system.
func (e *JobError) Expected() bool { return true }

func jobErrorf(format string, args ...interface{}) error {
	return &JobError{Msg: fmt.Sprintf(format, args...)}
}

// UnknownLambdaError means a request named a lambda which does not exist.
type UnknownLambdaError struct {
	Name string
}

func (e *UnknownLambdaError) Error() string {
	return fmt.Sprintf("unknown lambda %q", e.Name)
}

// Env is what the lambdas need from their surroundings. It is shared by
// every batch.
type Env struct {
	// Store holds the files. Archives and files to checksum are read
	// from it, and archives are unpacked into it.
	Store store.Store

	// Attrs gives the extended attributes of the files in Store. They are
	// named by the path Store gives, if it has a Path method, otherwise by
	// key.
	Attrs metadata.Attributes

	// Engine is copied for every job, which sets its Observer.
	Engine checksum.Engine

	// Policy is used when validating bags.
	Policy bagit.Policy

	// Ledger records checksum outcomes. May be nil.
	Ledger ledger.Ledger

	// ReadRate limits the bytes per second read by one batch. Zero means
	// no limit.
	ReadRate float64

	// Remote makes file content be read through the Oneprovider REST
	// interface, when the batch context has an access token and domain.
	Remote bool

	// Client is used for heartbeats and REST reads. Nil means
	// util.HTTPClient().
	Client *http.Client
}

// A handler runs one job of a lambda.
type handler func(ctx context.Context, b *Batch, args []byte, bus *batch.Bus) (interface{}, error)

var handlers = map[string]handler{
	"validate-bagit":     validateBagit,
	"calculate-checksum": calculateChecksum,
	"parse-fetch-file":   parseFetchFile,
	"unpack-data":        unpackData,
	"register-checksums": registerChecksums,
}

// Names returns the names of every lambda, sorted.
func Names() []string {
	var result []string
	for k := range handlers {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Batch is the state shared by the jobs of one request.
type Batch struct {
	Ctx    Ctx
	env    *Env
	source store.Source
	rate   *util.Throttle
	done   context.Context // ends throttled reads
}

func (env *Env) newBatch(ctx context.Context, c Ctx) *Batch {
	b := &Batch{Ctx: c, env: env, source: env.Store, done: ctx}
	if env.Remote && c.AccessToken != "" && c.OneproviderDomain != "" {
		r := store.NewREST(c.OneproviderDomain, c.AccessToken)
		r.Client = env.Client
		b.source = r
	}
	if env.ReadRate > 0 {
		b.rate = util.NewThrottle(env.ReadRate, nil)
	}
	return b
}

// open returns the content of a file, throttled by the batch read rate.
func (b *Batch) open(key string) (store.ReadAtCloser, int64, error) {
	rac, size, err := b.source.Open(key)
	if err != nil {
		return nil, 0, err
	}
	if b.rate != nil {
		rac = &rateReaderAt{
			ReaderAt: b.rate.ReaderAt(b.done, rac),
			Closer:   rac,
		}
	}
	return rac, size, nil
}

// engine returns a checksum engine which reports the bytes it reads on bus.
func (b *Batch) engine(bus *batch.Bus) *checksum.Engine {
	e := b.env.Engine
	e.Observer = func(a checksum.Algorithm, n int) {
		bus.Record(batch.BytesProcessed, int64(n))
	}
	return &e
}

// attrPath returns the name of a file for the Attrs of the environment.
func (b *Batch) attrPath(key string) (string, error) {
	if p, ok := b.env.Store.(interface {
		Path(string) (string, error)
	}); ok {
		return p.Path(key)
	}
	return key, nil
}

type rateReaderAt struct {
	io.ReaderAt
	io.Closer
}

// decodeArgs unmarshals the arguments of a job into v.
func decodeArgs(args []byte, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return jobErrorf("invalid job arguments: %s", err)
	}
	return nil
}
