// Package server exposes the lambdas over HTTP. A batch is run by posting
// the request to /lambda/<name>, and the response is returned once every job
// of the batch has finished.
package server

import (
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // for pprof server

	"github.com/facebookgo/httpdown"
	"github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/lambdas"
	"github.com/onedata/automation-examples/ledger"
)

// Version is the version of the server. It is set when linking.
var Version = "dev"

// RESTServer holds the configuration for the lambda HTTP server.
//
// Set all the public fields and then call Run. Run will listen on the given
// port and handle requests. Do not change any fields after calling Run.
type RESTServer struct {
	// Port number to listen on. defaults to 8080
	PortNumber string
	PProfPort  string

	// Runner runs the batches. Run will panic if Runner is nil.
	Runner *lambdas.Runner

	// Ledger is used to answer /checksum queries. If nil those queries
	// return 404.
	Ledger ledger.Ledger

	// Validator does authentication by validating any user tokens
	// presented to the API. If this is nil then no authentication will be
	// done.
	Validator TokenValidator

	server httpdown.Server // used to close our listening socket
}

// counts of batches and jobs run, by lambda name
var (
	xBatches = expvar.NewMap("lambda.batches")
	xJobs    = expvar.NewMap("lambda.jobs")
	xFailed  = expvar.NewMap("lambda.failed")
)

// Run starts the server. It blocks listening for and handling http
// requests until Stop is called.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting lambda server version %s", Version)

	if s.Runner == nil {
		panic("No runner given. Runner is nil.")
	}
	if s.PortNumber == "" {
		s.PortNumber = "8080"
	}

	// for pprof
	if s.PProfPort != "" {
		log.Println("Starting PProf on port", s.PProfPort)
		go func() {
			log.Println(http.ListenAndServe(":"+s.PProfPort, nil))
		}()
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.addRoutes(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop will stop the server and return when all the running requests have
// finished and the socket is closed.
func (s *RESTServer) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Stop()
}

func (s *RESTServer) addRoutes() http.Handler {
	if s.Validator == nil {
		log.Println("No Validator given")
		s.Validator = NobodyValidator{}
	}
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		{"GET", "/lambda", RoleUnknown, ListLambdaHandler},
		{"POST", "/lambda/:name", RoleRun, s.LambdaHandler},
		{"GET", "/checksum/:fileid", RoleRead, s.ChecksumHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// ListLambdaHandler handles GET /lambda. It returns the names of the
// lambdas which can be run.
func ListLambdaHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	writeJSON(w, http.StatusOK, lambdas.Names())
}

// LambdaHandler handles POST /lambda/:name. The body is a batch request,
// and the batch response is returned. Failed jobs still give a 200; only
// requests which cannot be run at all give an error status.
func (s *RESTServer) LambdaHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")
	if c, ok := ClientFrom(r.Context()); ok && !c.MayRun(name) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintf(w, "%s may not run %s\n", c.Name, name)
		return
	}
	var req lambdas.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, "invalid request:", err)
		return
	}
	resp, err := s.Runner.Run(r.Context(), name, &req)
	switch errors.Cause(err).(type) {
	case nil:
	case *lambdas.UnknownLambdaError:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, err)
		return
	case *lambdas.JobError:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, err)
		return
	default:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, batch.Describe(err, map[string]string{"lambda": name}))
		return
	}
	xBatches.Add(name, 1)
	xJobs.Add(name, int64(len(resp.ResultsBatch)))
	for _, res := range resp.ResultsBatch {
		if res.Failed() {
			xFailed.Add(name, 1)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChecksumHandler handles GET /checksum/:fileid. It returns the ledger
// records of the file, newest first.
func (s *RESTServer) ChecksumHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.Ledger == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "No ledger configured")
		return
	}
	records, err := s.Ledger.List(ps.ByName("fileid"))
	if err != nil {
		log.Printf("GET /checksum/%s: %s", ps.ByName("fileid"), err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return
	}
	if len(records) == 0 {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// General route handlers and convinence functions

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// this code is taken from the stdlib expvar package.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

// writeJSON writes val as the JSON body of the response.
func writeJSON(w http.ResponseWriter, status int, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(val); err != nil {
		log.Println("writing response:", err)
	}
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The client is added to the request
// context, see ClientFrom.
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		c, err := s.Validator.TokenValid(r.Header.Get("X-Api-Key"))
		if err != nil {
			log.Println("token check:", err)
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, err.Error())
			return
		}
		if c.Role < leastRole {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintln(w, "Forbidden")
			return
		}
		handler(w, r.WithContext(withClient(r.Context(), c)), ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
