package server

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/lambdas"
	"github.com/onedata/automation-examples/ledger"
	"github.com/onedata/automation-examples/metadata"
	"github.com/onedata/automation-examples/store"
)

const helloMD5 = "5eb63bbbe01eeed093cb22bb8f5acdc3"

func TestRoutes(t *testing.T) {
	var table = []struct {
		verb   string
		route  string
		body   string
		status int
		text   string // expected substring of the body
	}{
		{"GET", "/", "", 200, "Onedata lambdas (dev)"},
		{"GET", "/", "", 200, "POST /lambda/unpack-data\n"},
		{"GET", "/lambda", "", 200, `"calculate-checksum"`},
		{"POST", "/lambda/calculate-checksum",
			`{"ctx": {}, "argsBatch": [{"file": {"file_id": "f1", "type": "REG"}, "algorithm": "md5"}]}`,
			200, `"checksum":"` + helloMD5 + `"`},
		{"POST", "/lambda/calculate-checksum",
			`{"ctx": {}, "argsBatch": [{"file": {"file_id": "f1", "type": "REG"}, "algorithm": "xyz"}]}`,
			200, `{"exception":"xyz algorithm is unsupported.`},
		{"POST", "/lambda/no-such-lambda", `{"argsBatch": []}`, 404, "unknown lambda"},
		{"POST", "/lambda/calculate-checksum", `{"argsBatch": `, 400, "invalid request"},
		{"POST", "/lambda/calculate-checksum", `{"ctx": 5, "argsBatch": []}`, 400, "invalid ctx"},
		{"GET", "/checksum/f1", "", 200, `"status":"calculated"`},
		{"GET", "/checksum/f2", "", 404, "Not Found"},
		{"GET", "/debug/vars", "", 200, `"lambda.batches"`},
	}
	for _, row := range table {
		t.Logf("Doing %s %s", row.verb, row.route)
		text := getbody(t, row.verb, row.route, row.body, "", row.status)
		if !strings.Contains(text, row.text) {
			t.Errorf("Received %q, expected it to contain %q", text, row.text)
		}
	}
}

func TestAuthorization(t *testing.T) {
	v, err := NewListValidator(`
[[client]]
name = "reader"
role = "read"
token = "r1"

[[client]]
name = "runner"
role = "run"
token = "r2"

[[client]]
name = "checksummer"
role = "run"
token = "r3"
lambdas = ["calculate-checksum"]
`)
	if err != nil {
		t.Fatal(err)
	}
	s := &RESTServer{Runner: testServer.runner, Ledger: testServer.ledger, Validator: v}
	ts := httptest.NewServer(s.addRoutes())
	defer ts.Close()

	var table = []struct {
		verb   string
		route  string
		token  string
		status int
	}{
		{"GET", "/", "", 200},
		{"GET", "/lambda", "", 200},
		{"GET", "/checksum/f1", "", 401},
		{"GET", "/checksum/f1", "r1", 200},
		{"POST", "/lambda/unpack-data", "r1", 401},
		{"POST", "/lambda/unpack-data", "bad", 401},
		{"POST", "/lambda/unpack-data", "r2", 200},
		{"POST", "/lambda/unpack-data", "r3", 403},
		{"POST", "/lambda/calculate-checksum", "r3", 200},
	}
	for _, row := range table {
		t.Logf("Doing %s %s %s", row.verb, row.route, row.token)
		req, err := http.NewRequest(row.verb, ts.URL+row.route, strings.NewReader(`{"argsBatch": []}`))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Api-Key", row.token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != row.status {
			t.Errorf("Expected status %d and received %d", row.status, resp.StatusCode)
		}
	}
}

func TestNoLedger(t *testing.T) {
	s := &RESTServer{Runner: testServer.runner}
	ts := httptest.NewServer(s.addRoutes())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/checksum/f1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("Expected status 404 and received %d", resp.StatusCode)
	}
}

func getbody(t *testing.T, verb, route, body, token string, expstatus int) string {
	req, err := http.NewRequest(verb, testServer.URL+route, strings.NewReader(body))
	if err != nil {
		t.Fatal("Problem creating request", err)
	}
	if token != "" {
		req.Header.Set("X-Api-Key", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(route, err)
	}
	defer resp.Body.Close()
	text, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(route, err)
	}
	if resp.StatusCode != expstatus {
		t.Errorf("%s: Expected status %d and received %d",
			route,
			expstatus,
			resp.StatusCode)
	}
	return string(text)
}

var testServer struct {
	*httptest.Server
	runner *lambdas.Runner
	ledger ledger.Ledger
}

func init() {
	files := store.NewMemory()
	files.Put("f1", []byte("hello world"))
	l, err := ledger.NewQL("memory")
	if err != nil {
		panic(err)
	}
	testServer.ledger = l
	testServer.runner = &lambdas.Runner{
		Env: &lambdas.Env{
			Store:  files,
			Attrs:  metadata.NewMemory(),
			Ledger: l,
		},
		Executor: batch.Executor{Workers: 2},
	}
	s := &RESTServer{Runner: testServer.runner, Ledger: l}
	testServer.Server = httptest.NewServer(s.addRoutes())
}
