package batch

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/onedata/automation-examples/util"
)

// DefaultHeartbeatInterval is the minimum time between two heartbeats.
const DefaultHeartbeatInterval = 150 * time.Second

// HeartbeatState tells the scheduler a batch is alive by posting to the
// heartbeat URL it gave in the request. There is one HeartbeatState for each
// batch being run.
type HeartbeatState struct {
	URL    string
	Client *http.Client // nil means util.HTTPClient()
	Clock  clock.Clock  // nil means the wall clock

	m    sync.Mutex
	last time.Time // time of the last delivered heartbeat
}

// HeartbeatDeliveryError means the scheduler did not accept a heartbeat. It
// never fails a job.
type HeartbeatDeliveryError struct {
	URL    string
	Status int   // HTTP status, if a response was received
	Err    error // transport error, if not
}

func (e *HeartbeatDeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("heartbeat %s: %s", e.URL, e.Err)
	}
	return fmt.Sprintf("heartbeat %s: received status %d", e.URL, e.Status)
}

// Expected is true since a lost heartbeat is not a bug.
func (e *HeartbeatDeliveryError) Expected() bool { return true }

// NewHeartbeatState returns the heartbeat state for a batch reporting to url.
func NewHeartbeatState(url string) *HeartbeatState {
	return &HeartbeatState{URL: url}
}

// Beat posts an empty body to the heartbeat URL. The delivery time is only
// recorded when the scheduler answers with a 2xx status. Failures are logged
// and returned as a *HeartbeatDeliveryError. An empty URL does nothing.
func (h *HeartbeatState) Beat(ctx context.Context) error {
	if h.URL == "" {
		return nil
	}
	client := h.Client
	if client == nil {
		client = util.HTTPClient()
	}
	req, err := http.NewRequest("POST", h.URL, nil)
	if err != nil {
		return &HeartbeatDeliveryError{URL: h.URL, Err: err}
	}
	req = req.WithContext(ctx)
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("heartbeat %s: %s", h.URL, err)
		return &HeartbeatDeliveryError{URL: h.URL, Err: err}
	}
	io.Copy(ioutil.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("heartbeat %s: received status %d", h.URL, resp.StatusCode)
		return &HeartbeatDeliveryError{URL: h.URL, Status: resp.StatusCode}
	}
	h.m.Lock()
	h.last = h.now()
	h.m.Unlock()
	return nil
}

// LastBeat returns the time of the last delivered heartbeat, or the zero
// time if none was delivered.
func (h *HeartbeatState) LastBeat() time.Time {
	h.m.Lock()
	defer h.m.Unlock()
	return h.last
}

func (h *HeartbeatState) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}
