// Package collector is an in-memory stand-in for the remote analytics
// collector. Tests point the tracker at it through httptest.
package collector

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

// Call is one request the collector received
type Call struct {
	Method    string
	SessionID string
	RequestID string
	Body      json.RawMessage
}

// Collector records requests to the four collector endpoints
type Collector struct {
	mu     sync.Mutex
	router *mux.Router

	creates []Call
	updates []Call
	ends    []Call
	logs    []Call

	// NextSessionIDs are handed out in order by /session/create; a uuid
	// is used once they run out.
	NextSessionIDs []string
	// CreateStatus, when non-zero, is returned instead of a session.
	CreateStatus int
	// LogSuccess is the success flag answered by /events/log.
	LogSuccess bool
	// LogStatus, when non-zero, is returned by /events/log instead of JSON.
	LogStatus int

	notify chan struct{}
}

// New creates a Collector that accepts every batch
func New() *Collector {
	c := &Collector{
		LogSuccess: true,
		notify:     make(chan struct{}, 64),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/session/create", c.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/session/update/{id}", c.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/session/end/{id}", c.handleEnd).Methods(http.MethodPost)
	api.HandleFunc("/events/log", c.handleLog).Methods(http.MethodPost)
	c.router = r
	return c
}

// ServeHTTP makes Collector an http.Handler
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.router.ServeHTTP(w, r)
}

// Notify receives a value after every recorded request
func (c *Collector) Notify() <-chan struct{} {
	return c.notify
}

func (c *Collector) record(list *[]Call, r *http.Request) Call {
	var body json.RawMessage
	json.NewDecoder(r.Body).Decode(&body)

	call := Call{
		Method:    r.Method,
		SessionID: mux.Vars(r)["id"],
		RequestID: r.Header.Get("X-Request-ID"),
		Body:      body,
	}

	c.mu.Lock()
	*list = append(*list, call)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return call
}

func (c *Collector) handleCreate(w http.ResponseWriter, r *http.Request) {
	c.record(&c.creates, r)

	c.mu.Lock()
	status := c.CreateStatus
	var sessionID string
	if len(c.NextSessionIDs) > 0 {
		sessionID = c.NextSessionIDs[0]
		c.NextSessionIDs = c.NextSessionIDs[1:]
	} else {
		sessionID = uuid.New().String()
	}
	c.mu.Unlock()

	if status != 0 {
		http.Error(w, "create failed", status)
		return
	}
	writeJSON(w, models.CreateSessionResponse{SessionID: sessionID})
}

func (c *Collector) handleUpdate(w http.ResponseWriter, r *http.Request) {
	c.record(&c.updates, r)
	writeJSON(w, map[string]string{"status": "updated"})
}

func (c *Collector) handleEnd(w http.ResponseWriter, r *http.Request) {
	c.record(&c.ends, r)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Collector) handleLog(w http.ResponseWriter, r *http.Request) {
	c.record(&c.logs, r)

	c.mu.Lock()
	status, success := c.LogStatus, c.LogSuccess
	c.mu.Unlock()

	if status != 0 {
		http.Error(w, "log failed", status)
		return
	}
	writeJSON(w, models.LogEventsResponse{Success: success})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Creates returns the recorded /session/create calls
func (c *Collector) Creates() []Call { return c.snapshot(&c.creates) }

// Updates returns the recorded /session/update calls
func (c *Collector) Updates() []Call { return c.snapshot(&c.updates) }

// Ends returns the recorded /session/end calls
func (c *Collector) Ends() []Call { return c.snapshot(&c.ends) }

// Logs returns the recorded /events/log calls
func (c *Collector) Logs() []Call { return c.snapshot(&c.logs) }

func (c *Collector) snapshot(list *[]Call) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), (*list)...)
}

// Configure mutates the response knobs under the collector's lock
func (c *Collector) Configure(fn func(c *Collector)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// DecodeBatch decodes an events envelope from a recorded call
func DecodeBatch(call Call) (models.EventBatch, error) {
	var batch models.EventBatch
	err := json.Unmarshal(call.Body, &batch)
	return batch, err
}
