// Package hostlink forwards failed agent calls to a hosting parent and keeps
// the application's single error-banner subscription.
//
// A Relay is created once at startup, passed to agent.WithReporter and to
// whatever renders the error banner, and closed at teardown. Forwarding is
// fire-and-forget: Report never blocks on a forwarder and never fails.
package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/raezil/agentchat-go/agent"
)

// Message types exchanged with the host.
const (
	TypeAgentError = "agent_error"
	TypeRequestFix = "request_fix"
)

const maxHostMessageBytes = 64 << 10

// Envelope is the JSON message exchanged with the host.
type Envelope struct {
	Type  string              `json:"type"`
	Error *agent.ErrorDetails `json:"error,omitempty"`
}

// Forwarder delivers error details to a host.
type Forwarder interface {
	Forward(ctx context.Context, d agent.ErrorDetails) error
}

// Relay implements agent.Reporter.
type Relay struct {
	observer   *Observer
	forwarders []Forwarder
	logger     *slog.Logger
	timeout    time.Duration

	mu     sync.Mutex
	last   *agent.ErrorDetails
	closed bool
	wg     sync.WaitGroup
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithForwarder adds a destination for error details. Nil is ignored.
func WithForwarder(f Forwarder) RelayOption {
	return func(r *Relay) {
		if f != nil {
			r.forwarders = append(r.forwarders, f)
		}
	}
}

// WithLogger sets the logger used for forwarding failures.
func WithLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithForwardTimeout bounds each forward attempt.
func WithForwardTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRelay constructs a Relay with its own Observer.
func NewRelay(opts ...RelayOption) *Relay {
	r := &Relay{
		observer: &Observer{},
		logger:   slog.New(slog.DiscardHandler),
		timeout:  10 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Observer returns the relay's banner subscription slot.
func (r *Relay) Observer() *Observer { return r.observer }

// Embedded reports whether any forwarder is configured.
func (r *Relay) Embedded() bool { return len(r.forwarders) > 0 }

// Report records d as the last error, notifies the observer and forwards d to
// every host in the background.
func (r *Relay) Report(d agent.ErrorDetails) {
	r.mu.Lock()
	cp := d
	r.last = &cp
	r.mu.Unlock()

	r.notify(d)
	r.forward(d)
}

// Last returns the most recently reported error.
func (r *Relay) Last() (agent.ErrorDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return agent.ErrorDetails{}, false
	}
	return *r.last, true
}

// RequestFix re-sends the last error to the hosts so they can remediate. It
// reports false when there is nothing to re-send or the relay is closed.
func (r *Relay) RequestFix() bool {
	if r.Closed() {
		return false
	}
	d, ok := r.Last()
	if !ok {
		return false
	}
	r.logger.Info("re-sending last error", "id", d.ID, "kind", d.Kind)
	r.forward(d)
	return true
}

func (r *Relay) notify(d agent.ErrorDetails) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("error observer panicked", "id", d.ID, "panic", p)
		}
	}()
	r.observer.Notify(d)
}

func (r *Relay) forward(d agent.ErrorDetails) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, f := range r.forwarders {
		r.wg.Add(1)
		go r.forwardOne(f, d)
	}
}

func (r *Relay) forwardOne(f Forwarder, d agent.ErrorDetails) {
	defer r.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("forwarder panicked", "id", d.ID, "panic", p)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := f.Forward(ctx, d); err != nil {
		r.logger.Warn("forward error to host failed", "id", d.ID, "kind", d.Kind, "err", err)
		return
	}
	r.logger.Debug("forwarded error to host", "id", d.ID, "kind", d.Kind)
}

// Closed reports whether Close has been called.
func (r *Relay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops forwarding, clears the observer and waits for in-flight
// forwards to finish.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.observer.Clear()
	r.wg.Wait()
}

// Handler serves inbound host messages on POST /host/messages. A request_fix
// message yields 202 when an error was re-sent, 204 when there was none and
// 503 once the relay is closed.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /host/messages", r.handleMessage)
	return mux
}

func (r *Relay) handleMessage(w http.ResponseWriter, req *http.Request) {
	var msg Envelope
	if err := decodeJSONBody(w, req, &msg); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	switch msg.Type {
	case TypeRequestFix:
		if r.Closed() {
			writeErr(w, http.StatusServiceUnavailable, "relay is closed")
			return
		}
		if !r.RequestFix() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		d, _ := r.Last()
		writeJSON(w, http.StatusAccepted, Envelope{Type: TypeAgentError, Error: &d})
	default:
		writeErr(w, http.StatusBadRequest, "unsupported message type: "+msg.Type)
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxHostMessageBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single json object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
