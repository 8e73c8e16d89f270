package hostlink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raezil/agentchat-go/agent"
)

type chanForwarder struct {
	got chan agent.ErrorDetails
	err error
}

func newChanForwarder() *chanForwarder {
	return &chanForwarder{got: make(chan agent.ErrorDetails, 8)}
}

func (f *chanForwarder) Forward(_ context.Context, d agent.ErrorDetails) error {
	f.got <- d
	return f.err
}

func (f *chanForwarder) next(t *testing.T) agent.ErrorDetails {
	t.Helper()
	select {
	case d := <-f.got:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forward")
		return agent.ErrorDetails{}
	}
}

type blockingForwarder struct {
	release chan struct{}
	done    chan struct{}
}

func (b *blockingForwarder) Forward(ctx context.Context, _ agent.ErrorDetails) error {
	defer close(b.done)
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestObserver_LastRegistrationWins(t *testing.T) {
	var o Observer
	var first, second []string
	cancelFirst := o.Subscribe(func(d agent.ErrorDetails) { first = append(first, d.ID) })
	o.Subscribe(func(d agent.ErrorDetails) { second = append(second, d.ID) })

	if !o.Notify(agent.ErrorDetails{ID: "e1"}) {
		t.Fatal("expected an active subscriber")
	}
	if len(first) != 0 || len(second) != 1 {
		t.Fatalf("first=%v second=%v", first, second)
	}

	// A stale cancel must not remove the newer subscriber.
	cancelFirst()
	o.Notify(agent.ErrorDetails{ID: "e2"})
	if len(second) != 2 {
		t.Fatalf("second=%v", second)
	}

	o.Clear()
	if o.Notify(agent.ErrorDetails{ID: "e3"}) {
		t.Fatal("notify after Clear should report no subscriber")
	}
}

func TestObserver_CancelRemovesActive(t *testing.T) {
	var o Observer
	cancel := o.Subscribe(func(agent.ErrorDetails) {})
	cancel()
	if o.Notify(agent.ErrorDetails{}) {
		t.Fatal("cancelled subscriber still notified")
	}
}

func TestRelay_ReportNotifiesAndForwards(t *testing.T) {
	fwd := newChanForwarder()
	r := NewRelay(WithForwarder(fwd))
	defer r.Close()

	var mu sync.Mutex
	var banner []agent.ErrorKind
	r.Observer().Subscribe(func(d agent.ErrorDetails) {
		mu.Lock()
		banner = append(banner, d.Kind)
		mu.Unlock()
	})

	r.Report(agent.ErrorDetails{ID: "e1", Kind: agent.KindAPIError})
	if got := fwd.next(t); got.ID != "e1" {
		t.Fatalf("forwarded %+v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(banner) != 1 || banner[0] != agent.KindAPIError {
		t.Fatalf("banner = %v", banner)
	}
	if last, ok := r.Last(); !ok || last.ID != "e1" {
		t.Fatalf("last = %+v, %v", last, ok)
	}
}

func TestRelay_ReportDoesNotBlockOnSlowForwarder(t *testing.T) {
	slow := &blockingForwarder{release: make(chan struct{}), done: make(chan struct{})}
	r := NewRelay(WithForwarder(slow))

	returned := make(chan struct{})
	go func() {
		r.Report(agent.ErrorDetails{ID: "e1"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Report blocked on forwarder")
	}

	close(slow.release)
	r.Close()
	select {
	case <-slow.done:
	default:
		t.Fatal("Close returned before in-flight forward finished")
	}
}

func TestRelay_ForwarderFailureAndPanicsAreContained(t *testing.T) {
	failing := newChanForwarder()
	failing.err = errors.New("host unreachable")
	r := NewRelay(WithForwarder(failing), WithForwarder(nil))
	r.Observer().Subscribe(func(agent.ErrorDetails) { panic("banner bug") })

	r.Report(agent.ErrorDetails{ID: "e1"})
	failing.next(t)
	r.Close()
}

func TestRelay_RequestFix(t *testing.T) {
	fwd := newChanForwarder()
	r := NewRelay(WithForwarder(fwd))
	defer r.Close()

	if r.RequestFix() {
		t.Fatal("nothing to re-send yet")
	}
	r.Report(agent.ErrorDetails{ID: "e1", Kind: agent.KindParseError})
	fwd.next(t)

	if !r.RequestFix() {
		t.Fatal("expected re-send")
	}
	if got := fwd.next(t); got.ID != "e1" {
		t.Fatalf("re-sent %+v", got)
	}
}

func TestRelay_NoForwardAfterClose(t *testing.T) {
	fwd := newChanForwarder()
	r := NewRelay(WithForwarder(fwd))
	r.Close()
	r.Report(agent.ErrorDetails{ID: "late"})
	select {
	case d := <-fwd.got:
		t.Fatalf("forwarded after close: %+v", d)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRelay_RequestFixAfterClose(t *testing.T) {
	fwd := newChanForwarder()
	r := NewRelay(WithForwarder(fwd))
	r.Report(agent.ErrorDetails{ID: "e1"})
	fwd.next(t)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	r.Close()

	if !r.Closed() {
		t.Fatal("relay should report closed")
	}
	if r.RequestFix() {
		t.Fatal("RequestFix must report false once closed")
	}
	res, err := http.Post(srv.URL+"/host/messages", "application/json", strings.NewReader(`{"type":"request_fix"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status after close = %d", res.StatusCode)
	}
	select {
	case d := <-fwd.got:
		t.Fatalf("forwarded after close: %+v", d)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRelay_Handler(t *testing.T) {
	fwd := newChanForwarder()
	r := NewRelay(WithForwarder(fwd))
	defer r.Close()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	post := func(body string) int {
		t.Helper()
		res, err := http.Post(srv.URL+"/host/messages", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		res.Body.Close()
		return res.StatusCode
	}

	if code := post(`{"type":"request_fix"}`); code != http.StatusNoContent {
		t.Fatalf("status without error = %d", code)
	}
	r.Report(agent.ErrorDetails{ID: "e1"})
	fwd.next(t)

	if code := post(`{"type":"request_fix"}`); code != http.StatusAccepted {
		t.Fatalf("status = %d", code)
	}
	fwd.next(t)

	if code := post(`{"type":"bogus"}`); code != http.StatusBadRequest {
		t.Fatalf("status for bogus type = %d", code)
	}
	if code := post(`{not json`); code != http.StatusBadRequest {
		t.Fatalf("status for bad json = %d", code)
	}

	res, err := http.Get(srv.URL + "/host/messages")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", res.StatusCode)
	}
}

func TestRelay_AsClientReporter(t *testing.T) {
	fwd := newChanForwarder()
	r := NewRelay(WithForwarder(fwd))
	defer r.Close()

	client := agent.NewClient("", agent.WithAgentID("a"), agent.WithReporter(r))
	res := client.Chat(context.Background(), "hello")
	if res.Success {
		t.Fatal("expected failure without API key")
	}
	if got := fwd.next(t); got.ID != res.Error.ID || got.Kind != agent.KindInvalidRequest {
		t.Fatalf("forwarded %+v, result %+v", got, res.Error)
	}
}
