package hostlink

import (
	"sync/atomic"

	"github.com/raezil/agentchat-go/agent"
)

// Observer is a single-slot error subscription, typically a global error
// banner. The most recent Subscribe wins; earlier subscribers are dropped.
type Observer struct {
	slot atomic.Pointer[subscription]
}

type subscription struct {
	fn func(agent.ErrorDetails)
}

// Subscribe installs fn, replacing any previous subscriber. The returned
// cancel func removes fn only if it is still the active subscriber.
func (o *Observer) Subscribe(fn func(agent.ErrorDetails)) (cancel func()) {
	s := &subscription{fn: fn}
	o.slot.Store(s)
	return func() { o.slot.CompareAndSwap(s, nil) }
}

// Notify delivers d to the active subscriber and reports whether there was one.
func (o *Observer) Notify(d agent.ErrorDetails) bool {
	s := o.slot.Load()
	if s == nil || s.fn == nil {
		return false
	}
	s.fn(d)
	return true
}

// Clear drops the active subscriber.
func (o *Observer) Clear() {
	o.slot.Store(nil)
}
