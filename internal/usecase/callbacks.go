package usecase

import (
	"sync"

	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/adapter"
)

type callbackKey struct {
	documentID string
	phase      model.Phase
}

// callbackRouter is the in-process rendezvous between the HTTP callback
// handler and the dispatcher goroutine waiting on a phase. One waiter per
// document+phase; a callback with no waiter is reported back so the handler
// can 404 it (the phase was disowned, e.g. after a timeout).
type callbackRouter struct {
	mu      sync.Mutex
	waiting map[callbackKey]chan adapter.PhaseResult
}

func newCallbackRouter() *callbackRouter {
	return &callbackRouter{waiting: make(map[callbackKey]chan adapter.PhaseResult)}
}

func (r *callbackRouter) expect(documentID string, phase model.Phase) <-chan adapter.PhaseResult {
	ch := make(chan adapter.PhaseResult, 1)
	r.mu.Lock()
	r.waiting[callbackKey{documentID, phase}] = ch
	r.mu.Unlock()
	return ch
}

func (r *callbackRouter) forget(documentID string, phase model.Phase) {
	r.mu.Lock()
	delete(r.waiting, callbackKey{documentID, phase})
	r.mu.Unlock()
}

func (r *callbackRouter) deliver(res adapter.PhaseResult) bool {
	r.mu.Lock()
	ch, ok := r.waiting[callbackKey{res.DocumentID, res.Phase}]
	if ok {
		delete(r.waiting, callbackKey{res.DocumentID, res.Phase})
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}
