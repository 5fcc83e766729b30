package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

// AlreadyInFlightError is returned by Admit when the key already has an
// admitted request. It is a coordination signal: callers observe Existing
// instead of starting a second operation.
type AlreadyInFlightError struct {
	Key      domain.ResourceKey
	Existing *Handle
}

func (e *AlreadyInFlightError) Error() string {
	return fmt.Sprintf("reconciliation already in flight for %s (%s)", e.Key, e.Existing.Request())
}

func (e *AlreadyInFlightError) Code() errors.Code {
	return errors.CodeAlreadyInFlight
}

// InFlightRegistry holds at most one admitted request per resource key. All
// access goes through a single mutex; nothing blocks while holding it.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[domain.ResourceKey]*Handle
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[domain.ResourceKey]*Handle)}
}

// Admit inserts an entry for key and returns the Handle owning it, or an
// *AlreadyInFlightError carrying the existing Handle.
func (r *InFlightRegistry) Admit(key domain.ResourceKey, req domain.ReconciliationRequest) (*Handle, error) {
	if key != req.Key {
		return nil, errors.New(errors.CodeInvalidRequest,
			fmt.Sprintf("admit key %s does not match request key %s", key, req.Key))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		return nil, &AlreadyInFlightError{Key: key, Existing: existing}
	}
	h := newHandle(r, req)
	r.entries[key] = h
	return h, nil
}

// lookup returns the handle currently admitted for key.
func (r *InFlightRegistry) lookup(key domain.ResourceKey) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[key]
	return h, ok
}

func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// remove deletes the entry only if it still belongs to h.
func (r *InFlightRegistry) remove(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[h.request.Key]; ok && current == h {
		delete(r.entries, h.request.Key)
	}
}

// Handle owns one registry entry and carries the outcome of its operation.
type Handle struct {
	registry *InFlightRegistry
	request  domain.ReconciliationRequest

	releaseOnce sync.Once
	done        chan struct{}
	result      LoopResult
	err         error

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	// cancelRequested records Cancel calls made before a cancel func is bound.
	cancelRequested bool
}

func newHandle(r *InFlightRegistry, req domain.ReconciliationRequest) *Handle {
	return &Handle{registry: r, request: req, done: make(chan struct{})}
}

func (h *Handle) Key() domain.ResourceKey {
	return h.request.Key
}

func (h *Handle) Request() domain.ReconciliationRequest {
	return h.request
}

// Done is closed once the handle has been released.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Release records the outcome, removes the registry entry and wakes waiters.
// Only the first call has any effect.
func (h *Handle) Release(state domain.ResourceState, err error) {
	h.finish(LoopResult{State: state}, err)
}

func (h *Handle) finish(res LoopResult, err error) {
	h.releaseOnce.Do(func() {
		h.result = res
		h.err = err
		h.registry.remove(h)
		close(h.done)
	})
}

// Wait blocks until the handle is released or ctx ends. A ctx error only
// stops the wait; it does not cancel the operation.
func (h *Handle) Wait(ctx context.Context) (domain.ResourceState, error) {
	select {
	case <-h.done:
		return h.result.State, h.err
	case <-ctx.Done():
		return domain.StateUnknown, ctx.Err()
	}
}

// Stats returns attempt and timing details; zero until released.
func (h *Handle) Stats() LoopResult {
	select {
	case <-h.done:
		return h.result
	default:
		return LoopResult{}
	}
}

func (h *Handle) released() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Cancel asks the running operation to stop at its next poll boundary.
func (h *Handle) Cancel() {
	h.cancelMu.Lock()
	defer h.cancelMu.Unlock()
	h.cancelRequested = true
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) bindCancel(cancel context.CancelFunc) {
	h.cancelMu.Lock()
	defer h.cancelMu.Unlock()
	h.cancel = cancel
	if h.cancelRequested {
		cancel()
	}
}
