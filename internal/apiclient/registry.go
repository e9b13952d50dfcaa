package apiclient

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingRequest is one in-flight request tracked by the Registry.
type PendingRequest struct {
	ID        string
	Endpoint  string
	StartTime time.Time
}

// LoadingState is the aggregate loading view.
type LoadingState struct {
	Global              bool
	TotalActiveRequests int
}

// Registry tracks in-flight requests for loading indicators.
type Registry struct {
	mu       sync.Mutex
	requests map[string]PendingRequest
	subs     map[int]func(LoadingState)
	nextSub  int
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		requests: make(map[string]PendingRequest),
		subs:     make(map[int]func(LoadingState)),
		now:      time.Now,
	}
}

// Start records a request to endpoint and returns its id.
func (r *Registry) Start(endpoint string) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.requests[id] = PendingRequest{ID: id, Endpoint: endpoint, StartTime: r.now()}
	st, fns := r.snapshotLocked()
	r.mu.Unlock()

	requestsInFlight.Inc()
	notify(fns, st)
	return id
}

// End removes the request. Ending an unknown id is a no-op.
func (r *Registry) End(id string) {
	r.mu.Lock()
	if _, ok := r.requests[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.requests, id)
	st, fns := r.snapshotLocked()
	r.mu.Unlock()

	requestsInFlight.Dec()
	notify(fns, st)
}

// State returns the aggregate loading state.
func (r *Registry) State() LoadingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// IsEndpointLoading reports whether at least one request to endpoint is in flight.
func (r *Registry) IsEndpointLoading(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.Endpoint == endpoint {
			return true
		}
	}
	return false
}

// Pending returns the in-flight requests, oldest first.
func (r *Registry) Pending() []PendingRequest {
	r.mu.Lock()
	pending := make([]PendingRequest, 0, len(r.requests))
	for _, req := range r.requests {
		pending = append(pending, req)
	}
	r.mu.Unlock()

	slices.SortFunc(pending, func(a, b PendingRequest) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return pending
}

// Subscribe calls fn after every start and end until cancel is called.
func (r *Registry) Subscribe(fn func(LoadingState)) (cancel func()) {
	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Registry) stateLocked() LoadingState {
	return LoadingState{
		Global:              len(r.requests) > 0,
		TotalActiveRequests: len(r.requests),
	}
}

func (r *Registry) snapshotLocked() (LoadingState, []func(LoadingState)) {
	fns := make([]func(LoadingState), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	return r.stateLocked(), fns
}

func notify(fns []func(LoadingState), st LoadingState) {
	for _, fn := range fns {
		fn(st)
	}
}
