package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrServiceNotFound is returned by Invoke when no call is registered for the id.
	ErrServiceNotFound = errors.New("service not found")
	// ErrDuplicateService is returned by Register when the id is already taken.
	ErrDuplicateService = errors.New("service already registered")
	// ErrEmptyIdentifier is returned by Register for an empty id.
	ErrEmptyIdentifier = errors.New("empty service identifier")
)

// BackendCall performs the actual call to a backend service and returns its payload.
// Implementations may do network I/O and should honour the context deadline.
type BackendCall func(ctx context.Context) (string, error)

// Registry maps service identifiers to backend calls.
//
// It is meant to be populated at startup and then shared by all requests.
// Identifiers are case-sensitive and are not normalized.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]BackendCall
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{calls: map[string]BackendCall{}}
}

// Register adds a backend call under the given id.
func (r *Registry) Register(id string, call BackendCall) error {
	if id == "" {
		return ErrEmptyIdentifier
	}
	if call == nil {
		return fmt.Errorf("nil backend call for %q", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, id)
	}
	r.calls[id] = call
	return nil
}

// MustRegister is like Register but panics on error.
// Use it for static registrations where an error is a programming mistake.
func (r *Registry) MustRegister(id string, call BackendCall) {
	if err := r.Register(id, call); err != nil {
		panic(err)
	}
}

// Lookup returns the call registered for id.
// Not finding an id is a normal outcome, not an error.
func (r *Registry) Lookup(id string) (BackendCall, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[id]
	return call, ok
}

// Invoke executes the call registered for id.
// Failures of the call itself are returned as is.
func (r *Registry) Invoke(ctx context.Context, id string) (string, error) {
	call, ok := r.Lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	return call(ctx)
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
