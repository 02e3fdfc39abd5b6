// Package backend defines the operation function signature shared by all
// compute backends and the priority-ranked registry used to resolve named
// operations to the best available implementation.
package backend

import (
	"github.com/pkg/errors"

	"github.com/flintml/flint/tensor"
)

// OpFunc is the uniform signature for named tensor operations. Binary
// operations use both operands; unary operations and activations receive
// their single operand as a and ignore b (callers pass nil). Losses take
// predictions as a and targets as b.
type OpFunc func(a, b *tensor.Tensor) (*tensor.Tensor, error)

// ErrNotFound is returned when no implementation is registered for a name.
var ErrNotFound = errors.New("backend: not registered")

// entry pairs a registered value with the priority it was registered at.
type entry[T any] struct {
	value    T
	priority int
}

// Registry is a string-keyed table mapping names to implementations ranked
// by priority. Registration at a priority less than or equal to the stored
// entry's is a no-op, so once a higher-priority backend wins a name nothing
// can silently downgrade it; resolution order is independent of install
// order for equal or lower priorities.
//
// Registries carry no locking: the engine assumes a single-threaded caller.
type Registry[T any] struct {
	entries map[string]entry[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]entry[T])}
}

// Register stores value under name at the default (CPU) priority 0.
func (r *Registry[T]) Register(name string, value T) {
	r.RegisterBackend(name, value, 0)
}

// RegisterBackend stores value under name at the given priority. The stored
// entry is replaced only when no entry exists yet or the new priority is
// strictly greater; ties keep the incumbent.
func (r *Registry[T]) RegisterBackend(name string, value T, priority int) {
	if existing, ok := r.entries[name]; ok && priority <= existing.priority {
		return
	}
	r.entries[name] = entry[T]{value: value, priority: priority}
}

// Lookup returns the winning implementation for name.
func (r *Registry[T]) Lookup(name string) (T, bool) {
	e, ok := r.entries[name]
	return e.value, ok
}

// Priority returns the priority of the stored entry for name,
// or -1 when name is not registered.
func (r *Registry[T]) Priority(name string) int {
	e, ok := r.entries[name]
	if !ok {
		return -1
	}
	return e.priority
}

// Names returns all registered names in unspecified order.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered names.
func (r *Registry[T]) Len() int {
	return len(r.entries)
}
