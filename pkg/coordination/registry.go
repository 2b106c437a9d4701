// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"sync"

	"github.com/gridkit/coordination/pkg/primitive"
)

func newRegistry() *registry {
	return &registry{
		handles: make(map[string]primitive.Handle),
	}
}

// registry holds the process-local handles, one per primitive name. It is
// the source of the singleton guarantee: all paths that hand out a handle go
// through here.
type registry struct {
	mu      sync.RWMutex
	handles map[string]primitive.Handle
}

func (r *registry) Load(name string) (primitive.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[name]
	return handle, ok
}

// LoadOrStore registers the handle unless one is already registered, in
// which case the registered one is returned with loaded set.
func (r *registry) LoadOrStore(name string, handle primitive.Handle) (primitive.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.handles[name]; ok {
		return existing, true
	}
	r.handles[name] = handle
	return handle, false
}

func (r *registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, name)
}

// Take removes and returns the handle registered under name.
func (r *registry) Take(name string) (primitive.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.handles[name]
	if ok {
		delete(r.handles, name)
	}
	return handle, ok
}

// TakeAll removes and returns every registered handle.
func (r *registry) TakeAll() []primitive.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]primitive.Handle, 0, len(r.handles))
	for _, handle := range r.handles {
		handles = append(handles, handle)
	}
	r.handles = make(map[string]primitive.Handle)
	return handles
}

func (r *registry) Range(f func(primitive.Handle)) {
	r.mu.RLock()
	handles := make([]primitive.Handle, 0, len(r.handles))
	for _, handle := range r.handles {
		handles = append(handles, handle)
	}
	r.mu.RUnlock()

	for _, handle := range handles {
		f(handle)
	}
}
