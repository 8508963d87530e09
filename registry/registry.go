// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package registry maps the numeric identifiers of browser-originated
// URL requests to their live request state, and allocates those
// identifiers.
//
// Identifiers issued by renderer-side request sources count up from
// zero. Browser-originated identifiers are allocated downward from
// InitialID, so the two ranges never collide. -1 is reserved as the
// conventional "uninitialized" value, which is why the boundary is -2.
package registry

import (
	"fmt"
	"sync"
)

// InitialID is the reserved boundary of the browser-originated
// identifier range. Only identifiers less than or equal to InitialID
// can be registered or looked up.
const InitialID int32 = -2

// A Registry is a concurrency-safe table from request identifier to an
// entry of type T. All methods may be called from any goroutine.
//
// The lock is held only for the duration of each table operation, never
// while running caller code.
type Registry[T any] struct {
	lock    sync.Mutex
	entries map[int32]T
}

// New returns an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		entries: make(map[int32]T),
	}
}

// Add inserts the entry v for id.
//
// Add panics if id is above InitialID or if id is already registered.
// Either condition indicates a programming error in the caller.
func (r *Registry[T]) Add(id int32, v T) {
	if id > InitialID {
		panic(fmt.Sprintf("urlrequest/registry: id %d above boundary %d", id, InitialID))
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.entries[id]; ok {
		panic(fmt.Sprintf("urlrequest/registry: duplicate id %d", id))
	}
	r.entries[id] = v
}

// Remove erases the entry for id. It does nothing if id is above
// InitialID, since such an id was never registered.
//
// Remove panics if id is within range but not registered.
func (r *Registry[T]) Remove(id int32) {
	if id > InitialID {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.entries[id]; !ok {
		panic(fmt.Sprintf("urlrequest/registry: remove of unknown id %d", id))
	}
	delete(r.entries, id)
}

// Lookup returns a copy of the entry registered for id. The boolean
// result is false if id is above InitialID or is not registered.
func (r *Registry[T]) Lookup(id int32) (T, bool) {
	var zero T
	if id > InitialID {
		return zero, false
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	v, ok := r.entries[id]
	if !ok {
		return zero, false
	}
	return v, true
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.entries)
}
