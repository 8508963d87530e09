// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package registry

import "go.uber.org/atomic"

// An Allocator hands out browser-originated request identifiers. The
// first identifier is InitialID-1 and each subsequent one is one lower.
// Identifiers are never reused during the life of the Allocator.
//
// Allocator is intended to be called from the coordinating sequence
// only, but is safe for concurrent use.
type Allocator struct {
	last *atomic.Int32
}

// NewAllocator returns an Allocator positioned at InitialID.
func NewAllocator() *Allocator {
	return &Allocator{last: atomic.NewInt32(InitialID)}
}

// Next returns a fresh identifier.
func (a *Allocator) Next() int32 {
	return a.last.Dec()
}
