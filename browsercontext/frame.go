// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package browsercontext

import "go.uber.org/atomic"

// A Frame is a document frame a URL request may be associated with.
//
// Frame methods are called on the Manager's coordinating sequence.
type Frame interface {
	// FrameTreeNodeID returns the frame's identifier in its page's
	// frame tree. It becomes the routing identifier of the request.
	FrameTreeNodeID() int
	// ContextID returns the identifier of the browser context the
	// frame belongs to.
	ContextID() string
	// Detached reports whether the frame has been removed from its
	// page. Requests for a detached frame are cancelled.
	Detached() bool
}

// A StaticFrame is a Frame with a fixed identity that can be detached
// once.
type StaticFrame struct {
	treeNodeID int
	contextID  string
	detached   *atomic.Bool
}

// NewFrame returns an attached frame in the browser context identified
// by contextID.
func NewFrame(contextID string, treeNodeID int) *StaticFrame {
	return &StaticFrame{
		treeNodeID: treeNodeID,
		contextID:  contextID,
		detached:   atomic.NewBool(false),
	}
}

func (f *StaticFrame) FrameTreeNodeID() int { return f.treeNodeID }
func (f *StaticFrame) ContextID() string    { return f.contextID }
func (f *StaticFrame) Detached() bool       { return f.detached.Load() }

// Detach removes the frame from its page. It is safe to call from any
// goroutine.
func (f *StaticFrame) Detach() {
	f.detached.Store(true)
}
