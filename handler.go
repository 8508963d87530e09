// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

// A HandlerGroup is a group of event handler chains which can be
// installed in a Manager.
//
// A HandlerGroup must not be modified after it is installed.
type HandlerGroup struct {
	handlers [][]Handler
}

// PushBack adds an event handler to the back of the event handler chain
// for a specific event type.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("urlrequest: nil handler")
	}

	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}

	g.handlers[evt] = append(g.handlers[evt], h)
}

func (g *HandlerGroup) run(evt Event, r *URLRequest) {
	if g == nil {
		return
	}
	i := int(evt)
	if i < len(g.handlers) {
		run(g.handlers[i], evt, r)
	}
}

func run(chain []Handler, evt Event, r *URLRequest) {
	for _, h := range chain {
		h.Handle(evt, r)
	}
}

// A Handler handles the occurrence of an event during a URL request's
// lifecycle.
//
// Handlers run on the request's originating sequence. A handler may
// cancel the request it receives, but must not block.
type Handler interface {
	Handle(Event, *URLRequest)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as event handlers. If f is a function with appropriate
// signature, then HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(Event, *URLRequest)

// Handle calls f(evt, r).
func (f HandlerFunc) Handle(evt Event, r *URLRequest) {
	f(evt, r)
}
