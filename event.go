// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

// An Event identifies the point in a URL request's lifecycle at which
// a Handler is invoked. Handlers installed in a Manager's HandlerGroup
// run on the request's originating sequence, so they may call any
// accessor of the URLRequest they receive.
type Event int

const (
	// RequestStarted identifies the event that occurs after Start has
	// validated the request URL and before the browser context is
	// resolved.
	RequestStarted Event = iota
	// RequestDispatched identifies the event that occurs after the
	// request has been registered and its Loader configured, just
	// before the Loader starts.
	//
	// When RequestDispatched fires, URLRequest.ID returns the request's
	// identifier and the descriptor's method reflects any rewrite made
	// to carry a body.
	RequestDispatched
	// ResponseStarted identifies the event that occurs when response
	// headers arrive, both for streaming and headers-only loads.
	ResponseStarted
	// RequestRedirected identifies the event that occurs when a
	// redirect stops a request that asked to stop on redirect. The
	// response URL is the redirect target when the event fires.
	RequestRedirected
	// RequestRetried identifies the event that occurs before the Loader
	// retries a streaming load.
	RequestRetried
	// RequestCompleted identifies the event that occurs immediately
	// before the client is told the request is complete.
	//
	// When RequestCompleted fires, the request status is final.
	RequestCompleted
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"RequestStarted",
	"RequestDispatched",
	"ResponseStarted",
	"RequestRedirected",
	"RequestRetried",
	"RequestCompleted",
}

// Events returns a slice containing all events which can occur during a
// URL request's lifecycle, in the order in which they would occur.
func Events() []Event {
	return []Event{
		RequestStarted,
		RequestDispatched,
		ResponseStarted,
		RequestRedirected,
		RequestRetried,
		RequestCompleted,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
