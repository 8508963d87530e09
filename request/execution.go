// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"net/http"
	"time"

	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/transient"
)

// An Execution is the state of one network load made by a transport
// loader for a URL request. The loader owns it: it is created when the
// load starts, updated as headers arrive, redirects are followed and
// attempts are retried, and ended when the load completes.
//
// Retry and timeout policies read an Execution to make their decisions
// and must not modify it.
type Execution struct {
	// ID is the identifier of the URL request the load serves, or zero
	// if none was assigned.
	ID int32

	// Start is when the load started. End is when it completed, and is
	// zero while the load is in flight.
	Start, End time.Time

	// Attempt is the zero-based attempt number. Retries start a new
	// attempt; following a redirect does not.
	Attempt int

	// Redirects counts the redirects followed in the current attempt.
	Redirects int

	// AttemptTimeouts counts the attempts that timed out waiting for
	// response headers.
	AttemptTimeouts int

	// Request is the HTTP request of the current hop.
	Request *http.Request

	// Response is the response to the current hop. It is nil while a
	// hop is in flight or if the hop failed.
	Response *http.Response

	// Err is the error ending the most recent attempt, if any.
	Err error
}

// StatusCode returns the HTTP status of Response, or 0 if there is no
// response.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// Header returns the headers of Response. The nil header is returned if
// there is no response, which is safe to read.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		return nil
	}
	return e.Response.Header
}

// Started reports whether the load has started.
func (e *Execution) Started() bool {
	return !e.Start.IsZero()
}

// Ended reports whether the load has completed.
func (e *Execution) Ended() bool {
	return !e.End.IsZero()
}

// Duration returns how long the load took, or has taken so far if it
// is still in flight. It is zero before the load starts.
func (e *Execution) Duration() time.Duration {
	switch {
	case !e.Started():
		return 0
	case !e.Ended():
		return time.Since(e.Start)
	default:
		return e.End.Sub(e.Start)
	}
}

// Timeout reports whether Err is a timeout.
func (e *Execution) Timeout() bool {
	return transient.Categorize(e.Err) == transient.Timeout
}

// NetError returns the network error code for Err: neterror.OK if Err
// is nil.
func (e *Execution) NetError() neterror.Code {
	return neterror.FromError(e.Err)
}
