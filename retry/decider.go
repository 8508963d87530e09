// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/transient"
)

// A Decider decides, after a failed attempt, whether the load is tried
// again. Implementations must be safe for concurrent use.
type Decider interface {
	Decide(e *request.Execution) bool
}

// DeciderFunc adapts an ordinary function to the Decider interface and
// composes deciders with And and Or.
type DeciderFunc func(e *request.Execution) bool

// DefaultTimes is how many retries a URL request allows unless it opts
// out of retrying server errors.
const DefaultTimes = 2

// DefaultDecider retries up to DefaultTimes times when the server
// answers 5xx or the local network changed during the attempt.
var DefaultDecider = Times(DefaultTimes).And(ServerError.Or(NetworkChanged))

// ServerError retries responses with a 5xx status.
var ServerError DeciderFunc = func(e *request.Execution) bool {
	s := e.StatusCode()
	return s >= 500 && s <= 599
}

// NetworkChanged retries attempts that failed because the local network
// changed underneath them.
var NetworkChanged DeciderFunc = func(e *request.Execution) bool {
	return transient.Categorize(e.Err) == transient.NetworkChanged
}

// TransientErr retries any transient error. It never retries an attempt
// that received a response.
var TransientErr DeciderFunc = func(e *request.Execution) bool {
	return transient.Categorize(e.Err) != transient.Not
}

// Decide returns f(e).
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And returns a decider that retries only if f and g both do. g is not
// consulted when f declines.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or returns a decider that retries if either f or g does. g is not
// consulted when f retries.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times allows n retries: it returns true while e.Attempt < n.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before allows retries until the load has been running for d.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode retries responses whose status is one of codes.
func StatusCode(codes ...int) DeciderFunc {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(e *request.Execution) bool {
		_, ok := set[e.StatusCode()]
		return ok && e.Response != nil
	}
}
