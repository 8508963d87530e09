// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"math"
	"time"

	"github.com/gogama/urlrequest/request"
)

// A Policy decides how long a transport loader waits for response
// headers on each attempt of a load. The timeout covers connecting,
// sending the body and receiving the headers, but not streaming the
// response body, which the client paces.
//
// Implementations must be safe for concurrent use.
type Policy interface {
	// Timeout returns the header timeout for the next attempt of the
	// load described by e.
	Timeout(e *request.Execution) time.Duration
}

// PolicyFunc adapts an ordinary function to the Policy interface.
type PolicyFunc func(e *request.Execution) time.Duration

// Timeout returns f(e).
func (f PolicyFunc) Timeout(e *request.Execution) time.Duration {
	return f(e)
}

// DefaultPolicy waits 30 seconds for headers on every attempt.
var DefaultPolicy = Fixed(30 * time.Second)

// Infinite never times out.
var Infinite = Fixed(math.MaxInt64)

// Fixed returns a Policy that waits d on every attempt.
func Fixed(d time.Duration) Policy {
	return fixed(d)
}

type fixed time.Duration

func (f fixed) Timeout(_ *request.Execution) time.Duration {
	return time.Duration(f)
}

// FromDuration converts a configured duration, where zero or less
// means no timeout, into a Policy.
func FromDuration(d time.Duration) Policy {
	if d <= 0 {
		return Infinite
	}
	return Fixed(d)
}

// Adaptive returns a Policy that lengthens the timeout after attempts
// time out. It waits usual on the first attempt and after any attempt
// that failed for another reason. After the nth timeout of the load it
// waits after[n-1], or the last element of after once they run out.
//
// For example, Adaptive(2*time.Second, 10*time.Second, time.Minute)
// waits 2s normally, 10s after the first timeout and a minute after
// each later one.
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	return PolicyFunc(func(e *request.Execution) time.Duration {
		n := e.AttemptTimeouts
		if len(after) == 0 || n == 0 || !e.Timeout() {
			return usual
		}
		if n > len(after) {
			n = len(after)
		}
		return after[n-1]
	})
}
