// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gogama/urlrequest/request"
	"golang.org/x/time/rate"
)

// A Waiter decides how long a loader waits before retrying a failed
// attempt. It is consulted only after the Decider has chosen to retry.
//
// Implementations must be safe for concurrent use, since one Waiter is
// typically shared by every loader of a browser process.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// WaiterFunc adapts an ordinary function to the Waiter interface.
type WaiterFunc func(e *request.Execution) time.Duration

// Wait returns f(e).
func (f WaiterFunc) Wait(e *request.Execution) time.Duration {
	return f(e)
}

// DefaultWaiter waits with jittered exponential backoff, starting from
// 100 milliseconds and never exceeding 2 seconds.
var DefaultWaiter = NewExpWaiter(100*time.Millisecond, 2*time.Second, rand.New(rand.NewSource(time.Now().UnixNano())))

// NewFixedWaiter returns a Waiter that always waits d.
func NewFixedWaiter(d time.Duration) Waiter {
	return WaiterFunc(func(_ *request.Execution) time.Duration {
		return d
	})
}

// NewExpWaiter returns a Waiter whose wait doubles with each attempt:
// base before the first retry, 2*base before the second, and so on, up
// to max.
//
// If jitter is not nil, the wait is drawn uniformly from the upper half
// of that range, so concurrent loaders retrying a shared server spread
// out. A *rand.Rand is not safe for concurrent use; the Waiter
// serializes access to it.
func NewExpWaiter(base, max time.Duration, jitter *rand.Rand) Waiter {
	if base <= 0 {
		panic("urlrequest/retry: base must be positive")
	}
	if max < base {
		panic("urlrequest/retry: max must be at least base")
	}
	return &expWaiter{base: base, max: max, jitter: jitter}
}

type expWaiter struct {
	base, max time.Duration

	mu     sync.Mutex
	jitter *rand.Rand
}

func (w *expWaiter) Wait(e *request.Execution) time.Duration {
	d := w.max
	if e.Attempt < 63 && w.base <= w.max>>uint(e.Attempt) {
		d = w.base << uint(e.Attempt)
	}
	if w.jitter == nil {
		return d
	}
	half := int64(d / 2)
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(half + w.jitter.Int63n(int64(d)-half+1))
}

// NewRateWaiter returns a Waiter that spaces retries according to l,
// which is normally shared so that all loaders together retry no faster
// than its rate. Each call reserves one event from l and returns the
// delay until it may proceed. If l can never grant an event, the
// fallback Waiter decides instead.
func NewRateWaiter(l *rate.Limiter, fallback Waiter) Waiter {
	if l == nil {
		panic("urlrequest/retry: nil limiter")
	}
	if fallback == nil {
		fallback = DefaultWaiter
	}
	return WaiterFunc(func(e *request.Execution) time.Duration {
		r := l.Reserve()
		if !r.OK() {
			return fallback.Wait(e)
		}
		return r.Delay()
	})
}
