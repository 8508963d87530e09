// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/gogama/urlrequest/request"
)

// A Policy controls if and how a transport loader retries a failed
// attempt. After every attempt a Policy decides whether a retry should
// be done and, if so, how long the wait period should be before
// retrying.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
//
// A Policy is composed of the Decider and Waiter interfaces. Use one of
// the built-in retry policies, DefaultPolicy or Never, or construct a
// policy with NewPolicy from existing Decider and Waiter
// implementations.
type Policy interface {
	Decider
	Waiter
}

// DefaultPolicy is the retry policy of a request that has not opted out
// of retries. It is a composition of DefaultDecider for retry decisions
// and DefaultWaiter for wait time calculations.
var DefaultPolicy Policy = policy{DefaultDecider, DefaultWaiter}

// Never is a policy that never retries.
var Never Policy = policy{Times(0), DefaultWaiter}

type policy struct {
	decider Decider
	waiter  Waiter
}

// NewPolicy composes a Decider and a Waiter into a retry Policy.
func NewPolicy(d Decider, w Waiter) Policy {
	if d == nil {
		panic("urlrequest/retry: nil decider")
	}
	if w == nil {
		panic("urlrequest/retry: nil waiter")
	}
	return policy{decider: d, waiter: w}
}

func (p policy) Decide(e *request.Execution) bool {
	return p.decider.Decide(e)
}

func (p policy) Wait(e *request.Execution) time.Duration {
	return p.waiter.Wait(e)
}
