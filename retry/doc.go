// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides policies for retrying failed attempts of a
// network load, and for how long to wait before retrying.
//
// The interface Policy defines a retry Policy. A Policy instance can be
// constructed using NewPolicy by providing a decision-maker, Decider,
// and a wait time calculator, Waiter:
//
//	decider := retry.Times(2).And(retry.ServerError.Or(retry.NetworkChanged))
//	waiter := retry.NewExpWaiter(100*time.Millisecond, 2*time.Second, nil)
//	policy := retry.NewPolicy(decider, waiter)
//
// The transport loader builds exactly this kind of policy from the
// retry options a URL request sets on it.
package retry
