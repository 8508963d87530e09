// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout defines policies for the time a transport loader
// waits for response headers, including on retries. A generic interface
// for timeout policies is provided, Policy, along with several policy
// generating functions and built-in policies.
package timeout
