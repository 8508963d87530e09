// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"errors"
	"syscall"
)

// A Category is the transience category of a particular error, as
// reported by function Categorize().
//
// The category Not means the error is not transient from the
// perspective of completing a network load, or in other words that a
// retry after encountering this error is very unlikely to succeed.
//
// All other categories indicate the error is transient, that is a retry
// has some prospect of success.
type Category int

const (
	// Not indicates any non-transient error.
	Not Category = iota
	// Timeout indicates a client-side timeout.
	//
	// Function Categorize() will return Timeout if the error or any of
	// its wrapped causes has a Timeout() function that reports true.
	Timeout
	// ConnRefused indicates the remote host refused the connection
	// (POSIX ECONNREFUSED), which commonly happens while a remote
	// service is restarting.
	ConnRefused
	// ConnReset indicates the remote host returned an RST packet on a
	// previously active TCP connection (POSIX ECONNRESET).
	ConnReset
	// NetworkChanged indicates the local network configuration changed
	// underneath the load: the interface went down, the network became
	// unreachable, or the local address the socket was bound to
	// disappeared. A retry on the new network has a good prospect of
	// success.
	//
	// Function Categorize() will return NetworkChanged if the error is
	// not a Timeout, and the error or any of its wrapped causes is one
	// of syscall.ENETDOWN, syscall.ENETUNREACH, syscall.ENETRESET or
	// syscall.EADDRNOTAVAIL.
	NetworkChanged
)

var categoryNames = []string{
	"Not",
	"Timeout",
	"ConnRefused",
	"ConnReset",
	"NetworkChanged",
}

// String returns the name of the category.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Unknown"
	}
	return categoryNames[c]
}

// Categorize returns the transience category of the given error. All
// non-nil transient errors result in a transience category other than
// Not. A nil error, and an error that is not transient, both produce
// the return value Not.
//
// In assessing transience, Categorize looks at wrapped cause errors
// contained within err, not just err itself. Categorize never checks
// for a Temporary() method, as its semantics aren't entirely clear.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	var hasTimeout hasTimeout
	if errors.As(err, &hasTimeout) && hasTimeout.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		case syscall.ENETDOWN, syscall.ENETUNREACH, syscall.ENETRESET, syscall.EADDRNOTAVAIL:
			return NetworkChanged
		}
	}

	return Not
}

type hasTimeout interface {
	Timeout() bool
}
