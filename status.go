// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

// Status is the lifecycle status of a URL request.
type Status int

const (
	// StatusUnknown is returned by URLRequest.Status when it is called
	// off the request's originating sequence.
	StatusUnknown Status = iota
	// StatusPending is the status of a request from creation until it
	// succeeds, fails or is canceled.
	StatusPending
	// StatusSuccess means the load completed and the response is
	// available.
	StatusSuccess
	// StatusFailed means the load failed. URLRequest.Error returns the
	// network error code.
	StatusFailed
	// StatusCanceled means the request was canceled, stopped on a
	// redirect, or its browser context could not be resolved.
	StatusCanceled
)

var statusNames = []string{
	"Unknown",
	"Pending",
	"Success",
	"Failed",
	"Canceled",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

// Terminal reports whether s is one of the final statuses a request
// can reach.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}
