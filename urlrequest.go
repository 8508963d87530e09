// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

import (
	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/sequence"
	"go.uber.org/zap"
)

// A URLRequest is an asynchronous HTTP request created by
// Manager.NewRequest.
//
// A URLRequest is bound to the sequence it was created on. Every method
// must be called from a task running on that sequence; a call from
// anywhere else is a programming error, reported through the Manager's
// logger at DPanic level, and returns the zero value.
type URLRequest struct {
	ctx    *requestContext
	runner *sequence.Runner
	logger *zap.Logger
}

// Start begins loading the request. It returns false, leaving the
// status pending, if the request URL is not well-formed; in that case
// the client is never called and the request should be discarded.
//
// Start may be called at most once.
func (r *URLRequest) Start() bool {
	if !r.verifyContext() {
		return false
	}
	return r.ctx.start()
}

// Cancel cancels the request. If the request is still pending, its
// status becomes StatusCanceled, its error becomes neterror.ErrAborted
// and the client's OnRequestComplete is called before Cancel returns.
// Canceling a completed request does nothing.
func (r *URLRequest) Cancel() {
	if !r.verifyContext() {
		return
	}
	r.ctx.cancel()
}

// Request returns the read-only descriptor of the request.
func (r *URLRequest) Request() *request.Descriptor {
	if !r.verifyContext() {
		return nil
	}
	return r.ctx.req
}

// Client returns the request's client, or nil once the request has
// completed.
func (r *URLRequest) Client() Client {
	if !r.verifyContext() {
		return nil
	}
	return r.ctx.client
}

// Status returns the lifecycle status of the request.
func (r *URLRequest) Status() Status {
	if !r.verifyContext() {
		return StatusUnknown
	}
	return r.ctx.status
}

// Error returns the network error code of the request. It is
// neterror.OK unless the request failed or was canceled.
func (r *URLRequest) Error() neterror.Code {
	if !r.verifyContext() {
		return neterror.OK
	}
	return r.ctx.response.Error()
}

// Response returns the read-only response record of the request.
func (r *URLRequest) Response() *request.Response {
	if !r.verifyContext() {
		return nil
	}
	return r.ctx.response
}

// ResponseWasCached reports whether the response was served from
// cache.
func (r *URLRequest) ResponseWasCached() bool {
	if !r.verifyContext() {
		return false
	}
	return r.ctx.response.WasCached()
}

// ID returns the identifier the request is registered under, or zero
// if the request has not been dispatched.
func (r *URLRequest) ID() int32 {
	if !r.verifyContext() {
		return 0
	}
	return r.ctx.requestID
}

func (r *URLRequest) verifyContext() bool {
	if !r.runner.RunsTasksInCurrentSequence() {
		r.logger.DPanic("urlrequest: called on invalid sequence", zap.String("sequence", r.runner.Name()))
		return false
	}
	return true
}
