// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

import (
	"github.com/gogama/urlrequest/browsercontext"
	"github.com/gogama/urlrequest/transport"
)

// A Client receives the lifecycle callbacks of a URL request.
//
// Every method is called on the request's originating sequence, in the
// order the underlying load reports progress, and never concurrently
// with another method for the same request. OnRequestComplete is
// called exactly once per started request.
type Client interface {
	// OnUploadProgress reports upload progress. If the request asked
	// for upload progress, a final call with current == total is
	// guaranteed before OnRequestComplete for a successful request.
	OnUploadProgress(r *URLRequest, current, total int64)
	// OnDownloadProgress reports download progress. The total is -1
	// if the response length is unknown.
	OnDownloadProgress(r *URLRequest, current, total int64)
	// OnDownloadData delivers the next chunk of the response body. The
	// next chunk is not read until OnDownloadData returns.
	OnDownloadData(r *URLRequest, data []byte)
	// OnRequestComplete is called once the request reaches a terminal
	// status.
	OnRequestComplete(r *URLRequest)
}

// An AuthClient is a Client that can answer HTTP authentication
// challenges.
//
// GetAuthCredentials is called on the request's originating sequence.
// It returns false to decline the challenge immediately, or true to
// answer later by calling callback exactly once.
type AuthClient interface {
	Client
	GetAuthCredentials(isProxy bool, host string, port int, realm, scheme string, callback transport.AuthResponder) bool
}

// ClientFuncs adapts ordinary functions to the Client interface. Nil
// fields are skipped.
type ClientFuncs struct {
	UploadProgress   func(r *URLRequest, current, total int64)
	DownloadProgress func(r *URLRequest, current, total int64)
	DownloadData     func(r *URLRequest, data []byte)
	RequestComplete  func(r *URLRequest)
}

func (f *ClientFuncs) OnUploadProgress(r *URLRequest, current, total int64) {
	if f.UploadProgress != nil {
		f.UploadProgress(r, current, total)
	}
}

func (f *ClientFuncs) OnDownloadProgress(r *URLRequest, current, total int64) {
	if f.DownloadProgress != nil {
		f.DownloadProgress(r, current, total)
	}
}

func (f *ClientFuncs) OnDownloadData(r *URLRequest, data []byte) {
	if f.DownloadData != nil {
		f.DownloadData(r, data)
	}
}

func (f *ClientFuncs) OnRequestComplete(r *URLRequest) {
	if f.RequestComplete != nil {
		f.RequestComplete(r)
	}
}

// A ContextProvider resolves the browser context a request runs in.
// browsercontext.Provider is the standard implementation.
//
// Resolve is called on the Manager's coordinating sequence. It returns
// the loader factory getter of the context, or nil if the request must
// be canceled, and the routing identifier of the frame, or
// transport.RoutingNone.
type ContextProvider interface {
	Resolve(frame browsercontext.Frame, contextID string) (transport.FactoryGetter, int)
}
