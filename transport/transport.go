// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"net/http"

	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/sequence"
)

// RoutingNone is the routing identifier of a request that is not
// associated with a frame.
const RoutingNone = -2

// An HTTPDoer implements a Do method in the same manner as the GoLang
// standard library http.Client from the net/http package.
//
// The Loader follows redirects itself, so an HTTPDoer handed to a
// Loader must return redirect responses to the caller rather than
// following them. For an http.Client, set CheckRedirect to a function
// returning http.ErrUseLastResponse.
type HTTPDoer interface {
	Do(r *http.Request) (*http.Response, error)
}

// IdleCloser is the interface that wraps the basic CloseIdleConnections
// method.
type IdleCloser interface {
	CloseIdleConnections()
}

// A FactoryGetter supplies the loader factory of a browser context,
// i.e. the HTTPDoer loads are sent through, and the context's cookie
// jar.
type FactoryGetter interface {
	Factory() HTTPDoer
	CookieJar() http.CookieJar
}

// RetryMode is a bitset of conditions under which a Loader retries.
type RetryMode int

const (
	// RetryNever disables retries.
	RetryNever RetryMode = 0
	// RetryOn5xx retries when the server answers with a 5xx status.
	RetryOn5xx RetryMode = 1 << 0
	// RetryOnNetworkChange retries when the local network changed
	// underneath the load.
	RetryOnNetworkChange RetryMode = 1 << 1
)

// A ResponseHead is the status line and headers of a response.
type ResponseHead struct {
	StatusCode    int
	Status        string
	Proto         string
	Header        http.Header
	ContentLength int64
	MimeType      string
	Charset       string
	WasCached     bool
}

// StatusText returns the reason phrase of the status line.
func (h *ResponseHead) StatusText() string {
	if len(h.Status) > 4 && h.Status[3] == ' ' {
		return h.Status[4:]
	}
	return http.StatusText(h.StatusCode)
}

// RedirectInfo describes a redirect about to be followed.
type RedirectInfo struct {
	StatusCode int
	NewURL     string
	NewMethod  string
}

// An AuthChallenge describes an HTTP authentication challenge received
// from a server or proxy.
type AuthChallenge struct {
	IsProxy bool
	Host    string
	Scheme  string
	Realm   string
	URL     string
}

// An AuthResponder answers an AuthChallenge. Passing ok == false
// declines the challenge, and the challenge response is delivered as
// the final response.
type AuthResponder func(username, password string, ok bool)

// A StreamConsumer receives the body of a streaming load.
//
// All methods are called on the Loader's originating sequence.
type StreamConsumer interface {
	// OnDataReceived delivers the next chunk of the response body. The
	// Loader does not read the next chunk until resume is called.
	OnDataReceived(data []byte, resume func())
	// OnComplete is called once when the load ends. The Loader's
	// NetError, FinalURL and LoadedFromCache are final by then.
	OnComplete(success bool)
	// OnRetry is called before a retry. The retry starts when start is
	// called.
	OnRetry(start func())
}

// A Loader performs a single network load on behalf of a URL request,
// including retries and redirect following, and reports its progress
// through callbacks posted to the sequence it was created on.
//
// Configure the Loader with its setters and attach a body, then start
// it with exactly one of DownloadHeadersOnly or DownloadAsStream. Close
// the Loader to abandon it: no callback runs after Close returns.
type Loader interface {
	SetRequestID(id int32)
	SetRetryOptions(maxRetries int, mode RetryMode)
	SetAllowHTTPErrorResults(allow bool)
	SetOnRedirect(f func(info RedirectInfo, head *ResponseHead))
	SetOnUploadProgress(f func(current, total int64))
	SetOnDownloadProgress(f func(current int64))
	SetOnResponseStarted(f func(finalURL string, head *ResponseHead))
	AttachFileForUpload(path, contentType string)
	AttachStringForUpload(data []byte, contentType string)
	DownloadHeadersOnly(f HTTPDoer, cb func(head *ResponseHead))
	DownloadAsStream(f HTTPDoer, c StreamConsumer)
	FinalURL() string
	NetError() neterror.Code
	LoadedFromCache() bool
	Close()
}

// A LoaderFunc constructs a Loader for a request whose callbacks are
// posted to runner.
type LoaderFunc func(req *Request, runner *sequence.Runner) Loader
