// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

import (
	"net/http"
	"testing"

	"github.com/gogama/urlrequest/browsercontext"
	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/retry"
	"github.com/gogama/urlrequest/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/mock"
)

func TestURLRequest(t *testing.T) {
	t.Run("stream", testURLRequestStream)
	t.Run("headers only", testURLRequestHeadersOnly)
	t.Run("HEAD", testURLRequestHead)
	t.Run("headers only failure", testURLRequestHeadersOnlyFailure)
	t.Run("stream failure", testURLRequestStreamFailure)
	t.Run("loader configuration", testURLRequestLoaderConfiguration)
	t.Run("bytes body", testURLRequestBytesBody)
	t.Run("file body", testURLRequestFileBody)
	t.Run("unsupported body", testURLRequestUnsupportedBody)
	t.Run("upload progress", testURLRequestUploadProgress)
	t.Run("stop on redirect", testURLRequestStopOnRedirect)
	t.Run("retry", testURLRequestRetry)
	t.Run("cancel", testURLRequestCancel)
	t.Run("cancel from client", testURLRequestCancelFromClient)
	t.Run("after teardown", testURLRequestAfterTeardown)
	t.Run("resolution failure", testURLRequestResolutionFailure)
	t.Run("frame", testURLRequestFrame)
	t.Run("invalid URL", testURLRequestInvalidURL)
	t.Run("invalid sequence", testURLRequestInvalidSequence)
	t.Run("start twice", testURLRequestStartTwice)
	t.Run("events", testURLRequestEvents)
}

func testURLRequestStream(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagAllowStoredCredentials)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()

	assert.Equal(t, "GET", l.req.Method)
	assert.Equal(t, transport.RoutingNone, l.req.RenderFrameID)
	assert.Equal(t, transport.ResourceSubresource, l.req.ResourceType)
	assert.Equal(t, "https://example.test", l.req.Initiator)
	assert.Equal(t, transport.CredentialsInclude, l.req.CredentialsMode)
	assert.True(t, l.req.ForceIgnoreSiteForCookies)
	require.NotNil(t, l.req.SiteForCookies)
	assert.Equal(t, "example.test", l.req.SiteForCookies.Host)
	assert.NotNil(t, l.consumer)
	assert.Nil(t, l.headersOnly)
	assert.True(t, d.ReadOnly())

	var id int32
	h.do(func() {
		id = r.ID()
		assert.Equal(t, StatusPending, r.Status())
		e, ok := h.manager.LookupByID(id)
		assert.True(t, ok)
		assert.Same(t, r, e.Request)
		assert.Same(t, h.client, e.Client)
	})
	assert.Equal(t, id, l.requestID)
	assert.Less(t, id, int32(-2))

	l.finalURL = "https://example.test/resource"
	h.do(func() {
		l.onResponseStarted(l.finalURL, &transport.ResponseHead{
			StatusCode:    200,
			Status:        "200 OK",
			Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
			ContentLength: 11,
		})
		resumed := 0
		l.consumer.OnDataReceived([]byte("hello "), func() { resumed++ })
		l.onDownloadProgress(6)
		l.consumer.OnDataReceived([]byte("world"), func() { resumed++ })
		assert.Equal(t, 2, resumed)
		l.consumer.OnComplete(true)
	})
	h.do(func() {
		assert.Equal(t, StatusSuccess, r.Status())
		assert.Equal(t, neterror.OK, r.Error())
		assert.False(t, r.ResponseWasCached())
		resp := r.Response()
		assert.NotNil(t, resp)
		assert.True(t, resp.ReadOnly())
		assert.Equal(t, "https://example.test/resource", resp.URL())
		assert.Equal(t, 200, resp.Status())
		assert.Equal(t, "OK", resp.StatusText())
		assert.Equal(t, "text/plain", resp.MimeType())
		assert.Equal(t, "utf-8", resp.Charset())
		assert.Nil(t, r.Client())
		assert.Equal(t, id, r.ID())
	})

	assert.Equal(t, []clientCall{
		{name: "data", data: "hello "},
		{name: "download", current: 6, total: 11},
		{name: "data", data: "world"},
		{name: "complete"},
	}, h.client.recorded())
	assert.Zero(t, h.client.offRunner)
	_, ok := h.manager.LookupByID(id)
	assert.False(t, ok)
	// Closing a streaming Loader is deferred to the next task.
	assert.Equal(t, 1, l.closeCount())
}

func testURLRequestHeadersOnly(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNoDownloadData)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()
	assert.NotNil(t, l.headersOnly)
	assert.Nil(t, l.consumer)
	assert.Nil(t, l.onResponseStarted)
	assert.Nil(t, l.onDownloadProgress)

	l.fromCache = true
	h.do(func() {
		l.headersOnly(&transport.ResponseHead{StatusCode: 200, Header: http.Header{}, ContentLength: 42})
		assert.Equal(t, 1, l.closeCount())
		assert.Equal(t, StatusSuccess, r.Status())
		assert.True(t, r.ResponseWasCached())
		assert.Equal(t, 200, r.Response().Status())
		assert.Equal(t, "https://example.test/resource", r.Response().URL())
	})

	assert.Equal(t, []clientCall{
		{name: "download", current: 0, total: 42},
		{name: "complete"},
	}, h.client.recorded())
	assert.Zero(t, h.client.count("data"))
}

func testURLRequestHead(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "HEAD", "https://example.test/resource", request.FlagNone)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()
	require.NotNil(t, l.headersOnly)

	h.do(func() {
		l.headersOnly(&transport.ResponseHead{StatusCode: 204, Header: http.Header{}, ContentLength: 0})
		assert.Equal(t, StatusSuccess, r.Status())
	})
	assert.Equal(t, []string{"complete"}, h.client.names())
}

func testURLRequestHeadersOnlyFailure(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNoDownloadData)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()

	l.netError = neterror.ErrConnectionRefused
	h.do(func() {
		l.headersOnly(nil)
		assert.Equal(t, StatusFailed, r.Status())
		assert.Equal(t, neterror.ErrConnectionRefused, r.Error())
		assert.Equal(t, 0, r.Response().Status())
		assert.Equal(t, 1, l.closeCount())
	})
	assert.Equal(t, []string{"complete"}, h.client.names())
}

func testURLRequestStreamFailure(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()

	l.netError = neterror.ErrNameNotResolved
	h.do(func() {
		// Progress without headers is not reported.
		l.onDownloadProgress(0)
		l.consumer.OnComplete(false)
		// Late callbacks after teardown are ignored.
		l.consumer.OnComplete(false)
		assert.Equal(t, StatusFailed, r.Status())
		assert.Equal(t, neterror.ErrNameNotResolved, r.Error())
	})
	assert.Equal(t, []string{"complete"}, h.client.names())
}

func testURLRequestLoaderConfiguration(t *testing.T) {
	testCases := []struct {
		name       string
		flags      request.Flags
		maxRetries int
		retryMode  transport.RetryMode
		redirect   bool
		upload     bool
	}{
		{
			name:       "default",
			maxRetries: retry.DefaultTimes,
			retryMode:  transport.RetryOn5xx | transport.RetryOnNetworkChange,
		},
		{
			name:  "no retry",
			flags: request.FlagNoRetryOn5xx,
		},
		{
			name:       "stop on redirect",
			flags:      request.FlagStopOnRedirect,
			maxRetries: retry.DefaultTimes,
			retryMode:  transport.RetryOn5xx | transport.RetryOnNetworkChange,
			redirect:   true,
		},
		{
			name:       "report upload progress",
			flags:      request.FlagReportUploadProgress,
			maxRetries: retry.DefaultTimes,
			retryMode:  transport.RetryOn5xx | transport.RetryOnNetworkChange,
			upload:     true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			h := newHarness(t)
			h.resolveWith(h.getter, transport.RoutingNone)
			d := newDescriptor(t, "GET", "https://example.test/", testCase.flags)
			h.start(func() *URLRequest {
				return h.manager.NewRequest(nil, d, h.client, "default")
			})
			l := h.dispatched()
			assert.True(t, l.allowHTTPErrors)
			assert.Equal(t, testCase.maxRetries, l.maxRetries)
			assert.Equal(t, testCase.retryMode, l.retryMode)
			assert.Equal(t, testCase.redirect, l.onRedirect != nil)
			assert.Equal(t, testCase.upload, l.onUploadProgress != nil)
			assert.NotNil(t, l.onResponseStarted)
			assert.NotNil(t, l.onDownloadProgress)
		})
	}
}

func testURLRequestBytesBody(t *testing.T) {
	testCases := []struct {
		name                string
		method              string
		contentType         string
		expectedMethod      string
		expectedContentType string
	}{
		{"GET default type", "GET", "", "POST", "application/x-www-form-urlencoded"},
		{"HEAD default type", "HEAD", "", "POST", "application/x-www-form-urlencoded"},
		{"PUT explicit type", "PUT", "application/json", "PUT", "application/json"},
		{"POST explicit type", "POST", "text/plain", "POST", "text/plain"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			h := newHarness(t)
			h.resolveWith(h.getter, transport.RoutingNone)
			d := newDescriptor(t, testCase.method, "https://example.test/upload", request.FlagNone)
			d.SetBody(request.NewBody(request.BytesElement([]byte("a=b"))))
			if testCase.contentType != "" {
				require.NoError(t, d.SetHeaderValue("Content-Type", testCase.contentType, true))
			}

			h.start(func() *URLRequest {
				return h.manager.NewRequest(nil, d, h.client, "default")
			})
			l := h.dispatched()
			assert.Equal(t, testCase.expectedMethod, l.req.Method)
			assert.Equal(t, []byte("a=b"), l.uploadData)
			assert.Equal(t, testCase.expectedContentType, l.uploadContentType)
			h.do(func() {
				assert.Equal(t, testCase.expectedMethod, d.Method())
				assert.True(t, d.ReadOnly())
			})
			// A rewritten HEAD streams its response.
			assert.NotNil(t, l.consumer)
		})
	}
}

func testURLRequestFileBody(t *testing.T) {
	t.Run("inferred type", func(t *testing.T) {
		h := newHarness(t)
		h.resolveWith(h.getter, transport.RoutingNone)
		d := newDescriptor(t, "POST", "https://example.test/upload", request.FlagNone)
		d.SetBody(request.NewBody(request.FileElement("/tmp/upload.json")))

		h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		l := h.dispatched()
		assert.Equal(t, "/tmp/upload.json", l.uploadFile)
		assert.Equal(t, "application/json", l.uploadContentType)
		assert.Nil(t, l.uploadData)
		h.do(func() {
			assert.False(t, h.runner.BlockingAllowed())
		})
	})
	t.Run("inferred type without parameters", func(t *testing.T) {
		h := newHarness(t)
		h.resolveWith(h.getter, transport.RoutingNone)
		d := newDescriptor(t, "POST", "https://example.test/upload", request.FlagNone)
		d.SetBody(request.NewBody(request.FileElement("/tmp/style.css")))

		h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		l := h.dispatched()
		assert.Equal(t, "text/css", l.uploadContentType)
	})
	t.Run("explicit type", func(t *testing.T) {
		h := newHarness(t)
		h.resolveWith(h.getter, transport.RoutingNone)
		d := newDescriptor(t, "GET", "https://example.test/upload", request.FlagNone)
		d.SetBody(request.NewBody(request.FileElement("/tmp/upload.json")))
		require.NoError(t, d.SetHeaderValue("Content-Type", "text/csv", true))

		h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		l := h.dispatched()
		assert.Equal(t, "POST", l.req.Method)
		assert.Equal(t, "text/csv", l.uploadContentType)
	})
}

func testURLRequestUnsupportedBody(t *testing.T) {
	testCases := []struct {
		name string
		body *request.Body
		log  string
	}{
		{
			name: "multi-part",
			body: request.NewBody(request.BytesElement([]byte("a")), request.FileElement("/tmp/b")),
			log:  "multi-part upload body not implemented",
		},
		{
			name: "empty element",
			body: request.NewBody(request.Element{}),
			log:  "upload element type not implemented",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			h := newHarness(t)
			h.resolveWith(h.getter, transport.RoutingNone)
			d := newDescriptor(t, "GET", "https://example.test/upload", request.FlagNone)
			d.SetBody(testCase.body)

			r := h.start(func() *URLRequest {
				return h.manager.NewRequest(nil, d, h.client, "default")
			})
			l := h.dispatched()
			assert.Equal(t, "POST", l.req.Method)
			assert.Nil(t, l.uploadData)
			assert.Empty(t, l.uploadFile)
			assert.Equal(t, 1, h.logs.FilterMessage(testCase.log).Len())

			h.do(func() {
				l.consumer.OnComplete(true)
				assert.Equal(t, StatusSuccess, r.Status())
			})
		})
	}
}

func testURLRequestUploadProgress(t *testing.T) {
	body := []byte("0123456789")
	newUpload := func(t *testing.T) (*harness, *URLRequest, *fakeLoader) {
		h := newHarness(t)
		h.resolveWith(h.getter, transport.RoutingNone)
		d := newDescriptor(t, "POST", "https://example.test/upload", request.FlagReportUploadProgress)
		d.SetBody(request.NewBody(request.BytesElement(body)))
		r := h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		return h, r, h.dispatched()
	}
	head := &transport.ResponseHead{StatusCode: 200, Header: http.Header{}, ContentLength: 2}

	t.Run("synthesized on completion", func(t *testing.T) {
		h, _, l := newUpload(t)
		h.do(func() {
			l.consumer.OnComplete(true)
		})
		assert.Equal(t, []clientCall{
			{name: "upload", current: 10, total: 10},
			{name: "complete"},
		}, h.client.recorded())
	})
	t.Run("synthesized on download progress", func(t *testing.T) {
		h, _, l := newUpload(t)
		h.do(func() {
			l.onUploadProgress(4, 10)
			l.onResponseStarted("https://example.test/upload", head)
			l.onDownloadProgress(1)
			l.onDownloadProgress(2)
			l.consumer.OnComplete(true)
		})
		assert.Equal(t, []clientCall{
			{name: "upload", current: 4, total: 10},
			{name: "upload", current: 10, total: 10},
			{name: "download", current: 1, total: 2},
			{name: "download", current: 2, total: 2},
			{name: "complete"},
		}, h.client.recorded())
	})
	t.Run("reported by loader", func(t *testing.T) {
		h, _, l := newUpload(t)
		h.do(func() {
			l.onUploadProgress(10, 10)
			l.consumer.OnComplete(true)
		})
		assert.Equal(t, []clientCall{
			{name: "upload", current: 10, total: 10},
			{name: "complete"},
		}, h.client.recorded())
	})
	t.Run("not synthesized on failure", func(t *testing.T) {
		h, r, l := newUpload(t)
		l.netError = neterror.ErrConnectionReset
		h.do(func() {
			l.consumer.OnComplete(false)
			assert.Equal(t, StatusFailed, r.Status())
		})
		assert.Equal(t, []string{"complete"}, h.client.names())
	})
	t.Run("not requested", func(t *testing.T) {
		h := newHarness(t)
		h.resolveWith(h.getter, transport.RoutingNone)
		d := newDescriptor(t, "POST", "https://example.test/upload", request.FlagNone)
		d.SetBody(request.NewBody(request.BytesElement(body)))
		h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		l := h.dispatched()
		h.do(func() {
			l.consumer.OnComplete(true)
		})
		assert.Equal(t, []string{"complete"}, h.client.names())
	})
}

func testURLRequestStopOnRedirect(t *testing.T) {
	var events []Event
	handlers := &HandlerGroup{}
	handlers.PushBack(RequestRedirected, HandlerFunc(func(evt Event, r *URLRequest) {
		events = append(events, evt)
		assert.Equal(t, "https://example.test/other", r.Response().URL())
		assert.Equal(t, StatusPending, r.Status())
	}))
	h := newHarness(t, WithHandlers(handlers))
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagStopOnRedirect)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()
	require.NotNil(t, l.onRedirect)

	var id int32
	h.do(func() {
		id = r.ID()
		l.onRedirect(transport.RedirectInfo{
			StatusCode: 302,
			NewURL:     "https://example.test/other",
			NewMethod:  "GET",
		}, &transport.ResponseHead{
			StatusCode: 302,
			Header:     http.Header{"Location": {"https://example.test/other"}},
		})
		assert.Equal(t, StatusCanceled, r.Status())
		assert.Equal(t, neterror.ErrAborted, r.Error())
		assert.Equal(t, "https://example.test/other", r.Response().URL())
		assert.Equal(t, 302, r.Response().Status())
		assert.Equal(t, "https://example.test/other", r.Response().HeaderValue("Location"))
		assert.Equal(t, 1, l.closeCount())
	})

	assert.Equal(t, []Event{RequestRedirected}, events)
	assert.Equal(t, []string{"complete"}, h.client.names())
	_, ok := h.manager.LookupByID(id)
	assert.False(t, ok)
}

func testURLRequestRetry(t *testing.T) {
	retries := 0
	handlers := &HandlerGroup{}
	handlers.PushBack(RequestRetried, HandlerFunc(func(_ Event, _ *URLRequest) {
		retries++
	}))
	h := newHarness(t, WithHandlers(handlers))
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()

	h.do(func() {
		started := false
		l.consumer.OnRetry(func() { started = true })
		assert.True(t, started)
		assert.Equal(t, 1, retries)
		assert.Equal(t, StatusPending, r.Status())
	})
	assert.Empty(t, h.client.recorded())
}

func testURLRequestCancel(t *testing.T) {
	t.Run("in flight", func(t *testing.T) {
		h := newHarness(t)
		h.resolveWith(h.getter, transport.RoutingNone)
		d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)
		r := h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		l := h.dispatched()

		var id int32
		h.do(func() {
			id = r.ID()
			r.Cancel()
			assert.Equal(t, StatusCanceled, r.Status())
			assert.Equal(t, neterror.ErrAborted, r.Error())
			assert.Equal(t, 1, l.closeCount())
			r.Cancel()
			// A completion racing the cancellation is ignored.
			l.consumer.OnComplete(true)
			assert.Equal(t, StatusCanceled, r.Status())
		})
		h.do(func() {})
		assert.Equal(t, []string{"complete"}, h.client.names())
		assert.Equal(t, 1, l.closeCount())
		_, ok := h.manager.LookupByID(id)
		assert.False(t, ok)
	})
	t.Run("before dispatch", func(t *testing.T) {
		h := newHarness(t)
		h.provider.On("Resolve", mock.Anything, mock.Anything).Return(h.getter, transport.RoutingNone).Maybe()
		d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)
		var r *URLRequest
		h.do(func() {
			r = h.manager.NewRequest(nil, d, h.client, "default")
			assert.True(t, r.Start())
			r.Cancel()
			assert.Equal(t, StatusCanceled, r.Status())
		})
		h.settle()
		h.do(func() {
			assert.Equal(t, StatusCanceled, r.Status())
			assert.Zero(t, r.ID())
		})
		assert.Empty(t, h.loaders)
		assert.Equal(t, []string{"complete"}, h.client.names())
		assert.Zero(t, h.manager.registry.Len())
	})
	t.Run("before start", func(t *testing.T) {
		h := newHarness(t)
		d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)
		h.do(func() {
			r := h.manager.NewRequest(nil, d, h.client, "default")
			r.Cancel()
			assert.Equal(t, StatusCanceled, r.Status())
			assert.False(t, r.Start())
		})
		h.settle()
		assert.Equal(t, []string{"complete"}, h.client.names())
		h.provider.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	})
}

func testURLRequestCancelFromClient(t *testing.T) {
	const notPending = "urlrequest: request not pending"
	head := &transport.ResponseHead{StatusCode: 200, Header: http.Header{}, ContentLength: 2}
	newRequest := func(t *testing.T, cancelOn string, flags request.Flags, body []byte) (*harness, *URLRequest, *fakeLoader) {
		h := newHarness(t)
		h.client.cancelOn = cancelOn
		h.resolveWith(h.getter, transport.RoutingNone)
		method := "GET"
		if body != nil {
			method = "POST"
		}
		d := newDescriptor(t, method, "https://example.test/resource", flags)
		if body != nil {
			d.SetBody(request.NewBody(request.BytesElement(body)))
		}
		r := h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		return h, r, h.dispatched()
	}

	t.Run("on complete", func(t *testing.T) {
		h, r, l := newRequest(t, "complete", request.FlagNone, nil)
		h.do(func() {
			l.onResponseStarted("https://example.test/resource", head)
			l.consumer.OnComplete(true)
			assert.Equal(t, StatusSuccess, r.Status())
			assert.Equal(t, neterror.OK, r.Error())
		})
		h.do(func() {})
		assert.Equal(t, []string{"complete"}, h.client.names())
		assert.Equal(t, 1, h.logs.FilterMessage(notPending).Len())
		assert.Equal(t, 1, l.closeCount())
	})
	t.Run("on failure", func(t *testing.T) {
		h, r, l := newRequest(t, "complete", request.FlagNone, nil)
		l.netError = neterror.ErrConnectionReset
		h.do(func() {
			l.consumer.OnComplete(false)
			assert.Equal(t, StatusFailed, r.Status())
			assert.Equal(t, neterror.ErrConnectionReset, r.Error())
		})
		assert.Equal(t, []string{"complete"}, h.client.names())
	})
	t.Run("on upload progress", func(t *testing.T) {
		h, r, l := newRequest(t, "upload", request.FlagReportUploadProgress, []byte("0123456789"))
		h.do(func() {
			l.onUploadProgress(4, 10)
			assert.Equal(t, StatusCanceled, r.Status())
			l.onUploadProgress(10, 10)
			l.consumer.OnComplete(true)
		})
		assert.Equal(t, []clientCall{
			{name: "upload", current: 4, total: 10},
			{name: "complete"},
		}, h.client.recorded())
		assert.Zero(t, h.logs.FilterMessage(notPending).Len())
		assert.Equal(t, 1, l.closeCount())
	})
	t.Run("on synthesized upload progress", func(t *testing.T) {
		h, r, l := newRequest(t, "upload", request.FlagReportUploadProgress, []byte("0123456789"))
		h.do(func() {
			l.onResponseStarted("https://example.test/resource", head)
			l.onDownloadProgress(1)
			assert.Equal(t, StatusCanceled, r.Status())
			assert.Equal(t, neterror.ErrAborted, r.Error())
			l.onDownloadProgress(2)
			l.consumer.OnComplete(true)
			assert.Equal(t, StatusCanceled, r.Status())
		})
		assert.Equal(t, []clientCall{
			{name: "upload", current: 10, total: 10},
			{name: "complete"},
		}, h.client.recorded())
		assert.Zero(t, h.logs.FilterMessage(notPending).Len())
	})
	t.Run("on synthesized upload progress at completion", func(t *testing.T) {
		h, r, l := newRequest(t, "upload", request.FlagReportUploadProgress, []byte("0123456789"))
		h.do(func() {
			l.consumer.OnComplete(true)
			assert.Equal(t, StatusSuccess, r.Status())
		})
		assert.Equal(t, []clientCall{
			{name: "upload", current: 10, total: 10},
			{name: "complete"},
		}, h.client.recorded())
		assert.Equal(t, 1, h.logs.FilterMessage(notPending).Len())
	})
	t.Run("on download progress", func(t *testing.T) {
		h, r, l := newRequest(t, "download", request.FlagNone, nil)
		h.do(func() {
			l.onResponseStarted("https://example.test/resource", head)
			l.onDownloadProgress(1)
			assert.Equal(t, StatusCanceled, r.Status())
			resumed := false
			l.consumer.OnDataReceived([]byte("x"), func() { resumed = true })
			assert.False(t, resumed)
		})
		assert.Equal(t, []clientCall{
			{name: "download", current: 1, total: 2},
			{name: "complete"},
		}, h.client.recorded())
		assert.Equal(t, 1, l.closeCount())
	})
	t.Run("on download data", func(t *testing.T) {
		h, r, l := newRequest(t, "data", request.FlagNone, nil)
		h.do(func() {
			l.onResponseStarted("https://example.test/resource", head)
			resumed := false
			l.consumer.OnDataReceived([]byte("ab"), func() { resumed = true })
			assert.False(t, resumed)
			assert.Equal(t, StatusCanceled, r.Status())
			l.consumer.OnComplete(true)
		})
		assert.Equal(t, []clientCall{
			{name: "data", data: "ab"},
			{name: "complete"},
		}, h.client.recorded())
		assert.Equal(t, 1, l.closeCount())
	})
	t.Run("on headers only download progress", func(t *testing.T) {
		h, r, l := newRequest(t, "download", request.FlagNoDownloadData, nil)
		h.do(func() {
			l.headersOnly(head)
			assert.Equal(t, StatusCanceled, r.Status())
		})
		assert.Equal(t, []clientCall{
			{name: "download", current: 0, total: 2},
			{name: "complete"},
		}, h.client.recorded())
		assert.Zero(t, h.logs.FilterMessage(notPending).Len())
		assert.Equal(t, 1, l.closeCount())
	})
}

func testURLRequestAfterTeardown(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagReportUploadProgress|request.FlagStopOnRedirect)
	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()
	head := &transport.ResponseHead{StatusCode: 200, Header: http.Header{}, ContentLength: 2}

	l.finalURL = "https://example.test/resource"
	h.do(func() {
		l.onResponseStarted("https://example.test/resource", head)
		l.consumer.OnComplete(true)
	})
	// Loader callbacks already queued behind the deferred Close.
	h.do(func() {
		l.onUploadProgress(1, 2)
		l.onDownloadProgress(1)
		l.onResponseStarted("https://example.test/other", head)
		l.onRedirect(transport.RedirectInfo{StatusCode: 302, NewURL: "https://example.test/other"}, head)
		resumed, retried := false, false
		l.consumer.OnDataReceived([]byte("x"), func() { resumed = true })
		l.consumer.OnRetry(func() { retried = true })
		assert.False(t, resumed)
		assert.False(t, retried)
		assert.Equal(t, StatusSuccess, r.Status())
		assert.Equal(t, "https://example.test/resource", r.Response().URL())
	})
	assert.Equal(t, []string{"complete"}, h.client.names())
	assert.Zero(t, h.logs.FilterMessage("urlrequest: request not pending").Len())
}

func testURLRequestResolutionFailure(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(nil, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)

	r := h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "missing")
	})
	h.settle()
	h.do(func() {
		assert.Equal(t, StatusCanceled, r.Status())
		assert.Equal(t, neterror.ErrAborted, r.Error())
	})
	assert.Empty(t, h.loaders)
	assert.Equal(t, []string{"complete"}, h.client.names())
	h.provider.AssertCalled(t, "Resolve", mock.Anything, "missing")
}

func testURLRequestFrame(t *testing.T) {
	h := newHarness(t)
	frame := browsercontext.NewFrame("profile-1", 17)
	h.provider.On("Resolve", frame, "").Return(h.getter, 17).Once()
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)

	h.start(func() *URLRequest {
		return h.manager.NewRequest(frame, d, h.client, "")
	})
	l := h.dispatched()
	assert.Equal(t, 17, l.req.RenderFrameID)
	h.provider.AssertExpectations(t)
}

func testURLRequestInvalidURL(t *testing.T) {
	h := newHarness(t)
	d := newDescriptor(t, "GET", "not a url", request.FlagNone)

	var r *URLRequest
	h.do(func() {
		r = h.manager.NewRequest(nil, d, h.client, "default")
		assert.False(t, r.Start())
		assert.Equal(t, StatusPending, r.Status())
	})
	h.settle()
	h.do(func() {
		assert.Equal(t, StatusPending, r.Status())
	})
	assert.Empty(t, h.client.recorded())
	h.provider.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func testURLRequestInvalidSequence(t *testing.T) {
	h := newHarness(t)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)

	var r *URLRequest
	h.do(func() {
		r = h.manager.NewRequest(nil, d, h.client, "default")
	})

	assert.Equal(t, StatusUnknown, r.Status())
	assert.Equal(t, neterror.OK, r.Error())
	assert.Nil(t, r.Request())
	assert.Nil(t, r.Client())
	assert.Nil(t, r.Response())
	assert.False(t, r.ResponseWasCached())
	assert.Zero(t, r.ID())
	assert.False(t, r.Start())
	r.Cancel()
	assert.Equal(t, 9, h.logs.FilterMessage("urlrequest: called on invalid sequence").Len())

	h.do(func() {
		assert.Equal(t, StatusPending, r.Status())
		assert.Same(t, d, r.Request())
	})
	assert.Empty(t, h.client.recorded())
}

func testURLRequestStartTwice(t *testing.T) {
	h := newHarness(t)
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)

	h.do(func() {
		r := h.manager.NewRequest(nil, d, h.client, "default")
		assert.True(t, r.Start())
		assert.False(t, r.Start())
	})
	h.dispatched()
	assert.Empty(t, h.loaders)
	assert.Equal(t, 1, h.logs.FilterMessage("urlrequest: request already started").Len())
}

func testURLRequestEvents(t *testing.T) {
	var events []Event
	handlers := &HandlerGroup{}
	for _, evt := range Events() {
		handlers.PushBack(evt, HandlerFunc(func(evt Event, r *URLRequest) {
			events = append(events, evt)
		}))
	}
	handlers.PushBack(RequestDispatched, HandlerFunc(func(_ Event, r *URLRequest) {
		assert.Less(t, r.ID(), int32(-2))
		assert.Equal(t, "POST", r.Request().Method())
	}))
	handlers.PushBack(RequestCompleted, HandlerFunc(func(_ Event, r *URLRequest) {
		assert.Equal(t, StatusSuccess, r.Status())
	}))
	h := newHarness(t, WithHandlers(handlers))
	h.resolveWith(h.getter, transport.RoutingNone)
	d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)
	d.SetBody(request.NewBody(request.BytesElement([]byte("x"))))

	h.start(func() *URLRequest {
		return h.manager.NewRequest(nil, d, h.client, "default")
	})
	l := h.dispatched()
	h.do(func() {
		l.onResponseStarted("https://example.test/resource", &transport.ResponseHead{StatusCode: 200, Header: http.Header{}})
		l.consumer.OnComplete(true)
	})
	assert.Equal(t, []Event{RequestStarted, RequestDispatched, ResponseStarted, RequestCompleted}, events)

	t.Run("cancel from handler", func(t *testing.T) {
		handlers := &HandlerGroup{}
		handlers.PushBack(RequestDispatched, HandlerFunc(func(_ Event, r *URLRequest) {
			r.Cancel()
		}))
		h := newHarness(t, WithHandlers(handlers))
		h.resolveWith(h.getter, transport.RoutingNone)
		d := newDescriptor(t, "GET", "https://example.test/resource", request.FlagNone)
		r := h.start(func() *URLRequest {
			return h.manager.NewRequest(nil, d, h.client, "default")
		})
		h.settle()
		var l *fakeLoader
		select {
		case l = <-h.loaders:
		default:
			require.FailNow(t, "no loader created")
		}
		h.do(func() {
			assert.Equal(t, StatusCanceled, r.Status())
		})
		assert.Nil(t, l.consumer)
		assert.Nil(t, l.headersOnly)
		assert.Equal(t, 1, l.closeCount())
		assert.Equal(t, []string{"complete"}, h.client.names())
	})
}

func newDescriptor(t *testing.T, method, url string, flags request.Flags) *request.Descriptor {
	d, err := request.New(method, url)
	require.NoError(t, err)
	d.SetFlags(flags)
	return d
}
