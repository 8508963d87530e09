// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

import (
	"context"
	"net/http"
	"runtime"

	"github.com/gogama/urlrequest/browsercontext"
	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/retry"
	"github.com/gogama/urlrequest/sequence"
	"github.com/gogama/urlrequest/transport"
	"go.uber.org/zap"
)

const formURLEncoded = "application/x-www-form-urlencoded"

// requestContext is the state machine behind a URLRequest. Apart from
// the resolution step on the Manager's coordinating sequence, every
// method runs on the originating sequence.
type requestContext struct {
	manager *Manager
	runner  *sequence.Runner
	logger  *zap.Logger

	// owner is nil once the context is torn down.
	owner  *URLRequest
	client Client

	frame     browsercontext.Frame
	contextID string

	req      *request.Descriptor
	response *request.Response
	status   Status
	started  bool

	// alive is cancelled on teardown. Work posted to other sequences
	// checks it before acting.
	alive       context.Context
	cancelAlive context.CancelFunc

	getter    transport.FactoryGetter
	loader    transport.Loader
	requestID int32

	cleanupImmediately        bool
	uploadDataSize            int64
	gotUploadProgressComplete bool
	downloadDataSize          int64
}

func newRequestContext(m *Manager, owner *URLRequest, runner *sequence.Runner, frame browsercontext.Frame, d *request.Descriptor, client Client, contextID string) *requestContext {
	d.SetReadOnly(true)
	response := request.NewResponse()
	response.SetReadOnly(true)
	alive, cancel := context.WithCancel(context.Background())
	return &requestContext{
		manager:          m,
		runner:           runner,
		logger:           m.logger,
		owner:            owner,
		client:           client,
		frame:            frame,
		contextID:        contextID,
		req:              d,
		response:         response,
		status:           StatusPending,
		alive:            alive,
		cancelAlive:      cancel,
		downloadDataSize: -1,
	}
}

func (c *requestContext) start() bool {
	if c.owner == nil {
		return false
	}
	if c.started {
		c.logger.DPanic("urlrequest: request already started", zap.Int32("request_id", c.requestID))
		return false
	}
	if !request.ValidURL(c.req.URL()) {
		c.logger.Debug("invalid request URL", zap.String("url", c.req.URL()))
		return false
	}
	c.started = true
	c.logger.Debug("request started",
		zap.String("url", c.req.URL()),
		zap.String("method", c.req.Method()),
		zap.Stringer("flags", c.req.Flags()))
	c.fire(RequestStarted)
	if c.owner == nil {
		return true
	}

	m := c.manager
	alive, frame, contextID := c.alive, c.frame, c.contextID
	if !m.runner.PostTask(func() { m.resolve(alive, c, frame, contextID) }) {
		c.runner.PostTask(func() {
			c.continueOnOriginatingSequence(nil, transport.RoutingNone, 0)
		})
	}
	return true
}

// resolve runs on the coordinating sequence. It must not touch any
// field of c besides its runner.
func (m *Manager) resolve(alive context.Context, c *requestContext, frame browsercontext.Frame, contextID string) {
	if alive.Err() != nil {
		return
	}
	getter, routingID := m.provider.Resolve(frame, contextID)
	id := m.ids.Next()
	if !c.runner.PostTask(func() {
		c.continueOnOriginatingSequence(getter, routingID, id)
	}) {
		m.logger.Debug("originating sequence stopped", zap.Int32("request_id", id))
	}
}

func (c *requestContext) continueOnOriginatingSequence(getter transport.FactoryGetter, routingID int, id int32) {
	// The request may have been canceled.
	if c.owner == nil {
		return
	}
	if getter == nil {
		c.cancel()
		return
	}
	c.checkPending("continue")

	c.getter = getter
	flags := c.req.Flags()

	treq, err := transport.NewRequest(c.req)
	if err != nil {
		c.logger.DPanic("urlrequest: invalid request after start", zap.Error(err))
		c.cancel()
		return
	}
	treq.RenderFrameID = routingID
	treq.CookieJar = getter.CookieJar()

	body := c.req.Body()
	method := treq.Method
	var contentType string
	if body != nil {
		if method == http.MethodGet || method == http.MethodHead {
			method = http.MethodPost
			treq.Method = method
			c.req.SetReadOnly(false)
			_ = c.req.SetMethod(method)
			c.req.SetReadOnly(true)
		}
		contentType = c.req.HeaderValue("Content-Type")
	}

	loader := c.manager.newLoader(treq, c.runner)
	c.loader = loader
	c.requestID = id
	loader.SetRequestID(id)
	c.manager.registry.Add(id, Entry{Request: c.owner, Client: c.client})

	if body != nil {
		c.attachBody(loader, body, contentType, flags)
	}

	loader.SetAllowHTTPErrorResults(true)
	if !flags.Has(request.FlagNoRetryOn5xx) {
		loader.SetRetryOptions(retry.DefaultTimes, transport.RetryOn5xx|transport.RetryOnNetworkChange)
	}
	if flags.Has(request.FlagStopOnRedirect) {
		loader.SetOnRedirect(c.onRedirect)
	}
	if flags.Has(request.FlagReportUploadProgress) {
		loader.SetOnUploadProgress(c.onUploadProgress)
	}

	c.logger.Debug("request dispatched",
		zap.Int32("request_id", id),
		zap.Int("routing_id", routingID),
		zap.String("url", treq.URL.String()),
		zap.String("method", method))
	c.fire(RequestDispatched)
	if c.owner == nil {
		return
	}

	if flags.Has(request.FlagNoDownloadData) || method == http.MethodHead {
		loader.DownloadHeadersOnly(getter.Factory(), c.onHeadersOnly)
	} else {
		loader.SetOnResponseStarted(c.onResponseStarted)
		loader.SetOnDownloadProgress(c.onDownloadProgress)
		loader.DownloadAsStream(getter.Factory(), c)
	}
}

func (c *requestContext) attachBody(loader transport.Loader, body *request.Body, contentType string, flags request.Flags) {
	switch body.Len() {
	case 0:
		return
	case 1:
	default:
		c.logger.Warn("multi-part upload body not implemented",
			zap.Int32("request_id", c.requestID),
			zap.Int("elements", body.Len()))
		return
	}

	e := body.Elements()[0]
	switch e.Type() {
	case request.ElementFile:
		if contentType == "" {
			restore := c.runner.AllowBlocking()
			contentType = transport.ContentTypeForFile(c.runner, e.File())
			restore()
		}
		loader.AttachFileForUpload(e.File(), contentType)
	case request.ElementBytes:
		if contentType == "" {
			contentType = formURLEncoded
		}
		loader.AttachStringForUpload(e.Bytes(), contentType)
		if flags.Has(request.FlagReportUploadProgress) {
			c.uploadDataSize = int64(len(e.Bytes()))
		}
	default:
		c.logger.Warn("upload element type not implemented",
			zap.Int32("request_id", c.requestID),
			zap.Stringer("type", e.Type()))
	}
}

func (c *requestContext) onHeadersOnly(head *transport.ResponseHead) {
	if c.owner == nil {
		return
	}
	c.checkPending("headers")
	if head == nil {
		c.cleanupImmediately = true
		c.OnComplete(false)
		return
	}

	c.updateResponse(func(r *request.Response) {
		setHead(r, head)
	})
	c.fire(ResponseStarted)
	if c.owner == nil {
		return
	}

	if c.req.Method() != http.MethodHead {
		c.downloadDataSize = head.ContentLength
		c.onDownloadProgress(0)
		if c.owner == nil {
			return
		}
	}

	c.cleanupImmediately = true
	c.OnComplete(true)
}

func (c *requestContext) onRedirect(info transport.RedirectInfo, head *transport.ResponseHead) {
	if c.owner == nil {
		return
	}
	c.checkPending("redirect")
	c.updateResponse(func(r *request.Response) {
		r.SetURL(info.NewURL)
		setHead(r, head)
	})
	c.logger.Debug("stopped on redirect",
		zap.Int32("request_id", c.requestID),
		zap.Int("status", info.StatusCode),
		zap.String("url", info.NewURL))
	c.fire(RequestRedirected)
	if c.owner == nil {
		return
	}
	c.cancel()
}

func (c *requestContext) onResponseStarted(finalURL string, head *transport.ResponseHead) {
	if c.owner == nil {
		return
	}
	c.checkPending("response")
	c.updateResponse(func(r *request.Response) {
		r.SetURL(finalURL)
		setHead(r, head)
	})
	c.downloadDataSize = head.ContentLength
	c.fire(ResponseStarted)
}

func (c *requestContext) onUploadProgress(current, total int64) {
	if c.owner == nil {
		return
	}
	c.checkPending("upload progress")
	c.uploadDataSize = total
	if current == total {
		c.gotUploadProgressComplete = true
	}
	c.client.OnUploadProgress(c.owner, current, total)
}

func (c *requestContext) onDownloadProgress(current int64) {
	if c.owner == nil {
		return
	}
	c.checkPending("download progress")
	// Failed loads may report progress without headers.
	if c.response.Status() == 0 {
		return
	}
	c.notifyUploadProgressIfNecessary()
	// The client may have canceled from the upload callback.
	if c.owner == nil {
		return
	}
	c.client.OnDownloadProgress(c.owner, current, c.downloadDataSize)
}

// notifyUploadProgressIfNecessary reports the end of the upload if the
// Loader finished it between two progress reports.
func (c *requestContext) notifyUploadProgressIfNecessary() {
	if !c.gotUploadProgressComplete && c.uploadDataSize > 0 {
		c.client.OnUploadProgress(c.owner, c.uploadDataSize, c.uploadDataSize)
		c.gotUploadProgressComplete = true
	}
}

// OnDataReceived implements transport.StreamConsumer.
func (c *requestContext) OnDataReceived(data []byte, resume func()) {
	if c.owner == nil {
		return
	}
	c.checkPending("data")
	c.client.OnDownloadData(c.owner, data)
	if c.owner == nil {
		return
	}
	resume()
}

// OnRetry implements transport.StreamConsumer.
func (c *requestContext) OnRetry(start func()) {
	if c.owner == nil {
		return
	}
	c.checkPending("retry")
	c.logger.Debug("request retried", zap.Int32("request_id", c.requestID))
	c.fire(RequestRetried)
	if c.owner == nil {
		return
	}
	start()
}

// OnComplete implements transport.StreamConsumer.
func (c *requestContext) OnComplete(success bool) {
	// The request may already be torn down.
	if c.owner == nil {
		return
	}

	if c.status == StatusPending {
		if success {
			c.status = StatusSuccess
		} else {
			c.status = StatusFailed
		}
		if c.loader != nil {
			c.updateResponse(func(r *request.Response) {
				r.SetURL(c.loader.FinalURL())
				r.SetError(c.loader.NetError())
				r.SetWasCached(c.loader.LoadedFromCache())
			})
		}
	}

	if success {
		c.notifyUploadProgressIfNecessary()
	}

	c.logger.Debug("request complete",
		zap.Int32("request_id", c.requestID),
		zap.String("url", c.response.URL()),
		zap.Stringer("status", c.status),
		zap.Stringer("net_error", c.response.Error()))
	c.fire(RequestCompleted)
	c.client.OnRequestComplete(c.owner)
	c.cleanup()
}

func (c *requestContext) cancel() {
	// The request may already be torn down.
	if c.owner == nil {
		return
	}
	c.checkPending("cancel")
	// Status leaves PENDING once. A cancel from a completion callback
	// is ignored.
	if c.status != StatusPending {
		return
	}

	c.status = StatusCanceled
	c.updateResponse(func(r *request.Response) {
		r.SetError(neterror.ErrAborted)
	})

	c.cleanupImmediately = true
	c.OnComplete(false)
}

func (c *requestContext) cleanup() {
	c.manager.registry.Remove(c.requestID)
	c.client = nil
	c.cancelAlive()

	if loader := c.loader; loader != nil {
		c.loader = nil
		if c.cleanupImmediately {
			loader.Close()
		} else {
			// The Loader is still running the callback that got us here.
			if !c.runner.PostTask(loader.Close) {
				loader.Close()
			}
		}
	}
	c.getter = nil

	owner := c.owner
	defer runtime.KeepAlive(owner)
	c.owner = nil
}

func (c *requestContext) updateResponse(f func(r *request.Response)) {
	c.response.SetReadOnly(false)
	f(c.response)
	c.response.SetReadOnly(true)
}

func (c *requestContext) checkPending(op string) {
	if c.status != StatusPending {
		c.logger.DPanic("urlrequest: request not pending",
			zap.String("op", op),
			zap.Int32("request_id", c.requestID),
			zap.Stringer("status", c.status))
	}
}

func (c *requestContext) fire(evt Event) {
	c.manager.handlers.run(evt, c.owner)
}

func setHead(r *request.Response, head *transport.ResponseHead) {
	r.SetResponseHeaders(head.StatusCode, head.StatusText(), head.Header)
}
