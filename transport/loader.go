// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/retry"
	"github.com/gogama/urlrequest/sequence"
	"github.com/gogama/urlrequest/timeout"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRedirects is the number of redirects a Loader follows
	// before failing with neterror.ErrTooManyRedirects.
	DefaultMaxRedirects = 20

	// DefaultProgressInterval is the minimum interval between two
	// upload or download progress notifications.
	DefaultProgressInterval = 100 * time.Millisecond

	chunkSize = 32 << 10
)

// Options configure the default Loader. The zero value is a valid
// configuration.
type Options struct {
	// Logger receives debug logs of each attempt, redirect and retry.
	// If nil, nothing is logged.
	Logger *zap.Logger

	// TimeoutPolicy sets the header timeout of each attempt. If nil,
	// timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy

	// Waiter decides how long to wait before a retry. If nil,
	// retry.DefaultWaiter is used.
	Waiter retry.Waiter

	// MaxRedirects is the maximum number of redirects followed. If
	// zero, DefaultMaxRedirects is used.
	MaxRedirects int

	// ProgressInterval is the minimum interval between progress
	// notifications. If zero, DefaultProgressInterval is used.
	ProgressInterval time.Duration

	// UserAgent is sent on requests that don't set one.
	UserAgent string

	// OnAuthRequired is called when a server or proxy asks for Basic
	// credentials. It is called from the Loader's own goroutine and
	// identifies the load only by request identifier and routing
	// identifier. The Loader waits until respond is called, or until it
	// is closed. If OnAuthRequired is nil, challenges are delivered as
	// ordinary responses.
	OnAuthRequired func(requestID int32, routingID int, c AuthChallenge, respond AuthResponder)
}

type headerTimeoutError struct{}

func (headerTimeoutError) Error() string {
	return "urlrequest/transport: timeout awaiting response headers"
}

func (headerTimeoutError) Timeout() bool { return true }

var errHeaderTimeout error = headerTimeoutError{}

type loader struct {
	req    *Request
	runner *sequence.Runner
	opts   Options
	logger *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	closed  *atomic.Bool
	started bool

	requestID          int32
	maxRetries         int
	retryMode          RetryMode
	allowHTTPErrors    bool
	onRedirect         func(RedirectInfo, *ResponseHead)
	onUploadProgress   func(current, total int64)
	onDownloadProgress func(current int64)
	onResponseStarted  func(string, *ResponseHead)

	hasBody           bool
	uploadData        []byte
	uploadFile        string
	uploadContentType string
	uploadLimiter     *rate.Limiter

	mu        sync.Mutex
	finalURL  string
	netErr    neterror.Code
	fromCache bool
}

// NewLoader returns the default Loader, which sends req through the
// HTTPDoer passed to DownloadHeadersOnly or DownloadAsStream and posts
// every callback to runner.
//
// The Loader does its network I/O on its own goroutine. It follows
// redirects itself, retries according to SetRetryOptions, and paces
// body delivery by waiting for each chunk to be resumed.
func NewLoader(req *Request, runner *sequence.Runner, opts Options) Loader {
	if req == nil {
		panic("urlrequest/transport: nil request")
	}
	if runner == nil {
		panic("urlrequest/transport: nil runner")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TimeoutPolicy == nil {
		opts.TimeoutPolicy = timeout.DefaultPolicy
	}
	if opts.Waiter == nil {
		opts.Waiter = retry.DefaultWaiter
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &loader{
		req:      req,
		runner:   runner,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		closed:   atomic.NewBool(false),
		finalURL: req.URL.String(),
	}
}

// LoaderFuncWithOptions returns a LoaderFunc constructing default
// Loaders with the given options.
func LoaderFuncWithOptions(opts Options) LoaderFunc {
	return func(req *Request, runner *sequence.Runner) Loader {
		return NewLoader(req, runner, opts)
	}
}

func (l *loader) SetRequestID(id int32) {
	l.checkNotStarted()
	l.requestID = id
}

func (l *loader) SetRetryOptions(maxRetries int, mode RetryMode) {
	l.checkNotStarted()
	l.maxRetries = maxRetries
	l.retryMode = mode
}

func (l *loader) SetAllowHTTPErrorResults(allow bool) {
	l.checkNotStarted()
	l.allowHTTPErrors = allow
}

func (l *loader) SetOnRedirect(f func(RedirectInfo, *ResponseHead)) {
	l.checkNotStarted()
	l.onRedirect = f
}

func (l *loader) SetOnUploadProgress(f func(current, total int64)) {
	l.checkNotStarted()
	l.onUploadProgress = f
}

func (l *loader) SetOnDownloadProgress(f func(current int64)) {
	l.checkNotStarted()
	l.onDownloadProgress = f
}

func (l *loader) SetOnResponseStarted(f func(string, *ResponseHead)) {
	l.checkNotStarted()
	l.onResponseStarted = f
}

func (l *loader) AttachFileForUpload(path, contentType string) {
	l.checkNotStarted()
	l.hasBody = true
	l.uploadFile = path
	l.uploadData = nil
	l.uploadContentType = contentType
}

func (l *loader) AttachStringForUpload(data []byte, contentType string) {
	l.checkNotStarted()
	l.hasBody = true
	l.uploadData = append([]byte(nil), data...)
	l.uploadFile = ""
	l.uploadContentType = contentType
}

func (l *loader) DownloadHeadersOnly(f HTTPDoer, cb func(*ResponseHead)) {
	if cb == nil {
		panic("urlrequest/transport: nil headers callback")
	}
	l.start(f, nil, cb)
}

func (l *loader) DownloadAsStream(f HTTPDoer, c StreamConsumer) {
	if c == nil {
		panic("urlrequest/transport: nil stream consumer")
	}
	l.start(f, c, nil)
}

func (l *loader) FinalURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finalURL
}

func (l *loader) NetError() neterror.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.netErr
}

func (l *loader) LoadedFromCache() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fromCache
}

func (l *loader) Close() {
	if l.closed.Swap(true) {
		return
	}
	l.cancel()
}

func (l *loader) checkNotStarted() {
	if l.started {
		panic("urlrequest/transport: loader already started")
	}
}

func (l *loader) start(f HTTPDoer, c StreamConsumer, cb func(*ResponseHead)) {
	if f == nil {
		panic("urlrequest/transport: nil doer")
	}
	l.checkNotStarted()
	l.started = true
	if l.onUploadProgress != nil {
		l.uploadLimiter = l.newLimiter()
	}
	go l.run(f, c, cb)
}

// post runs f on the originating sequence unless the loader is closed
// by then. If the sequence no longer accepts tasks, the load is
// abandoned.
func (l *loader) post(f func()) {
	ok := l.runner.PostTask(func() {
		if l.closed.Load() {
			return
		}
		f()
	})
	if !ok {
		l.cancel()
	}
}

// postAndWait posts f and blocks until f calls done or the load is
// abandoned. It returns false if the load was abandoned.
func (l *loader) postAndWait(f func(done func())) bool {
	ch := make(chan struct{})
	var once sync.Once
	done := func() {
		once.Do(func() { close(ch) })
	}
	l.post(func() { f(done) })
	select {
	case <-ch:
		return l.ctx.Err() == nil
	case <-l.ctx.Done():
		return false
	}
}

func (l *loader) run(doer HTTPDoer, consumer StreamConsumer, onHeaders func(*ResponseHead)) {
	defer l.cancel()

	e := &request.Execution{ID: l.requestID, Start: time.Now()}
	policy := l.retryPolicy()
	logger := l.logger.With(zap.Int32("request_id", l.requestID))

	var resp *http.Response
	var release func()
	for {
		logger.Debug("attempt", zap.Int("attempt", e.Attempt), zap.String("url", l.req.URL.String()))
		resp, release = l.attempt(doer, e)
		if l.ctx.Err() != nil {
			discard(resp, release)
			return
		}
		if e.Timeout() {
			e.AttemptTimeouts++
		}
		if !policy.Decide(e) {
			break
		}
		discard(resp, release)
		wait := policy.Wait(e)
		logger.Debug("retrying",
			zap.Int("attempt", e.Attempt),
			zap.Int("status", e.StatusCode()),
			zap.Error(e.Err),
			zap.Duration("wait", wait))
		if consumer != nil {
			if !l.postAndWait(func(done func()) { consumer.OnRetry(done) }) {
				return
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-l.ctx.Done():
			timer.Stop()
			return
		}
		e.Attempt++
		e.Redirects = 0
		e.Response = nil
		e.Err = nil
		l.setFinalURL(l.req.URL.String())
	}

	if e.Err == nil {
		head := newResponseHead(resp)
		l.setFromCache(head.WasCached)
		if !l.allowHTTPErrors && (resp.StatusCode < 200 || resp.StatusCode > 299) {
			e.Err = urlErrorWrap(resp.Request.Method, resp.Request.URL, neterror.ErrHTTPResponseCode)
		} else if l.req.LoadFlags.Has(request.FlagOnlyFromCache) && !head.WasCached {
			e.Err = urlErrorWrap(resp.Request.Method, resp.Request.URL, neterror.ErrCacheMiss)
		}
	}
	e.End = time.Now()

	if e.Err != nil {
		discard(resp, release)
		code := e.NetError()
		l.setNetError(code)
		logger.Debug("load failed", zap.Stringer("net_error", code), zap.Error(e.Err))
		if onHeaders != nil {
			l.post(func() { onHeaders(nil) })
		} else {
			l.post(func() { consumer.OnComplete(false) })
		}
		return
	}

	head := newResponseHead(resp)
	logger.Debug("response started",
		zap.Int("status", head.StatusCode),
		zap.Bool("cached", head.WasCached),
		zap.Duration("duration", e.Duration()))
	if onHeaders != nil {
		discard(resp, release)
		l.post(func() { onHeaders(head) })
		return
	}
	if l.onResponseStarted != nil {
		finalURL := l.FinalURL()
		l.post(func() { l.onResponseStarted(finalURL, head) })
	}
	l.stream(resp, release, consumer)
}

// attempt makes one attempt, following redirects and answering one
// authentication challenge. It returns the final response, and a
// function releasing the attempt's context, or nil and nil if the
// attempt failed (e.Err is set) or the load was abandoned.
func (l *loader) attempt(doer HTTPDoer, e *request.Execution) (*http.Response, func()) {
	u := l.req.URL
	method := l.req.Method
	withBody := l.hasBody
	authTried := false
	var authHeader, authValue string

	for {
		ctx, cancel := context.WithCancelCause(l.ctx)
		timer := time.AfterFunc(l.opts.TimeoutPolicy.Timeout(e), func() {
			cancel(errHeaderTimeout)
		})
		hreq, err := l.newHTTPRequest(ctx, method, u, withBody)
		if err != nil {
			timer.Stop()
			cancel(nil)
			e.Err = urlErrorWrap(method, u, err)
			return nil, nil
		}
		if authHeader != "" {
			hreq.Header.Set(authHeader, authValue)
		}
		e.Request = hreq
		resp, err := doer.Do(hreq)
		timer.Stop()
		if err != nil {
			if context.Cause(ctx) == errHeaderTimeout {
				err = errHeaderTimeout
			}
			cancel(nil)
			e.Response = nil
			e.Err = urlErrorWrap(method, u, err)
			return nil, nil
		}
		release := func() { cancel(nil) }
		if resp.Request == nil {
			resp.Request = hreq
		}
		e.Response = resp
		e.Err = nil
		l.storeCookies(u, resp)

		if target, ok := redirectTarget(u, resp); ok {
			info := RedirectInfo{
				StatusCode: resp.StatusCode,
				NewURL:     target.String(),
				NewMethod:  redirectMethod(method, resp.StatusCode),
			}
			head := newResponseHead(resp)
			discard(resp, release)
			e.Response = nil
			if target.Scheme != "http" && target.Scheme != "https" {
				e.Err = urlErrorWrap(method, u, neterror.ErrUnsafeRedirect)
				return nil, nil
			}
			if e.Redirects >= l.opts.MaxRedirects {
				e.Err = urlErrorWrap(method, u, neterror.ErrTooManyRedirects)
				return nil, nil
			}
			if l.onRedirect != nil {
				if !l.postAndWait(func(done func()) {
					l.onRedirect(info, head)
					done()
				}) {
					return nil, nil
				}
			}
			l.logger.Debug("redirect",
				zap.Int32("request_id", l.requestID),
				zap.Int("status", info.StatusCode),
				zap.String("url", info.NewURL))
			e.Redirects++
			if info.NewMethod != method {
				withBody = false
			}
			method, u = info.NewMethod, target
			l.setFinalURL(u.String())
			authTried, authHeader, authValue = false, "", ""
			continue
		}

		if !authTried && l.opts.OnAuthRequired != nil {
			if c, ok := ParseChallenge(resp); ok {
				authTried = true
				user, pass, ok := l.askCredentials(c)
				if l.ctx.Err() != nil {
					discard(resp, release)
					return nil, nil
				}
				if ok {
					discard(resp, release)
					authHeader = authorizationHeader(c)
					authValue = "Basic " + request.BasicAuth(user, pass)
					continue
				}
			}
		}

		return resp, release
	}
}

func (l *loader) askCredentials(c AuthChallenge) (username, password string, ok bool) {
	type answer struct {
		username, password string
		ok                 bool
	}
	ch := make(chan answer, 1)
	var once sync.Once
	l.opts.OnAuthRequired(l.requestID, l.req.RenderFrameID, c, func(u, p string, ok bool) {
		once.Do(func() { ch <- answer{u, p, ok} })
	})
	select {
	case a := <-ch:
		return a.username, a.password, a.ok
	case <-l.ctx.Done():
		return "", "", false
	}
}

func (l *loader) stream(resp *http.Response, release func(), c StreamConsumer) {
	defer discard(resp, release)

	var limiter *rate.Limiter
	if l.onDownloadProgress != nil {
		limiter = l.newLimiter()
	}
	var current int64
	buf := make([]byte, chunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			current += int64(n)
			data := make([]byte, n)
			copy(data, buf[:n])
			if !l.postAndWait(func(resume func()) { c.OnDataReceived(data, resume) }) {
				return
			}
			if limiter != nil && limiter.Allow() {
				cur := current
				l.post(func() { l.onDownloadProgress(cur) })
			}
		}
		if err == io.EOF {
			break
		} else if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			l.setNetError(neterror.FromError(err))
			l.post(func() { c.OnComplete(false) })
			return
		}
	}
	l.post(func() { c.OnComplete(true) })
}

func (l *loader) newHTTPRequest(ctx context.Context, method string, u *url.URL, withBody bool) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	r.Header = l.req.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if withBody {
		body, n, err := l.openBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
		r.ContentLength = n
		r.GetBody = func() (io.ReadCloser, error) {
			body, _, err := l.openBody()
			return body, err
		}
		if l.uploadContentType != "" {
			r.Header.Set("Content-Type", l.uploadContentType)
		}
	} else if !l.hasBody || method == http.MethodGet || method == http.MethodHead {
		r.Header.Del("Content-Type")
	}
	if l.opts.UserAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", l.opts.UserAgent)
	}
	if method != http.MethodGet && method != http.MethodHead && l.req.Initiator != "" && r.Header.Get("Origin") == "" {
		r.Header.Set("Origin", l.req.Initiator)
	}
	if d := cacheDirective(l.req.LoadFlags); d != "" {
		r.Header.Set("Cache-Control", d)
		if d == "no-cache" || d == "no-store" {
			r.Header.Set("Pragma", "no-cache")
		}
	}
	if l.req.sendsCookies(u) {
		for _, c := range l.req.CookieJar.Cookies(u) {
			r.AddCookie(c)
		}
	}
	return r, nil
}

func (l *loader) openBody() (io.ReadCloser, int64, error) {
	var rc io.ReadCloser
	var n int64
	if l.uploadFile != "" {
		f, err := os.Open(l.uploadFile)
		if err != nil {
			return nil, 0, err
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, 0, err
		}
		rc, n = f, fi.Size()
	} else {
		rc, n = io.NopCloser(bytes.NewReader(l.uploadData)), int64(len(l.uploadData))
	}
	if l.onUploadProgress == nil {
		return rc, n, nil
	}
	return &progressReader{rc: rc, total: n, report: l.reportUpload}, n, nil
}

func (l *loader) reportUpload(sent, total int64) {
	if l.uploadLimiter.Allow() {
		l.post(func() { l.onUploadProgress(sent, total) })
	}
}

func (l *loader) storeCookies(u *url.URL, resp *http.Response) {
	if l.req.CredentialsMode != CredentialsInclude || l.req.CookieJar == nil {
		return
	}
	if cs := resp.Cookies(); len(cs) > 0 {
		l.req.CookieJar.SetCookies(u, cs)
	}
}

func (l *loader) retryPolicy() retry.Policy {
	if l.maxRetries <= 0 {
		return retry.Never
	}
	var on retry.DeciderFunc
	if l.retryMode&RetryOn5xx != 0 {
		on = retry.ServerError
	}
	if l.retryMode&RetryOnNetworkChange != 0 {
		if on == nil {
			on = retry.NetworkChanged
		} else {
			on = on.Or(retry.NetworkChanged)
		}
	}
	if on == nil {
		return retry.Never
	}
	return retry.NewPolicy(retry.Times(l.maxRetries).And(on), l.opts.Waiter)
}

// newLimiter returns a limiter whose first token is already spent, so
// the first progress notification comes one interval after the load
// starts.
func (l *loader) newLimiter() *rate.Limiter {
	lim := rate.NewLimiter(rate.Every(l.opts.ProgressInterval), 1)
	lim.Allow()
	return lim
}

func (l *loader) setFinalURL(u string) {
	l.mu.Lock()
	l.finalURL = u
	l.mu.Unlock()
}

func (l *loader) setNetError(code neterror.Code) {
	l.mu.Lock()
	l.netErr = code
	l.mu.Unlock()
}

func (l *loader) setFromCache(fromCache bool) {
	l.mu.Lock()
	l.fromCache = fromCache
	l.mu.Unlock()
}

type progressReader struct {
	rc     io.ReadCloser
	sent   int64
	total  int64
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.rc.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}

func (p *progressReader) Close() error {
	return p.rc.Close()
}

func newResponseHead(resp *http.Response) *ResponseHead {
	mimeType, charset := request.ParseContentType(resp.Header.Get("Content-Type"))
	return &ResponseHead{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Proto:         resp.Proto,
		Header:        resp.Header.Clone(),
		ContentLength: resp.ContentLength,
		MimeType:      mimeType,
		Charset:       charset,
		WasCached:     resp.Header.Get(FromCacheHeader) == "1",
	}
}

func cacheDirective(f request.Flags) string {
	switch {
	case f.Has(request.FlagDisableCache):
		return "no-store"
	case f.Has(request.FlagOnlyFromCache):
		return "only-if-cached"
	case f.Has(request.FlagSkipCache):
		return "no-cache"
	default:
		return ""
	}
}

func redirectTarget(base *url.URL, resp *http.Response) (*url.URL, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return nil, false
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, false
	}
	target, err := base.Parse(loc)
	if err != nil {
		return nil, false
	}
	return target, true
}

// redirectMethod follows the method rewriting rules of net/http: a 303
// turns everything but HEAD into GET, and a 301 or 302 turns POST into
// GET.
func redirectMethod(method string, status int) string {
	switch status {
	case http.StatusSeeOther:
		if method != http.MethodHead {
			return http.MethodGet
		}
	case http.StatusMovedPermanently, http.StatusFound:
		if method == http.MethodPost {
			return http.MethodGet
		}
	}
	return method
}

func discard(resp *http.Response, release func()) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, chunkSize))
		_ = resp.Body.Close()
	}
	if release != nil {
		release()
	}
}

func urlErrorWrap(method string, u *url.URL, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(method),
		URL: u.String(),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
