// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gogama/urlrequest/browsercontext"
	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/sequence"
	"github.com/gogama/urlrequest/transport"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const waitTimeout = 5 * time.Second

// harness runs requests on a test sequence against a fakeLoader.
type harness struct {
	t        *testing.T
	runner   *sequence.Runner
	provider *mockContextProvider
	getter   *fakeGetter
	manager  *Manager
	loaders  chan *fakeLoader
	client   *recordingClient
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...Option) *harness {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		t:        t,
		runner:   sequence.NewRunner("test"),
		provider: newMockContextProvider(t),
		getter:   &fakeGetter{},
		loaders:  make(chan *fakeLoader, 8),
		logs:     logs,
	}
	h.client = newRecordingClient(h.runner)
	opts = append([]Option{
		WithLogger(zap.New(core)),
		WithLoaderFunc(func(req *transport.Request, runner *sequence.Runner) transport.Loader {
			l := newFakeLoader(req, runner)
			h.loaders <- l
			return l
		}),
	}, opts...)
	h.manager = NewManager(h.provider, opts...)
	t.Cleanup(func() {
		h.runner.Stop()
		h.manager.Close()
	})
	return h
}

// resolveWith makes the provider resolve every request to g.
func (h *harness) resolveWith(g transport.FactoryGetter, routingID int) {
	h.provider.On("Resolve", mock.Anything, mock.Anything).Return(g, routingID)
}

// do runs f on the test sequence and waits for it to return.
func (h *harness) do(f func()) {
	h.t.Helper()
	ch := make(chan struct{})
	require.True(h.t, h.runner.PostTask(func() {
		defer close(ch)
		f()
	}))
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		require.FailNow(h.t, "timed out waiting for test sequence")
	}
}

// settle waits until the coordinating sequence and then the test
// sequence have run everything posted to them so far.
func (h *harness) settle() {
	h.t.Helper()
	ch := make(chan struct{})
	require.True(h.t, h.manager.runner.PostTask(func() { close(ch) }))
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		require.FailNow(h.t, "timed out waiting for coordinating sequence")
	}
	h.do(func() {})
}

// start creates and starts a request on the test sequence.
func (h *harness) start(newReq func() *URLRequest) *URLRequest {
	h.t.Helper()
	var r *URLRequest
	var ok bool
	h.do(func() {
		r = newReq()
		ok = r.Start()
	})
	require.True(h.t, ok)
	return r
}

// dispatched waits for the next Loader to be started.
func (h *harness) dispatched() *fakeLoader {
	h.t.Helper()
	select {
	case l := <-h.loaders:
		select {
		case <-l.started:
			return l
		case <-time.After(waitTimeout):
			require.FailNow(h.t, "timed out waiting for loader start")
		}
	case <-time.After(waitTimeout):
		require.FailNow(h.t, "timed out waiting for loader")
	}
	return nil
}

type mockContextProvider struct {
	mock.Mock
}

func newMockContextProvider(t *testing.T) *mockContextProvider {
	m := &mockContextProvider{}
	m.Test(t)
	return m
}

func (m *mockContextProvider) Resolve(frame browsercontext.Frame, contextID string) (transport.FactoryGetter, int) {
	args := m.Called(frame, contextID)
	g, _ := args.Get(0).(transport.FactoryGetter)
	return g, args.Int(1)
}

type fakeGetter struct{}

func (g *fakeGetter) Factory() transport.HTTPDoer { return http.DefaultClient }
func (g *fakeGetter) CookieJar() http.CookieJar   { return nil }

// fakeLoader records its configuration and lets tests drive its
// callbacks from the test sequence.
type fakeLoader struct {
	req    *transport.Request
	runner *sequence.Runner

	requestID          int32
	maxRetries         int
	retryMode          transport.RetryMode
	allowHTTPErrors    bool
	onRedirect         func(transport.RedirectInfo, *transport.ResponseHead)
	onUploadProgress   func(current, total int64)
	onDownloadProgress func(current int64)
	onResponseStarted  func(string, *transport.ResponseHead)

	uploadFile        string
	uploadData        []byte
	uploadContentType string

	headersOnly func(*transport.ResponseHead)
	consumer    transport.StreamConsumer
	started     chan struct{}

	finalURL  string
	netError  neterror.Code
	fromCache bool

	mu     sync.Mutex
	closes int
}

func newFakeLoader(req *transport.Request, runner *sequence.Runner) *fakeLoader {
	return &fakeLoader{
		req:      req,
		runner:   runner,
		started:  make(chan struct{}),
		finalURL: req.URL.String(),
	}
}

func (l *fakeLoader) SetRequestID(id int32) { l.requestID = id }

func (l *fakeLoader) SetRetryOptions(maxRetries int, mode transport.RetryMode) {
	l.maxRetries, l.retryMode = maxRetries, mode
}

func (l *fakeLoader) SetAllowHTTPErrorResults(allow bool) { l.allowHTTPErrors = allow }

func (l *fakeLoader) SetOnRedirect(f func(transport.RedirectInfo, *transport.ResponseHead)) {
	l.onRedirect = f
}

func (l *fakeLoader) SetOnUploadProgress(f func(current, total int64)) { l.onUploadProgress = f }
func (l *fakeLoader) SetOnDownloadProgress(f func(current int64))      { l.onDownloadProgress = f }

func (l *fakeLoader) SetOnResponseStarted(f func(string, *transport.ResponseHead)) {
	l.onResponseStarted = f
}

func (l *fakeLoader) AttachFileForUpload(path, contentType string) {
	l.uploadFile, l.uploadContentType = path, contentType
}

func (l *fakeLoader) AttachStringForUpload(data []byte, contentType string) {
	l.uploadData, l.uploadContentType = data, contentType
}

func (l *fakeLoader) DownloadHeadersOnly(_ transport.HTTPDoer, cb func(*transport.ResponseHead)) {
	l.headersOnly = cb
	close(l.started)
}

func (l *fakeLoader) DownloadAsStream(_ transport.HTTPDoer, c transport.StreamConsumer) {
	l.consumer = c
	close(l.started)
}

func (l *fakeLoader) FinalURL() string        { return l.finalURL }
func (l *fakeLoader) NetError() neterror.Code { return l.netError }
func (l *fakeLoader) LoadedFromCache() bool   { return l.fromCache }

func (l *fakeLoader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
}

func (l *fakeLoader) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// clientCall is one recorded Client callback.
type clientCall struct {
	name           string
	current, total int64
	data           string
}

// recordingClient is a Client recording every callback and whether it
// ran on the expected sequence. If cancelOn names a callback, the client
// cancels the request from inside it.
type recordingClient struct {
	runner *sequence.Runner

	mu         sync.Mutex
	calls      []clientCall
	offRunner  int
	cancelOn   string
	authAnswer func(callback transport.AuthResponder) bool
}

func newRecordingClient(runner *sequence.Runner) *recordingClient {
	return &recordingClient{runner: runner}
}

func (c *recordingClient) record(r *URLRequest, call clientCall) {
	c.mu.Lock()
	if !c.runner.RunsTasksInCurrentSequence() {
		c.offRunner++
	}
	c.calls = append(c.calls, call)
	cancel := call.name == c.cancelOn
	c.mu.Unlock()
	if cancel {
		r.Cancel()
	}
}

func (c *recordingClient) OnUploadProgress(r *URLRequest, current, total int64) {
	c.record(r, clientCall{name: "upload", current: current, total: total})
}

func (c *recordingClient) OnDownloadProgress(r *URLRequest, current, total int64) {
	c.record(r, clientCall{name: "download", current: current, total: total})
}

func (c *recordingClient) OnDownloadData(r *URLRequest, data []byte) {
	c.record(r, clientCall{name: "data", data: string(data)})
}

func (c *recordingClient) OnRequestComplete(r *URLRequest) {
	c.record(r, clientCall{name: "complete"})
}

func (c *recordingClient) recorded() []clientCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]clientCall, len(c.calls))
	copy(calls, c.calls)
	return calls
}

func (c *recordingClient) count(name string) int {
	n := 0
	for _, call := range c.recorded() {
		if call.name == name {
			n++
		}
	}
	return n
}

func (c *recordingClient) names() []string {
	var names []string
	for _, call := range c.recorded() {
		names = append(names, call.name)
	}
	return names
}

// authClient is a recordingClient that answers authentication
// challenges.
type authClient struct {
	*recordingClient
	challenges []string
}

func (c *authClient) GetAuthCredentials(isProxy bool, host string, port int, realm, scheme string, callback transport.AuthResponder) bool {
	c.mu.Lock()
	c.challenges = append(c.challenges, host)
	answer := c.authAnswer
	c.mu.Unlock()
	if answer == nil {
		return false
	}
	return answer(callback)
}
