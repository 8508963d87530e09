// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

import (
	"net"
	"net/url"
	"strconv"

	"github.com/gogama/urlrequest/browsercontext"
	"github.com/gogama/urlrequest/registry"
	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/sequence"
	"github.com/gogama/urlrequest/transport"
	"go.uber.org/zap"
)

// An Entry is the registration of a live URL request: the request and
// the client it reports to.
type Entry struct {
	Request *URLRequest
	Client  Client
}

// A Manager owns the state shared by every URL request of a process:
// the coordinating sequence on which browser contexts are resolved,
// the identifier allocator, and the registry mapping identifiers to
// live requests.
//
// Create one Manager per process with NewManager and Close it at
// shutdown.
type Manager struct {
	runner    *sequence.Runner
	provider  ContextProvider
	registry  *registry.Registry[Entry]
	ids       *registry.Allocator
	logger    *zap.Logger
	handlers  *HandlerGroup
	newLoader transport.LoaderFunc
}

type options struct {
	logger        *zap.Logger
	handlers      *HandlerGroup
	loaderFunc    transport.LoaderFunc
	loaderOptions transport.Options
}

// An Option configures a Manager.
type Option func(*options)

// WithLogger sets the Manager's logger. The default discards all logs.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHandlers installs lifecycle event handlers.
func WithHandlers(g *HandlerGroup) Option {
	return func(o *options) {
		o.handlers = g
	}
}

// WithLoaderFunc replaces the default Loader constructor.
func WithLoaderFunc(f transport.LoaderFunc) Option {
	return func(o *options) {
		o.loaderFunc = f
	}
}

// WithLoaderOptions sets the options of the default Loader. If
// opts.Logger is nil, the Manager's logger is used. If
// opts.OnAuthRequired is nil, authentication challenges are routed to
// the request's client when it implements AuthClient.
func WithLoaderOptions(opts transport.Options) Option {
	return func(o *options) {
		o.loaderOptions = opts
	}
}

// NewManager returns a Manager resolving browser contexts through
// provider.
func NewManager(provider ContextProvider, opts ...Option) *Manager {
	if provider == nil {
		panic("urlrequest: nil context provider")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		runner:   sequence.NewRunner("urlrequest-coordinator"),
		provider: provider,
		registry: registry.New[Entry](),
		ids:      registry.NewAllocator(),
		logger:   logger,
		handlers: o.handlers,
	}
	if o.loaderFunc != nil {
		m.newLoader = o.loaderFunc
	} else {
		lo := o.loaderOptions
		if lo.Logger == nil {
			lo.Logger = logger
		}
		if lo.OnAuthRequired == nil {
			lo.OnAuthRequired = m.onAuthRequired
		}
		m.newLoader = transport.LoaderFuncWithOptions(lo)
	}
	return m
}

// NewRequest creates a URL request. It must be called from a task
// running on a sequence.Runner, which becomes the request's originating
// sequence: all client callbacks run there, and the returned
// URLRequest may only be used there.
//
// The frame may be nil for a request not associated with a frame, in
// which case the request runs in the browser context identified by
// contextID. The descriptor becomes read-only.
//
// Call Start on the returned request to begin loading.
func (m *Manager) NewRequest(frame browsercontext.Frame, d *request.Descriptor, client Client, contextID string) *URLRequest {
	if d == nil {
		panic("urlrequest: nil request descriptor")
	}
	if client == nil {
		panic("urlrequest: nil client")
	}
	runner := sequence.Current()
	if runner == nil {
		panic("urlrequest: NewRequest called outside a sequence")
	}
	r := &URLRequest{
		runner: runner,
		logger: m.logger,
	}
	r.ctx = newRequestContext(m, r, runner, frame, d, client, contextID)
	return r
}

// LookupByID returns the registration of the live request with the
// given identifier. It returns false for identifiers not issued by a
// Manager, and for requests that have completed.
//
// LookupByID may be called from any goroutine.
func (m *Manager) LookupByID(id int32) (Entry, bool) {
	return m.registry.Lookup(id)
}

// LookupByGlobalID is LookupByID for an identifier qualified by the
// process that issued it. Only identifiers issued by the browser
// process, whose child ID is 0, can be resolved.
func (m *Manager) LookupByGlobalID(childID int, id int32) (Entry, bool) {
	if childID != 0 {
		return Entry{}, false
	}
	return m.LookupByID(id)
}

// Close stops the coordinating sequence. Requests started afterward
// are canceled. Requests still registered are reported in the log.
func (m *Manager) Close() {
	m.runner.Stop()
	if n := m.registry.Len(); n > 0 {
		m.logger.Warn("requests still registered at shutdown", zap.Int("count", n))
	}
}

// onAuthRequired runs on a Loader goroutine. It correlates a challenge
// with its request through the registry and asks the request's client
// for credentials on the originating sequence.
func (m *Manager) onAuthRequired(requestID int32, routingID int, c transport.AuthChallenge, respond transport.AuthResponder) {
	e, ok := m.registry.Lookup(requestID)
	if !ok {
		m.logger.Debug("auth challenge for unknown request", zap.Int32("request_id", requestID))
		respond("", "", false)
		return
	}
	ac, ok := e.Client.(AuthClient)
	if !ok {
		respond("", "", false)
		return
	}
	host, port := challengeHostPort(c)
	r := e.Request
	posted := r.runner.PostTask(func() {
		if r.ctx.owner == nil {
			respond("", "", false)
			return
		}
		m.logger.Debug("auth challenge",
			zap.Int32("request_id", requestID),
			zap.Int("routing_id", routingID),
			zap.String("host", host),
			zap.Bool("proxy", c.IsProxy))
		if !ac.GetAuthCredentials(c.IsProxy, host, port, c.Realm, c.Scheme, respond) {
			respond("", "", false)
		}
	})
	if !posted {
		respond("", "", false)
	}
}

func challengeHostPort(c transport.AuthChallenge) (string, int) {
	host, portStr, err := net.SplitHostPort(c.Host)
	if err == nil {
		if port, err := strconv.Atoi(portStr); err == nil {
			return host, port
		}
	} else {
		host = c.Host
	}
	if u, err := url.Parse(c.URL); err == nil && u.Scheme == "https" {
		return host, 443
	}
	return host, 80
}
