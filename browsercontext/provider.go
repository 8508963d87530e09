// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package browsercontext

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/gogama/urlrequest/transport"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxContexts is the number of browser contexts a Provider
	// keeps before evicting the least recently used one.
	DefaultMaxContexts = 64

	// DefaultCacheTTL is the lifetime of cached responses that don't
	// set max-age.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheCleanupInterval is how often expired responses are
	// purged.
	DefaultCacheCleanupInterval = 10 * time.Minute
)

// ErrClosed is returned by Provider.Context after Close.
var ErrClosed = errors.New("urlrequest/browsercontext: provider closed")

// Options configure a Provider. The zero value is a valid
// configuration.
type Options struct {
	// Logger receives context creation and eviction logs. If nil,
	// nothing is logged.
	Logger *zap.Logger

	// MaxContexts bounds the number of live browser contexts. If zero,
	// DefaultMaxContexts is used.
	MaxContexts int

	// MaxIdleConnsPerHost is passed to each context's http.Transport.
	MaxIdleConnsPerHost int

	// Cache enables an in-memory response cache per context.
	Cache bool

	// CacheTTL and CacheCleanupInterval configure the response cache.
	// Zero values select DefaultCacheTTL and DefaultCacheCleanupInterval.
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration

	// Proxy is passed to each context's http.Transport. If nil,
	// http.ProxyFromEnvironment is used.
	Proxy func(*http.Request) (*url.URL, error)
}

// A Provider supplies the loader factory and cookie jar of the browser
// context a request runs in. Contexts are created on first use and kept
// in a bounded LRU; an evicted context has its idle connections closed.
//
// A Provider is safe for concurrent use.
type Provider struct {
	opts     Options
	logger   *zap.Logger
	contexts *lru.Cache
	group    singleflight.Group
	closed   *atomic.Bool
}

// NewProvider returns a Provider with no browser contexts.
func NewProvider(opts Options) (*Provider, error) {
	if opts.MaxContexts <= 0 {
		opts.MaxContexts = DefaultMaxContexts
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = DefaultCacheCleanupInterval
	}
	if opts.Proxy == nil {
		opts.Proxy = http.ProxyFromEnvironment
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		opts:   opts,
		logger: logger,
		closed: atomic.NewBool(false),
	}
	c, err := lru.NewWithEvict(opts.MaxContexts, func(key, value interface{}) {
		value.(*Context).Close()
		logger.Debug("browser context released", zap.String("context_id", key.(string)))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context cache: %w", err)
	}
	p.contexts = c
	return p, nil
}

// Context returns the browser context identified by id, creating it if
// needed. Concurrent calls for the same new id share one creation.
func (p *Provider) Context(id string) (*Context, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if v, ok := p.contexts.Get(id); ok {
		return v.(*Context), nil
	}
	v, err, _ := p.group.Do(id, func() (interface{}, error) {
		if v, ok := p.contexts.Get(id); ok {
			return v, nil
		}
		c, err := p.newContext(id)
		if err != nil {
			return nil, err
		}
		p.contexts.Add(id, c)
		p.logger.Debug("browser context created",
			zap.String("context_id", id),
			zap.Int("contexts", p.contexts.Len()))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

// Resolve returns the loader factory getter and routing identifier for
// a request. With a frame, the frame's browser context is used and the
// routing identifier is the frame tree node id; a detached frame yields
// a nil getter. Without a frame, the context identified by contextID is
// used and the routing identifier is transport.RoutingNone.
//
// A nil getter means the request must be cancelled.
func (p *Provider) Resolve(f Frame, contextID string) (transport.FactoryGetter, int) {
	routingID := transport.RoutingNone
	if f != nil {
		if f.Detached() {
			return nil, transport.RoutingNone
		}
		routingID = f.FrameTreeNodeID()
		contextID = f.ContextID()
	}
	c, err := p.Context(contextID)
	if err != nil {
		p.logger.Warn("browser context unavailable",
			zap.String("context_id", contextID),
			zap.Error(err))
		return nil, routingID
	}
	return c, routingID
}

// Remove releases the browser context identified by id, if present.
func (p *Provider) Remove(id string) {
	p.contexts.Remove(id)
}

// Len returns the number of live browser contexts.
func (p *Provider) Len() int {
	return p.contexts.Len()
}

// Close releases every browser context. Subsequent calls to Context
// fail with ErrClosed and Resolve returns a nil getter.
func (p *Provider) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.contexts.Purge()
}

func (p *Provider) newContext(id string) (*Context, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	t := &http.Transport{
		Proxy: p.opts.Proxy,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   p.opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	client := &http.Client{
		Transport: t,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	c := &Context{
		id:     id,
		jar:    jar,
		client: client,
		doer:   client,
	}
	if p.opts.Cache {
		c.cache = transport.NewCachingDoer(client, p.opts.CacheTTL, p.opts.CacheCleanupInterval,
			p.logger.With(zap.String("context_id", id)))
		c.doer = c.cache
	}
	return c, nil
}
