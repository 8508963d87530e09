// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package browsercontext

import (
	"net/http"

	"github.com/gogama/urlrequest/transport"
)

// A Context is a browser context: an isolated set of connections,
// cookies and cached responses. It implements transport.FactoryGetter.
type Context struct {
	id     string
	jar    http.CookieJar
	client *http.Client
	cache  *transport.CachingDoer
	doer   transport.HTTPDoer
}

// ID returns the identifier the Context was created for.
func (c *Context) ID() string {
	return c.id
}

// Factory returns the HTTPDoer loads in this Context are sent through.
// It does not follow redirects.
func (c *Context) Factory() transport.HTTPDoer {
	return c.doer
}

// CookieJar returns the Context's cookie jar.
func (c *Context) CookieJar() http.CookieJar {
	return c.jar
}

// Cache returns the Context's response cache, or nil if caching is
// disabled.
func (c *Context) Cache() *transport.CachingDoer {
	return c.cache
}

// Close closes idle connections and drops cached responses. The
// Context remains usable.
func (c *Context) Close() {
	c.client.CloseIdleConnections()
	if c.cache != nil {
		c.cache.Flush()
	}
}
