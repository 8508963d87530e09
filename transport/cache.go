// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gogama/urlrequest/neterror"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// FromCacheHeader is set to "1" on responses served by a CachingDoer.
const FromCacheHeader = "X-From-Cache"

// A CachingDoer is an HTTPDoer that keeps successful GET responses in
// an in-memory store and serves repeat requests from it.
//
// Request directives are honored: Cache-Control: no-cache bypasses the
// store for reading, no-store bypasses it entirely, and only-if-cached
// fails with neterror.ErrCacheMiss instead of going to the network.
// Responses are stored only if they have status 200 and do not carry
// no-store or private. Their lifetime is max-age if present, and the
// default TTL otherwise.
type CachingDoer struct {
	doer    HTTPDoer
	ttl     time.Duration
	logger  *zap.Logger
	gocache *gocache.Cache
}

type cachedResponse struct {
	status     string
	statusCode int
	proto      string
	header     http.Header
	body       []byte
}

// NewCachingDoer wraps doer with a response store. Entries expire after
// defaultTTL unless the response sets max-age. Expired entries are
// purged every cleanupInterval. A nil logger disables logging.
func NewCachingDoer(doer HTTPDoer, defaultTTL, cleanupInterval time.Duration, logger *zap.Logger) *CachingDoer {
	if doer == nil {
		panic("urlrequest/transport: nil doer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingDoer{
		doer:    doer,
		ttl:     defaultTTL,
		logger:  logger,
		gocache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Do serves r from the store when possible, and otherwise sends it
// through the wrapped HTTPDoer, storing the response if it is
// cacheable.
func (c *CachingDoer) Do(r *http.Request) (*http.Response, error) {
	if r.Method != http.MethodGet {
		if r.Method != http.MethodHead && r.Method != http.MethodOptions {
			c.gocache.Delete(cacheKey(r))
		}
		return c.doer.Do(r)
	}

	key := cacheKey(r)
	reqCC := parseCacheControl(r.Header.Values("Cache-Control"))
	_, noStore := reqCC["no-store"]
	_, noCache := reqCC["no-cache"]
	_, onlyIfCached := reqCC["only-if-cached"]

	if !noStore && !noCache {
		if v, found := c.gocache.Get(key); found {
			c.logger.Debug("cache hit", zap.String("url", key))
			return v.(*cachedResponse).toResponse(r), nil
		}
	}
	if onlyIfCached {
		return nil, neterror.ErrCacheMiss
	}

	resp, err := c.doer.Do(r)
	if err != nil || noStore || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	respCC := parseCacheControl(resp.Header.Values("Cache-Control"))
	if _, ok := respCC["no-store"]; ok {
		return resp, nil
	}
	if _, ok := respCC["private"]; ok {
		return resp, nil
	}
	ttl := c.ttl
	if v, ok := respCC["max-age"]; ok {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return resp, nil
		}
		ttl = time.Duration(secs) * time.Second
	}
	if ttl <= 0 {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, err
	}
	entry := &cachedResponse{
		status:     resp.Status,
		statusCode: resp.StatusCode,
		proto:      resp.Proto,
		header:     resp.Header.Clone(),
		body:       body,
	}
	c.gocache.Set(key, entry, ttl)
	c.logger.Debug("cache store",
		zap.String("url", key),
		zap.Duration("ttl", ttl),
		zap.Int("size", c.gocache.ItemCount()))
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// Len returns the number of entries in the store, including expired
// entries not yet purged.
func (c *CachingDoer) Len() int {
	return c.gocache.ItemCount()
}

// Flush removes every entry from the store.
func (c *CachingDoer) Flush() {
	c.gocache.Flush()
}

// CloseIdleConnections invokes the same method on the wrapped HTTPDoer,
// if it has one.
func (c *CachingDoer) CloseIdleConnections() {
	if ic, ok := c.doer.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (e *cachedResponse) toResponse(r *http.Request) *http.Response {
	h := e.header.Clone()
	h.Set(FromCacheHeader, "1")
	return &http.Response{
		Status:        e.status,
		StatusCode:    e.statusCode,
		Proto:         e.proto,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
		Request:       r,
	}
}

func cacheKey(r *http.Request) string {
	return r.URL.String()
}

func parseCacheControl(values []string) map[string]string {
	cc := make(map[string]string)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, val, _ := strings.Cut(part, "=")
			cc[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(val), `"`)
		}
	}
	return cc
}
