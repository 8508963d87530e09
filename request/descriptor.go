// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"encoding/base64"
	"fmt"
	"net/http"
	urlpkg "net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const readOnlyMsg = "urlrequest/request: descriptor is read-only"

// A Descriptor describes a logical URL request: the target URL, the
// method, the headers, an optional body, and a set of behavioral flags.
//
// A Descriptor is mutable until the request it describes is started.
// Once started, the request's owner marks the Descriptor read-only and
// every setter panics. The owner may briefly lift the read-only mark to
// reflect changes it makes itself (for example, rewriting the method
// when a body is attached to a GET).
//
// A Descriptor is not safe for concurrent use. It is meant to be used
// only from the sequence that created the request it describes.
type Descriptor struct {
	url      string
	method   string
	header   http.Header
	body     *Body
	flags    Flags
	readOnly bool
}

// New returns a new Descriptor given a method and a URL.
//
// An empty method means GET. If method is not a valid HTTP token, New
// returns an error. The URL is not validated until the request is
// started, so a malformed URL does not cause New to fail.
func New(method, url string) (*Descriptor, error) {
	if method == "" {
		method = http.MethodGet
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, fmt.Errorf("urlrequest/request: invalid method %q", method)
	}
	return &Descriptor{
		url:    url,
		method: method,
		header: make(http.Header),
	}, nil
}

// URL returns the target URL.
func (d *Descriptor) URL() string {
	return d.url
}

// SetURL sets the target URL.
func (d *Descriptor) SetURL(url string) {
	d.checkWritable()
	d.url = url
}

// Method returns the HTTP method. It is never empty.
func (d *Descriptor) Method() string {
	return d.method
}

// SetMethod sets the HTTP method. An empty method means GET. An error
// is returned if method is not a valid HTTP token.
func (d *Descriptor) SetMethod(method string) error {
	d.checkWritable()
	if method == "" {
		method = http.MethodGet
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return fmt.Errorf("urlrequest/request: invalid method %q", method)
	}
	d.method = method
	return nil
}

// Header returns a copy of the request headers.
func (d *Descriptor) Header() http.Header {
	return d.header.Clone()
}

// HeaderValue returns the first value of the named header, or the
// empty string.
func (d *Descriptor) HeaderValue(name string) string {
	return d.header.Get(name)
}

// SetHeader replaces all request headers with a copy of h.
func (d *Descriptor) SetHeader(h http.Header) {
	d.checkWritable()
	if h == nil {
		d.header = make(http.Header)
		return
	}
	d.header = h.Clone()
}

// SetHeaderValue sets the named header. If overwrite is false and the
// header already has a value, value is appended instead. An error is
// returned if the name or value is not valid on the wire.
func (d *Descriptor) SetHeaderValue(name, value string, overwrite bool) error {
	d.checkWritable()
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("urlrequest/request: invalid header name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("urlrequest/request: invalid value for header %q", name)
	}
	if overwrite {
		d.header.Set(name, value)
	} else {
		d.header.Add(name, value)
	}
	return nil
}

// Body returns the request body, which may be nil.
func (d *Descriptor) Body() *Body {
	return d.body
}

// SetBody sets the request body. A nil body means no body.
func (d *Descriptor) SetBody(b *Body) {
	d.checkWritable()
	d.body = b
}

// Flags returns the behavioral flags.
func (d *Descriptor) Flags() Flags {
	return d.flags
}

// SetFlags replaces the behavioral flags.
func (d *Descriptor) SetFlags(f Flags) {
	d.checkWritable()
	d.flags = f
}

// ReadOnly indicates whether the descriptor is currently read-only.
func (d *Descriptor) ReadOnly() bool {
	return d.readOnly
}

// SetReadOnly sets or clears the read-only mark on the descriptor and
// its body.
func (d *Descriptor) SetReadOnly(readOnly bool) {
	d.readOnly = readOnly
	if d.body != nil {
		d.body.SetReadOnly(readOnly)
	}
}

// AddCookie adds a cookie to the request. Per RFC 6265 section 5.4,
// AddCookie does not attach more than one Cookie header field. That
// means all cookies, if any, are written into the same line,
// separated by semicolons.
//
// AddCookie only sanitizes c's name and value, and does not sanitize
// a Cookie header already present in the request.
func (d *Descriptor) AddCookie(c *http.Cookie) {
	d.checkWritable()
	c2 := &http.Cookie{Name: c.Name, Value: c.Value}
	s := c2.String()
	if h := d.header.Get("Cookie"); h != "" {
		d.header.Set("Cookie", h+"; "+s)
	} else {
		d.header.Set("Cookie", s)
	}
}

// SetBasicAuth sets the Authorization header to use HTTP Basic
// Authentication with the provided username and password.
//
// With HTTP Basic Authentication the provided username and password
// are not encrypted.
func (d *Descriptor) SetBasicAuth(username, password string) {
	d.checkWritable()
	d.header.Set("Authorization", "Basic "+BasicAuth(username, password))
}

// ParsedURL parses the descriptor's URL. The second return value is
// false if the URL is not well-formed (see ValidURL).
func (d *Descriptor) ParsedURL() (*urlpkg.URL, bool) {
	u, err := urlpkg.Parse(d.url)
	if err != nil || !wellFormed(u) {
		return nil, false
	}
	u.Host = removeEmptyPort(u.Host)
	return u, true
}

// ValidURL reports whether rawURL is a well-formed absolute URL: it
// must parse, and have a scheme and either a host or an opaque part.
func ValidURL(rawURL string) bool {
	u, err := urlpkg.Parse(rawURL)
	return err == nil && wellFormed(u)
}

func wellFormed(u *urlpkg.URL) bool {
	return u.Scheme != "" && (u.Host != "" || u.Opaque != "")
}

func (d *Descriptor) checkWritable() {
	if d.readOnly {
		panic(readOnlyMsg)
	}
}

// BasicAuth encodes a username and password pair the way an HTTP Basic
// Authorization header carries them.
//
// See 2 (end of page 4) https://www.ietf.org/rfc/rfc2617.txt
// "To receive authorization, the client sends the userid and password,
// separated by a single colon (":") character, within a base64
// encoded string in the credentials."
// It is not meant to be urlencoded.
func BasicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
