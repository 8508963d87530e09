// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gogama/urlrequest/neterror"
)

// A Response is the response record of a URL request: the final URL,
// the status line, the headers, the network error code and whether the
// response was served from cache.
//
// The request's owner makes the record briefly mutable around each
// group of updates and otherwise keeps it read-only, so every observer
// sees a consistent snapshot. Setters panic while the record is
// read-only.
type Response struct {
	url        string
	status     int
	statusText string
	mimeType   string
	charset    string
	header     http.Header
	err        neterror.Code
	wasCached  bool
	readOnly   bool
}

// NewResponse returns an empty, writable response record.
func NewResponse() *Response {
	return &Response{header: make(http.Header)}
}

// URL returns the final URL of the response.
func (r *Response) URL() string {
	return r.url
}

// Status returns the HTTP status code, or zero if no status line has
// been received.
func (r *Response) Status() int {
	return r.status
}

// StatusText returns the reason phrase of the status line.
func (r *Response) StatusText() string {
	return r.statusText
}

// MimeType returns the media type from the Content-Type header, in
// lower case and without parameters.
func (r *Response) MimeType() string {
	return r.mimeType
}

// Charset returns the charset parameter of the Content-Type header.
func (r *Response) Charset() string {
	return r.charset
}

// Header returns a copy of the response headers.
func (r *Response) Header() http.Header {
	return r.header.Clone()
}

// HeaderValue returns the first value of the named response header.
func (r *Response) HeaderValue(name string) string {
	return r.header.Get(name)
}

// Error returns the network error code. It is neterror.OK unless the
// request failed or was canceled.
func (r *Response) Error() neterror.Code {
	return r.err
}

// WasCached indicates whether the response was served from cache.
func (r *Response) WasCached() bool {
	return r.wasCached
}

// SetURL sets the final URL.
func (r *Response) SetURL(url string) {
	r.checkWritable()
	r.url = url
}

// SetStatus sets the HTTP status code.
func (r *Response) SetStatus(status int) {
	r.checkWritable()
	r.status = status
}

// SetStatusText sets the reason phrase.
func (r *Response) SetStatusText(text string) {
	r.checkWritable()
	r.statusText = text
}

// SetMimeType sets the media type.
func (r *Response) SetMimeType(mimeType string) {
	r.checkWritable()
	r.mimeType = mimeType
}

// SetCharset sets the charset.
func (r *Response) SetCharset(charset string) {
	r.checkWritable()
	r.charset = charset
}

// SetHeader replaces the response headers with a copy of h.
func (r *Response) SetHeader(h http.Header) {
	r.checkWritable()
	if h == nil {
		r.header = make(http.Header)
		return
	}
	r.header = h.Clone()
}

// SetError sets the network error code.
func (r *Response) SetError(code neterror.Code) {
	r.checkWritable()
	r.err = code
}

// SetWasCached sets the served-from-cache flag.
func (r *Response) SetWasCached(wasCached bool) {
	r.checkWritable()
	r.wasCached = wasCached
}

// SetResponseHeaders stores a status line and header set, deriving the
// MIME type and charset from the Content-Type header.
//
// If statusText is empty, the standard reason phrase for status is
// used.
func (r *Response) SetResponseHeaders(status int, statusText string, h http.Header) {
	r.checkWritable()
	if statusText == "" {
		statusText = http.StatusText(status)
	}
	r.status = status
	r.statusText = statusText
	r.SetHeader(h)
	r.mimeType, r.charset = ParseContentType(r.header.Get("Content-Type"))
}

// ReadOnly indicates whether the record is read-only.
func (r *Response) ReadOnly() bool {
	return r.readOnly
}

// SetReadOnly sets or clears the read-only mark.
func (r *Response) SetReadOnly(readOnly bool) {
	r.readOnly = readOnly
}

func (r *Response) checkWritable() {
	if r.readOnly {
		panic("urlrequest/request: response is read-only")
	}
}

// ParseContentType splits a Content-Type header value into a lower-case
// media type and a charset. Unparseable values yield the text before
// the first semicolon as the media type and no charset.
func ParseContentType(value string) (mimeType, charset string) {
	if value == "" {
		return "", ""
	}
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
		return strings.ToLower(mediaType), ""
	}
	return mediaType, params["charset"]
}
