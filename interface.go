// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package urlrequest

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/sequence"
)

// A Result is the outcome of a request run to completion by a Doer.
type Result struct {
	// ID is the identifier the request was registered under, or zero if
	// it was never dispatched.
	ID int32
	// Status is the terminal status of the request.
	Status Status
	// Response is the read-only response record.
	Response *request.Response
	// Body is the downloaded response body. It is empty for headers-only
	// requests.
	Body []byte
}

// Doer is the interface that wraps the basic Do method.
//
// Do runs a request to completion and returns its Result. Manager
// implements the Doer interface, and any other Doer implementation must
// behave substantially the same as Manager.Do.
//
// Any Doer can be converted into an Executor via the Inflate function.
type Doer interface {
	Do(ctx context.Context, d *request.Descriptor) (*Result, error)
}

// Getter is the interface that wraps the basic Get method.
type Getter interface {
	Get(ctx context.Context, url string) (*Result, error)
}

// Header is the interface that wraps the basic Head method.
type Header interface {
	Head(ctx context.Context, url string) (*Result, error)
}

// Poster is the interface that wraps the basic Post method.
//
// The body parameter may be nil for an empty body, or may be any of the
// types supported by request.BodyBytes, namely: string; []byte;
// io.Reader; and io.ReadCloser.
type Poster interface {
	Post(ctx context.Context, url, contentType string, body interface{}) (*Result, error)
}

// FormPoster is the interface that wraps the basic PostForm method.
//
// The request body is set to the URL-encoded keys and values from
// data, and the content type is set to
// application/x-www-form-urlencoded.
type FormPoster interface {
	PostForm(ctx context.Context, url string, data url.Values) (*Result, error)
}

// Executor is the interface that groups the basic Do, Get, Head, Post
// and PostForm methods.
//
// Any Doer can be converted into an Executor via the Inflate function.
type Executor interface {
	Doer
	Getter
	Header
	Poster
	FormPoster
}

// Do runs the request described by d in the global browser context and
// waits for it to complete. The request gets its own originating
// sequence, so Do may be called from any goroutine, but it blocks, so
// it must not be called from a task on a sequence.
//
// If ctx is done before the request completes, the request is canceled
// and the error wraps ctx.Err(). Otherwise a non-nil error is returned,
// wrapping the request's network error code, unless the request status
// is StatusSuccess. In every case where the request was started, the
// Result is returned alongside the error.
//
// A request whose server answered with an HTTP error status succeeds:
// inspect Result.Response.Status().
func (m *Manager) Do(ctx context.Context, d *request.Descriptor) (*Result, error) {
	if d == nil {
		panic("urlrequest: nil request descriptor")
	}

	runner := sequence.NewRunner("urlrequest-do")
	defer runner.Stop()

	res := &Result{}
	var body bytes.Buffer
	done := make(chan struct{})
	client := &ClientFuncs{
		DownloadData: func(_ *URLRequest, data []byte) {
			body.Write(data)
		},
		RequestComplete: func(r *URLRequest) {
			res.ID = r.ID()
			res.Status = r.Status()
			res.Response = r.Response()
			close(done)
		},
	}

	var r *URLRequest
	started := make(chan bool, 1)
	runner.PostTask(func() {
		r = m.NewRequest(nil, d, client, "")
		started <- r.Start()
	})
	if !<-started {
		return nil, &url.Error{
			Op:  urlErrorOp(d.Method()),
			URL: d.URL(),
			Err: neterror.ErrInvalidURL,
		}
	}

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		runner.PostTask(func() { r.Cancel() })
		<-done
		err = ctx.Err()
	}
	res.Body = body.Bytes()

	if err == nil && res.Status != StatusSuccess {
		code := res.Response.Error()
		if code == neterror.OK {
			code = neterror.ErrFailed
		}
		err = code
	}
	if err != nil {
		return res, &url.Error{
			Op:  urlErrorOp(d.Method()),
			URL: d.URL(),
			Err: err,
		}
	}
	return res, nil
}

// Get issues a GET to the specified URL using m.Do.
func (m *Manager) Get(ctx context.Context, url string) (*Result, error) {
	return Get(ctx, m, url)
}

// Head issues a HEAD to the specified URL using m.Do.
func (m *Manager) Head(ctx context.Context, url string) (*Result, error) {
	return Head(ctx, m, url)
}

// Post issues a POST to the specified URL using m.Do.
func (m *Manager) Post(ctx context.Context, url, contentType string, body interface{}) (*Result, error) {
	return Post(ctx, m, url, contentType, body)
}

// PostForm issues a form POST to the specified URL using m.Do.
func (m *Manager) PostForm(ctx context.Context, url string, data url.Values) (*Result, error) {
	return PostForm(ctx, m, url, data)
}

// Get uses the specified Doer to issue a GET to the specified URL.
//
// To make a request with custom headers or flags, use request.New and
// d.Do.
func Get(ctx context.Context, d Doer, url string) (*Result, error) {
	r, err := request.New("GET", url)
	if err != nil {
		return nil, err
	}
	return d.Do(ctx, r)
}

// Head uses the specified Doer to issue a HEAD to the specified URL.
func Head(ctx context.Context, d Doer, url string) (*Result, error) {
	r, err := request.New("HEAD", url)
	if err != nil {
		return nil, err
	}
	return d.Do(ctx, r)
}

// Post uses the specified Doer to issue a POST to the specified URL.
//
// The body parameter may be nil for an empty body, or may be any of the
// types supported by request.BodyBytes, namely: string; []byte;
// io.Reader; and io.ReadCloser.
func Post(ctx context.Context, d Doer, url, contentType string, body interface{}) (*Result, error) {
	b, err := request.NewBytesBody(body)
	if err != nil {
		return nil, err
	}
	r, err := request.New("POST", url)
	if err != nil {
		return nil, err
	}
	r.SetBody(b)
	if contentType != "" {
		if err = r.SetHeaderValue("Content-Type", contentType, true); err != nil {
			return nil, err
		}
	}
	return d.Do(ctx, r)
}

// PostForm uses the specified Doer to issue a POST to the specified URL,
// with data's keys and values URL-encoded as the request body.
func PostForm(ctx context.Context, d Doer, url string, data url.Values) (*Result, error) {
	return Post(ctx, d, url, "application/x-www-form-urlencoded", data.Encode())
}

// Inflate converts any non-nil Doer into an Executor. This may be
// helpful for interop across library boundaries, i.e. if code that only
// has access to a Doer needs to call a function that requires an
// Executor.
func Inflate(d Doer) Executor {
	if d == nil {
		panic("urlrequest: nil doer")
	}

	if e, ok := d.(Executor); ok {
		return e
	}

	return inflated{d}
}

type inflated struct {
	doer Doer
}

func (i inflated) Do(ctx context.Context, d *request.Descriptor) (*Result, error) {
	return i.doer.Do(ctx, d)
}

func (i inflated) Get(ctx context.Context, url string) (*Result, error) {
	return Get(ctx, i.doer, url)
}

func (i inflated) Head(ctx context.Context, url string) (*Result, error) {
	return Head(ctx, i.doer, url)
}

func (i inflated) Post(ctx context.Context, url, contentType string, body interface{}) (*Result, error) {
	return Post(ctx, i.doer, url, contentType, body)
}

func (i inflated) PostForm(ctx context.Context, url string, data url.Values) (*Result, error) {
	return PostForm(ctx, i.doer, url, data)
}

func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
