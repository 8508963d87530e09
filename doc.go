// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package urlrequest runs asynchronous HTTP requests on behalf of a
browser-like host and reports their progress to a client through
ordered callbacks.

Create one Manager per process. The Manager resolves the browser
context of each request through a ContextProvider, typically a
browsercontext.Provider:

	provider, err := browsercontext.NewProvider(browsercontext.Options{Logger: logger})
	...
	m := urlrequest.NewManager(provider, urlrequest.WithLogger(logger))
	defer m.Close()

A request is created and used on a sequence.Runner, its originating
sequence. Every client callback runs on that sequence, in order:

	runner := sequence.NewRunner("ui")
	runner.PostTask(func() {
		d, _ := request.New("GET", "https://www.example.com")
		d.SetFlags(request.FlagAllowStoredCredentials)
		r := m.NewRequest(nil, d, client, "default")
		if !r.Start() {
			// Malformed URL.
		}
	})

The request status moves from StatusPending to exactly one of
StatusSuccess, StatusFailed or StatusCanceled, and the client's
OnRequestComplete is called exactly once when that happens. Cancel may
be called at any time; calling it on a completed request does nothing.

While a request is in flight, the Manager maps its identifier to the
request and its client, so events that carry only the identifier can be
correlated with it (see Manager.LookupByID).

For simple synchronous use, Manager implements Doer and friends:

	res, err := m.Get(ctx, "https://www.example.com")
	...
	res, err := m.PostForm(ctx, "http://example.com/form",
		url.Values{"key": {"Value"}, "id": {"123"}})

To hook into the lifecycle of every request, install a handler into the
appropriate handler chain:

	handlers := &urlrequest.HandlerGroup{}
	handlers.PushBack(urlrequest.RequestCompleted, urlrequest.HandlerFunc(
		func(_ urlrequest.Event, r *urlrequest.URLRequest) {
			log.Printf("%s: %s", r.Request().URL(), r.Status())
		}),
	)
	m := urlrequest.NewManager(provider, urlrequest.WithHandlers(handlers))
*/
package urlrequest
