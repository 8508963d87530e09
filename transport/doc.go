// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package transport is the network layer beneath a URL request.

A Request is built from a request.Descriptor with NewRequest, and a
Loader performs it. The default Loader, returned by NewLoader, sends the
request through the HTTPDoer supplied by a browser context's
FactoryGetter, follows redirects, retries according to its RetryMode,
and posts every callback to the sequence.Runner it was created for:

	l := transport.NewLoader(req, runner, transport.Options{Logger: logger})
	l.SetRequestID(id)
	l.SetRetryOptions(2, transport.RetryOn5xx|transport.RetryOnNetworkChange)
	l.DownloadAsStream(getter.Factory(), consumer)

Closing a Loader abandons the load. No callback runs after Close.

CachingDoer wraps an HTTPDoer with an in-memory response store, which is
how the SkipCache, OnlyFromCache and DisableCache load flags take effect.
*/
package transport
