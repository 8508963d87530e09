// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package browsercontext provides browser contexts to URL requests.

A browser context owns the connection pool, cookie jar and optional
response cache shared by every request made in it. Provider creates
contexts on demand, keyed by an opaque context identifier, and resolves
the context and routing identifier of a request from its Frame.
*/
package browsercontext
