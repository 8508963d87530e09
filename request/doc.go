// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the value types exchanged between a URL
request, its client and its transport: Descriptor (what to fetch),
Response (what came back), and Execution (the state of a single network
load).

A Descriptor describes a logical request: URL, method, headers, an
optional Body and a set of Flags. Create one, configure it, and hand it
to the request manager:

	d, err := request.New("POST", "https://example.com/upload")
	...
	d.SetBody(request.NewBody(request.FileElement("/tmp/report.csv")))
	d.SetFlags(request.FlagReportUploadProgress)

Once the request is started the Descriptor becomes read-only, and any
attempt to modify it panics.

A Response is the request's response record. Its owner updates it as
the load progresses and finalizes it exactly once when the request
leaves the pending state.

An Execution is handed to timeout and retry policies by the transport
loader so they can decide how long to wait for headers and whether to
retry a failed attempt. You will typically not allocate Execution
instances yourself.
*/
package request
