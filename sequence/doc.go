// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package sequence provides sequenced task runners: execution contexts
which run posted closures one at a time, in the order they were posted,
on a single dedicated goroutine.

A URL request is affine to the Runner it was created on. Every client
callback for the request runs on that Runner, so callbacks for one
request are never reordered and never run concurrently with each other.

	r := sequence.NewRunner("io")
	defer r.Stop()
	r.PostTask(func() {
		fmt.Println(r.RunsTasksInCurrentSequence()) // true
	})

Code running inside a task can find its Runner with Current.

Runners disallow blocking operations by default. A task that must
perform a short, bounded blocking operation (for example a disk-backed
MIME type lookup) opens an explicit permission scope with AllowBlocking.
*/
package sequence
