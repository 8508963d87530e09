// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sequence

import (
	"sync"

	"github.com/petermattis/goid"
	"go.uber.org/atomic"
)

// runners maps goroutine IDs to the Runner executing on that
// goroutine.
var runners sync.Map

// A Runner is a sequenced task runner. Tasks posted to a Runner are run
// one at a time, in FIFO order, on a single goroutine owned by the
// Runner.
//
// PostTask never blocks, so it is safe to post to a Runner from any
// goroutine, including from a task running on the same Runner.
type Runner struct {
	name string
	gid  int64

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}

	allowBlocking atomic.Int32
}

// NewRunner starts a new Runner. The name is used only for diagnostics.
//
// The caller must eventually call Stop to release the Runner's
// goroutine.
func NewRunner(name string) *Runner {
	r := &Runner{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	ready := make(chan struct{})
	go r.loop(ready)
	<-ready
	return r
}

// Name returns the name the Runner was created with.
func (r *Runner) Name() string {
	return r.name
}

// PostTask schedules f to run on the Runner after all previously posted
// tasks. It returns false, and f is never run, if the Runner has been
// stopped.
func (r *Runner) PostTask(f func()) bool {
	if f == nil {
		panic("urlrequest/sequence: nil task")
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, f)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// RunsTasksInCurrentSequence reports whether the calling goroutine is
// the Runner's goroutine, i.e. whether the caller is running inside a
// task posted to r.
func (r *Runner) RunsTasksInCurrentSequence() bool {
	return goid.Get() == r.gid
}

// Stop stops the Runner. Tasks already posted still run; tasks posted
// after Stop are discarded. When called from outside the Runner, Stop
// waits for the queued tasks to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	already := r.stopped
	r.stopped = true
	r.mu.Unlock()

	if !already {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}

	if !r.RunsTasksInCurrentSequence() {
		<-r.done
	}
}

// AllowBlocking opens a scope in which blocking operations are
// permitted on the Runner. The returned function closes the scope and
// must be called on the same Runner, typically via defer.
func (r *Runner) AllowBlocking() (restore func()) {
	r.allowBlocking.Inc()
	return func() {
		r.allowBlocking.Dec()
	}
}

// BlockingAllowed reports whether an AllowBlocking scope is currently
// open on the Runner.
func (r *Runner) BlockingAllowed() bool {
	return r.allowBlocking.Load() > 0
}

func (r *Runner) loop(ready chan<- struct{}) {
	r.gid = goid.Get()
	runners.Store(r.gid, r)
	defer func() {
		runners.Delete(r.gid)
		close(r.done)
	}()
	close(ready)

	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		stopped := r.stopped
		r.mu.Unlock()

		for _, f := range batch {
			f()
		}

		if len(batch) == 0 {
			if stopped {
				return
			}
			<-r.wake
		}
	}
}

// Current returns the Runner the calling goroutine belongs to, or nil
// if the caller is not running inside a task.
func Current() *Runner {
	if v, ok := runners.Load(goid.Get()); ok {
		return v.(*Runner)
	}
	return nil
}
