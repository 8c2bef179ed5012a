// Copyright (c) 2018 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package serial provides an executor that runs functions one at a time, in
// the order they were dispatched, on a single goroutine.
package serial

import "sync"

// Executor is a mailbox drained by one goroutine. Functions dispatched to
// the executor never run concurrently with each other.
type Executor struct {
	sync.Mutex

	queue  []func()
	closed bool
	wakeCh chan struct{}
	doneCh chan struct{}
}

// New creates and starts an executor.
func New() *Executor {
	e := &Executor{
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	go e.run()
	return e
}

// Dispatch enqueues fn and returns immediately. It returns false if the
// executor is closed, in which case fn will never run.
func (e *Executor) Dispatch(fn func()) bool {
	e.Lock()
	if e.closed {
		e.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.Unlock()

	e.wake()
	return true
}

// Close stops accepting new functions, runs the ones already queued and
// waits for the executor goroutine to exit. Close must not be called from a
// function running on the executor.
func (e *Executor) Close() {
	e.Lock()
	e.closed = true
	e.Unlock()

	e.wake()
	<-e.doneCh
}

func (e *Executor) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

func (e *Executor) next() (func(), bool) {
	e.Lock()
	defer e.Unlock()

	for len(e.queue) == 0 {
		if e.closed {
			return nil, false
		}
		e.Unlock()
		<-e.wakeCh
		e.Lock()
	}

	fn := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return fn, true
}

func (e *Executor) run() {
	defer close(e.doneCh)

	for {
		fn, ok := e.next()
		if !ok {
			return
		}
		fn()
	}
}
