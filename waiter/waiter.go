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

// Package waiter provides a broadcast-once registry of long-poll requests
// waiting for the leader to change.
//
// A Set is owned by a single goroutine and is not safe for concurrent use.
// Requests are resolved exactly once: a publish resolves every request
// registered before it and removes them from the set; a request registered
// afterwards waits for the next publish.
package waiter

import "github.com/m3db/m3detector/address"

// Result is the outcome delivered to a request.
type Result struct {
	Leader address.Address
	Err    error
}

// Request is a single outstanding long-poll query.
type Request struct {
	previous address.Address
	c        chan Result
	resolved bool
}

// NewRequest creates an unresolved request for a caller that already knows
// previous.
func NewRequest(previous address.Address) *Request {
	return &Request{
		previous: previous,
		c:        make(chan Result, 1),
	}
}

// Previous returns the leader the caller already knows.
func (r *Request) Previous() address.Address { return r.previous }

// C returns the channel the result is delivered on. At most one result is
// ever sent.
func (r *Request) C() <-chan Result { return r.c }

// Resolve delivers res to the request and returns true, or returns false if
// the request was already resolved.
func (r *Request) Resolve(res Result) bool {
	if r.resolved {
		return false
	}
	r.resolved = true
	r.c <- res
	return true
}

// Resolved returns true once the request has been resolved.
func (r *Request) Resolved() bool { return r.resolved }

// Set is the pending set of requests.
type Set struct {
	pending map[*Request]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{pending: make(map[*Request]struct{})}
}

// Register creates a request for a caller that already knows previous and
// adds it to the set.
func (s *Set) Register(previous address.Address) *Request {
	r := NewRequest(previous)
	s.Add(r)
	return r
}

// Add registers r to be resolved by the next publish. Resolved requests are
// ignored.
func (s *Set) Add(r *Request) {
	if r.resolved {
		return
	}
	s.pending[r] = struct{}{}
}

// Remove drops r without resolving it. It returns false if r was not
// pending.
func (s *Set) Remove(r *Request) bool {
	if _, ok := s.pending[r]; !ok {
		return false
	}
	delete(s.pending, r)
	return true
}

// Len returns the number of pending requests.
func (s *Set) Len() int { return len(s.pending) }

// Publish resolves every pending request with leader and empties the set.
// It returns the number of requests resolved.
func (s *Set) Publish(leader address.Address) int {
	return s.resolve(Result{Leader: leader}, func(*Request) bool { return true })
}

// PublishChanged resolves the pending requests whose previous leader differs
// from leader. The remaining requests stay pending.
func (s *Set) PublishChanged(leader address.Address) int {
	return s.resolve(Result{Leader: leader}, func(r *Request) bool {
		return r.previous != leader
	})
}

// Fail resolves every pending request with err and empties the set.
func (s *Set) Fail(err error) int {
	return s.resolve(Result{Err: err}, func(*Request) bool { return true })
}

func (s *Set) resolve(res Result, match func(*Request) bool) int {
	n := 0
	for r := range s.pending {
		if !match(r) {
			continue
		}
		delete(s.pending, r)
		if r.Resolve(res) {
			n++
		}
	}
	return n
}
