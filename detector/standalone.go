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

package detector

import (
	"github.com/m3db/m3detector/address"
)

// Standalone is a detector whose leader is appointed explicitly, for single
// master deployments and tests.
type Standalone struct {
	*engine
}

// NewStandalone returns a standalone detector with no leader appointed.
func NewStandalone(opts Options) (*Standalone, error) {
	return NewStandaloneWithLeader(address.Empty, opts)
}

// NewStandaloneWithLeader returns a standalone detector with leader
// appointed.
func NewStandaloneWithLeader(leader address.Address, opts Options) (*Standalone, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Standalone{engine: newEngine(opts)}
	s.leader = leader
	s.updateStatus()
	return s, nil
}

// Appoint makes leader the leader, notifying every pending detection even if
// it was already the leader. It returns before the detections are notified.
func (s *Standalone) Appoint(leader address.Address) {
	s.exec.Dispatch(func() {
		if s.stopped {
			return
		}
		if leader != s.leader {
			s.metrics.leaderChanges.Inc(1)
		}
		s.leader = leader
		s.waiters.Publish(leader)
		s.updatePending()
		s.updateStatus()
	})
}

// Close fails pending detections with ErrClosed.
func (s *Standalone) Close() error {
	return s.close(nil)
}
