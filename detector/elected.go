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
	"context"
	"errors"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/group"
	xerrors "github.com/m3db/m3x/errors"
)

var errNilGroup = errors.New("elected detector group cannot be nil")

// Elected is a detector following the leading member of a group.
//
// It keeps a detection of the group armed at all times. When a new member
// leads, its data is fetched and decoded into the leader address while the
// next detection is already armed. Only the fetch for the latest detected
// member can set the leader; fetches overtaken by another detection are
// dropped. If a detection of the group fails the detector latches the error
// and stops detecting for good.
type Elected struct {
	*engine

	group     group.Group
	ownsGroup bool
	decodeFn  DecodeFn

	// owned by the executor goroutine
	generation uint64
}

// NewElected returns a detector of the leader of g. g is closed along with
// the detector only if opts own it.
func NewElected(g group.Group, opts Options) (*Elected, error) {
	if g == nil {
		return nil, errNilGroup
	}
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	e := &Elected{
		engine:    newEngine(opts),
		group:     g,
		ownsGroup: opts.OwnsGroup(),
		decodeFn:  opts.DecodeFn(),
	}
	e.exec.Dispatch(func() { e.arm(group.Membership{}) })
	return e, nil
}

// Close fails pending detections with ErrClosed, stops detecting and closes
// the group if the detector owns it.
func (e *Elected) Close() error {
	return e.close(func() error {
		if !e.ownsGroup {
			return nil
		}
		return e.group.Close()
	})
}

func (e *Elected) arm(previous group.Membership) {
	e.goAsync(func(ctx context.Context) {
		m, err := e.group.Detect(ctx, previous)
		if ctx.Err() != nil {
			// closing
			return
		}
		e.exec.Dispatch(func() { e.detected(m, err) })
	})
}

func (e *Elected) detected(m group.Membership, err error) {
	if e.stopped || e.err != nil {
		return
	}

	if err != nil {
		e.metrics.detectErrors.Inc(1)
		e.logger.Errorf("Failed to detect the leader: %v", err)
		e.err = xerrors.NewNonRetryableError(err)
		e.leader = address.Empty
		e.waiters.Fail(e.err)
		e.updatePending()
		e.updateStatus()
		return
	}

	e.generation++
	if m.IsZero() {
		e.logger.Infof("No leading master is detected")
		e.setLeader(address.Empty)
	} else {
		e.fetch(m, e.generation)
	}
	e.arm(m)
}

func (e *Elected) fetch(m group.Membership, generation uint64) {
	e.goAsync(func(ctx context.Context) {
		data, err := e.group.Data(ctx, m)
		if ctx.Err() != nil {
			return
		}
		e.exec.Dispatch(func() { e.fetched(m, generation, data, err) })
	})
}

func (e *Elected) fetched(m group.Membership, generation uint64, data []byte, err error) {
	if e.stopped || e.err != nil {
		return
	}

	if generation != e.generation {
		e.metrics.staleFetches.Inc(1)
		e.logger.Debugf("dropping data of %s overtaken by a later detection", m.String())
		return
	}

	var leader address.Address
	if err == nil {
		leader, err = e.decodeFn(data)
	}
	if err != nil {
		e.metrics.fetchErrors.Inc(1)
		e.logger.Warnf("failed to fetch the data of leading member %s: %v", m.String(), err)
		if !e.leader.IsEmpty() {
			e.metrics.leaderChanges.Inc(1)
		}
		e.leader = address.Empty
		e.waiters.Fail(xerrors.NewRetryableError(err))
		e.updatePending()
		e.updateStatus()
		return
	}

	e.logger.Infof("A new leading master (UPID=%s) is detected", leader.String())
	e.setLeader(leader)
}
