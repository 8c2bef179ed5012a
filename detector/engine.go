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
	"sync"
	"sync/atomic"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/internal/serial"
	"github.com/m3db/m3detector/waiter"
	xlog "github.com/m3db/m3x/log"
)

// engine is the actor shared by standalone and elected detectors. All fields
// below exec are owned by the executor goroutine.
type engine struct {
	closed  uint32
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  xlog.Logger
	metrics detectorMetrics
	wb      *statusWatchable
	exec    *serial.Executor

	leader  address.Address
	err     error
	stopped bool
	waiters *waiter.Set
}

func newEngine(opts Options) *engine {
	ctx, cancel := context.WithCancel(context.Background())
	iopts := opts.InstrumentOptions()
	return &engine{
		ctx:     ctx,
		cancel:  cancel,
		logger:  iopts.Logger(),
		metrics: newDetectorMetrics(iopts.MetricsScope()),
		wb:      newStatusWatchable(),
		exec:    serial.New(),
		waiters: waiter.NewSet(),
	}
}

func (e *engine) Detect(ctx context.Context, previous address.Address) (address.Address, error) {
	req := waiter.NewRequest(previous)
	if !e.exec.Dispatch(func() { e.admit(req) }) {
		return address.Empty, ErrClosed
	}

	select {
	case res := <-req.C():
		return res.Leader, res.Err
	case <-ctx.Done():
		e.exec.Dispatch(func() {
			e.waiters.Remove(req)
			e.updatePending()
		})
		return address.Empty, ctx.Err()
	}
}

func (e *engine) Watch() (Watch, error) {
	w, err := e.wb.watch()
	if err != nil {
		return nil, ErrClosed
	}
	return w, nil
}

// admit answers req right away unless it has to wait for the next change.
func (e *engine) admit(req *waiter.Request) {
	switch {
	case e.stopped:
		req.Resolve(waiter.Result{Err: ErrClosed})
	case e.err != nil:
		req.Resolve(waiter.Result{Err: e.err})
	case req.Previous() != e.leader:
		req.Resolve(waiter.Result{Leader: e.leader})
	default:
		e.waiters.Add(req)
		e.updatePending()
	}
}

// setLeader replaces the leader and publishes it to the requests waiting for
// a different one.
func (e *engine) setLeader(leader address.Address) {
	if leader != e.leader {
		e.metrics.leaderChanges.Inc(1)
	}
	e.leader = leader
	e.waiters.PublishChanged(leader)
	e.updatePending()
	e.updateStatus()
}

func (e *engine) updatePending() {
	e.metrics.pending.Update(float64(e.waiters.Len()))
}

func (e *engine) updateStatus() {
	s := Status{Leader: e.leader, State: Watching}
	if e.err != nil {
		s.State, s.Err = Errored, e.err
	}
	e.wb.update(s)
}

// goAsync runs fn on a helper goroutine tracked until close.
func (e *engine) goAsync(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

// close stops the engine, calling closeFn once helper goroutines have been
// told to stop but before waiting for them.
func (e *engine) close(closeFn func() error) error {
	if !atomic.CompareAndSwapUint32(&e.closed, 0, 1) {
		return nil
	}

	e.cancel()
	e.exec.Dispatch(func() {
		e.stopped = true
		e.waiters.Fail(ErrClosed)
		e.updatePending()
		e.wb.close()
	})
	e.exec.Close()

	var err error
	if closeFn != nil {
		err = closeFn()
	}
	e.wg.Wait()
	return err
}
