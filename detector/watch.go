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
	xwatch "github.com/m3db/m3x/watch"
)

// Watch watches the status of a detector.
type Watch interface {
	// C is notified when the status changes.
	C() <-chan struct{}

	// Get returns the latest status.
	Get() Status

	// Close stops watching.
	Close()
}

type statusWatchable struct {
	value xwatch.Watchable
}

func newStatusWatchable() *statusWatchable {
	w := &statusWatchable{value: xwatch.NewWatchable()}
	w.update(Status{State: Watching})
	return w
}

func (w *statusWatchable) update(s Status) {
	w.value.Update(s)
}

func (w *statusWatchable) get() Status {
	return w.value.Get().(Status)
}

func (w *statusWatchable) watch() (Watch, error) {
	_, newWatch, err := w.value.Watch()
	if err != nil {
		return nil, err
	}
	return &statusWatch{value: newWatch}, nil
}

func (w *statusWatchable) close() {
	w.value.Close()
}

type statusWatch struct {
	value xwatch.Watch
}

func (w *statusWatch) C() <-chan struct{} {
	return w.value.C()
}

func (w *statusWatch) Get() Status {
	return w.value.Get().(Status)
}

func (w *statusWatch) Close() {
	w.value.Close()
}
