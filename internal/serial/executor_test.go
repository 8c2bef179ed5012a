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

package serial

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchOrder(t *testing.T) {
	e := New()

	var (
		mu   sync.Mutex
		seen []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, e.Dispatch(func() {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		}))
	}
	e.Close()

	require.Len(t, seen, 100)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestDispatchFromExecutor(t *testing.T) {
	e := New()
	defer e.Close()

	done := make(chan []string, 1)
	var order []string
	e.Dispatch(func() {
		order = append(order, "outer-start")
		e.Dispatch(func() {
			order = append(order, "inner")
			done <- order
		})
		order = append(order, "outer-end")
	})

	assert.Equal(t, []string{"outer-start", "outer-end", "inner"}, <-done)
}

func TestCloseRunsQueued(t *testing.T) {
	e := New()

	block := make(chan struct{})
	e.Dispatch(func() { <-block })

	ran := 0
	for i := 0; i < 10; i++ {
		e.Dispatch(func() { ran++ })
	}

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()

	close(block)
	<-closed
	assert.Equal(t, 10, ran)
}

func TestDispatchAfterClose(t *testing.T) {
	e := New()
	e.Close()

	assert.False(t, e.Dispatch(func() { t.Fatal("should not run") }))

	// closing again is a no-op
	e.Close()
}
