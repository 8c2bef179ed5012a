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

// Package detector detects the leading master of a cluster.
//
// A Detector is either standalone, where the leader is appointed explicitly,
// or elected, where the leader is the leading member of a group in a
// coordination service. Callers long-poll for changes:
//
//	leader := address.Empty
//	for {
//		next, err := d.Detect(ctx, leader)
//		if err != nil {
//			// ...
//		}
//		leader = next
//	}
//
// Detect returns as soon as the detected leader differs from the one passed
// in, so a caller never misses a change and never sees the same value twice
// in a row.
package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3db/m3detector/address"
	xerrors "github.com/m3db/m3x/errors"
)

// ErrClosed is returned by operations on a closed detector.
var ErrClosed = errors.New("detector is closed")

// Detector detects the leading master.
type Detector interface {
	// Detect blocks until the leader differs from previous and returns it.
	// address.Empty means there is no leader. An elected detector that
	// failed permanently returns an error for which IsTerminal is true.
	Detect(ctx context.Context, previous address.Address) (address.Address, error)

	// Watch returns a watch of the detector status.
	Watch() (Watch, error)

	// Close fails pending detections with ErrClosed and releases the
	// resources the detector owns.
	Close() error
}

// State is the state of a detector.
type State int

const (
	// Watching detectors follow leadership changes.
	Watching State = iota

	// Errored detectors failed permanently and never detect again.
	Errored
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Status is the detector state along with the current leader.
type Status struct {
	Leader address.Address
	State  State
	Err    error
}

// ConfigError is returned by New for master strings it cannot build a
// detector from.
type ConfigError struct {
	msg string
}

func newConfigError(format string, args ...interface{}) ConfigError {
	return ConfigError{msg: fmt.Sprintf(format, args...)}
}

func (e ConfigError) Error() string { return e.msg }

// IsConfigError returns true if err is a ConfigError.
func IsConfigError(err error) bool {
	_, ok := err.(ConfigError)
	return ok
}

// IsTerminal returns true if err is the latched error of a detector that
// stopped detecting.
func IsTerminal(err error) bool {
	return xerrors.IsNonRetryableError(err)
}

// IsRetryable returns true if err is a transient failure, such as failing to
// fetch the data of a new leader. Detect can be called again right away.
func IsRetryable(err error) bool {
	return xerrors.IsRetryableError(err)
}
