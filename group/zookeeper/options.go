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

package zookeeper

import (
	"errors"
	"time"

	"github.com/m3db/m3x/instrument"
	xretry "github.com/m3db/m3x/retry"
)

const (
	// DefaultSessionTimeout is the ZooKeeper session timeout used by
	// detectors.
	DefaultSessionTimeout = 10 * time.Second

	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// DefaultLabels are the name prefixes of the sequential znodes that
// contending masters register.
var DefaultLabels = []string{"json.info_", "info_"}

// Options describe options for creating a ZooKeeper group.
type Options interface {
	// SessionTimeout is the ZooKeeper session timeout.
	SessionTimeout() time.Duration
	SetSessionTimeout(value time.Duration) Options

	// Labels are the znode name prefixes considered members.
	Labels() []string
	SetLabels(value []string) Options

	// RetryOptions configure retries of transient ZooKeeper failures.
	RetryOptions() xretry.Options
	SetRetryOptions(value xretry.Options) Options

	InstrumentOptions() instrument.Options
	SetInstrumentOptions(value instrument.Options) Options

	Validate() error
}

type options struct {
	sessionTimeout time.Duration
	labels         []string
	retryOpts      xretry.Options
	iopts          instrument.Options
}

// NewOptions returns the default ZooKeeper group options.
func NewOptions() Options {
	return options{
		sessionTimeout: DefaultSessionTimeout,
		labels:         DefaultLabels,
		retryOpts: xretry.NewOptions().
			SetInitialBackoff(defaultInitialBackoff).
			SetMaxBackoff(defaultMaxBackoff).
			SetForever(true).
			SetJitter(true),
		iopts: instrument.NewOptions(),
	}
}

func (o options) SessionTimeout() time.Duration { return o.sessionTimeout }

func (o options) SetSessionTimeout(value time.Duration) Options {
	o.sessionTimeout = value
	return o
}

func (o options) Labels() []string { return o.labels }

func (o options) SetLabels(value []string) Options {
	o.labels = value
	return o
}

func (o options) RetryOptions() xretry.Options { return o.retryOpts }

func (o options) SetRetryOptions(value xretry.Options) Options {
	o.retryOpts = value
	return o
}

func (o options) InstrumentOptions() instrument.Options { return o.iopts }

func (o options) SetInstrumentOptions(value instrument.Options) Options {
	o.iopts = value
	return o
}

func (o options) Validate() error {
	if o.sessionTimeout <= 0 {
		return errors.New("zookeeper session timeout must be positive")
	}

	if len(o.labels) == 0 {
		return errors.New("zookeeper options must specify at least one member label")
	}

	if o.retryOpts == nil {
		return errors.New("zookeeper options retry opts cannot be nil")
	}

	if o.iopts == nil {
		return errors.New("zookeeper options instrument opts cannot be nil")
	}

	return nil
}
