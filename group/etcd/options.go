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

package etcd

import (
	"errors"
	"time"

	"github.com/m3db/m3x/instrument"
	xretry "github.com/m3db/m3x/retry"
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultTTL            = 10
)

// Options describe options for etcd backed groups and contenders.
type Options interface {
	// DialTimeout is the timeout for establishing the etcd connection when
	// the group creates its own client.
	DialTimeout() time.Duration
	SetDialTimeout(value time.Duration) Options

	// RequestTimeout bounds single etcd requests.
	RequestTimeout() time.Duration
	SetRequestTimeout(value time.Duration) Options

	// TTL is the session TTL in seconds used by contenders.
	TTL() int
	SetTTL(value int) Options

	RetryOptions() xretry.Options
	SetRetryOptions(value xretry.Options) Options

	InstrumentOptions() instrument.Options
	SetInstrumentOptions(value instrument.Options) Options

	Validate() error
}

type options struct {
	dialTimeout    time.Duration
	requestTimeout time.Duration
	ttl            int
	retryOpts      xretry.Options
	iopts          instrument.Options
}

// NewOptions returns the default etcd group options.
func NewOptions() Options {
	return options{
		dialTimeout:    defaultDialTimeout,
		requestTimeout: defaultRequestTimeout,
		ttl:            defaultTTL,
		retryOpts: xretry.NewOptions().
			SetInitialBackoff(defaultInitialBackoff).
			SetMaxBackoff(defaultMaxBackoff).
			SetForever(true).
			SetJitter(true),
		iopts: instrument.NewOptions(),
	}
}

func (o options) DialTimeout() time.Duration { return o.dialTimeout }

func (o options) SetDialTimeout(value time.Duration) Options {
	o.dialTimeout = value
	return o
}

func (o options) RequestTimeout() time.Duration { return o.requestTimeout }

func (o options) SetRequestTimeout(value time.Duration) Options {
	o.requestTimeout = value
	return o
}

func (o options) TTL() int { return o.ttl }

func (o options) SetTTL(value int) Options {
	o.ttl = value
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
	if o.ttl <= 0 {
		return errors.New("etcd options ttl must be positive")
	}

	if o.retryOpts == nil {
		return errors.New("etcd options retry opts cannot be nil")
	}

	if o.iopts == nil {
		return errors.New("etcd options instrument opts cannot be nil")
	}

	return nil
}
