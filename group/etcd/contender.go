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
	"context"
	"errors"
	"sync"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

var (
	// ErrCampaignInProgress indicates a campaign cannot be started because one
	// is already in progress.
	ErrCampaignInProgress = errors.New("a campaign is already in progress")

	// ErrNoLeader is returned when a call to Leader() is made to an election
	// with no leader. We duplicate this error so the user doesn't have to
	// import etcd's concurrency package in order to check the cause of the
	// error.
	ErrNoLeader = concurrency.ErrElectionNoLeader

	// ErrSessionExpired is returned when a contender's session (etcd lease)
	// is no longer being refreshed for any reason (due to expiration, error
	// state, etc.).
	ErrSessionExpired = errors.New("contender session (lease) expired")

	// ErrContenderClosed indicates the contender has been closed and no more
	// campaigns can be started.
	ErrContenderClosed = errors.New("contender is closed")
)

// Contender campaigns for leadership of a group, advertising a payload
// (typically a serialized leader address) while it leads.
type Contender struct {
	sync.Mutex

	ctxCancel   context.CancelFunc
	election    *concurrency.Election
	session     *concurrency.Session
	opts        Options
	closed      uint32
	campaigning uint32
}

// NewContender returns a contender for the election at electionPrefix, the
// same prefix a Group detecting its leader is created with.
func NewContender(cli *clientv3.Client, electionPrefix string, opts Options) (*Contender, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	session, err := concurrency.NewSession(cli, concurrency.WithTTL(opts.TTL()))
	if err != nil {
		return nil, err
	}

	return &Contender{
		election: concurrency.NewElection(session, electionPrefix),
		session:  session,
		opts:     opts,
	}, nil
}

// Campaign blocks until the contender is elected with value as its payload,
// ctx is done or the session expires.
func (c *Contender) Campaign(ctx context.Context, value string) error {
	if c.isClosed() {
		return ErrContenderClosed
	}

	if !atomic.CompareAndSwapUint32(&c.campaigning, 0, 1) {
		return ErrCampaignInProgress
	}

	ctx, cancel := context.WithCancel(ctx)
	c.Lock()
	c.ctxCancel = cancel
	c.Unlock()

	defer func() {
		c.Lock()
		c.cancelWithLock()
		c.Unlock()
	}()

	// blocks until elected or error
	if err := c.election.Campaign(ctx, value); err != nil {
		atomic.StoreUint32(&c.campaigning, 0)
		return err
	}

	select {
	case <-c.session.Done():
		atomic.StoreUint32(&c.campaigning, 0)
		return ErrSessionExpired
	default:
		return nil
	}
}

// Resign gives up leadership, or cancels an ongoing campaign.
func (c *Contender) Resign(ctx context.Context) error {
	if c.isClosed() {
		return ErrContenderClosed
	}

	c.Lock()
	// if we're not the leader but still campaigning, cancelling the context
	// will stop the campaign
	c.cancelWithLock()
	c.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout())
	defer cancel()
	if err := c.election.Resign(ctx); err != nil {
		return err
	}

	atomic.StoreUint32(&c.campaigning, 0)
	return nil
}

// Leader returns the payload of the current leader of the election.
func (c *Contender) Leader(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout())
	defer cancel()

	r, err := c.election.Leader(ctx)
	if err == concurrency.ErrElectionNoLeader {
		return "", ErrNoLeader
	}
	if err != nil {
		return "", err
	}
	return string(r.Kvs[0].Value), nil
}

// Done returns a channel that is closed when the contender's session
// expires or the contender is closed.
func (c *Contender) Done() <-chan struct{} {
	return c.session.Done()
}

// Close closes the contender entirely, revoking its session and with it any
// leadership it holds.
func (c *Contender) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return nil
	}

	c.Lock()
	c.cancelWithLock()
	c.Unlock()

	return c.session.Close()
}

func (c *Contender) isClosed() bool {
	return atomic.LoadUint32(&c.closed) == 1
}

// cancelWithLock calls and resets to nil the underlying context cancellation
// func if it is not nil. the contender's lock must be held.
func (c *Contender) cancelWithLock() {
	if c.ctxCancel != nil {
		c.ctxCancel()
		c.ctxCancel = nil
	}
}
