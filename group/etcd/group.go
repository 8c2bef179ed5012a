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

// Package etcd provides an etcd backed group membership service.
//
// Members are the keys written under the group prefix by etcd elections
// (see go.etcd.io/etcd/client/v3/concurrency); the key with the lowest
// create revision leads and its value is the leader payload.
package etcd

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/m3db/m3detector/group"
	xerrors "github.com/m3db/m3x/errors"
	xlog "github.com/m3db/m3x/log"
	xretry "github.com/m3db/m3x/retry"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const keySeparator = "/"

type getter interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
}

type watcher interface {
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}

// Group is a group of election keys under an etcd prefix.
type Group struct {
	kv       getter
	watcher  watcher
	prefix   string
	opts     Options
	retrier  xretry.Retrier
	logger   xlog.Logger
	closed   uint32
	doneCh   chan struct{}
	ownedCli *clientv3.Client
}

// NewGroup returns the group of elections campaigning under electionPrefix.
// The client is not closed when the group is closed.
func NewGroup(cli *clientv3.Client, electionPrefix string, opts Options) (*Group, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return newGroup(cli.KV, cli.Watcher, electionPrefix, opts), nil
}

// NewGroupFromURL connects to the etcd endpoints of u and returns the group
// at u.Path. The group owns the client it creates.
func NewGroupFromURL(u group.URL, opts Options) (*Group, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cfg := clientv3.Config{
		Endpoints:   u.Servers,
		DialTimeout: opts.DialTimeout(),
	}
	if u.Authentication != nil {
		if idx := strings.Index(u.Authentication.Credentials, ":"); idx >= 0 {
			cfg.Username = u.Authentication.Credentials[:idx]
			cfg.Password = u.Authentication.Credentials[idx+1:]
		}
	}

	cli, err := clientv3.New(cfg)
	if err != nil {
		return nil, err
	}

	g := newGroup(cli.KV, cli.Watcher, u.Path, opts)
	g.ownedCli = cli
	return g, nil
}

func newGroup(kv getter, w watcher, electionPrefix string, opts Options) *Group {
	return &Group{
		kv:      kv,
		watcher: w,
		prefix:  membersPrefix(electionPrefix),
		opts:    opts,
		retrier: xretry.NewRetrier(opts.RetryOptions()),
		logger:  opts.InstrumentOptions().Logger(),
		doneCh:  make(chan struct{}),
	}
}

// Detect blocks until the leading election key differs from previous.
func (g *Group) Detect(ctx context.Context, previous group.Membership) (group.Membership, error) {
	for {
		var (
			leader group.Membership
			rev    int64
			fatal  error
		)

		err := g.retrier.AttemptWhile(func(int) bool {
			return ctx.Err() == nil && !g.isClosed()
		}, func() error {
			l, r, err := g.leader(ctx)
			if err == nil {
				leader, rev = l, r
				return nil
			}
			if isFatal(ctx, err) {
				fatal = err
				return xerrors.NewNonRetryableError(err)
			}
			g.logger.Warnf("failed to read members of %s: %v", g.prefix, err)
			return err
		})

		switch {
		case g.isClosed():
			return group.Membership{}, group.ErrGroupClosed
		case fatal != nil:
			return group.Membership{}, fatal
		case ctx.Err() != nil:
			return group.Membership{}, ctx.Err()
		case err != nil:
			return group.Membership{}, err
		}

		if leader != previous {
			return leader, nil
		}

		if err := g.waitChange(ctx, rev); err != nil {
			return group.Membership{}, err
		}
	}
}

// Data returns the value of the election key of m.
func (g *Group) Data(ctx context.Context, m group.Membership) ([]byte, error) {
	if g.isClosed() {
		return nil, group.ErrGroupClosed
	}

	ctx, cancel := g.context(ctx)
	defer cancel()

	r, err := g.kv.Get(ctx, m.Key)
	if err != nil {
		return nil, err
	}
	if len(r.Kvs) == 0 {
		return nil, group.ErrMembershipNotFound
	}
	return r.Kvs[0].Value, nil
}

// Close stops all detections and closes the etcd client if the group
// created it.
func (g *Group) Close() error {
	if !atomic.CompareAndSwapUint32(&g.closed, 0, 1) {
		return nil
	}

	close(g.doneCh)
	if g.ownedCli != nil {
		return g.ownedCli.Close()
	}
	return nil
}

func (g *Group) isClosed() bool {
	return atomic.LoadUint32(&g.closed) == 1
}

// leader returns the first created key under the prefix and the revision
// the read was served at.
func (g *Group) leader(ctx context.Context) (group.Membership, int64, error) {
	ctx, cancel := g.context(ctx)
	defer cancel()

	r, err := g.kv.Get(ctx, g.prefix, clientv3.WithFirstCreate()...)
	if err != nil {
		return group.Membership{}, 0, err
	}

	var rev int64
	if r.Header != nil {
		rev = r.Header.Revision
	}

	if len(r.Kvs) == 0 {
		return group.Membership{}, rev, nil
	}

	kv := r.Kvs[0]
	return group.Membership{Key: string(kv.Key), Sequence: kv.CreateRevision}, rev, nil
}

// waitChange returns once any key under the prefix changed after rev, or the
// watch was interrupted and the members need to be read again.
func (g *Group) waitChange(ctx context.Context, rev int64) error {
	wctx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	defer cancel()

	wch := g.watcher.Watch(wctx, g.prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	for {
		select {
		case r, ok := <-wch:
			if !ok {
				return nil
			}
			if err := r.Err(); err != nil {
				if isFatal(ctx, err) {
					return err
				}
				g.logger.Warnf("received error on watch channel for %s: %v", g.prefix, err)
				return nil
			}
			if len(r.Events) > 0 {
				return nil
			}
		case <-g.doneCh:
			return group.ErrGroupClosed
		}
	}
}

func (g *Group) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.RequestTimeout() > 0 {
		return context.WithTimeout(ctx, g.opts.RequestTimeout())
	}
	return context.WithCancel(ctx)
}

func membersPrefix(electionPrefix string) string {
	if strings.HasSuffix(electionPrefix, keySeparator) {
		return electionPrefix
	}
	return electionPrefix + keySeparator
}

// isFatal returns true for errors that retrying cannot fix, such as bad
// credentials or a closed client.
func isFatal(ctx context.Context, err error) bool {
	switch err {
	case rpctypes.ErrPermissionDenied, rpctypes.ErrAuthFailed, rpctypes.ErrInvalidAuthToken,
		rpctypes.ErrAuthNotEnabled, rpctypes.ErrUserNotFound:
		return true
	case context.Canceled:
		// the client was closed underneath us
		return ctx.Err() == nil
	}
	return false
}
