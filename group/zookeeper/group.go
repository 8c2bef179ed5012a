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

// Package zookeeper provides a ZooKeeper backed group membership service.
//
// Contenders register ephemeral sequential znodes under the group path,
// named with one of the member labels followed by the ten digit sequence
// ZooKeeper assigns, e.g. "json.info_0000000012". The member with the lowest
// sequence leads and its znode data is the leader payload.
package zookeeper

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync/atomic"

	"github.com/go-zookeeper/zk"
	"github.com/m3db/m3detector/group"
	xerrors "github.com/m3db/m3x/errors"
	xlog "github.com/m3db/m3x/log"
	xretry "github.com/m3db/m3x/retry"
)

const sequenceLen = 10

var errNodeAppeared = errors.New("group path appeared while waiting for it")

type conn interface {
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Close()
}

// Group is a group of memberships registered under a ZooKeeper path.
type Group struct {
	conn    conn
	path    string
	labels  []string
	retrier xretry.Retrier
	logger  xlog.Logger
	closed  uint32
	doneCh  chan struct{}
}

// NewGroup connects to the ZooKeeper ensemble at servers and returns the
// group rooted at path. Authentication is optional.
func NewGroup(servers []string, path string, auth *group.Authentication, opts Options) (*Group, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := opts.InstrumentOptions().Logger()
	c, _, err := zk.Connect(servers, opts.SessionTimeout(), zk.WithLogger(zkLogger{logger: logger}))
	if err != nil {
		return nil, err
	}

	if auth != nil {
		if err := c.AddAuth(auth.Scheme, []byte(auth.Credentials)); err != nil {
			c.Close()
			return nil, err
		}
	}

	return newGroup(c, path, opts), nil
}

func newGroup(c conn, p string, opts Options) *Group {
	return &Group{
		conn:    c,
		path:    p,
		labels:  opts.Labels(),
		retrier: xretry.NewRetrier(opts.RetryOptions()),
		logger:  opts.InstrumentOptions().Logger(),
		doneCh:  make(chan struct{}),
	}
}

// Detect blocks until the leading membership differs from previous.
func (g *Group) Detect(ctx context.Context, previous group.Membership) (group.Membership, error) {
	for {
		var (
			leader group.Membership
			watch  <-chan zk.Event
			fatal  error
		)

		err := g.retrier.AttemptWhile(func(int) bool {
			return ctx.Err() == nil && !g.isClosed()
		}, func() error {
			l, w, err := g.leader()
			if err == nil {
				leader, watch = l, w
				return nil
			}
			if isFatal(err) {
				fatal = err
				return xerrors.NewNonRetryableError(err)
			}
			if err != errNodeAppeared {
				g.logger.Warnf("failed to read members of %s: %v", g.path, err)
			}
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

		select {
		case ev := <-watch:
			if g.isClosed() {
				return group.Membership{}, group.ErrGroupClosed
			}
			if ev.Err != nil && isFatal(ev.Err) {
				return group.Membership{}, ev.Err
			}
		case <-ctx.Done():
			return group.Membership{}, ctx.Err()
		case <-g.doneCh:
			return group.Membership{}, group.ErrGroupClosed
		}
	}
}

// Data returns the payload of the membership znode.
func (g *Group) Data(ctx context.Context, m group.Membership) ([]byte, error) {
	if g.isClosed() {
		return nil, group.ErrGroupClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, _, err := g.conn.Get(path.Join(g.path, m.Key))
	if err == zk.ErrNoNode {
		return nil, group.ErrMembershipNotFound
	}
	return data, err
}

// Close closes the ZooKeeper connection.
func (g *Group) Close() error {
	if !atomic.CompareAndSwapUint32(&g.closed, 0, 1) {
		return nil
	}

	close(g.doneCh)
	g.conn.Close()
	return nil
}

func (g *Group) isClosed() bool {
	return atomic.LoadUint32(&g.closed) == 1
}

// leader reads the members and returns the leading one together with a
// watch that fires on the next change.
func (g *Group) leader() (group.Membership, <-chan zk.Event, error) {
	children, _, w, err := g.conn.ChildrenW(g.path)
	if err == zk.ErrNoNode {
		// the group path does not exist yet, wait for it to be created
		exists, _, ew, err := g.conn.ExistsW(g.path)
		if err != nil {
			return group.Membership{}, nil, err
		}
		if exists {
			return group.Membership{}, nil, errNodeAppeared
		}
		return group.Membership{}, ew, nil
	}
	if err != nil {
		return group.Membership{}, nil, err
	}

	m, _ := leaderOf(children, g.labels)
	return m, w, nil
}

// leaderOf returns the member with the lowest sequence among children.
func leaderOf(children []string, labels []string) (group.Membership, bool) {
	var (
		leader group.Membership
		found  bool
	)
	for _, child := range children {
		m, ok := parseMember(child, labels)
		if !ok {
			continue
		}
		if !found || m.Sequence < leader.Sequence {
			leader, found = m, true
		}
	}
	return leader, found
}

func parseMember(name string, labels []string) (group.Membership, bool) {
	for _, label := range labels {
		if len(name) != len(label)+sequenceLen || name[:len(label)] != label {
			continue
		}
		seq, err := strconv.ParseInt(name[len(label):], 10, 64)
		if err != nil || seq < 0 {
			return group.Membership{}, false
		}
		return group.Membership{Key: name, Sequence: seq}, true
	}
	return group.Membership{}, false
}

// isFatal returns true for the errors a detector cannot recover from
// without a new session.
func isFatal(err error) bool {
	switch err {
	case zk.ErrSessionExpired, zk.ErrNoAuth, zk.ErrAuthFailed, zk.ErrClosing:
		return true
	}
	return false
}

type zkLogger struct {
	logger xlog.Logger
}

func (l zkLogger) Printf(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}
