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

// Package etcdcluster manages the docker-compose etcd cluster the
// integration tests contend and detect leaders on.
package etcdcluster

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	xerrors "github.com/m3db/m3x/errors"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	containerFmt   = "etcd%d" // service names in docker-compose.yml
	commandTimeout = 30 * time.Second
	dialTimeout    = 5 * time.Second
)

var defaultEndpoints = []string{"127.0.0.1:2370", "127.0.0.1:2371", "127.0.0.1:2372"}

// Options configures the cluster.
type Options struct {
	// ComposeFile is the docker-compose file defining the etcd services,
	// docker-compose.yml in the working directory when empty.
	ComposeFile string

	// Endpoints of the etcd members, indexed by container id.
	Endpoints []string
}

// Cluster is a docker-compose based etcd cluster.
type Cluster struct {
	sync.Mutex

	opts   Options
	client *clientv3.Client
}

// New creates a new unstarted cluster based on opts.
func New(opts Options) *Cluster {
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = defaultEndpoints
	}
	return &Cluster{opts: opts}
}

// Endpoints returns the client endpoints of all members.
func (c *Cluster) Endpoints() []string {
	return append([]string(nil), c.opts.Endpoints...)
}

// URL returns an etcd:// group URL for path on this cluster.
func (c *Cluster) URL(path string) string {
	return "etcd://" + strings.Join(c.opts.Endpoints, ",") + path
}

// Start spins up the containers. The cluster is not necessarily serving when
// Start returns, see WaitReady.
func (c *Cluster) Start() error {
	return c.compose("up", "-d")
}

// Stop gracefully kills (SIGTERM) member id.
func (c *Cluster) Stop(id int) error {
	return c.compose("kill", "-s", "SIGTERM", fmt.Sprintf(containerFmt, id))
}

// HardStop kills member id without a graceful shutdown.
func (c *Cluster) HardStop(id int) error {
	return c.compose("kill", fmt.Sprintf(containerFmt, id))
}

// KillLeader kills the current raft leader, gracefully if graceful is set so
// leadership is transferred before it exits.
func (c *Cluster) KillLeader(graceful bool) error {
	id, err := c.raftLeader()
	if err != nil {
		return err
	}
	if graceful {
		return c.Stop(id)
	}
	return c.HardStop(id)
}

// Shutdown closes the shared client and removes all containers and volumes.
func (c *Cluster) Shutdown() error {
	c.Lock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.Unlock()

	return c.compose("down", "-v")
}

// Client returns a client shared by all callers. It is closed by Shutdown.
func (c *Cluster) Client() (*clientv3.Client, error) {
	c.Lock()
	defer c.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   c.opts.Endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}

	c.client = cli
	return cli, nil
}

// WaitReady blocks until every member serves quorum reads, or returns an
// error naming the members that did not within timeout.
func (c *Cluster) WaitReady(timeout time.Duration) error {
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		multi = xerrors.NewMultiError()
	)

	for _, ep := range c.opts.Endpoints {
		wg.Add(1)
		go func(ep string) {
			defer wg.Done()
			if err := waitEndpoint(ep, timeout); err != nil {
				errMu.Lock()
				multi = multi.Add(err)
				errMu.Unlock()
			}
		}(ep)
	}

	wg.Wait()
	return multi.FinalError()
}

func (c *Cluster) compose(args ...string) error {
	if c.opts.ComposeFile != "" {
		args = append([]string{"-f", c.opts.ComposeFile}, args...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// Output populates the stderr of an *exec.ExitError
	_, err := exec.CommandContext(ctx, "docker-compose", args...).Output()
	return err
}

func (c *Cluster) raftLeader() (int, error) {
	cli, err := c.Client()
	if err != nil {
		return 0, err
	}

	for i, ep := range c.opts.Endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		status, err := cli.Status(ctx, ep)
		cancel()
		if err != nil {
			return 0, err
		}
		if status.Header.MemberId == status.Leader {
			return i, nil
		}
	}

	return 0, fmt.Errorf("no raft leader among %v", c.opts.Endpoints)
}

func waitEndpoint(endpoint string, timeout time.Duration) error {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return err
	}
	defer cli.Close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		// any quorum read proves the member is healthy
		_, err := cli.Get(ctx, "health")
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("endpoint %s not healthy within %s", endpoint, timeout.String())
}
