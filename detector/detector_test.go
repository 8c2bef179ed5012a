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
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/group"
	"github.com/m3db/m3x/instrument"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	yaml "gopkg.in/yaml.v2"
)

const defaultWait = time.Second

func waitUntil(timeout time.Duration, fn func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("condition not true within %s", timeout.String())
}

func testOptions(scope tally.Scope) Options {
	return NewOptions().SetInstrumentOptions(instrument.NewOptions().SetMetricsScope(scope))
}

func counterValue(scope tally.TestScope, name string) int64 {
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name {
			return c.Value()
		}
	}
	return 0
}

// numPending reads the number of pending detections on the engine goroutine.
func numPending(t *testing.T, e *engine) int {
	ch := make(chan int, 1)
	require.True(t, e.exec.Dispatch(func() { ch <- e.waiters.Len() }))
	return <-ch
}

func waitPending(t *testing.T, e *engine, n int) {
	require.NoError(t, waitUntil(defaultWait, func() bool {
		return numPending(t, e) == n
	}))
}

type result struct {
	leader address.Address
	err    error
}

func detectAsync(d Detector, previous address.Address) <-chan result {
	ch := make(chan result, 1)
	go func() {
		leader, err := d.Detect(context.Background(), previous)
		ch <- result{leader: leader, err: err}
	}()
	return ch
}

func requireResult(t *testing.T, ch <-chan result) result {
	select {
	case r := <-ch:
		return r
	case <-time.After(defaultWait):
		require.FailNow(t, "detection not resolved")
	}
	return result{}
}

func requireNoResult(t *testing.T, ch <-chan result) {
	select {
	case r := <-ch:
		require.FailNow(t, "unexpected detection", "%v", r)
	case <-time.After(20 * time.Millisecond):
	}
}

type groupResult struct {
	m    group.Membership
	data []byte
	err  error
}

type groupCall struct {
	m      group.Membership
	result chan groupResult
}

func (c groupCall) reply(r groupResult) { c.result <- r }

// fakeGroup hands every Detect and Data call to the test and blocks until
// the test replies or the call is canceled.
type fakeGroup struct {
	detects chan groupCall
	datas   chan groupCall
	closed  int32
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{
		detects: make(chan groupCall, 16),
		datas:   make(chan groupCall, 16),
	}
}

func (g *fakeGroup) Detect(ctx context.Context, previous group.Membership) (group.Membership, error) {
	r, err := g.call(ctx, g.detects, previous)
	return r.m, err
}

func (g *fakeGroup) Data(ctx context.Context, m group.Membership) ([]byte, error) {
	r, err := g.call(ctx, g.datas, m)
	return r.data, err
}

func (g *fakeGroup) call(ctx context.Context, calls chan groupCall, m group.Membership) (groupResult, error) {
	c := groupCall{m: m, result: make(chan groupResult, 1)}
	calls <- c
	select {
	case r := <-c.result:
		return r, r.err
	case <-ctx.Done():
		return groupResult{}, ctx.Err()
	}
}

func (g *fakeGroup) Close() error {
	atomic.AddInt32(&g.closed, 1)
	return nil
}

func (g *fakeGroup) numClosed() int {
	return int(atomic.LoadInt32(&g.closed))
}

func (g *fakeGroup) nextDetect(t *testing.T) groupCall {
	select {
	case c := <-g.detects:
		return c
	case <-time.After(defaultWait):
		require.FailNow(t, "group detection not armed")
	}
	return groupCall{}
}

func (g *fakeGroup) nextData(t *testing.T) groupCall {
	select {
	case c := <-g.datas:
		return c
	case <-time.After(defaultWait):
		require.FailNow(t, "group data not fetched")
	}
	return groupCall{}
}

func (g *fakeGroup) requireNoDetect(t *testing.T) {
	select {
	case c := <-g.detects:
		require.FailNow(t, "unexpected group detection", "previous %v", c.m)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNewEmptySpec(t *testing.T) {
	d, err := New("", nil)
	require.NoError(t, err)
	defer d.Close()

	s, ok := d.(*Standalone)
	require.True(t, ok)

	ch := detectAsync(d, address.Empty)
	requireNoResult(t, ch)

	s.Appoint(address.MustParse("master@10.0.0.1:5050"))
	assert.Equal(t, address.MustParse("master@10.0.0.1:5050"), requireResult(t, ch).leader)
}

func TestNewLiteralAddress(t *testing.T) {
	for master, exp := range map[string]address.Address{
		"10.0.0.2:5050":            address.New("master", "10.0.0.2", 5050),
		"master@10.0.0.2:5051":     address.New("master", "10.0.0.2", 5051),
		"master@leader.local:5050": address.New("master", "leader.local", 5050),
	} {
		d, err := New(master, nil)
		require.NoError(t, err, master)

		leader, err := d.Detect(context.Background(), address.Empty)
		require.NoError(t, err, master)
		assert.Equal(t, exp, leader, master)
		require.NoError(t, d.Close())
	}
}

func TestNewErrors(t *testing.T) {
	for master, msg := range map[string]string{
		"not-an-address":    "Failed to parse 'not-an-address'",
		"10.0.0.2:99999":    "Failed to parse '10.0.0.2:99999'",
		"foo@10.0.0.1:5050": "Failed to parse 'foo@10.0.0.1:5050'",
		"zk://host:2181/":   "Expecting a (chroot) path for ZooKeeper ('/' is not supported)",
		"zk://host:2181":    "Expecting a (chroot) path for ZooKeeper ('/' is not supported)",
		"etcd://host:2379/": "Expecting a (prefix) path for etcd ('/' is not supported)",
		"zk:///mesos":       "Expecting at least one server in the URL",
		"file:///nonexist":  "Failed to read from file at '/nonexist'",
	} {
		d, err := New(master, nil)
		require.Error(t, err, master)
		assert.Nil(t, d, master)
		assert.True(t, IsConfigError(err), master)
		assert.Equal(t, msg, err.Error(), master)
	}
}

func TestNewElectedOwnsGroup(t *testing.T) {
	var (
		g   = newFakeGroup()
		got group.URL
	)
	opts := NewOptions().SetNewGroupFn(func(u group.URL, _ Options) (group.Group, error) {
		got = u
		return g, nil
	})

	d, err := New("zk://user:pass@host1:2181,host2:2181/mesos", opts)
	require.NoError(t, err)

	_, ok := d.(*Elected)
	require.True(t, ok)
	assert.Equal(t, group.SchemeZooKeeper, got.Scheme)
	assert.Equal(t, []string{"host1:2181", "host2:2181"}, got.Servers)
	assert.Equal(t, "/mesos", got.Path)
	require.NotNil(t, got.Authentication)
	assert.Equal(t, "user:pass", got.Authentication.Credentials)

	g.nextDetect(t)
	require.NoError(t, d.Close())
	assert.Equal(t, 1, g.numClosed())
}

func TestNewGroupError(t *testing.T) {
	opts := NewOptions().SetNewGroupFn(func(group.URL, Options) (group.Group, error) {
		return nil, fmt.Errorf("connection refused")
	})

	_, err := New("etcd://127.0.0.1:2379/_ld/master", opts)
	require.Error(t, err)
	assert.False(t, IsConfigError(err))
}

func TestNewFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "master")
	require.NoError(t, os.WriteFile(path, []byte("  master@10.0.0.2:5050\n"), 0644))

	d, err := New("file://"+path, nil)
	require.NoError(t, err)
	defer d.Close()

	leader, err := d.Detect(context.Background(), address.Empty)
	require.NoError(t, err)
	assert.Equal(t, address.New("master", "10.0.0.2", 5050), leader)

	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.WriteFile(nested, []byte("file://"+path), 0644))

	_, err = New("file://"+nested, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestNewInvalidOptions(t *testing.T) {
	_, err := New("", NewOptions().SetInstrumentOptions(nil))
	assert.Equal(t, errNilInstrumentOptions, err)
}

func TestDecodeAddress(t *testing.T) {
	a, err := DecodeAddress([]byte("master@10.0.0.3:5050\n"))
	require.NoError(t, err)
	assert.Equal(t, address.New("master", "10.0.0.3", 5050), a)

	a, err = DecodeAddress([]byte(`{"id":"m1","pid":"master@10.0.0.1:5050","hostname":"m1.local"}`))
	require.NoError(t, err)
	assert.Equal(t, address.New("master", "10.0.0.1", 5050), a)

	a, err = DecodeAddress([]byte(`{"address":{"hostname":"m2.local","ip":"10.0.0.2","port":5050}}`))
	require.NoError(t, err)
	assert.Equal(t, address.New("master", "10.0.0.2", 5050), a)

	a, err = DecodeAddress([]byte(`{"address":{"hostname":"m2.local","port":5051}}`))
	require.NoError(t, err)
	assert.Equal(t, address.New("master", "m2.local", 5051), a)

	for _, data := range []string{
		`{"hostname":"10.0.0.3"}`,
		`{"pid":"10.0.0.3:5050"}`,
		`{"pid":`,
	} {
		_, err = DecodeAddress([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestConfiguration(t *testing.T) {
	config := `
master: zk://10.0.0.1:2181,10.0.0.2:2181/mesos
zookeeper:
  sessionTimeout: 5s
  labels:
    - info_
etcd:
  ttl: 15
`
	var cfg Configuration
	require.NoError(t, yaml.Unmarshal([]byte(config), &cfg))
	assert.Equal(t, "zk://10.0.0.1:2181,10.0.0.2:2181/mesos", cfg.Master)

	iopts := instrument.NewOptions()
	opts := cfg.NewOptions(iopts)
	require.NoError(t, opts.Validate())
	assert.Equal(t, 5*time.Second, opts.ZooKeeperOptions().SessionTimeout())
	assert.Equal(t, []string{"info_"}, opts.ZooKeeperOptions().Labels())
	assert.Equal(t, 15, opts.EtcdOptions().TTL())

	cfg = Configuration{Master: "master@10.0.0.4:5050"}
	d, err := cfg.NewDetector(iopts)
	require.NoError(t, err)
	defer d.Close()

	leader, err := d.Detect(context.Background(), address.Empty)
	require.NoError(t, err)
	assert.Equal(t, address.New("master", "10.0.0.4", 5050), leader)
}
