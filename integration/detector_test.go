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

//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/detector"
	"github.com/m3db/m3detector/group"
	"github.com/m3db/m3detector/group/etcd"
	"github.com/m3db/m3detector/internal/etcdcluster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	electionPrefix = "/_ld/integration/master"
	defaultWait    = 10 * time.Second
)

var (
	master1 = address.MustParse("master@10.0.0.1:5050")
	master2 = address.MustParse("master@10.0.0.2:5050")
)

type testCluster struct {
	*etcdcluster.Cluster

	t *testing.T
}

func newTestCluster(t *testing.T) *testCluster {
	tc := &testCluster{Cluster: etcdcluster.New(etcdcluster.Options{}), t: t}
	require.NoError(t, tc.Start())
	require.NoError(t, tc.WaitReady(30*time.Second))
	return tc
}

func (tc *testCluster) close() {
	assert.NoError(tc.t, tc.Shutdown())
}

func (tc *testCluster) contender() *etcd.Contender {
	cli, err := tc.Client()
	require.NoError(tc.t, err)

	c, err := etcd.NewContender(cli, electionPrefix, etcd.NewOptions().SetTTL(5))
	require.NoError(tc.t, err)
	return c
}

func detect(t *testing.T, d detector.Detector, previous address.Address) address.Address {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWait)
	defer cancel()

	leader, err := d.Detect(ctx, previous)
	require.NoError(t, err)
	return leader
}

func TestContenderLeader(t *testing.T) {
	tc := newTestCluster(t)
	defer tc.close()

	c1, c2 := tc.contender(), tc.contender()
	defer c1.Close()
	defer c2.Close()

	ctx := context.Background()
	require.NoError(t, c1.Campaign(ctx, master1.String()))
	assert.Equal(t, etcd.ErrCampaignInProgress, c1.Campaign(ctx, master1.String()))

	leader, err := c2.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, master1.String(), leader)

	elected := make(chan error, 1)
	go func() { elected <- c2.Campaign(ctx, master2.String()) }()

	require.NoError(t, c1.Resign(ctx))
	require.NoError(t, <-elected)

	leader, err = c1.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, master2.String(), leader)
}

func TestDetectElectedMaster(t *testing.T) {
	tc := newTestCluster(t)
	defer tc.close()

	d, err := detector.New(tc.URL(electionPrefix), nil)
	require.NoError(t, err)
	defer d.Close()

	c1, c2 := tc.contender(), tc.contender()
	defer c2.Close()

	ctx := context.Background()
	require.NoError(t, c1.Campaign(ctx, master1.String()))
	assert.Equal(t, master1, detect(t, d, address.Empty))

	elected := make(chan error, 1)
	go func() { elected <- c2.Campaign(ctx, master2.String()) }()

	// losing the first contender's session hands leadership over
	require.NoError(t, c1.Close())
	require.NoError(t, <-elected)
	assert.Equal(t, master2, detect(t, d, master1))

	require.NoError(t, c2.Resign(ctx))
	assert.True(t, detect(t, d, master2).IsEmpty())
}

func TestDetectSurvivesLeaderLoss(t *testing.T) {
	tc := newTestCluster(t)
	defer tc.close()

	cli, err := tc.Client()
	require.NoError(t, err)

	g, err := etcd.NewGroup(cli, electionPrefix, etcd.NewOptions())
	require.NoError(t, err)
	defer g.Close()

	d, err := detector.NewElected(g, nil)
	require.NoError(t, err)
	defer d.Close()

	c := tc.contender()
	defer c.Close()
	require.NoError(t, c.Campaign(context.Background(), master1.String()))
	assert.Equal(t, master1, detect(t, d, address.Empty))

	require.NoError(t, tc.KillLeader(true))

	// the detector keeps watching through the raft election
	m, err := g.Detect(context.Background(), group.Membership{})
	require.NoError(t, err)
	assert.False(t, m.IsZero())

	w, err := d.Watch()
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, detector.Watching, w.Get().State)
}
