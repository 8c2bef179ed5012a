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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/detector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollow(t *testing.T) {
	s, err := detector.NewStandaloneWithLeader(address.MustParse("master@10.0.0.1:5050"), nil)
	require.NoError(t, err)
	defer s.Close()

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- follow(context.Background(), s, &buf, 1) }()
	require.NoError(t, <-done)
	assert.Equal(t, "master@10.0.0.1:5050\n", buf.String())
}

func TestFollowCanceled(t *testing.T) {
	s, err := detector.NewStandalone(nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	require.NoError(t, follow(ctx, s, &buf, 0))
	assert.Empty(t, buf.String())
}

func TestFollowClosed(t *testing.T) {
	s, err := detector.NewStandalone(nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	var buf bytes.Buffer
	assert.Equal(t, detector.ErrClosed, follow(context.Background(), s, &buf, 0))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detector.yaml")
	require.NoError(t, os.WriteFile(path, []byte("master: zk://10.0.0.1:2181/mesos\n"), 0644))

	cfg, err := loadConfig(path, "")
	require.NoError(t, err)
	assert.Equal(t, "zk://10.0.0.1:2181/mesos", cfg.Master)

	cfg, err = loadConfig(path, "master@10.0.0.2:5050")
	require.NoError(t, err)
	assert.Equal(t, "master@10.0.0.2:5050", cfg.Master)

	require.NoError(t, os.WriteFile(path, []byte("unknown: field\n"), 0644))
	_, err = loadConfig(path, "")
	assert.Error(t, err)
}
