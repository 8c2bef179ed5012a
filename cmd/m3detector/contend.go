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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/group/etcd"

	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var contendCmd = &cobra.Command{
	Use:   "contend",
	Short: "Campaign in etcd to lead as the given master",
	Long: `Campaign for leadership of an etcd election and hold it until interrupted.

Detectors created with etcd://<endpoints><prefix> follow this election.

Example:
  m3detector contend --endpoints 127.0.0.1:2379 --prefix /_ld/master --address master@10.0.0.1:5050`,
	RunE: runContend,
}

var (
	contendEndpoints string
	contendPrefix    string
	contendAddress   string
	contendTTL       int
)

func init() {
	rootCmd.AddCommand(contendCmd)

	contendCmd.Flags().StringVar(&contendEndpoints, "endpoints", "127.0.0.1:2379", "Comma separated etcd endpoints")
	contendCmd.Flags().StringVar(&contendPrefix, "prefix", "", "Election prefix")
	contendCmd.Flags().StringVar(&contendAddress, "address", "", "Address to lead as (id@host:port)")
	contendCmd.Flags().IntVar(&contendTTL, "ttl", 10, "Session TTL in seconds")
	contendCmd.MarkFlagRequired("prefix")
	contendCmd.MarkFlagRequired("address")
}

func runContend(cmd *cobra.Command, _ []string) error {
	leader, err := address.Parse(contendAddress)
	if err != nil {
		return err
	}

	opts := etcd.NewOptions().
		SetTTL(contendTTL).
		SetInstrumentOptions(newInstrumentOptions())
	logger := opts.InstrumentOptions().Logger()

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(contendEndpoints, ","),
		DialTimeout: opts.DialTimeout(),
	})
	if err != nil {
		return err
	}
	defer cli.Close()

	c, err := etcd.NewContender(cli, contendPrefix, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	if err := c.Campaign(ctx, leader.String()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("campaign failed: %v", err)
	}
	logger.Infof("leading %s as %s", contendPrefix, leader.String())

	select {
	case <-ctx.Done():
	case <-c.Done():
		return etcd.ErrSessionExpired
	}

	resignCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Resign(resignCtx)
}
