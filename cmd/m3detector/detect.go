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
	"io"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/detector"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the leading master every time it changes",
	Long: `Follow the leading master and print it every time it changes.

The master is located by:
  ""                        no master until one is appointed
  host:port                 a fixed master
  zk://host:2181/mesos      the master elected in ZooKeeper
  etcd://host:2379/_ld/m    the master elected in etcd
  file:///etc/mesos/master  read from a file

Examples:
  # Follow the master elected in ZooKeeper
  m3detector detect --master zk://10.0.0.1:2181,10.0.0.2:2181/mesos

  # Print the first two masters from a config file
  m3detector detect --config detector.yaml --count 2`,
	RunE: runDetect,
}

var (
	detectMaster string
	detectConfig string
	detectCount  int
)

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVarP(&detectMaster, "master", "m", "", "Where to find the master (overrides the config)")
	detectCmd.Flags().StringVarP(&detectConfig, "config", "c", "", "YAML detector config file")
	detectCmd.Flags().IntVarP(&detectCount, "count", "n", 0, "Exit after this many changes (0 to follow forever)")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(detectConfig, detectMaster)
	if err != nil {
		return err
	}

	d, err := cfg.NewDetector(newInstrumentOptions())
	if err != nil {
		return err
	}
	defer d.Close()

	return follow(cmd.Context(), d, cmd.OutOrStdout(), detectCount)
}

// follow prints leaders detected by d until ctx is done, d fails for good or
// count leaders have been printed.
func follow(ctx context.Context, d detector.Detector, w io.Writer, count int) error {
	leader := address.Empty
	for n := 0; count <= 0 || n < count; {
		next, err := d.Detect(ctx, leader)
		switch {
		case err == nil:
		case detector.IsRetryable(err):
			fmt.Fprintf(w, "leader unknown: %v\n", err)
			leader = address.Empty
			continue
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}

		leader = next
		n++
		if leader.IsEmpty() {
			fmt.Fprintln(w, "no leader")
		} else {
			fmt.Fprintln(w, leader.String())
		}
	}
	return nil
}
