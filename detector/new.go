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
	"os"
	"strings"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/group"
)

const (
	fileScheme = "file://"
	defaultID  = "master"
)

// New returns the detector described by the master string:
//
//	""                              standalone, no leader appointed
//	zk://[auth@]servers/path        elected by the ZooKeeper group at path
//	etcd://[auth@]endpoints/prefix  elected by the etcd election at prefix
//	file://path                     the detector described by the file at path
//	[master@]host:port              standalone, host:port appointed
//
// Malformed strings are reported as a ConfigError. Elected detectors own the
// group they connect to.
func New(master string, opts Options) (Detector, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return newDetector(master, opts, true)
}

func newDetector(master string, opts Options, followFile bool) (Detector, error) {
	switch {
	case master == "":
		return newStandalone(address.Empty, opts)

	case strings.HasPrefix(master, group.SchemeZooKeeper+"://"),
		strings.HasPrefix(master, group.SchemeEtcd+"://"):
		return newElectedFromURL(master, opts)

	case strings.HasPrefix(master, fileScheme):
		path := strings.TrimPrefix(master, fileScheme)
		if !followFile {
			return nil, newConfigError("Failed to follow '%s': a file must not point at another file", master)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, newConfigError("Failed to read from file at '%s'", path)
		}
		return newDetector(strings.TrimSpace(string(data)), opts, false)
	}

	s := master
	if !strings.HasPrefix(s, defaultID+"@") {
		s = defaultID + "@" + s
	}
	leader, err := address.Parse(s)
	if err != nil {
		return nil, newConfigError("Failed to parse '%s'", master)
	}
	return newStandalone(leader, opts)
}

func newStandalone(leader address.Address, opts Options) (Detector, error) {
	s, err := NewStandaloneWithLeader(leader, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newElectedFromURL(master string, opts Options) (Detector, error) {
	u, err := group.ParseURL(master)
	if err != nil {
		return nil, newConfigError("%s", err.Error())
	}

	if u.Path == "/" {
		switch u.Scheme {
		case group.SchemeZooKeeper:
			return nil, newConfigError("Expecting a (chroot) path for ZooKeeper ('/' is not supported)")
		default:
			return nil, newConfigError("Expecting a (prefix) path for etcd ('/' is not supported)")
		}
	}

	g, err := opts.NewGroupFn()(u, opts)
	if err != nil {
		return nil, err
	}

	e, err := NewElected(g, opts.SetOwnsGroup(true))
	if err != nil {
		g.Close()
		return nil, err
	}
	return e, nil
}
