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
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/m3db/m3detector/address"
	"github.com/m3db/m3detector/group"
	"github.com/m3db/m3detector/group/etcd"
	"github.com/m3db/m3detector/group/zookeeper"
	"github.com/m3db/m3x/instrument"
)

var (
	errNilInstrumentOptions = errors.New("detector instrument options cannot be nil")
	errNilDecodeFn          = errors.New("detector decode fn cannot be nil")
	errNilNewGroupFn        = errors.New("detector new group fn cannot be nil")
	errNilZooKeeperOptions  = errors.New("detector zookeeper options cannot be nil")
	errNilEtcdOptions       = errors.New("detector etcd options cannot be nil")
	errNoLeaderAddress      = errors.New("leader info has neither a pid nor an address")
)

// DecodeFn decodes the data of a leading member into its address.
type DecodeFn func(data []byte) (address.Address, error)

// NewGroupFn connects to the group located by u.
type NewGroupFn func(u group.URL, opts Options) (group.Group, error)

// Options are the options of detectors.
type Options interface {
	// InstrumentOptions provide the logger and metrics scope.
	InstrumentOptions() instrument.Options
	SetInstrumentOptions(value instrument.Options) Options

	// DecodeFn decodes leader payloads, DecodeAddress by default.
	DecodeFn() DecodeFn
	SetDecodeFn(value DecodeFn) Options

	// OwnsGroup is whether an elected detector closes its group when it is
	// closed. Detectors built by New always own their group.
	OwnsGroup() bool
	SetOwnsGroup(value bool) Options

	// NewGroupFn builds the groups of elected detectors created by New.
	NewGroupFn() NewGroupFn
	SetNewGroupFn(value NewGroupFn) Options

	ZooKeeperOptions() zookeeper.Options
	SetZooKeeperOptions(value zookeeper.Options) Options

	EtcdOptions() etcd.Options
	SetEtcdOptions(value etcd.Options) Options

	Validate() error
}

type options struct {
	iopts      instrument.Options
	decodeFn   DecodeFn
	ownsGroup  bool
	newGroupFn NewGroupFn
	zkOpts     zookeeper.Options
	etcdOpts   etcd.Options
}

// NewOptions returns the default detector options.
func NewOptions() Options {
	return options{
		iopts:      instrument.NewOptions(),
		decodeFn:   DecodeAddress,
		newGroupFn: NewGroup,
		zkOpts:     zookeeper.NewOptions(),
		etcdOpts:   etcd.NewOptions(),
	}
}

func (o options) InstrumentOptions() instrument.Options { return o.iopts }

func (o options) SetInstrumentOptions(value instrument.Options) Options {
	o.iopts = value
	return o
}

func (o options) DecodeFn() DecodeFn { return o.decodeFn }

func (o options) SetDecodeFn(value DecodeFn) Options {
	o.decodeFn = value
	return o
}

func (o options) OwnsGroup() bool { return o.ownsGroup }

func (o options) SetOwnsGroup(value bool) Options {
	o.ownsGroup = value
	return o
}

func (o options) NewGroupFn() NewGroupFn { return o.newGroupFn }

func (o options) SetNewGroupFn(value NewGroupFn) Options {
	o.newGroupFn = value
	return o
}

func (o options) ZooKeeperOptions() zookeeper.Options { return o.zkOpts }

func (o options) SetZooKeeperOptions(value zookeeper.Options) Options {
	o.zkOpts = value
	return o
}

func (o options) EtcdOptions() etcd.Options { return o.etcdOpts }

func (o options) SetEtcdOptions(value etcd.Options) Options {
	o.etcdOpts = value
	return o
}

func (o options) Validate() error {
	if o.iopts == nil {
		return errNilInstrumentOptions
	}
	if o.decodeFn == nil {
		return errNilDecodeFn
	}
	if o.newGroupFn == nil {
		return errNilNewGroupFn
	}
	if o.zkOpts == nil {
		return errNilZooKeeperOptions
	}
	if o.etcdOpts == nil {
		return errNilEtcdOptions
	}
	return nil
}

// masterInfo is the JSON payload of json.info_ members.
type masterInfo struct {
	PID     string `json:"pid"`
	Address *struct {
		Hostname string `json:"hostname"`
		IP       string `json:"ip"`
		Port     int    `json:"port"`
	} `json:"address"`
}

// DecodeAddress decodes "id@host:port" leader payloads, ignoring surrounding
// whitespace, and the JSON payloads of json.info_ members from their pid, or
// their address when the pid is missing.
func DecodeAddress(data []byte) (address.Address, error) {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, "{") {
		return address.Parse(s)
	}

	var info masterInfo
	if err := json.Unmarshal([]byte(s), &info); err != nil {
		return address.Empty, fmt.Errorf("could not decode leader info: %v", err)
	}
	if info.PID != "" {
		return address.Parse(info.PID)
	}
	if info.Address == nil {
		return address.Empty, errNoLeaderAddress
	}
	host := info.Address.IP
	if host == "" {
		host = info.Address.Hostname
	}
	return address.Parse(defaultID + "@" + net.JoinHostPort(host, strconv.Itoa(info.Address.Port)))
}

// NewGroup connects to the ZooKeeper or etcd group located by u.
func NewGroup(u group.URL, opts Options) (group.Group, error) {
	var (
		g   group.Group
		err error
	)
	switch u.Scheme {
	case group.SchemeZooKeeper:
		g, err = newZooKeeperGroup(u, opts.ZooKeeperOptions())
	case group.SchemeEtcd:
		g, err = newEtcdGroup(u, opts.EtcdOptions())
	default:
		err = newConfigError("Unsupported URL scheme '%s'", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func newZooKeeperGroup(u group.URL, opts zookeeper.Options) (group.Group, error) {
	g, err := zookeeper.NewGroup(u.Servers, u.Path, u.Authentication, opts)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func newEtcdGroup(u group.URL, opts etcd.Options) (group.Group, error) {
	g, err := etcd.NewGroupFromURL(u, opts)
	if err != nil {
		return nil, err
	}
	return g, nil
}
