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
	"github.com/m3db/m3detector/group/etcd"
	"github.com/m3db/m3detector/group/zookeeper"
	"github.com/m3db/m3x/instrument"
)

// Configuration is the config for detectors.
type Configuration struct {
	// Master locates the leading master, see New.
	Master string `yaml:"master"`

	ZooKeeper *zookeeper.Configuration `yaml:"zookeeper"`
	Etcd      *etcd.Configuration      `yaml:"etcd"`
}

// NewOptions creates an Option. The backends share iopts with the detector.
func (cfg Configuration) NewOptions(iopts instrument.Options) Options {
	var (
		zkCfg   zookeeper.Configuration
		etcdCfg etcd.Configuration
	)
	if cfg.ZooKeeper != nil {
		zkCfg = *cfg.ZooKeeper
	}
	if cfg.Etcd != nil {
		etcdCfg = *cfg.Etcd
	}

	return NewOptions().
		SetInstrumentOptions(iopts).
		SetZooKeeperOptions(zkCfg.NewOptions().SetInstrumentOptions(iopts)).
		SetEtcdOptions(etcdCfg.NewOptions().SetInstrumentOptions(iopts))
}

// NewDetector creates the detector of cfg.Master.
func (cfg Configuration) NewDetector(iopts instrument.Options) (Detector, error) {
	return New(cfg.Master, cfg.NewOptions(iopts))
}
