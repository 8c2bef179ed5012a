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

package group

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// SchemeZooKeeper is the URL scheme of ZooKeeper backed groups.
	SchemeZooKeeper = "zk"

	// SchemeEtcd is the URL scheme of etcd backed groups.
	SchemeEtcd = "etcd"

	schemeSeparator = "://"
	digestScheme    = "digest"
	digestParam     = "digest"
	serverSeparator = ","
)

var errNoServers = errors.New("Expecting at least one server in the URL")

// Authentication holds the credentials used to authenticate with the
// coordination service.
type Authentication struct {
	Scheme      string
	Credentials string
}

// URL locates a group: the servers of the coordination service and the
// path under which the members are registered.
type URL struct {
	Scheme         string
	Servers        []string
	Path           string
	Authentication *Authentication
}

func (u URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString(schemeSeparator)
	if u.Authentication != nil {
		b.WriteString(u.Authentication.Credentials)
		b.WriteString("@")
	}
	b.WriteString(strings.Join(u.Servers, serverSeparator))
	b.WriteString(u.Path)
	return b.String()
}

// ParseURL parses "scheme://[user:pass@]host1:port1,host2:port2[/path][?digest=user:pass]".
// A missing path is returned as "/".
func ParseURL(s string) (URL, error) {
	s = strings.TrimSpace(s)

	idx := strings.Index(s, schemeSeparator)
	if idx <= 0 {
		return URL{}, fmt.Errorf("Expecting '<scheme>://' at the beginning of the URL")
	}
	scheme := s[:idx]
	if scheme != SchemeZooKeeper && scheme != SchemeEtcd {
		return URL{}, fmt.Errorf("Unsupported URL scheme '%s'", scheme)
	}
	s = s[idx+len(schemeSeparator):]

	var auth *Authentication
	if q := strings.Index(s, "?"); q >= 0 {
		values, err := url.ParseQuery(s[q+1:])
		if err != nil {
			return URL{}, fmt.Errorf("Failed to parse URL query: %v", err)
		}
		s = s[:q]
		if creds := values.Get(digestParam); creds != "" {
			if strings.Count(creds, ":") != 1 {
				return URL{}, errors.New("Found more than one ':' in credentials")
			}
			auth = &Authentication{Scheme: digestScheme, Credentials: creds}
		}
	}

	// Passwords may contain '/' and '@': the servers follow the last '@'
	// before the path.
	if at := strings.Index(s, "@"); at >= 0 {
		end := len(s)
		if p := strings.Index(s[at:], "/"); p >= 0 {
			end = at + p
		}
		at = strings.LastIndex(s[:end], "@")
		creds := s[:at]
		if strings.Count(creds, ":") != 1 {
			return URL{}, errors.New("Found more than one ':' in credentials")
		}
		auth = &Authentication{Scheme: digestScheme, Credentials: creds}
		s = s[at+1:]
	}

	path := "/"
	if p := strings.Index(s, "/"); p >= 0 {
		path = s[p:]
		s = s[:p]
	}

	var servers []string
	for _, server := range strings.Split(s, serverSeparator) {
		if server = strings.TrimSpace(server); server != "" {
			servers = append(servers, server)
		}
	}
	if len(servers) == 0 {
		return URL{}, errNoServers
	}

	return URL{
		Scheme:         scheme,
		Servers:        servers,
		Path:           path,
		Authentication: auth,
	}, nil
}
