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

// Package address describes the network address of a cluster process in the
// "id@host:port" form used to advertise leading masters.
package address

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const idSeparator = "@"

var (
	errMissingID   = errors.New("missing process id")
	errMissingHost = errors.New("missing host")
	errInvalidHost = errors.New("invalid host")
	errInvalidPort = errors.New("invalid port")
)

// Empty is the absent address; it means no leader is known.
var Empty = Address{}

// Address identifies a single process. Addresses are comparable with ==.
type Address struct {
	ID   string
	Host string
	Port int
}

// New returns an address for the given id, host and port.
func New(id, host string, port int) Address {
	return Address{ID: id, Host: host, Port: port}
}

// IsEmpty returns true if the address is the absent address.
func (a Address) IsEmpty() bool { return a == Empty }

// HostPort returns the "host:port" part of the address.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) String() string {
	if a.IsEmpty() {
		return ""
	}
	return a.ID + idSeparator + a.HostPort()
}

// Parse parses an address of the form "id@host:port".
func Parse(s string) (Address, error) {
	idx := strings.Index(s, idSeparator)
	if idx < 0 {
		return Empty, fmt.Errorf("could not parse address %q: %v", s, errMissingID)
	}

	id := s[:idx]
	if id == "" {
		return Empty, fmt.Errorf("could not parse address %q: %v", s, errMissingID)
	}

	host, portStr, err := net.SplitHostPort(s[idx+len(idSeparator):])
	if err != nil {
		return Empty, fmt.Errorf("could not parse address %q: %v", s, err)
	}

	if host == "" {
		return Empty, fmt.Errorf("could not parse address %q: %v", s, errMissingHost)
	}

	if strings.ContainsAny(host, "@/ \t\n") {
		return Empty, fmt.Errorf("could not parse address %q: %v", s, errInvalidHost)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Empty, fmt.Errorf("could not parse address %q: %v", s, errInvalidPort)
	}

	return Address{ID: id, Host: host, Port: port}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}
