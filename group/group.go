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

// Package group defines the group membership service consumed by leader
// detection. A group is a set of memberships registered with a coordination
// service; the leading membership carries the serialized address of the
// leader as its payload.
package group

//go:generate mockgen -package group -destination group_mock.go github.com/m3db/m3detector/group Group

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMembershipNotFound is returned by Data when the membership no
	// longer exists.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrGroupClosed is returned by a group that has been closed.
	ErrGroupClosed = errors.New("group is closed")
)

// Membership identifies one registration in the group. The zero value means
// "no member".
type Membership struct {
	// Key locates the membership in the coordination service.
	Key string

	// Sequence orders memberships; the lowest sequence leads.
	Sequence int64
}

// IsZero returns true if m is the absent membership.
func (m Membership) IsZero() bool { return m == Membership{} }

func (m Membership) String() string {
	if m.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s(%d)", m.Key, m.Sequence)
}

// Group is a group membership service.
type Group interface {
	// Detect blocks until the leading membership differs from previous and
	// returns it, or the zero Membership if the group has no members. Any
	// error returned is not retryable; implementations retry transient
	// failures themselves.
	Detect(ctx context.Context, previous Membership) (Membership, error)

	// Data fetches the payload registered by m. Errors are retryable.
	Data(ctx context.Context, m Membership) ([]byte, error)

	// Close releases the group and its connection.
	Close() error
}
