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
	"github.com/uber-go/tally"
)

type detectorMetrics struct {
	leaderChanges tally.Counter
	detectErrors  tally.Counter
	fetchErrors   tally.Counter
	staleFetches  tally.Counter
	pending       tally.Gauge
}

func newDetectorMetrics(scope tally.Scope) detectorMetrics {
	return detectorMetrics{
		leaderChanges: scope.Counter("leader-changes"),
		detectErrors:  scope.Counter("detect-errors"),
		fetchErrors:   scope.Counter("fetch-errors"),
		staleFetches:  scope.Counter("stale-fetches"),
		pending:       scope.Gauge("pending-requests"),
	}
}
