// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clock provides the monotonic microsecond clock and the
// per-operation rate pacer used by the timed I/O path. There is no
// direct teacher equivalent (go-fuse has no pacer), but the style —
// time.Now()/time.Since() arithmetic feeding a stats sink — follows
// (*fuse.Server).recordStats in fuse/server.go.
package clock

import "time"

// epoch anchors NowUs; time.Since on it uses the monotonic clock reading.
var epoch = time.Now()

// NowUs returns a monotonic timestamp in microseconds. Only
// differences between two NowUs() calls are meaningful.
func NowUs() int64 {
	return time.Since(epoch).Microseconds()
}

// Pacer enforces a per-thread byte-rate budget: given the elapsed time
// and byte count of an operation just completed, it sleeps for the
// excess over the configured rate. A zero-value Pacer (Rate == 0) is
// a no-op, matching "unpaced" mode.
type Pacer struct {
	// Rate is the target bytes/sec budget. Zero disables pacing.
	Rate int64

	// Sleep is the function used to stall; overridable in tests.
	// Defaults to time.Sleep when nil.
	Sleep func(time.Duration)
}

// Stall sleeps the calling goroutine long enough to keep the
// just-completed transfer of n bytes, which took elapsedUs
// microseconds, at or below the configured rate. Returns the duration
// it slept (for tests and the D_SLEEP diagnostic).
func (p *Pacer) Stall(n int64, elapsedUs int64) time.Duration {
	if p.Rate <= 0 {
		return 0
	}
	expectedUs := (1_000_000 * n) / p.Rate
	if expectedUs <= elapsedUs {
		return 0
	}
	needed := time.Duration(expectedUs-elapsedUs) * time.Microsecond
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(needed)
	return needed
}
