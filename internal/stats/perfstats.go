// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats implements the per-worker latency histogram
// (PerfStats), modeled on the teacher's fuse.LatencyMap
// (github.com/hanwen/go-fuse/v2/fuse/latencymap.go) but specialized to
// a single named set of process-wide bucket boundaries rather than a
// map keyed by operation name, and made additive/subtractable so the
// supervisor can compute per-interval deltas (perfstats.h).
package stats

// MaxBuckets bounds the number of latency buckets a process can be
// configured with.
const MaxBuckets = 24

// limits are the process-wide latency bucket boundaries, in
// microseconds, set once via SetLimits before any worker starts.
// The last bucket (index numBuckets-1) is the catch-all "anything
// larger" bucket and has no entry of its own in limits.
var (
	limits    [MaxBuckets]int64
	numBuckets int
)

// DefaultLimits mirrors the boundary vector main.cpp installs:
// doubling from 1us to 512us, then doubling from 1ms up to 512ms.
func DefaultLimits() []int64 {
	return []int64{
		1, 2, 4, 8, 16, 32, 64, 128, 256, 512,
		1000, 2000, 4000, 8000, 16000, 32000,
		64000, 128000, 256000, 512000,
	}
}

// SetLimits installs the process-wide bucket boundaries. p must be
// monotonically increasing; it is implicitly terminated (there is
// always one more bucket than len(p), catching samples above the
// last explicit boundary). Must be called before any worker starts;
// not safe to call concurrently with xfer_done.
func SetLimits(p []int64) {
	numBuckets = 0
	for _, v := range p {
		if numBuckets >= MaxBuckets-1 {
			break
		}
		limits[numBuckets] = v
		numBuckets++
	}
	numBuckets++ // the catch-all bucket
}

// NumBuckets returns the number of buckets implied by the current
// process-wide limits (including the catch-all bucket).
func NumBuckets() int {
	return numBuckets
}

func init() {
	SetLimits(DefaultLimits())
}

// PerfStats accumulates throughput and latency counters for one
// worker. Zero value is ready to use. Not internally synchronized:
// the owning worker is the sole writer, and the supervisor reads it
// at the report cadence tolerating a one-sample tear (spec.md §5).
type PerfStats struct {
	Files   int64
	Bytes   int64
	CumUs   int64
	MinUs   int64 // 0 means "no sample yet"
	MaxUs   int64
	Buckets [MaxBuckets]int64
}

// Reset zeroes every field.
func (p *PerfStats) Reset() {
	*p = PerfStats{}
}

// XferDone records one completed I/O operation of the given size and
// latency, updating totals, extrema, and the matching latency bucket.
func (p *PerfStats) XferDone(bytes int64, elapsedUs int64) {
	p.Bytes += bytes
	p.CumUs += elapsedUs

	if p.MinUs == 0 || elapsedUs < p.MinUs {
		p.MinUs = elapsedUs
	}
	if elapsedUs > p.MaxUs {
		p.MaxUs = elapsedUs
	}

	i := 0
	for ; i < numBuckets-1; i++ {
		if elapsedUs <= limits[i] {
			break
		}
	}
	p.Buckets[i]++
}

// FileDone records the completion of one file.
func (p *PerfStats) FileDone() {
	p.Files++
}

// Assign copies every field of rhs into p.
func (p *PerfStats) Assign(rhs *PerfStats) {
	*p = *rhs
}

// Add accumulates rhs into p: cumulative fields sum, extrema take the
// outer bound ("0 = unset" respected on both sides).
func (p *PerfStats) Add(rhs *PerfStats) {
	p.Files += rhs.Files
	p.Bytes += rhs.Bytes
	p.CumUs += rhs.CumUs
	for i := range p.Buckets {
		p.Buckets[i] += rhs.Buckets[i]
	}
	if rhs.MaxUs > p.MaxUs {
		p.MaxUs = rhs.MaxUs
	}
	if p.MinUs == 0 || (rhs.MinUs != 0 && rhs.MinUs < p.MinUs) {
		p.MinUs = rhs.MinUs
	}
}

// Subtract computes the delta p - rhs in place, for cumulative
// fields. min/max are NOT recomputed for the delta window: they are
// left as p's pre-subtraction extrema, an acknowledged imprecision
// carried over from the original (spec.md §4.1, §9) because the
// bucket vector does not retain enough information to know which
// sample contributed the removed min/max.
func (p *PerfStats) Subtract(rhs *PerfStats) {
	p.Files -= rhs.Files
	p.Bytes -= rhs.Bytes
	p.CumUs -= rhs.CumUs
	for i := range p.Buckets {
		p.Buckets[i] -= rhs.Buckets[i]
	}
}

// BucketCounts returns the live bucket slice (length NumBuckets()) for
// report formatting.
func (p *PerfStats) BucketCounts() []int64 {
	return p.Buckets[:numBuckets]
}
