// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"strings"
	"testing"
	"time"

	"github.com/markkampe/loadgen/internal/stats"
)

func TestLineIncludesDocumentedFields(t *testing.T) {
	var s stats.PerfStats
	s.XferDone(4096, 100)
	s.XferDone(4096, 200)
	s.FileDone()

	now := time.Date(2026, time.March, 5, 13, 4, 5, 0, time.UTC)
	line := Line(now, "run1", 4, 10*time.Second, &s)

	for _, want := range []string{
		"REPORT date=03/05/2026 time=13:04:05 tag=run1 threads=4",
		"bytes=8192", "seconds=10", "rate=819", "us_buckets=",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("Line = %q, missing %q", line, want)
		}
	}
}

func TestLineEmitsDenseBucketVector(t *testing.T) {
	var s stats.PerfStats
	line := Line(time.Unix(0, 0), "", 1, time.Second, &s)

	idx := strings.Index(line, "us_buckets=")
	if idx < 0 {
		t.Fatalf("Line = %q, missing us_buckets=", line)
	}
	buckets := line[idx+len("us_buckets="):]
	n := strings.Count(buckets, ",") + 1
	if n != stats.NumBuckets() {
		t.Errorf("us_buckets has %d entries, want %d (all buckets, not just nonzero)", n, stats.NumBuckets())
	}
}

func TestLineComputesRateFromBytesOverSeconds(t *testing.T) {
	var s stats.PerfStats
	s.XferDone(1_000_000, 1)

	line := Line(time.Unix(0, 0), "t", 1, 2*time.Second, &s)
	if !strings.Contains(line, "rate=500000") {
		t.Errorf("Line = %q, want rate=500000 (1000000 bytes / 2 seconds)", line)
	}
}

func TestFinalIncludesProblem(t *testing.T) {
	var s stats.PerfStats
	line := Final(time.Unix(0, 0), "t", 0, 0, &s, "resource-error")
	if !strings.HasPrefix(line, "FINAL ") {
		t.Errorf("Final = %q, want FINAL prefix", line)
	}
	if !strings.Contains(line, "problem=resource-error") {
		t.Errorf("Final = %q, missing problem", line)
	}
}

func TestFinalOmitsProblemWhenClean(t *testing.T) {
	var s stats.PerfStats
	line := Final(time.Unix(0, 0), "t", 0, 0, &s, "")
	if strings.Contains(line, "problem=") {
		t.Errorf("Final = %q, should omit problem field when empty", line)
	}
}
