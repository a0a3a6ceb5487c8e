// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report formats the periodic "REPORT ..." progress line
// loadgen emits, grounded on report.cpp.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markkampe/loadgen/internal/stats"
)

// Line renders one report line per spec.md §6's documented format:
//
//	REPORT date=MM/DD/YYYY time=HH:MM:SS tag=TAG threads=N bytes=B seconds=S rate=BPS us_buckets=b0,b1,...,bK
//
// delta is the PerfStats accumulated since the previous report (the
// caller is expected to pass a delta computed via PerfStats.Subtract,
// not the running total); elapsed is the wall-clock duration that
// delta covers, used both to round seconds and to compute rate
// (bytes/sec), matching report.cpp's use of the inter-report interval
// rather than total run time.
func Line(now time.Time, tag string, threads int, elapsed time.Duration, delta *stats.PerfStats) string {
	us := elapsed.Microseconds()
	secs := (us + 500000) / 1000000

	var rate int64
	if us > 0 {
		rate = delta.Bytes * 1000000 / us
	}

	var b strings.Builder
	fmt.Fprintf(&b, "REPORT date=%02d/%02d/%04d time=%02d:%02d:%02d tag=%s threads=%d bytes=%d seconds=%d rate=%d us_buckets=",
		now.Month(), now.Day(), now.Year(), now.Hour(), now.Minute(), now.Second(),
		tag, threads, delta.Bytes, secs, rate)

	counts := delta.BucketCounts()
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = strconv.FormatInt(c, 10)
	}
	b.WriteString(strings.Join(parts, ","))
	return b.String()
}

// Final renders the end-of-run summary line, over the full-run totals
// rather than a per-interval delta, with the last recorded problem (if
// any) appended.
func Final(now time.Time, tag string, threads int, elapsed time.Duration, totals *stats.PerfStats, problem string) string {
	line := Line(now, tag, threads, elapsed, totals)
	line = strings.Replace(line, "REPORT ", "FINAL ", 1)
	if problem != "" {
		line += " problem=" + problem
	}
	return line
}
