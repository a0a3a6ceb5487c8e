// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package randsize chooses randomized block sizes, file sizes, and
// rewrite offsets, grounded on choose_bsize/choose_block/choose_file_size
// in original_source/cpp_src/pattern.cpp.
//
// The original drew all of these from a single global generator shared
// by every thread, which spec.md §9 flags as a data race. Each worker
// here gets its own *rand.Rand (seeded independently), resolving the
// race by construction rather than by adding a lock around a shared
// one (spec.md §10.1 Open Question decision).
package randsize

import "math/rand"

// minBSize and maxBSize bound the block sizes choose_bsize will pick
// from, per pattern.cpp's MIN_BSIZE/MAX_BSIZE.
const (
	minBSize = 256
	maxBSize = 2 * 1024 * 1024
)

// minBlocks, maxBlocks, and maxFileSize bound choose_file_size's
// result to 10-2048 blocks, capped at 64MiB total, per pattern.cpp's
// MIN_BLOCKS/MAX_BLOCKS/MAX_FSIZE.
const (
	minBlocks   = 10
	maxBlocks   = 2048
	maxFileSize = 64 * 1024 * 1024
)

// Chooser draws the randomized sizes and offsets one worker needs. Not
// safe for concurrent use; each worker owns one.
type Chooser struct {
	r *rand.Rand
}

// New returns a Chooser seeded from seed. Callers typically derive seed
// from a worker index and the process start time so that two workers
// never share a stream.
func New(seed int64) *Chooser {
	return &Chooser{r: rand.New(rand.NewSource(seed))}
}

// BlockSize picks a power-of-two block size, doubling up from
// max(minBSize, alignment) until it would reach maxsize, per
// choose_bsize. The largest candidate is the first doubling at or above
// maxsize (the driver passes 2MiB); a maxsize at or below the floor
// leaves only the floor itself to choose.
func (c *Chooser) BlockSize(alignment int, maxsize int64) int {
	base := minBSize
	if alignment > base {
		base = alignment
	}

	doublings := 0
	for size := int64(base); size < maxsize; size <<= 1 {
		doublings++
	}

	k := c.r.Intn(doublings + 1)
	return base << uint(k)
}

// FileSize picks a file length between 10 and 2048 blocks of bsize,
// capped so the file never exceeds 64MiB, per choose_file_size.
func (c *Chooser) FileSize(bsize int) int64 {
	if bsize <= 0 {
		bsize = minBSize
	}
	maxb := maxFileSize / bsize
	if maxb > maxBlocks {
		maxb = maxBlocks
	}
	if maxb <= minBlocks {
		return int64(minBlocks) * int64(bsize)
	}
	blocks := minBlocks + c.r.Intn(maxb-minBlocks)
	return int64(blocks) * int64(bsize)
}

// Offset picks a block-aligned offset within [0, fileSize-bsize] for a
// random-access rewrite, per choose_block. Returns 0 if the file is
// not large enough to hold more than one block.
func (c *Chooser) Offset(fileSize int64, bsize int) int64 {
	if bsize <= 0 || fileSize <= int64(bsize) {
		return 0
	}
	blocks := fileSize / int64(bsize)
	if blocks <= 1 {
		return 0
	}
	return c.r.Int63n(blocks) * int64(bsize)
}
