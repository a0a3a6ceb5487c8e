// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bufset implements the aligned, pinned buffer set each
// worker uses for its I/O. It generalizes the teacher's page-multiple
// free-list pool (fuse.BufferPoolImpl, fuse/bufferpool.go) into a
// fixed N-by-S pinned arena sized to one worker's AIO depth, using
// golang.org/x/sys/unix for the mmap/mlock primitives the teacher's
// own dependency set already provides (the nearest equivalent to
// posix_memalign+mlock in bufset.cpp).
package bufset

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Set is a pinned, aligned pool of Count identically sized buffers.
// The zero value is a valid "failed construction" Set: Count is 0 and
// Buffer always returns nil, matching the self-describing null value
// described in spec.md §4.4.
type Set struct {
	raw    []byte // the full mmap allocation, needed to munmap
	region []byte // the aligned sub-slice buffers are carved from
	count  int
	size   int
}

// New allocates count buffers of size bytes each, aligned to
// alignment (which must be a power of two; 0 or 1 means "no special
// alignment beyond the page"), and locks the whole arena into
// physical memory for the Set's lifetime.
//
// On allocation failure New returns a zero-buffer Set alongside the
// error: callers that only check Count() == 0 get the documented null
// behavior without handling the error specially.
func New(count, size, alignment int) (*Set, error) {
	if count <= 0 || size <= 0 {
		return &Set{}, fmt.Errorf("bufset: invalid dimensions count=%d size=%d", count, size)
	}
	if alignment <= 0 {
		alignment = 1
	}
	total := count * size

	raw, err := unix.Mmap(-1, 0, total+alignment,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return &Set{}, fmt.Errorf("bufset: mmap %d bytes: %w", total+alignment, err)
	}

	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
	offset := int(aligned - base)
	region := raw[offset : offset+total]

	if err := unix.Mlock(region); err != nil {
		unix.Munmap(raw)
		return &Set{}, fmt.Errorf("bufset: mlock %d bytes: %w", total, err)
	}

	return &Set{raw: raw, region: region, count: count, size: size}, nil
}

// Count returns the number of buffers in the set (0 if construction
// failed).
func (s *Set) Count() int {
	return s.count
}

// Size returns the size of each buffer.
func (s *Set) Size() int {
	return s.size
}

// Buffer returns the byte slice backing buffer i, or nil if i is out
// of range or the set failed to construct.
func (s *Set) Buffer(i int) []byte {
	if s.count == 0 || i < 0 || i >= s.count {
		return nil
	}
	return s.region[i*s.size : (i+1)*s.size]
}

// Close unpins and releases the arena. Safe to call on a zero-value
// (failed) Set.
func (s *Set) Close() error {
	if s.raw == nil {
		return nil
	}
	if s.count > 0 {
		unix.Munlock(s.region)
	}
	err := unix.Munmap(s.raw)
	s.raw = nil
	s.region = nil
	s.count = 0
	return err
}
