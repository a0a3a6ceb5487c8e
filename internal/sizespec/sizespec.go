// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sizespec parses the K/M/G/T-suffixed size arguments and the
// PATH:OFFSET target-path arguments loadgen takes on its command
// line, grounded on getSizeSpec/getOffset in original_source/cpp_src/main.cpp.
package sizespec

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parse converts a size argument like "64K", "4M", "2G", "1T", or a
// bare byte count, into a byte count. The suffix is case-insensitive;
// only one trailing letter is recognized.
func Parse(spec string) (int64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, errors.New("sizespec: empty size")
	}

	mult := int64(1)
	last := spec[len(spec)-1]
	digits := spec
	switch last {
	case 'k', 'K':
		mult = 1 << 10
		digits = spec[:len(spec)-1]
	case 'm', 'M':
		mult = 1 << 20
		digits = spec[:len(spec)-1]
	case 'g', 'G':
		mult = 1 << 30
		digits = spec[:len(spec)-1]
	case 't', 'T':
		mult = 1 << 40
		digits = spec[:len(spec)-1]
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "sizespec: invalid size %q", spec)
	}
	if n < 0 {
		return 0, errors.Errorf("sizespec: negative size %q", spec)
	}
	return n * mult, nil
}

// PathOffset splits a "PATH:OFFSET" target-path argument. OFFSET
// is itself a size spec (K/M/G/T suffix allowed) and is optional; its
// absence means 0. A bare path with no colon is returned unchanged
// with offset 0. Windows-style drive letters are not a concern here,
// so the first colon always splits the argument.
func PathOffset(arg string) (path string, offset int64, err error) {
	idx := strings.IndexByte(arg, ':')
	if idx < 0 {
		return arg, 0, nil
	}
	path = arg[:idx]
	offStr := arg[idx+1:]
	if offStr == "" {
		return path, 0, nil
	}
	offset, err = Parse(offStr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "sizespec: bad offset in %q", arg)
	}
	return path, offset, nil
}
