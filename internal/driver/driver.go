// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package driver implements the three workload bodies loadgen's
// workers run: create (write a fresh pattern-filled file, optionally
// with random rewrites), copy (duplicate a tree block by block), and
// verify (read a file back and check its headers, data, and — against
// a source tree — its bytes). Grounded respectively on createdata.cpp,
// copydata.cpp, and verifydata.cpp.
//
// I/O goes through golang.org/x/sys/unix directly rather than
// os.File, so O_DIRECT and O_DSYNC (neither exposed by the os package
// on all platforms) are available exactly as the original's open(2)
// flags specified them.
//
// Cfg.Simulate turns every open into a -1 "fd": reads and writes skip
// the syscall and report the full requested length, while the timing
// and pacing path still runs. This lets the supervisor and wire codec
// be driven at full thread/report cadence without touching disk.
package driver

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/markkampe/loadgen/internal/bufset"
	"github.com/markkampe/loadgen/internal/clock"
	"github.com/markkampe/loadgen/internal/config"
	"github.com/markkampe/loadgen/internal/pattern"
	"github.com/markkampe/loadgen/internal/randsize"
	"github.com/markkampe/loadgen/internal/stats"
)

// Driver runs workload operations for one worker. Not safe for
// concurrent use; each worker owns one, along with its own Bufs and
// Rand (see internal/randsize's package doc on the RNG race this
// avoids).
type Driver struct {
	Cfg   *config.Config
	Ctl   *config.Control
	Bufs  *bufset.Set
	Pace  *clock.Pacer
	Rand  *randsize.Chooser
}

// open honors Cfg.Simulate (spec.md §4.2/§9: fd<0 short-circuits every
// syscall below while the timing and pacing path still runs, so the
// supervisor and wire codec can be exercised without touching disk).
// -1 stands in for the simulated fd throughout this package.
func (d *Driver) open(path string, flags int, perm uint32) (int, error) {
	if d.Cfg.Simulate {
		return -1, nil
	}
	return unix.Open(path, flags, perm)
}

func (d *Driver) close(fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
}

// size returns a file's length, by fstat when fd is real or by a plain
// stat of path when fd is simulated.
func (d *Driver) size(fd int, path string) (int64, error) {
	if fd < 0 {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return 0, err
	}
	return stat.Size, nil
}

func (d *Driver) pread(fd int, buf []byte, offset int64) (int, error) {
	if fd < 0 {
		return len(buf), nil
	}
	return unix.Pread(fd, buf, offset)
}

func (d *Driver) pwrite(fd int, buf []byte, offset int64) (int, error) {
	if fd < 0 {
		return len(buf), nil
	}
	return unix.Pwrite(fd, buf, offset)
}

func (d *Driver) openFlags(write, truncate bool) int {
	flags := unix.O_RDWR
	if write {
		flags = unix.O_WRONLY | unix.O_CREAT
		if truncate && !d.Cfg.Rewrite {
			flags |= unix.O_TRUNC
		}
	} else {
		flags = unix.O_RDONLY
	}
	if d.Cfg.Direct != 0 {
		flags |= unix.O_DIRECT
	}
	if d.Cfg.Sync {
		flags |= unix.O_DSYNC
	}
	return flags
}

func (d *Driver) buffer(blockIndex int64, size int) []byte {
	n := d.Bufs.Count()
	if n == 0 {
		return make([]byte, size)
	}
	buf := d.Bufs.Buffer(int(blockIndex % int64(n)))
	if buf == nil || len(buf) < size {
		return make([]byte, size)
	}
	return buf[:size]
}

func (d *Driver) timedWrite(fd int, buf []byte, st *stats.PerfStats) (int, error) {
	start := clock.NowUs()
	var n int
	var err error
	if fd < 0 {
		n = len(buf) // simulated: pretend the full length was transferred
	} else {
		n, err = unix.Write(fd, buf)
	}
	elapsed := clock.NowUs() - start
	if err != nil {
		return n, err
	}
	st.XferDone(int64(n), elapsed)
	if d.Pace != nil {
		d.Pace.Stall(int64(n), elapsed)
	}
	return n, nil
}

func (d *Driver) timedRead(fd int, buf []byte, st *stats.PerfStats) (int, error) {
	start := clock.NowUs()
	var n int
	var err error
	if fd < 0 {
		n = len(buf)
	} else {
		n, err = unix.Read(fd, buf)
	}
	elapsed := clock.NowUs() - start
	if err != nil {
		return n, err
	}
	st.XferDone(int64(n), elapsed)
	if d.Pace != nil {
		d.Pace.Stall(int64(n), elapsed)
	}
	return n, nil
}

// maxRandomBlockSize bounds choose_bsize's random block size (spec.md
// §4.8/§8: bsize ranges up to 2^21).
const maxRandomBlockSize = 1 << 21

// Create writes a fresh pattern-filled file at path, in blocks of
// bsize, optionally following up with Cfg.RandBlock random rewrites
// if set. A bsize of 0 picks a random power-of-two block size (spec.md
// §4.8's choose_bsize); a length of 0 picks a random file length scaled
// to that block size (choose_file_size).
func (d *Driver) Create(path string, length int64, bsize int) (*stats.PerfStats, error) {
	if bsize <= 0 {
		align := d.Cfg.Direct
		if align <= 0 {
			align = 256
		}
		bsize = d.Rand.BlockSize(align, maxRandomBlockSize)
	}
	if length <= 0 {
		length = d.Rand.FileSize(bsize)
	}

	st := &stats.PerfStats{}
	d.Cfg.Debugf(config.DFiles, "create %s length=%d bsize=%d", path, length, bsize)

	flags := d.openFlags(true, true)
	if d.Cfg.RandBlock > 0 {
		// rewrite reads each block back before restamping it.
		flags = flags&^unix.O_WRONLY | unix.O_RDWR
	}
	fd, err := d.open(path, flags, 0o666)
	if err != nil {
		return st, err
	}
	defer d.close(fd)

	head := make([]byte, bsize)
	if err := pattern.RunHeader(head, d.Cfg.Tag); err != nil {
		return st, err
	}
	if err := pattern.ThreadHeader(head, filepath.Dir(path)); err != nil {
		return st, err
	}
	if err := pattern.FileHeader(head, path, length); err != nil {
		return st, err
	}
	pattern.FillData(head, bsize)

	for offset := int64(0); offset < length; offset += int64(bsize) {
		if d.Ctl != nil && d.Ctl.ShuttingDown() {
			return st, nil
		}
		this := bsize
		if remaining := length - offset; remaining < int64(bsize) {
			this = int(remaining)
		}
		buf := d.buffer(offset/int64(bsize), this)
		copy(buf, head[:this])
		if err := pattern.BlockHeader(buf, bsize, offset); err != nil {
			return st, err
		}
		if _, err := d.timedWrite(fd, buf, st); err != nil {
			return st, err
		}
		d.Cfg.Debugf(config.DWrites, "wrote %s @%d (%d bytes)", path, offset, this)
	}
	st.FileDone()

	if d.Cfg.RandBlock > 0 {
		if err := d.rewrite(fd, path, length, bsize, st); err != nil {
			return st, err
		}
	}
	return st, nil
}

// rewrite performs Cfg.RandBlock random, block-aligned overwrites of
// an already-created file, restamping each touched block's #BLK
// section (the data pattern is unchanged, since it is keyed by
// position within the block, not by file offset).
func (d *Driver) rewrite(fd int, path string, length int64, bsize int, st *stats.PerfStats) error {
	buf := d.buffer(0, bsize)
	for i := 0; i < d.Cfg.RandBlock; i++ {
		if d.Ctl != nil && d.Ctl.ShuttingDown() {
			return nil
		}
		offset := d.Rand.Offset(length, bsize)
		if _, err := d.pread(fd, buf, offset); err != nil {
			return err
		}
		if err := pattern.BlockHeader(buf, bsize, offset); err != nil {
			return err
		}
		start := clock.NowUs()
		n, err := d.pwrite(fd, buf, offset)
		elapsed := clock.NowUs() - start
		if err != nil {
			return err
		}
		st.XferDone(int64(n), elapsed)
		if d.Pace != nil {
			d.Pace.Stall(int64(n), elapsed)
		}
	}
	return nil
}

// Copy duplicates src to dst block by block, preserving src's total
// length. Each block read from src is timed and accounted the same as
// a Create write, matching copydata.cpp's symmetric treatment of the
// read and write halves of a copy.
func (d *Driver) Copy(src, dst string, bsize int) (*stats.PerfStats, error) {
	st := &stats.PerfStats{}
	d.Cfg.Debugf(config.DFiles, "copy %s -> %s", src, dst)

	in, err := d.open(src, d.openFlags(false, false), 0)
	if err != nil {
		return st, err
	}
	defer d.close(in)

	length, err := d.size(in, src)
	if err != nil {
		return st, err
	}

	out, err := d.open(dst, d.openFlags(true, true), 0o666)
	if err != nil {
		return st, err
	}
	defer d.close(out)

	for offset := int64(0); offset < length; offset += int64(bsize) {
		if d.Ctl != nil && d.Ctl.ShuttingDown() {
			return st, nil
		}
		this := bsize
		if remaining := length - offset; remaining < int64(bsize) {
			this = int(remaining)
		}
		buf := d.buffer(offset/int64(bsize), this)
		if _, err := d.timedRead(in, buf, st); err != nil {
			return st, err
		}
		if err := pattern.BlockHeader(buf, bsize, offset); err != nil {
			return st, err
		}
		if _, err := d.timedWrite(out, buf, st); err != nil {
			return st, err
		}
	}
	st.FileDone()
	return st, nil
}

// Verify reads path back block by block. When checkContent is true it
// additionally checks each block's headers and fill pattern (plain
// read mode without --verify skips this and just accounts for the
// bytes transferred). If against is non-empty, every byte read is also
// compared against the corresponding block of that file, regardless of
// checkContent. A bsize of 0 is resolved by reading the file's own
// leading #BLK section (spec.md §4.7's read_file, which derives a
// missing bsize/file_size from the header it finds rather than
// requiring the caller to already know them).
func (d *Driver) Verify(path, against string, bsize int, checkContent bool) (*stats.PerfStats, error) {
	st := &stats.PerfStats{}
	d.Cfg.Debugf(config.DVerify, "verify %s", path)

	fd, err := d.open(path, d.openFlags(false, false), 0)
	if err != nil {
		return st, err
	}
	defer d.close(fd)

	// Simulated reads have no real bytes behind them, so there is
	// nothing to check headers or reference bytes against.
	if fd < 0 {
		checkContent = false
		against = ""
	}

	var refFd int = -1
	if against != "" {
		refFd, err = d.open(against, d.openFlags(false, false), 0)
		if err != nil {
			return st, err
		}
		defer d.close(refFd)
	}

	length, err := d.size(fd, path)
	if err != nil {
		return st, err
	}

	if bsize <= 0 {
		if fd < 0 {
			return st, errors.Errorf("%s: bsize must be known in simulate mode", path)
		}
		head := make([]byte, pattern.HeaderSize)
		if _, err := d.pread(fd, head, 0); err != nil {
			return st, err
		}
		bsize = pattern.GetBlockSize(head)
		if bsize <= 0 {
			return st, errors.Errorf("%s: cannot determine block size from header", path)
		}
	}

	checkedFile := false
	for offset := int64(0); offset < length; offset += int64(bsize) {
		if d.Ctl != nil && d.Ctl.ShuttingDown() {
			return st, nil
		}
		this := bsize
		if remaining := length - offset; remaining < int64(bsize) {
			this = int(remaining)
		}
		buf := d.buffer(offset/int64(bsize), this)
		if _, err := d.timedRead(fd, buf, st); err != nil {
			return st, err
		}

		if checkContent && this >= pattern.HeaderSize {
			if err := pattern.CheckHeaders(buf, 0, offset); err != nil {
				return st, err
			}
			if !checkedFile {
				if err := pattern.CheckFile(buf, path); err != nil {
					return st, err
				}
				checkedFile = true
			}
			if err := pattern.CheckData(buf, this); err != nil {
				return st, err
			}
		}

		if refFd >= 0 {
			refBuf := make([]byte, this)
			if _, err := unix.Pread(refFd, refBuf, offset); err != nil {
				return st, err
			}
			for i := range refBuf {
				if buf[i] != refBuf[i] {
					return st, errMismatch(path, against, offset+int64(i))
				}
			}
		}
	}
	st.FileDone()
	return st, nil
}
