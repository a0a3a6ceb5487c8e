// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pathcheck validates the source and target paths loadgen is
// pointed at, grounded on checkdir.cpp (checkdir/checkdev/checkfile).
// It additionally annotates a path with its filesystem type, best
// effort, using github.com/moby/sys/mountinfo — a diagnostic the
// original C++ did not have (spec.md §11, §12).
package pathcheck

import (
	"os"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
)

// Kind describes what CheckDir found at a path.
type Kind int

const (
	// Missing means the path does not exist.
	Missing Kind = iota
	// Directory means the path exists and is a directory.
	Directory
	// Other means the path exists but is not a directory (file,
	// device, socket, etc).
	Other
)

// Result is what CheckDir reports about one path.
type Result struct {
	Kind Kind
	// FSType is the best-effort filesystem type backing the path
	// ("" if it could not be determined, e.g. on a platform
	// mountinfo does not support).
	FSType string
}

// CheckDir stats path and classifies it. It never returns an error for
// a simply-missing path (Result.Kind == Missing, err == nil); err is
// reserved for unexpected stat failures (permission denied on a parent
// directory, I/O error, etc).
func CheckDir(path string) (Result, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Result{Kind: Missing}, nil
	}
	if err != nil {
		return Result{}, errors.Wrapf(err, "pathcheck: stat %q", path)
	}

	r := Result{Kind: Other}
	if info.IsDir() {
		r.Kind = Directory
	}
	r.FSType = fsType(path)
	return r, nil
}

// EnsureDir makes path (and any missing parents) if it does not
// already exist, and confirms it is a directory.
func EnsureDir(path string, perm os.FileMode) error {
	res, err := CheckDir(path)
	if err != nil {
		return err
	}
	switch res.Kind {
	case Missing:
		return errors.Wrap(os.MkdirAll(path, perm), "pathcheck: mkdir")
	case Directory:
		return nil
	default:
		return errors.Errorf("pathcheck: %q exists and is not a directory", path)
	}
}

// CheckFile stats path and confirms it is a regular file.
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "pathcheck: stat %q", path)
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("pathcheck: %q is not a regular file", path)
	}
	return nil
}

// fsType returns the filesystem type mounted at (or nearest ancestor
// of) path, or "" if it cannot be determined. Best effort: errors are
// swallowed, since this is a diagnostic annotation, not a correctness
// gate.
func fsType(path string) string {
	mounts, err := mountinfo.GetMounts(mountinfo.ParentsFilter(path))
	if err != nil || len(mounts) == 0 {
		return ""
	}
	best := mounts[0]
	for _, m := range mounts[1:] {
		if len(m.Mountpoint) > len(best.Mountpoint) {
			best = m
		}
	}
	return best.FSType
}
