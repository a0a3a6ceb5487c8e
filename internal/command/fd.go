// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

import (
	"io"
	"os"
)

// newFdReader wraps a raw file descriptor as an io.Reader without
// taking ownership of it (the returned *os.File is never closed here;
// the caller owns the descriptor's lifetime, normally stdin's for the
// life of the process).
func newFdReader(fd int) io.Reader {
	return os.NewFile(uintptr(fd), "control-channel")
}
