// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package driver

import "github.com/pkg/errors"

func errMismatch(path, against string, offset int64) error {
	return errors.Errorf("content mismatch between %q and %q at offset %d", path, against, offset)
}
