// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package command implements the stdin control channel loadgen polls
// between report intervals, grounded on command.cpp's
// changeNumThreads: a leading-character grammar for changing the live
// thread count, disconnecting, or shutting down, read with a timeout
// so the supervisor's report cadence is never blocked.
package command

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Kind identifies what Poll observed on the control channel.
type Kind int

const (
	// None means the timeout elapsed with nothing to read, or what was
	// read didn't match any recognized command.
	None Kind = iota
	// SetThreads carries a new target thread count in Result.Threads.
	SetThreads
	// Disconnect means the peer asked to stop being polled ('d'/'D').
	// The run continues unsupervised at its current thread count; every
	// later Poll call (also after a hang-up) sleeps out the timeout and
	// returns Disconnect without reading.
	Disconnect
	// Shutdown means an orderly stop was requested ('x'/'q'/'X'/'Q'), the
	// input stream reached EOF, or the channel hung up.
	Shutdown
)

// maxThreads caps the thread count a command line can request
// (command.cpp's MAX_THREADS).
const maxThreads = 999

// Result is what one Poll call reports.
type Result struct {
	Kind    Kind
	Threads int
}

// Channel wraps a file descriptor (normally stdin) as the control
// channel, polling it with a bounded timeout per call so callers never
// block past their reporting cadence.
type Channel struct {
	fd           int
	reader       *bufio.Reader
	disconnected bool
}

// New wraps fd (typically 0, stdin) as a control channel.
func New(fd int) *Channel {
	return &Channel{fd: fd, reader: bufio.NewReader(newFdReader(fd))}
}

// Poll waits up to timeout for one line of input and acts on its
// leading character, per spec.md §4.6 / changeNumThreads: 'x', 'q',
// 'X', or 'Q' requests Shutdown; 'd' or 'D' requests Disconnect and
// makes every later call skip the poll and just sleep; a non-negative
// integer under 999 sets the thread count (SetThreads); anything else,
// or the timeout elapsing with nothing to read, reports None. A
// channel hang-up (POLLHUP, or EOF on the read itself) also reports
// Shutdown, matching the original's treatment of a lost connection as
// a request to stop.
func (c *Channel) Poll(timeout time.Duration) (Result, error) {
	if c.disconnected {
		time.Sleep(timeout)
		return Result{Kind: Disconnect}, nil
	}

	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return Result{Kind: None}, nil
		}
		return Result{}, err
	}
	if n == 0 {
		return Result{Kind: None}, nil
	}
	if pfd[0].Revents&unix.POLLHUP != 0 && pfd[0].Revents&unix.POLLIN == 0 {
		c.disconnected = true
		return Result{Kind: Shutdown}, nil
	}

	line, err := c.reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" && err != nil {
		return Result{Kind: Shutdown}, nil
	}
	if line == "" {
		return Result{Kind: None}, nil
	}

	switch line[0] {
	case 'x', 'q', 'X', 'Q':
		return Result{Kind: Shutdown}, nil
	case 'd', 'D':
		c.disconnected = true
		return Result{Kind: Disconnect}, nil
	}

	if n, convErr := strconv.Atoi(line); convErr == nil && n >= 0 && n < maxThreads {
		return Result{Kind: SetThreads, Threads: n}, nil
	}
	return Result{Kind: None}, nil
}
