// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the process-wide, read-mostly state a loadgen
// run is built from: the immutable Config parsed from the command
// line and the small mutable Control block (shutdown flag, last
// problem) that every worker polls.
package config

import (
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Exit status bits, OR-combined across every worker that ran.
const (
	SourceDirectory = 0x01 // source path missing, unreadable, or wrong type
	TargetDirectory = 0x02 // target path cannot be resolved, created, or written
	InputFileError  = 0x04 // open/read failure or verification failure
	OutputFileError = 0x08 // create failure or short/failed write
	ResourceError   = 0x80 // allocation, pinning, or thread-creation failure
)

// Debug option bits, set via -debug letters and OR'd into a Config.Debug.
const (
	DOpts    = 1 << iota // display enabled options at start-up
	DCmds                // display session commands
	DThreads             // display thread start/stop
	DFiles               // display file-level operations
	DWrites              // display write operations
	DVerify              // display verification operations
	DConnect             // display control-channel connection events
	DSleep               // display pacer sleeps

	dAll = DOpts | DCmds | DThreads | DFiles | DWrites | DVerify | DConnect | DSleep
)

var debugLetters = []struct {
	letter byte
	bit    uint32
}{
	{'o', DOpts},
	{'c', DCmds},
	{'t', DThreads},
	{'f', DFiles},
	{'w', DWrites},
	{'v', DVerify},
	{'n', DConnect},
	{'s', DSleep},
	{'a', dAll},
}

// ParseDebugOpts turns a string of letters (e.g. "tfw") into the
// corresponding bit mask. Unrecognized letters are ignored.
func ParseDebugOpts(spec string) uint32 {
	var bits uint32
	for i := 0; i < len(spec); i++ {
		for _, d := range debugLetters {
			if spec[i] == d.letter {
				bits |= d.bit
			}
		}
	}
	return bits
}

// FormatDebugOpts renders a bit mask back into its letter form, for
// the start-up options banner.
func FormatDebugOpts(bits uint32) string {
	if bits&dAll == dAll {
		return "a"
	}
	var s strings.Builder
	for _, d := range debugLetters {
		if d.bit == dAll {
			continue
		}
		if bits&d.bit != 0 {
			s.WriteByte(d.letter)
		}
	}
	if s.Len() == 0 {
		return "-"
	}
	return s.String()
}

// Logger is the minimal sink loadgen writes diagnostics to. The
// standard library's *log.Logger implements it.
type Logger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

// DefaultLogger returns the stderr logger used when none is supplied.
func DefaultLogger() Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}

// Config is the immutable, process-wide set of operating parameters
// derived from the command line (or the zombie-mode argv line). It is
// built once before any worker starts and never mutated afterwards.
type Config struct {
	Tag       string // embedded in run headers and reports
	BSize     int    // write/read block size; 0 = random
	Length    int64  // per-file length; 0 = random
	Data      int64  // parsed from --data; no driver reads it, so it does not limit a run
	MaxFiles  int    // cap on files per worker; 0 = unlimited
	Threads   int    // initial worker target
	Update    int    // report cadence, seconds
	Rate      int64  // pacing budget, bytes/sec per worker; 0 = unpaced
	Direct    int    // direct-I/O alignment; 0 = disabled
	Depth     int    // buffer-set width (AIO depth)
	RandBlock int    // random-offset rewrite block size; 0 = sequential

	Read     bool // read mode
	Verify   bool // read mode + content check
	Rewrite  bool // open existing files without truncation
	Delete   bool // unlink files / rmdir directories after verify
	Sync     bool // O_DSYNC
	Halt     bool // stop on first error
	Simulate bool // account for I/O without performing it
	OnceOnly bool // cap scanned subdirectories to the thread count
	Zombie   bool // launched with no argv; under remote control

	Debug uint32 // debug option bitmask

	Logger Logger
}

func (c *Config) log() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return DefaultLogger()
}

// Debugf logs a diagnostic line if any of want's bits are set in the
// configured debug mask.
func (c *Config) Debugf(want uint32, format string, args ...interface{}) {
	if c.Debug&want != 0 {
		c.log().Printf(format, args...)
	}
}

// Control is the single piece of mutable, shared-everywhere state: the
// shutdown flag every worker polls at loop heads, and a last-problem
// slot for post-mortem diagnostics. shutdown has one writer class
// (signal handlers, the command channel, and the supervisor's
// halt-on-error path) and many readers; last-writer-wins for problem
// is an accepted imprecision (see spec.md §5, §9).
type Control struct {
	shutdown atomic.Bool

	mu      sync.Mutex
	problem string
}

// Shutdown raises the shutdown flag. Safe to call from a signal
// handler or any goroutine.
func (c *Control) Shutdown() {
	c.shutdown.Store(true)
}

// ShuttingDown reports whether shutdown has been raised.
func (c *Control) ShuttingDown() bool {
	return c.shutdown.Load()
}

// SetProblem records the last recognized failure category. Advisory
// only: under concurrent failures, the most recent call wins.
func (c *Control) SetProblem(problem string) {
	c.mu.Lock()
	c.problem = problem
	c.mu.Unlock()
}

// Problem returns the last recorded failure description, or "" if none.
func (c *Control) Problem() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.problem
}
