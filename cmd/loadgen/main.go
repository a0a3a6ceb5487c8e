// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command loadgen is a multi-threaded storage I/O load generator and
// verifier. It drives a create, copy, or read/verify workload against
// one or more target directories, reports throughput and latency on a
// fixed cadence, and can be retargeted (thread count) or shut down
// through stdin while running. See SPEC_FULL.md for the full
// behavioral specification; this file wires the internal/ packages
// together the way main.cpp wired the original's translation units.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/markkampe/loadgen/internal/bufset"
	"github.com/markkampe/loadgen/internal/clock"
	"github.com/markkampe/loadgen/internal/command"
	"github.com/markkampe/loadgen/internal/config"
	"github.com/markkampe/loadgen/internal/driver"
	"github.com/markkampe/loadgen/internal/pathcheck"
	"github.com/markkampe/loadgen/internal/randsize"
	"github.com/markkampe/loadgen/internal/report"
	"github.com/markkampe/loadgen/internal/sizespec"
	"github.com/markkampe/loadgen/internal/stats"
	"github.com/markkampe/loadgen/internal/worker"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// options holds the raw, still-stringly-typed flag values; parseFlags
// fills it, buildConfig turns it into a config.Config.
type options struct {
	mode      string
	tag       string
	target    string
	source    string
	bsize     string
	length    string
	data      string
	maxfiles  int
	threads   int
	update    int
	rate      string
	direct    string
	depth     int
	random    string
	read      bool
	verify    bool
	rewrite   bool
	delete    bool
	sync      bool
	halt      bool
	simulate  bool
	onceonly  bool
	debug     string
}

func parseFlags(args []string) (*options, error) {
	mode := "create"
	explicitMode := false
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		mode = args[0]
		args = args[1:]
		explicitMode = true
	}

	o := &options{mode: mode}
	fs := flag.NewFlagSet("loadgen", flag.ContinueOnError)

	bind := func(p *string, long, short, def, usage string) {
		fs.StringVar(p, long, def, usage)
		fs.StringVar(p, short, def, usage)
	}
	bind(&o.tag, "tag", "T", "", "embedded in run-header and reports")
	bind(&o.target, "target", "t", "", "comma-list of write/read targets, PATH[:OFFSET]")
	bind(&o.source, "source", "s", "", "source directory for copy/compare")
	bind(&o.bsize, "bsize", "b", "0", "write/read block size (0 = random)")
	bind(&o.length, "length", "l", "0", "per-file length (0 = random)")
	bind(&o.data, "data", "D", "0", "total bytes to transfer per thread (parsed; no driver uses it)")
	bind(&o.rate, "rate", "R", "0", "pacing budget, bytes/sec per worker")
	bind(&o.direct, "direct", "A", "0", "direct I/O alignment (0 = disabled)")
	bind(&o.random, "random", "r", "0", "random-offset rewrite block size")
	bind(&o.debug, "debug", "d", "", "debug option letters")

	fs.IntVar(&o.maxfiles, "maxfiles", 0, "cap on files per worker (0 = unlimited)")
	fs.IntVar(&o.maxfiles, "m", 0, "cap on files per worker (0 = unlimited)")
	fs.IntVar(&o.threads, "threads", 1, "initial worker target")
	fs.IntVar(&o.threads, "n", 1, "initial worker target")
	fs.IntVar(&o.update, "update", 10, "report cadence, seconds")
	fs.IntVar(&o.update, "u", 10, "report cadence, seconds")
	fs.IntVar(&o.depth, "depth", 1, "buffer-set width (AIO depth)")

	fs.BoolVar(&o.read, "read", false, "read mode")
	fs.BoolVar(&o.verify, "verify", false, "read mode + content check")
	fs.BoolVar(&o.rewrite, "rewrite", false, "open existing files without truncation")
	fs.BoolVar(&o.delete, "delete", false, "unlink files / rmdir directories after verify")
	fs.BoolVar(&o.sync, "sync", false, "O_DSYNC")
	fs.BoolVar(&o.halt, "halt", false, "stop on first error")
	fs.BoolVar(&o.simulate, "simulate", false, "account for I/O without performing it")
	fs.BoolVar(&o.onceonly, "onceonly", false, "cap scanned subdirectories to the thread count")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	// With no mode word, --read or --verify selects read mode.
	if !explicitMode && (o.read || o.verify) {
		o.mode = "read"
	}
	return o, nil
}

func buildConfig(o *options) (*config.Config, error) {
	bsize, err := sizespec.Parse(o.bsize)
	if err != nil {
		return nil, err
	}
	length, err := sizespec.Parse(o.length)
	if err != nil {
		return nil, err
	}
	data, err := sizespec.Parse(o.data)
	if err != nil {
		return nil, err
	}
	rate, err := sizespec.Parse(o.rate)
	if err != nil {
		return nil, err
	}
	direct, err := sizespec.Parse(o.direct)
	if err != nil {
		return nil, err
	}
	random, err := sizespec.Parse(o.random)
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Tag:       o.tag,
		BSize:     int(bsize),
		Length:    length,
		Data:      data,
		MaxFiles:  o.maxfiles,
		Threads:   o.threads,
		Update:    o.update,
		Rate:      rate,
		Direct:    int(direct),
		Depth:     o.depth,
		RandBlock: int(random),
		Read:      o.read || o.mode == "read",
		Verify:    o.verify,
		Rewrite:   o.rewrite,
		Delete:    o.delete,
		Sync:      o.sync,
		Halt:      o.halt,
		Simulate:  o.simulate,
		OnceOnly:  o.onceonly,
		Debug:     config.ParseDebugOpts(o.debug),
		Logger:    log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 1
	}
	return cfg, nil
}

func run(args []string, stdin *os.File, stdout *os.File) int {
	zombie := len(args) == 0
	if zombie {
		fmt.Fprintln(stdout, "Hello, I am an industrious zombie.")
		line, err := readLine(stdin)
		if err != nil {
			fmt.Fprintln(stdout, "Arg Master.")
			return config.ResourceError
		}
		args = strings.Fields(line)
		fmt.Fprintln(stdout, "Yes Master!")
	}

	o, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(stdout, "Arg Master.")
		return config.ResourceError
	}
	cfg, err := buildConfig(o)
	if err != nil {
		fmt.Fprintln(stdout, "Arg Master.")
		return config.ResourceError
	}
	cfg.Zombie = zombie
	cfg.Debugf(config.DOpts, "options: mode=%s target=%s threads=%d debug=%s",
		o.mode, o.target, cfg.Threads, config.FormatDebugOpts(cfg.Debug))

	unix.Umask(0)

	ctl := &config.Control{}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
	go func() {
		for range sigs {
			ctl.Shutdown()
		}
	}()

	targets := splitTargets(o.target)
	status, err := execute(o.mode, cfg, ctl, targets, o.source, stdin, stdout)
	if err != nil {
		cfg.Logger.Printf("%v", err)
	}

	if zombie {
		if status != 0 {
			fmt.Fprintln(stdout, "Arg Master.")
		} else {
			fmt.Fprintln(stdout, "Yes Master.")
		}
	}
	return status
}

func readLine(f *os.File) (string, error) {
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" && err != nil {
		return "", err
	}
	return line, nil
}

func splitTargets(spec string) []string {
	if spec == "" {
		return nil
	}
	return strings.Split(spec, ",")
}

// execute builds the descriptor set for the chosen mode, runs the
// supervisor loop to completion (or until shutdown), and returns the
// OR-combined exit status.
func execute(mode string, cfg *config.Config, ctl *config.Control, targets []string, source string, stdin, stdout *os.File) (int, error) {
	if len(targets) == 0 {
		return config.TargetDirectory, fmt.Errorf("no --target specified")
	}

	var status int32
	ctx := context.Background()

	if err := validateTargets(targets, source); err != nil {
		return config.TargetDirectory, err
	}

	body, workers, err := workBody(mode, cfg, ctl, targets, source, &status)
	if err != nil {
		return config.TargetDirectory, err
	}

	mgr := worker.NewManager(ctx, body)
	mgr.Grow(workers)

	cmdCh := command.New(int(stdin.Fd()))
	var prev stats.PerfStats
	start := time.Now()
	last := start

	for {
		mgr.Harvest()
		if ctl.ShuttingDown() {
			mgr.ShrinkAll()
		}
		if mgr.Census() == 0 {
			break
		}

		if cfg.Zombie {
			res, err := cmdCh.Poll(time.Duration(cfg.Update) * time.Second)
			if err == nil {
				switch res.Kind {
				case command.SetThreads:
					mgr.Grow(res.Threads)
					mgr.Shrink(res.Threads)
				case command.Shutdown:
					ctl.Shutdown()
				case command.Disconnect:
					// The run continues unsupervised at its current
					// thread count; Poll itself stops reading from
					// here on and just sleeps out its timeout.
				}
			}
		} else {
			time.Sleep(time.Duration(cfg.Update) * time.Second)
		}

		now := time.Now()
		total := mgr.Totals()
		delta := total
		delta.Subtract(&prev)
		fmt.Fprintln(stdout, report.Line(now, cfg.Tag, mgr.Census(), now.Sub(last), &delta))
		prev = total
		last = now
	}

	mgr.Wait()
	total := mgr.Totals()
	fmt.Fprintln(stdout, report.Final(time.Now(), cfg.Tag, 0, time.Since(start), &total, ctl.Problem()))

	return int(status), nil
}

// validateTargets ensures every comma-separated target path (and the
// source path, if any) exists or can be created, in parallel — list
// mode (spec.md §4.7) can name many independent target directories,
// and there is no reason to probe them one at a time.
func validateTargets(targets []string, source string) error {
	g, _ := errgroup.WithContext(context.Background())
	for _, t := range targets {
		t := t
		g.Go(func() error {
			path, _, err := sizespec.PathOffset(t)
			if err != nil {
				return err
			}
			return pathcheck.EnsureDir(path, 0o755)
		})
	}
	if source != "" {
		g.Go(func() error {
			res, err := pathcheck.CheckDir(source)
			if err != nil {
				return err
			}
			if res.Kind != pathcheck.Directory {
				return fmt.Errorf("source %q is not a directory", source)
			}
			return nil
		})
	}
	return g.Wait()
}

// discoverDirs lists the visible subdirectories of root, alphabetically
// sorted: the Go equivalent of scandir+alphasort in copydata.cpp and
// verifydata.cpp, used to drive read/copy mode off the ThreadNNNN
// trees a prior create run actually left behind rather than assuming
// a 1:1 mapping to the current thread count.
func discoverDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(root, n)
	}
	return paths, nil
}

// discoverFiles lists the visible regular files of dir, alphabetically
// sorted: the same scandir+alphasort discovery, applied to the
// FILE_NNNNNN entries within one ThreadNNNN directory (or within a
// list-mode target path, which has no ThreadNNNN layer of its own).
func discoverFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// workBody returns the per-worker function for the requested mode and
// the number of workers it should start with.
//
// With a single --target, this is one-directory mode (spec.md §4.7):
// create mode makes one fresh "ThreadNNNN" subdirectory per worker;
// read/copy mode discovers the ThreadNNNN trees a prior run left
// behind (capped to the thread count when --onceonly is set) instead
// of guessing that worker id N maps to "ThreadNNNN".
//
// With more than one --target, this is list mode: main.cpp's dispatch
// (readData_l/createData_l when more than one path is given) hands
// each supplied path its own descriptor, one worker per path, worked
// on directly with no ThreadNNNN layer.
func workBody(mode string, cfg *config.Config, ctl *config.Control, targets []string, source string, status *int32) (worker.Work, int, error) {
	roots := make([]string, len(targets))
	for i, t := range targets {
		root, _, err := sizespec.PathOffset(t)
		if err != nil {
			return nil, 0, err
		}
		if err := pathcheck.EnsureDir(root, 0o755); err != nil {
			return nil, 0, err
		}
		roots[i] = root
	}
	listMode := len(roots) > 1

	// dirs/srcDirs give the per-worker-id target/source directory in
	// every mode except create in one-directory mode, where the
	// ThreadNNNN directory is created fresh per id instead.
	var dirs, srcDirs []string
	switch {
	case listMode:
		dirs = roots
	case mode == "copy":
		found, err := discoverDirs(source)
		if err != nil {
			return nil, 0, err
		}
		if cfg.OnceOnly && len(found) > cfg.Threads {
			found = found[:cfg.Threads]
		}
		srcDirs = found
		dirs = make([]string, len(found))
		for i, sd := range found {
			dirs[i] = filepath.Join(roots[0], filepath.Base(sd))
		}
	case mode == "read":
		found, err := discoverDirs(roots[0])
		if err != nil {
			return nil, 0, err
		}
		if cfg.OnceOnly && len(found) > cfg.Threads {
			found = found[:cfg.Threads]
		}
		dirs = found
		if source != "" {
			if srcFound, err := discoverDirs(source); err == nil {
				srcDirs = srcFound
			}
		}
	}

	workers := cfg.Threads
	if dirs != nil {
		workers = len(dirs)
	}

	work := func(ctx context.Context, id int, st *stats.PerfStats) error {
		var dir, srcDir string
		switch {
		case listMode:
			if id >= len(roots) {
				return nil
			}
			dir = roots[id]
			srcDir = source
		case mode == "create":
			dir = filepath.Join(roots[0], fmt.Sprintf("Thread%04d", id))
			if err := pathcheck.EnsureDir(dir, 0o755); err != nil {
				atomicOr(status, config.TargetDirectory)
				return err
			}
		default: // read or copy, one-directory mode: discovered dirs
			if id >= len(dirs) {
				return nil // nothing discovered for this worker
			}
			dir = dirs[id]
			if id < len(srcDirs) {
				srcDir = srcDirs[id]
			}
			if mode == "copy" {
				if err := pathcheck.EnsureDir(dir, 0o755); err != nil {
					atomicOr(status, config.TargetDirectory)
					return err
				}
			}
		}

		bsize := cfg.BSize
		if bsize == 0 {
			bsize = 4096
		}
		depth := cfg.Depth
		if depth <= 0 {
			depth = 1
		}
		bufs, err := bufset.New(depth, bsize, alignment(cfg))
		if err != nil {
			atomicOr(status, config.ResourceError)
			return err
		}
		defer bufs.Close()

		d := &driver.Driver{
			Cfg:  cfg,
			Ctl:  ctl,
			Bufs: bufs,
			Rand: randsize.New(time.Now().UnixNano() + int64(id)),
		}
		if cfg.Rate > 0 {
			d.Pace = &clock.Pacer{Rate: cfg.Rate}
		}

		maxFiles := cfg.MaxFiles
		if maxFiles == 0 {
			maxFiles = 1 << 30
		}

		switch mode {
		case "copy":
			return copyFiles(ctx, ctl, d, dir, srcDir, bsize, maxFiles, st, status, cfg)
		case "read":
			return readFiles(ctx, ctl, d, dir, srcDir, maxFiles, st, status, cfg)
		default:
			return createFiles(ctx, ctl, d, dir, maxFiles, st, status, cfg)
		}
	}
	return work, workers, nil
}

// createFiles generates FILE_NNNNNN files sequentially, per
// createdata.cpp's literal "FILE_%06d" naming (spec.md §4.7).
func createFiles(ctx context.Context, ctl *config.Control, d *driver.Driver, dir string, maxFiles int, st *stats.PerfStats, status *int32, cfg *config.Config) error {
	for n := 0; n < maxFiles; n++ {
		if ctx.Err() != nil || ctl.ShuttingDown() {
			return nil
		}
		name := filepath.Join(dir, fmt.Sprintf("FILE_%06d", n))
		// cfg.BSize of 0 lets Create choose a random block size.
		fst, err := d.Create(name, cfg.Length, cfg.BSize)
		st.Add(fst)
		if err != nil {
			atomicOr(status, config.OutputFileError)
			ctl.SetProblem(err.Error())
			if cfg.Halt {
				ctl.Shutdown()
				return err
			}
		}
	}
	return nil
}

// readFiles verifies the files actually present in dir (discovered,
// not guessed), optionally cross-checking each against the
// same-ordinal file discovered under srcDir.
func readFiles(ctx context.Context, ctl *config.Control, d *driver.Driver, dir, srcDir string, maxFiles int, st *stats.PerfStats, status *int32, cfg *config.Config) error {
	files, err := discoverFiles(dir)
	if err != nil {
		return err
	}
	var srcFiles []string
	if srcDir != "" {
		srcFiles, _ = discoverFiles(srcDir)
	}
	failed := false
	for n, name := range files {
		if maxFiles > 0 && n >= maxFiles {
			break
		}
		if ctx.Err() != nil || ctl.ShuttingDown() {
			return nil
		}
		against := ""
		if n < len(srcFiles) {
			against = srcFiles[n]
		}
		// cfg.BSize, unlike the pool-sizing bsize above, is passed
		// through unresolved: 0 tells Verify to derive the real block
		// size from the file's own #BLK header, so files created with
		// a random bsize still verify correctly.
		fst, err := d.Verify(name, against, cfg.BSize, cfg.Verify)
		st.Add(fst)
		if err != nil {
			failed = true
			atomicOr(status, config.InputFileError)
			ctl.SetProblem(err.Error())
			if cfg.Halt {
				ctl.Shutdown()
				return err
			}
		} else if cfg.Delete {
			os.Remove(name)
		}
	}
	if cfg.Delete && !failed {
		os.Remove(dir) // rmdir; fails harmlessly if files remain
	}
	return nil
}

// copyFiles mirrors the files discovered under srcDir into dir, one
// destination file per discovered source file, same base name.
func copyFiles(ctx context.Context, ctl *config.Control, d *driver.Driver, dir, srcDir string, bsize, maxFiles int, st *stats.PerfStats, status *int32, cfg *config.Config) error {
	srcFiles, err := discoverFiles(srcDir)
	if err != nil {
		return err
	}
	for n, src := range srcFiles {
		if maxFiles > 0 && n >= maxFiles {
			break
		}
		if ctx.Err() != nil || ctl.ShuttingDown() {
			return nil
		}
		dest := filepath.Join(dir, filepath.Base(src))
		fst, err := d.Copy(src, dest, bsize)
		st.Add(fst)
		if err != nil {
			atomicOr(status, config.OutputFileError)
			if cfg.Halt {
				ctl.Shutdown()
				ctl.SetProblem(err.Error())
			}
		}
	}
	return nil
}

func atomicOr(status *int32, bit int32) {
	for {
		old := atomic.LoadInt32(status)
		if old&bit == bit {
			return
		}
		if atomic.CompareAndSwapInt32(status, old, old|bit) {
			return
		}
	}
}

func alignment(cfg *config.Config) int {
	if cfg.Direct > 0 {
		return cfg.Direct
	}
	return 8192
}
