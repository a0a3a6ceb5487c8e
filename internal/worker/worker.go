// Copyright 2019 the Go-FUSE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package worker implements the supervisor that keeps a pool of I/O
// workers at a caller-specified target count, harvests them as they
// finish, and sums their stats (Totals) for the caller's periodic report.
// Grounded on the accept/serve goroutine-lifecycle idiom in
// (*fuse.Server).Serve / loop (fuse/server.go) and on threadstatus.cpp
// for the grow/shrink/census state machine.
package worker

import (
	"context"
	"sync"

	"github.com/markkampe/loadgen/internal/stats"
)

// Work is the function body of one worker. It must return promptly
// after ctx is canceled. It records its own progress into st as it
// runs; the Manager never writes to st while the worker is alive.
type Work func(ctx context.Context, id int, st *stats.PerfStats) error

// Descriptor is one worker's supervisor-visible state.
type Descriptor struct {
	ID     int
	Stats  stats.PerfStats
	Err    error
	cancel context.CancelFunc
	done   chan struct{}

	// running is set to true by the supervisor at spawn time, before
	// the goroutine starts — not by the goroutine itself on entry.
	// A worker whose body is a no-op can run to completion and close
	// done within microseconds of being spawned, before the spawning
	// call even returns; if running were instead set from inside the
	// goroutine, Harvest could observe running==false for a worker
	// that in fact already completed a full lifecycle, double-count
	// it as "never started", and leak its Descriptor. Setting it here
	// makes spawn-then-immediately-exit indistinguishable from any
	// other completed worker.
	running bool
}

// Manager supervises a pool of workers running the same Work function.
type Manager struct {
	mu      sync.Mutex
	work    Work
	next    int
	active  []*Descriptor
	done    []*Descriptor
	wg      sync.WaitGroup
	parent  context.Context
}

// NewManager creates a Manager that runs work under parent until the
// Manager is shut down.
func NewManager(parent context.Context, work Work) *Manager {
	return &Manager{work: work, parent: parent}
}

// Grow spawns workers until the active count reaches target. No-op if
// already at or above target.
func (m *Manager) Grow(target int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.active) < target {
		ctx, cancel := context.WithCancel(m.parent)
		d := &Descriptor{
			ID:      m.next,
			cancel:  cancel,
			done:    make(chan struct{}),
			running: true, // set before the goroutine starts — see field doc
		}
		m.next++
		m.active = append(m.active, d)
		m.wg.Add(1)
		go m.run(ctx, d)
	}
}

func (m *Manager) run(ctx context.Context, d *Descriptor) {
	defer m.wg.Done()
	defer close(d.done)
	d.Err = m.work(ctx, d.ID, &d.Stats)

	m.mu.Lock()
	d.running = false
	m.mu.Unlock()
}

// Shrink requests that the most recently spawned workers stop, down to
// at most target active. It does not wait for them to exit, and they
// remain in the active set (still "running") until Harvest observes
// they have actually returned — call Harvest afterwards to reap them.
func (m *Manager) Shrink(target int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if target < 0 {
		target = 0
	}
	for i := len(m.active) - 1; i >= target; i-- {
		m.active[i].cancel()
	}
}

// ShrinkAll cancels every active worker.
func (m *Manager) ShrinkAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.active {
		d.cancel()
	}
}

// Harvest moves any worker that has finished from active to done,
// returning the ones it reaped this call.
func (m *Manager) Harvest() []*Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []*Descriptor
	kept := m.active[:0]
	for _, d := range m.active {
		if d.running {
			kept = append(kept, d)
			continue
		}
		reaped = append(reaped, d)
		m.done = append(m.done, d)
	}
	m.active = kept
	return reaped
}

// Census reports the number of workers currently believed active.
func (m *Manager) Census() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Totals sums the stats of every worker that has ever run, active or
// reaped, as of the call.
func (m *Manager) Totals() stats.PerfStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total stats.PerfStats
	for _, d := range m.active {
		total.Add(&d.Stats)
	}
	for _, d := range m.done {
		total.Add(&d.Stats)
	}
	return total
}

// Wait blocks until every worker spawned so far has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
	m.Harvest()
}

// Errors returns the non-nil errors collected from reaped workers.
func (m *Manager) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, d := range m.done {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	return errs
}
