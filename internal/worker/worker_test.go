package worker

import (
	"context"
	"testing"
	"time"

	"github.com/markkampe/loadgen/internal/stats"
)

func TestGrowReachesTarget(t *testing.T) {
	block := make(chan struct{})
	m := NewManager(context.Background(), func(ctx context.Context, id int, st *stats.PerfStats) error {
		<-block
		return nil
	})
	m.Grow(5)
	if got := m.Census(); got != 5 {
		t.Fatalf("Census = %d, want 5", got)
	}
	close(block)
	m.Wait()
	if got := m.Census(); got != 0 {
		t.Fatalf("Census after Wait = %d, want 0", got)
	}
}

func TestShrinkCancelsNewestFirst(t *testing.T) {
	var stops []int
	stopCh := make(chan int, 10)
	m := NewManager(context.Background(), func(ctx context.Context, id int, st *stats.PerfStats) error {
		<-ctx.Done()
		stopCh <- id
		return nil
	})
	m.Grow(3)
	m.Shrink(1)
	// Worker 0 is never canceled, so Wait would block: collect the two
	// canceled workers' ids and reap them instead.
	for i := 0; i < 2; i++ {
		stops = append(stops, <-stopCh)
	}
	for m.Census() > 1 {
		m.Harvest()
		time.Sleep(time.Millisecond)
	}
	select {
	case id := <-stopCh:
		stops = append(stops, id)
	default:
	}
	if len(stops) != 2 {
		t.Fatalf("expected 2 workers canceled, got %d", len(stops))
	}
	for _, id := range stops {
		if id == 0 {
			t.Fatalf("canceled ids = %v, want the two newest (1 and 2)", stops)
		}
	}
	if got := m.Census(); got != 1 {
		t.Fatalf("Census = %d, want 1 remaining", got)
	}
	m.ShrinkAll()
	m.Wait()
}

// TestImmediateExitIsHarvestedNotLost exercises the birth-order fix
// directly: a worker whose body returns instantly must still be
// visible to Census as having been active, and must show up exactly
// once when reaped — never zero times (lost) and never twice
// (double-harvested).
func TestImmediateExitIsHarvestedNotLost(t *testing.T) {
	m := NewManager(context.Background(), func(ctx context.Context, id int, st *stats.PerfStats) error {
		return nil // returns before the supervisor can possibly observe it mid-flight
	})
	m.Grow(1)
	if got := m.Census(); got != 1 {
		t.Fatalf("Census right after Grow = %d, want 1", got)
	}
	m.Wait()

	reaped := 0
	for _, d := range m.done {
		if d.ID == 0 {
			reaped++
		}
	}
	if reaped != 1 {
		t.Fatalf("worker 0 harvested %d times, want exactly 1", reaped)
	}
}

func TestTotalsAggregatesActiveAndReaped(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(context.Background(), func(ctx context.Context, id int, st *stats.PerfStats) error {
		st.XferDone(100, 10)
		if id == 0 {
			<-release
		}
		return nil
	})
	m.Grow(2)
	for m.Census() > 1 {
		m.Harvest()
		time.Sleep(time.Millisecond)
	}
	close(release)
	m.Wait()

	total := m.Totals()
	if total.Bytes != 200 {
		t.Fatalf("Totals.Bytes = %d, want 200", total.Bytes)
	}
}
