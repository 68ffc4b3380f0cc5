package migration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"media-migrator/internal/database"
)

func poolItems(n int) []database.MediaItem {
	items := make([]database.MediaItem, n)
	for i := range items {
		items[i] = database.MediaItem{ID: fmt.Sprintf("item-%d", i)}
	}
	return items
}

func passSettle(_ context.Context, out outcome) outcome {
	if out.err != nil {
		out.status = database.StatusError
	} else {
		out.status = database.StatusDone
	}
	return out
}

func TestRunPoolBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var inFlight, peak atomic.Int32
	process := func(_ context.Context, item database.MediaItem) outcome {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return outcome{item: item}
	}

	outcomes := runPool(context.Background(), poolItems(12), 3, process, passSettle)
	if len(outcomes) != 12 {
		t.Fatalf("got %d outcomes, want 12", len(outcomes))
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
	for i, out := range outcomes {
		if out.item.ID != fmt.Sprintf("item-%d", i) {
			t.Errorf("outcome %d is for %s, want input order", i, out.item.ID)
		}
	}
}

func TestRunPoolIsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	process := func(_ context.Context, item database.MediaItem) outcome {
		switch item.ID {
		case "item-1":
			return outcome{item: item, err: &ItemError{ItemID: item.ID, Stage: StageDownload, Err: errors.New("gone")}}
		case "item-2":
			panic("unexpected")
		}
		return outcome{item: item}
	}

	outcomes := runPool(context.Background(), poolItems(4), 2, process, passSettle)

	want := []database.MigrationStatus{database.StatusDone, database.StatusError, database.StatusError, database.StatusDone}
	for i, out := range outcomes {
		if out.status != want[i] {
			t.Errorf("outcome %d status = %s, want %s", i, out.status, want[i])
		}
	}

	var itemErr *ItemError
	if !errors.As(outcomes[2].err, &itemErr) || itemErr.Stage != StageInternal {
		t.Errorf("panic outcome error = %v, want internal ItemError", outcomes[2].err)
	}
	if outcomes[2].item.ID != "item-2" {
		t.Errorf("panic outcome lost its item: %+v", outcomes[2].item)
	}
}

func TestRunPoolEmptyAndZeroWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	calls := 0
	process := func(_ context.Context, item database.MediaItem) outcome {
		calls++
		return outcome{item: item}
	}

	if out := runPool(context.Background(), nil, 3, process, passSettle); out != nil {
		t.Errorf("empty batch returned %v", out)
	}
	if out := runPool(context.Background(), poolItems(2), 0, process, passSettle); len(out) != 2 {
		t.Errorf("zero workers returned %d outcomes, want 2", len(out))
	}
	if calls != 2 {
		t.Errorf("process called %d times, want 2", calls)
	}
}
