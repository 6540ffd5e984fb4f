package repo

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRecentRunsNewestFirst(t *testing.T) {
	r := NewMemoryRunRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := r.RecordRun(ctx, RunRecord{ID: id, Kind: KindExtract, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := r.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	all, _ := r.RecentRuns(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("limit 0 must return everything, got %d", len(all))
	}
}

func TestMemoryRecentRunsReturnsCopy(t *testing.T) {
	r := NewMemoryRunRepository()
	ctx := context.Background()
	_ = r.RecordRun(ctx, RunRecord{ID: "a"})
	runs, _ := r.RecentRuns(ctx, 10)
	runs[0].ID = "changed"
	again, _ := r.RecentRuns(ctx, 10)
	if again[0].ID != "a" {
		t.Fatal("RecentRuns must not expose internal storage")
	}
}
