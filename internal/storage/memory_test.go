package storage

import (
	"context"
	"testing"

	"fedrl/internal/model"
)

func TestMemoryStoreRunSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	summary := model.RunSummary{
		VersionedRecord: Versioned(),
		RunID:           "run-1",
		Strategy:        "fedavg",
		NumAgents:       4,
		Iterations:      10,
		FinalRewardMean: 0.75,
		FinalRewardBest: 0.9,
		TimestepsTotal:  4000,
	}
	if err := store.SaveRunSummary(ctx, summary); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	loaded, ok, err := store.GetRunSummary(ctx, "run-1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if !ok {
		t.Fatal("expected run-1")
	}
	if loaded.Strategy != summary.Strategy || loaded.FinalRewardMean != summary.FinalRewardMean {
		t.Fatalf("unexpected summary loaded: %+v", loaded)
	}

	_, ok, err = store.GetRunSummary(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("expected missing run to report not found")
	}
}

func TestMemoryStoreListsRunsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, runID := range []string{"run-b", "run-a", "run-c"} {
		summary := model.RunSummary{VersionedRecord: Versioned(), RunID: runID}
		if err := store.SaveRunSummary(ctx, summary); err != nil {
			t.Fatalf("save %s: %v", runID, err)
		}
	}
	// Re-saving an existing run must not duplicate it in the listing.
	if err := store.SaveRunSummary(ctx, model.RunSummary{VersionedRecord: Versioned(), RunID: "run-a", Iterations: 5}); err != nil {
		t.Fatalf("resave run-a: %v", err)
	}

	summaries, err := store.ListRunSummaries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(summaries))
	}
	wantOrder := []string{"run-b", "run-a", "run-c"}
	for i, want := range wantOrder {
		if summaries[i].RunID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, summaries[i].RunID)
		}
	}
	if summaries[1].Iterations != 5 {
		t.Fatalf("expected resave to replace run-a, got %+v", summaries[1])
	}
}

func TestMemoryStoreIterationHistoryCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	records := []model.IterationRecord{
		{VersionedRecord: Versioned(), Iteration: 1, Federated: "No federation", HasRewardSignal: false},
		{VersionedRecord: Versioned(), Iteration: 2, Federated: "Federation with 1", RewardMean: 0.5, HasRewardSignal: true},
	}
	if err := store.SaveIterationHistory(ctx, "run-1", records); err != nil {
		t.Fatalf("save history: %v", err)
	}

	records[0].Iteration = 99

	loaded, ok, err := store.GetIterationHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected history run-1")
	}
	if loaded[0].Iteration != 1 {
		t.Fatalf("mutation of caller slice leaked into store: %+v", loaded[0])
	}

	loaded[1].RewardMean = -1
	again, _, err := store.GetIterationHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history again: %v", err)
	}
	if again[1].RewardMean != 0.5 {
		t.Fatalf("mutation of returned slice leaked into store: %+v", again[1])
	}
}

func TestMemoryStoreRewardHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	history := []float64{0.1, 0.4, 0.8}
	if err := store.SaveRewardHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save rewards: %v", err)
	}

	loaded, ok, err := store.GetRewardHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get rewards: %v", err)
	}
	if !ok {
		t.Fatal("expected reward history run-1")
	}
	if len(loaded) != 3 || loaded[2] != 0.8 {
		t.Fatalf("unexpected reward history: %+v", loaded)
	}

	_, ok, err = store.GetRewardHistory(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing rewards: %v", err)
	}
	if ok {
		t.Fatal("expected missing reward history to report not found")
	}
}
