package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/brewgator/block-explorer/internal/config"
	"github.com/brewgator/block-explorer/internal/db"
	"github.com/brewgator/block-explorer/internal/testutils"
)

type countingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *countingPruner) PruneSearches(_ context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, before)
	return 0, nil
}

func (p *countingPruner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestPruneOnceDropsExpiredSearches(t *testing.T) {
	database, err := db.NewDatabaseWithMockMode(testutils.CreateTestDBPath(t), false)
	testutils.AssertNoError(t, err)
	defer database.Close()
	ctx := context.Background()

	testutils.AssertNoError(t, database.InsertSearch(ctx, &db.SearchEntry{
		Timestamp: time.Now().Add(-48 * time.Hour), Kind: "block", Input: "1", Status: "ok",
	}))
	testutils.AssertNoError(t, database.InsertSearch(ctx, &db.SearchEntry{
		Timestamp: time.Now(), Kind: "block", Input: "2", Status: "ok",
	}))

	pruneOnce(ctx, database, 24*time.Hour, zap.NewNop().Sugar())

	entries, err := database.GetRecentSearches(ctx, 10)
	testutils.AssertNoError(t, err)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 remaining entry, got %d", len(entries))
	}
	testutils.AssertEqual(t, entries[0].Input, "2")
}

func TestPruneHistoryDisabled(t *testing.T) {
	pruner := &countingPruner{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		pruneHistory(context.Background(), pruner, config.HistoryConfig{}, zap.NewNop().Sugar())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneHistory should return when retention is disabled")
	}
	testutils.AssertEqual(t, pruner.count(), 0)
}

func TestPruneHistoryRunsUntilCancelled(t *testing.T) {
	pruner := &countingPruner{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pruneHistory(ctx, pruner, config.HistoryConfig{
			Retention:     time.Hour,
			PruneInterval: 5 * time.Millisecond,
		}, zap.NewNop().Sugar())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pruner.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Expected repeated prune passes")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneHistory did not stop")
	}

	pruner.mu.Lock()
	first := pruner.cutoffs[0]
	pruner.mu.Unlock()
	if age := time.Since(first); age < time.Hour || age > time.Hour+time.Minute {
		t.Errorf("Expected a cutoff one hour back, got %v ago", age)
	}
}
