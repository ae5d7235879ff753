package state

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := New(nil)
	if err := store.Open(MemoryPath); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_OpenCreatesSchema(t *testing.T) {
	store := setupTestStore(t)

	rows, err := store.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		t.Fatalf("failed to query schema: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan table name: %v", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}

	for _, want := range []string{"artifacts", "model_state", "runs"} {
		found := false
		for _, name := range tables {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("table %q not created, have %v", want, tables)
		}
	}

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("failed to get migration version: %v", err)
	}
	if version < 1 {
		t.Errorf("expected migration version >= 1, got %d", version)
	}
}

func TestStore_OpenOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	store := New(nil)
	if err := store.Open(path); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if store.Path() != path {
		t.Errorf("expected path %q, got %q", path, store.Path())
	}
	if err := store.PutRender(ctx, "fp1", &RenderRecord{Model: "orders", SQL: "select 1"}); err != nil {
		t.Fatalf("failed to put render: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("failed to flush: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	reopened := New(nil)
	if err := reopened.Open(path); err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	rec, ok, err := reopened.GetRender(ctx, "fp1")
	if err != nil {
		t.Fatalf("failed to get render after reopen: %v", err)
	}
	if !ok {
		t.Fatal("expected cached render to survive reopen")
	}
	if rec.SQL != "select 1" {
		t.Errorf("expected cached sql %q, got %q", "select 1", rec.SQL)
	}
}

func TestStore_Lifecycle(t *testing.T) {
	t.Run("open twice fails", func(t *testing.T) {
		store := setupTestStore(t)
		err := store.Open(MemoryPath)
		if err == nil || !strings.Contains(err.Error(), "already opened") {
			t.Errorf("expected already-opened error, got %v", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		store := New(nil)
		if err := store.Open(MemoryPath); err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("second close failed: %v", err)
		}
	})

	t.Run("flush on memory store is a no-op", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.Flush(context.Background()); err != nil {
			t.Errorf("unexpected flush error: %v", err)
		}
	})
}

func TestStore_UnopenedOperationsFail(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		operation func(s *Store) error
	}{
		{"migrate", func(s *Store) error { return s.Migrate() }},
		{"migration version", func(s *Store) error { _, err := s.MigrationVersion(); return err }},
		{"flush", func(s *Store) error { return s.Flush(ctx) }},
		{"put artifact", func(s *Store) error { return s.PutArtifact(ctx, ArtifactRender, "fp", "m", []byte("x")) }},
		{"get artifact", func(s *Store) error { _, _, err := s.GetArtifact(ctx, ArtifactRender, "fp"); return err }},
		{"delete artifact", func(s *Store) error { return s.DeleteArtifact(ctx, ArtifactRender, "fp") }},
		{"prune artifacts", func(s *Store) error { _, err := s.PruneArtifacts(ctx, time.Now()); return err }},
		{"upsert model state", func(s *Store) error { return s.UpsertModelState(ctx, ModelState{Name: "m"}) }},
		{"get model state", func(s *Store) error { _, _, err := s.GetModelState(ctx, "m"); return err }},
		{"all model states", func(s *Store) error { _, err := s.AllModelStates(ctx); return err }},
		{"prune model states", func(s *Store) error { _, err := s.PruneModelStates(ctx, nil); return err }},
		{"start run", func(s *Store) error { _, err := s.StartRun(ctx); return err }},
		{"finish run", func(s *Store) error { return s.FinishRun(ctx, "id", RunStatusCompleted, 0, 0, 0) }},
		{"get run", func(s *Store) error { _, err := s.GetRun(ctx, "id"); return err }},
		{"latest run", func(s *Store) error { _, err := s.LatestRun(ctx); return err }},
		{"recent runs", func(s *Store) error { _, err := s.RecentRuns(ctx, 5); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.operation(New(nil))
			if err == nil || !strings.Contains(err.Error(), "database not opened") {
				t.Errorf("expected database-not-opened error, got %v", err)
			}
		})
	}
}

func TestStore_Artifacts(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.PutArtifact(ctx, ArtifactRender, "fp1", "orders", []byte("select 1")); err != nil {
			t.Fatalf("failed to put artifact: %v", err)
		}
		payload, ok, err := store.GetArtifact(ctx, ArtifactRender, "fp1")
		if err != nil {
			t.Fatalf("failed to get artifact: %v", err)
		}
		if !ok {
			t.Fatal("expected a cache hit")
		}
		if string(payload) != "select 1" {
			t.Errorf("expected payload %q, got %q", "select 1", payload)
		}
	})

	t.Run("miss on absent fingerprint", func(t *testing.T) {
		store := setupTestStore(t)
		payload, ok, err := store.GetArtifact(ctx, ArtifactRender, "unknown")
		if err != nil {
			t.Fatalf("miss should not error: %v", err)
		}
		if ok || payload != nil {
			t.Errorf("expected a miss, got ok=%v payload=%q", ok, payload)
		}
	})

	t.Run("put replaces existing payload", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.PutArtifact(ctx, ArtifactRender, "fp1", "orders", []byte("old")); err != nil {
			t.Fatalf("failed to put artifact: %v", err)
		}
		if err := store.PutArtifact(ctx, ArtifactRender, "fp1", "orders", []byte("new")); err != nil {
			t.Fatalf("failed to replace artifact: %v", err)
		}
		payload, ok, _ := store.GetArtifact(ctx, ArtifactRender, "fp1")
		if !ok || string(payload) != "new" {
			t.Errorf("expected replaced payload %q, got ok=%v %q", "new", ok, payload)
		}
	})

	t.Run("kinds are independent", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.PutArtifact(ctx, ArtifactRender, "fp1", "orders", []byte("sql")); err != nil {
			t.Fatalf("failed to put render artifact: %v", err)
		}
		if err := store.PutArtifact(ctx, ArtifactLineage, "fp1", "orders", []byte("{}")); err != nil {
			t.Fatalf("failed to put lineage artifact: %v", err)
		}
		render, ok, _ := store.GetArtifact(ctx, ArtifactRender, "fp1")
		if !ok || string(render) != "sql" {
			t.Errorf("render artifact clobbered: ok=%v %q", ok, render)
		}
		lineage, ok, _ := store.GetArtifact(ctx, ArtifactLineage, "fp1")
		if !ok || string(lineage) != "{}" {
			t.Errorf("lineage artifact clobbered: ok=%v %q", ok, lineage)
		}
	})

	t.Run("delete is a no-op on absent rows", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.DeleteArtifact(ctx, ArtifactRender, "unknown"); err != nil {
			t.Errorf("unexpected delete error: %v", err)
		}
	})
}

func TestStore_LineageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	valid := true
	rec := &LineageRecord{
		Model: "orders",
		Columns: []core.Column{
			{Name: "order_id", Index: 0, Provenance: []core.Provenance{{Relation: "stg_orders", Column: "id"}}},
			{Name: "total", Index: 1, Transform: core.TransformExpression, Function: "SUM", Provenance: []core.Provenance{{Relation: "stg_orders", Column: "amount"}}},
		},
		ConsumedRefs: []core.ConsumedRef{
			{Relation: "stg_orders", Column: "id", Kind: core.ConsumedExternal},
			{Relation: "totals", Column: "amount", Kind: core.ConsumedCTE, Valid: &valid},
		},
		Relations: []string{"stg_orders"},
	}

	if err := store.PutLineage(ctx, "fp-lineage", rec); err != nil {
		t.Fatalf("failed to put lineage: %v", err)
	}

	got, ok, err := store.GetLineage(ctx, "fp-lineage")
	if err != nil {
		t.Fatalf("failed to get lineage: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if !reflect.DeepEqual(rec, got) {
		t.Errorf("lineage record changed across round trip:\nput %+v\ngot %+v", rec, got)
	}

	_, ok, err = store.GetLineage(ctx, "unknown")
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if ok {
		t.Error("expected a miss for unknown fingerprint")
	}
}

func TestStore_CorruptLineageDropped(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	if err := store.PutArtifact(ctx, ArtifactLineage, "fp1", "orders", []byte("{not json")); err != nil {
		t.Fatalf("failed to put artifact: %v", err)
	}

	rec, ok, err := store.GetLineage(ctx, "fp1")
	if err != nil {
		t.Fatalf("corrupt payload should read as a miss, got error: %v", err)
	}
	if ok || rec != nil {
		t.Fatalf("corrupt payload should read as a miss, got %+v", rec)
	}

	// The corrupt row is gone, so a recompute can rewrite it.
	_, ok, err = store.GetArtifact(ctx, ArtifactLineage, "fp1")
	if err != nil {
		t.Fatalf("failed to check artifact: %v", err)
	}
	if ok {
		t.Error("corrupt artifact row should have been deleted")
	}

	if err := store.PutLineage(ctx, "fp1", &LineageRecord{Model: "orders"}); err != nil {
		t.Fatalf("failed to rewrite lineage: %v", err)
	}
	got, ok, err := store.GetLineage(ctx, "fp1")
	if err != nil || !ok {
		t.Fatalf("expected rewritten lineage to hit: ok=%v err=%v", ok, err)
	}
	if got.Model != "orders" {
		t.Errorf("expected model %q, got %q", "orders", got.Model)
	}
}

func TestStore_PruneArtifacts(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	if err := store.PutArtifact(ctx, ArtifactRender, "old", "orders", []byte("a")); err != nil {
		t.Fatalf("failed to put artifact: %v", err)
	}
	if err := store.PutArtifact(ctx, ArtifactRender, "new", "orders", []byte("b")); err != nil {
		t.Fatalf("failed to put artifact: %v", err)
	}

	// Backdate one row past the cutoff.
	cutoff := time.Now().Add(-time.Hour)
	backdated := cutoff.Add(-time.Minute).UTC().UnixMilli()
	if _, err := store.db.Exec(`UPDATE artifacts SET created_at = ? WHERE fingerprint = 'old'`, backdated); err != nil {
		t.Fatalf("failed to backdate artifact: %v", err)
	}

	n, err := store.PruneArtifacts(ctx, cutoff)
	if err != nil {
		t.Fatalf("failed to prune artifacts: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned artifact, got %d", n)
	}

	if _, ok, _ := store.GetArtifact(ctx, ArtifactRender, "old"); ok {
		t.Error("backdated artifact should have been pruned")
	}
	if _, ok, _ := store.GetArtifact(ctx, ArtifactRender, "new"); !ok {
		t.Error("recent artifact should have survived pruning")
	}
}

func TestStore_ModelState(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		store := setupTestStore(t)
		analyzedAt := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
		st := ModelState{
			Name:             "orders",
			Fingerprint:      "fp-full",
			LocalFingerprint: "fp-local",
			MacroHash:        "mh",
			AnalyzedAt:       analyzedAt,
		}
		if err := store.UpsertModelState(ctx, st); err != nil {
			t.Fatalf("failed to upsert model state: %v", err)
		}

		got, ok, err := store.GetModelState(ctx, "orders")
		if err != nil {
			t.Fatalf("failed to get model state: %v", err)
		}
		if !ok {
			t.Fatal("expected model state to exist")
		}
		if got.Fingerprint != "fp-full" || got.LocalFingerprint != "fp-local" || got.MacroHash != "mh" {
			t.Errorf("unexpected model state: %+v", got)
		}
		if !got.AnalyzedAt.Equal(analyzedAt) {
			t.Errorf("expected analyzed_at %v, got %v", analyzedAt, got.AnalyzedAt)
		}
	})

	t.Run("miss for unknown model", func(t *testing.T) {
		store := setupTestStore(t)
		st, ok, err := store.GetModelState(ctx, "missing")
		if err != nil {
			t.Fatalf("miss should not error: %v", err)
		}
		if ok || st != nil {
			t.Errorf("expected a miss, got %+v", st)
		}
	})

	t.Run("upsert replaces", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.UpsertModelState(ctx, ModelState{Name: "orders", Fingerprint: "v1"}); err != nil {
			t.Fatalf("failed to upsert model state: %v", err)
		}
		if err := store.UpsertModelState(ctx, ModelState{Name: "orders", Fingerprint: "v2"}); err != nil {
			t.Fatalf("failed to upsert model state: %v", err)
		}
		got, ok, _ := store.GetModelState(ctx, "orders")
		if !ok || got.Fingerprint != "v2" {
			t.Errorf("expected replaced fingerprint v2, got %+v", got)
		}
	})

	t.Run("zero analyzed_at defaults to now", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.UpsertModelState(ctx, ModelState{Name: "orders", Fingerprint: "fp"}); err != nil {
			t.Fatalf("failed to upsert model state: %v", err)
		}
		got, ok, _ := store.GetModelState(ctx, "orders")
		if !ok {
			t.Fatal("expected model state to exist")
		}
		if got.AnalyzedAt.IsZero() {
			t.Error("analyzed_at should have been defaulted")
		}
		if time.Since(got.AnalyzedAt) > time.Minute {
			t.Errorf("analyzed_at %v is not recent", got.AnalyzedAt)
		}
	})

	t.Run("all model states", func(t *testing.T) {
		store := setupTestStore(t)
		for _, name := range []string{"orders", "customers", "payments"} {
			if err := store.UpsertModelState(ctx, ModelState{Name: name, Fingerprint: "fp-" + name}); err != nil {
				t.Fatalf("failed to upsert model state: %v", err)
			}
		}
		states, err := store.AllModelStates(ctx)
		if err != nil {
			t.Fatalf("failed to load model states: %v", err)
		}
		if len(states) != 3 {
			t.Fatalf("expected 3 model states, got %d", len(states))
		}
		if states["customers"].Fingerprint != "fp-customers" {
			t.Errorf("unexpected state for customers: %+v", states["customers"])
		}
	})

	t.Run("prune keeps listed models", func(t *testing.T) {
		store := setupTestStore(t)
		for _, name := range []string{"orders", "customers", "deleted_model"} {
			if err := store.UpsertModelState(ctx, ModelState{Name: name, Fingerprint: "fp"}); err != nil {
				t.Fatalf("failed to upsert model state: %v", err)
			}
		}
		n, err := store.PruneModelStates(ctx, []string{"orders", "customers"})
		if err != nil {
			t.Fatalf("failed to prune model states: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 pruned state, got %d", n)
		}
		if _, ok, _ := store.GetModelState(ctx, "deleted_model"); ok {
			t.Error("state for removed model should have been pruned")
		}
		if _, ok, _ := store.GetModelState(ctx, "orders"); !ok {
			t.Error("state for kept model should have survived")
		}
	})

	t.Run("prune with empty keep clears the table", func(t *testing.T) {
		store := setupTestStore(t)
		if err := store.UpsertModelState(ctx, ModelState{Name: "orders", Fingerprint: "fp"}); err != nil {
			t.Fatalf("failed to upsert model state: %v", err)
		}
		n, err := store.PruneModelStates(ctx, nil)
		if err != nil {
			t.Fatalf("failed to prune model states: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 pruned state, got %d", n)
		}
		states, _ := store.AllModelStates(ctx)
		if len(states) != 0 {
			t.Errorf("expected empty model state, got %d rows", len(states))
		}
	})
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setup     func(t *testing.T, store *Store) *Run
		operation func(t *testing.T, store *Store, run *Run)
		verify    func(t *testing.T, store *Store, run *Run)
	}{
		{
			name: "start and get run",
			setup: func(t *testing.T, store *Store) *Run {
				run, err := store.StartRun(ctx)
				if err != nil {
					t.Fatalf("failed to start run: %v", err)
				}
				return run
			},
			verify: func(t *testing.T, store *Store, run *Run) {
				if _, err := uuid.Parse(run.ID); err != nil {
					t.Errorf("run ID %q is not a UUID: %v", run.ID, err)
				}
				retrieved, err := store.GetRun(ctx, run.ID)
				if err != nil {
					t.Fatalf("failed to get run: %v", err)
				}
				if retrieved.ID != run.ID {
					t.Errorf("expected ID %q, got %q", run.ID, retrieved.ID)
				}
				if retrieved.Status != RunStatusRunning {
					t.Errorf("expected status 'running', got %q", retrieved.Status)
				}
				if retrieved.FinishedAt != nil {
					t.Error("finished_at should be nil for a running run")
				}
				if retrieved.StartedAt.IsZero() {
					t.Error("started_at should be set")
				}
			},
		},
		{
			name: "get run not found",
			operation: func(t *testing.T, store *Store, run *Run) {
				_, err := store.GetRun(ctx, "nonexistent-id")
				if err == nil || !strings.Contains(err.Error(), "run not found") {
					t.Errorf("expected run-not-found error, got %v", err)
				}
			},
		},
		{
			name: "finish run completed",
			setup: func(t *testing.T, store *Store) *Run {
				run, _ := store.StartRun(ctx)
				return run
			},
			operation: func(t *testing.T, store *Store, run *Run) {
				if err := store.FinishRun(ctx, run.ID, RunStatusCompleted, 12, 0, 3); err != nil {
					t.Fatalf("failed to finish run: %v", err)
				}
			},
			verify: func(t *testing.T, store *Store, run *Run) {
				retrieved, _ := store.GetRun(ctx, run.ID)
				if retrieved.Status != RunStatusCompleted {
					t.Errorf("expected status 'completed', got %q", retrieved.Status)
				}
				if retrieved.FinishedAt == nil {
					t.Fatal("finished_at should not be nil")
				}
				if retrieved.FinishedAt.Before(retrieved.StartedAt) {
					t.Errorf("finished_at %v before started_at %v", retrieved.FinishedAt, retrieved.StartedAt)
				}
				if retrieved.Models != 12 || retrieved.Errors != 0 || retrieved.Warnings != 3 {
					t.Errorf("unexpected counters: %+v", retrieved)
				}
			},
		},
		{
			name: "finish run failed",
			setup: func(t *testing.T, store *Store) *Run {
				run, _ := store.StartRun(ctx)
				return run
			},
			operation: func(t *testing.T, store *Store, run *Run) {
				if err := store.FinishRun(ctx, run.ID, RunStatusFailed, 5, 2, 1); err != nil {
					t.Fatalf("failed to finish run: %v", err)
				}
			},
			verify: func(t *testing.T, store *Store, run *Run) {
				retrieved, _ := store.GetRun(ctx, run.ID)
				if retrieved.Status != RunStatusFailed {
					t.Errorf("expected status 'failed', got %q", retrieved.Status)
				}
				if retrieved.Errors != 2 {
					t.Errorf("expected 2 errors, got %d", retrieved.Errors)
				}
			},
		},
		{
			name: "finish run not found",
			operation: func(t *testing.T, store *Store, run *Run) {
				err := store.FinishRun(ctx, "nonexistent-id", RunStatusCompleted, 0, 0, 0)
				if err == nil || !strings.Contains(err.Error(), "run not found") {
					t.Errorf("expected run-not-found error, got %v", err)
				}
			},
		},
		{
			name: "latest run",
			setup: func(t *testing.T, store *Store) *Run {
				store.StartRun(ctx)
				time.Sleep(10 * time.Millisecond)
				run2, _ := store.StartRun(ctx)
				return run2
			},
			verify: func(t *testing.T, store *Store, run *Run) {
				latest, err := store.LatestRun(ctx)
				if err != nil {
					t.Fatalf("failed to get latest run: %v", err)
				}
				if latest.ID != run.ID {
					t.Errorf("expected latest run ID %q, got %q", run.ID, latest.ID)
				}
			},
		},
		{
			name: "latest run with no runs",
			verify: func(t *testing.T, store *Store, run *Run) {
				latest, err := store.LatestRun(ctx)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if latest != nil {
					t.Error("expected nil when no runs are recorded")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			var run *Run
			if tt.setup != nil {
				run = tt.setup(t, store)
			}
			if tt.operation != nil {
				tt.operation(t, store, run)
			}
			if tt.verify != nil {
				tt.verify(t, store, run)
			}
		})
	}
}

func TestStore_RecentRuns(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := store.StartRun(ctx)
		if err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
		ids = append(ids, run.ID)
		time.Sleep(10 * time.Millisecond)
	}

	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("expected newest-first order [%s %s], got [%s %s]", ids[2], ids[1], runs[0].ID, runs[1].ID)
	}
}
