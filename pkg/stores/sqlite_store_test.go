package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/macrosolve/macrosolve/pkg/solver"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testConditions(scale float64) *solver.EquilibriumConditions {
	return &solver.EquilibriumConditions{
		Gamma0: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		Gamma1: mat.NewDense(2, 2, []float64{scale, 0, 0, scale}),
		C:      mat.NewVecDense(2, nil),
		Psi:    mat.NewDense(2, 1, []float64{1, 1}),
		Pi:     mat.NewDense(2, 1, nil),
	}
}

func testSolution(scale float64) *solver.TransitionSolution {
	return &solver.TransitionSolution{
		TTT: mat.NewDense(2, 2, []float64{scale, 0, 0, scale}),
		RRR: mat.NewDense(2, 1, []float64{1, 1}),
		CCC: mat.NewVecDense(2, []float64{0.1, 0.2}),
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tables := []string{"solve_runs", "solutions", "run_solutions"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestRunCRUD tests solve run CRUD operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	run := NewSolveRun("ar1", "gensys", 2)
	if run.ID == "" {
		t.Fatal("expected NewSolveRun to assign an ID")
	}
	if run.Status != RunStatusPending {
		t.Fatalf("expected pending status, got %s", run.Status)
	}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Model != "ar1" {
		t.Errorf("expected model ar1, got %s", retrieved.Model)
	}
	if retrieved.Method != "gensys" {
		t.Errorf("expected method gensys, got %s", retrieved.Method)
	}
	if retrieved.Regimes != 2 {
		t.Errorf("expected 2 regimes, got %d", retrieved.Regimes)
	}

	errMsg := "regime 2 indeterminate"
	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	updated, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get updated run: %v", err)
	}
	if updated.Status != RunStatusFailed {
		t.Errorf("expected failed status, got %s", updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected error %q, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected terminal status to stamp completed_at")
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// TestUpdateMissingRun tests that status updates report missing runs
func TestUpdateMissingRun(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	err := store.UpdateRunStatus(context.Background(), "no-such-run", RunStatusRunning, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestConditionsHash tests content-hash stability and discrimination
func TestConditionsHash(t *testing.T) {
	a := ConditionsHash(testConditions(0.9))
	b := ConditionsHash(testConditions(0.9))
	c := ConditionsHash(testConditions(0.5))

	if a != b {
		t.Error("identical conditions must hash identically")
	}
	if a == c {
		t.Error("different conditions must not collide")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
}

// TestSolutionRoundTrip tests storing and retrieving a solution by
// conditions hash
func TestSolutionRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	hash := ConditionsHash(testConditions(0.9))

	stored := &StoredSolution{
		ConditionsHash: hash,
		Eigen:          solver.Eigenstate{Existence: 1, Uniqueness: 1},
		Solution:       testSolution(0.9),
	}
	if err := store.PutSolution(ctx, stored); err != nil {
		t.Fatalf("failed to put solution: %v", err)
	}

	got, err := store.GetSolution(ctx, hash)
	if err != nil {
		t.Fatalf("failed to get solution: %v", err)
	}
	if !got.Eigen.Determinate() {
		t.Errorf("expected determinate classification, got %+v", got.Eigen)
	}
	if !mat.EqualApprox(got.Solution.TTT, stored.Solution.TTT, 0) {
		t.Error("transition matrix did not round-trip")
	}
	if !mat.EqualApprox(got.Solution.RRR, stored.Solution.RRR, 0) {
		t.Error("shock loading did not round-trip")
	}
	if !mat.EqualApprox(got.Solution.CCC, stored.Solution.CCC, 0) {
		t.Error("constant vector did not round-trip")
	}
	if got.Hits != 1 {
		t.Errorf("expected 1 hit after first lookup, got %d", got.Hits)
	}

	again, err := store.GetSolution(ctx, hash)
	if err != nil {
		t.Fatalf("failed to get solution twice: %v", err)
	}
	if again.Hits != 2 {
		t.Errorf("expected 2 hits after second lookup, got %d", again.Hits)
	}
}

// TestSolutionMiss tests that a cache miss is reported as ErrNotFound
func TestSolutionMiss(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.GetSolution(context.Background(), "deadbeef")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestRunSolutionLinking tests linking runs to shared stored solutions
func TestRunSolutionLinking(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	run := NewSolveRun("ar1", "gensys", 2)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	hashA := ConditionsHash(testConditions(0.9))
	hashB := ConditionsHash(testConditions(0.5))
	for scale, hash := range map[float64]string{0.9: hashA, 0.5: hashB} {
		sol := &StoredSolution{
			ConditionsHash: hash,
			Eigen:          solver.Eigenstate{Existence: 1, Uniqueness: 1},
			Solution:       testSolution(scale),
		}
		if err := store.PutSolution(ctx, sol); err != nil {
			t.Fatalf("failed to put solution: %v", err)
		}
	}

	if err := store.LinkRunSolution(ctx, run.ID, 1, hashA); err != nil {
		t.Fatalf("failed to link regime 1: %v", err)
	}
	if err := store.LinkRunSolution(ctx, run.ID, 2, hashB); err != nil {
		t.Fatalf("failed to link regime 2: %v", err)
	}

	sols, err := store.SolutionsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list run solutions: %v", err)
	}
	if len(sols) != 2 {
		t.Fatalf("expected 2 linked solutions, got %d", len(sols))
	}
	if sols[0].Regime != 1 || sols[1].Regime != 2 {
		t.Errorf("expected ascending regime order, got %d then %d", sols[0].Regime, sols[1].Regime)
	}
	if sols[0].ConditionsHash != hashA {
		t.Errorf("regime 1 linked to wrong solution: %s", sols[0].ConditionsHash)
	}
	if sols[0].Solution.TTT.At(0, 0) != 0.9 {
		t.Errorf("regime 1 solution payload wrong: %f", sols[0].Solution.TTT.At(0, 0))
	}

	// Relinking a regime replaces the association.
	if err := store.LinkRunSolution(ctx, run.ID, 2, hashA); err != nil {
		t.Fatalf("failed to relink regime 2: %v", err)
	}
	sols, err = store.SolutionsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list run solutions after relink: %v", err)
	}
	if sols[1].ConditionsHash != hashA {
		t.Errorf("expected regime 2 relinked to %s, got %s", hashA, sols[1].ConditionsHash)
	}

	// Deleting the run cascades the links but keeps the solutions.
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	sols, err = store.SolutionsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list run solutions after delete: %v", err)
	}
	if len(sols) != 0 {
		t.Errorf("expected no links after run delete, got %d", len(sols))
	}
	if _, err := store.GetSolution(ctx, hashA); err != nil {
		t.Errorf("solution should survive run deletion: %v", err)
	}
}

// TestPruneSolutions tests removal of stale unreferenced solutions
func TestPruneSolutions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	run := NewSolveRun("ar1", "gensys", 1)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	kept := ConditionsHash(testConditions(0.9))
	stale := ConditionsHash(testConditions(0.5))
	for scale, hash := range map[float64]string{0.9: kept, 0.5: stale} {
		sol := &StoredSolution{
			ConditionsHash: hash,
			Eigen:          solver.Eigenstate{Existence: 1, Uniqueness: 1},
			Solution:       testSolution(scale),
		}
		if err := store.PutSolution(ctx, sol); err != nil {
			t.Fatalf("failed to put solution: %v", err)
		}
	}
	if err := store.LinkRunSolution(ctx, run.ID, 1, kept); err != nil {
		t.Fatalf("failed to link solution: %v", err)
	}

	// Cutoff in the future: everything is stale, but the linked
	// solution must survive.
	pruned, err := store.PruneSolutions(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to prune solutions: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned solution, got %d", pruned)
	}
	if _, err := store.GetSolution(ctx, stale); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected stale solution pruned, got %v", err)
	}
	if _, err := store.GetSolution(ctx, kept); err != nil {
		t.Errorf("linked solution should survive pruning: %v", err)
	}
}
