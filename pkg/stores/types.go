package stores

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/macrosolve/macrosolve/pkg/solver"
)

// RunStatus represents the status of a solve run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SolveRun represents one invocation of the dispatcher against a model
type SolveRun struct {
	ID          string     `json:"id"`
	Model       string     `json:"model"`
	Method      string     `json:"method"`
	Regimes     int        `json:"regimes"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewSolveRun builds a pending run with a fresh UUID.
func NewSolveRun(model, method string, regimes int) *SolveRun {
	now := time.Now().UTC()
	return &SolveRun{
		ID:        uuid.NewString(),
		Model:     model,
		Method:    method,
		Regimes:   regimes,
		Status:    RunStatusPending,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StoredSolution is a transition solution persisted under the content
// hash of the equilibrium conditions that produced it.
type StoredSolution struct {
	ConditionsHash string                     `json:"conditions_hash"`
	Eigen          solver.Eigenstate          `json:"eigen"`
	Solution       *solver.TransitionSolution `json:"-"`
	Hits           int64                      `json:"hits"`
	CreatedAt      time.Time                  `json:"created_at"`
	LastUsedAt     time.Time                  `json:"last_used_at"`
}

// RunSolution joins a stored solution to the run and regime that
// requested it.
type RunSolution struct {
	RunID  string `json:"run_id"`
	Regime int    `json:"regime"`
	StoredSolution
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *SolveRun) error
	GetRun(ctx context.Context, id string) (*SolveRun, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*SolveRun, error)
	DeleteRun(ctx context.Context, id string) error

	// Solution operations
	PutSolution(ctx context.Context, sol *StoredSolution) error
	GetSolution(ctx context.Context, conditionsHash string) (*StoredSolution, error)
	LinkRunSolution(ctx context.Context, runID string, regime int, conditionsHash string) error
	SolutionsForRun(ctx context.Context, runID string) ([]*RunSolution, error)
	PruneSolutions(ctx context.Context, unusedSince time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

// ConditionsHash computes the content hash under which a solution for
// the given equilibrium conditions is stored. Matrices are hashed in a
// fixed order with their dimensions, so reordered or reshaped systems
// never collide.
func ConditionsHash(ec *solver.EquilibriumConditions) string {
	h := sha256.New()
	hashMatrix(h, ec.Gamma0)
	hashMatrix(h, ec.Gamma1)
	hashMatrix(h, ec.C)
	hashMatrix(h, ec.Psi)
	hashMatrix(h, ec.Pi)
	return hex.EncodeToString(h.Sum(nil))
}

func hashMatrix(h interface{ Write([]byte) (int, error) }, m mat.Matrix) {
	var buf [8]byte
	r, c := m.Dims()
	binary.BigEndian.PutUint64(buf[:], uint64(r))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(c))
	h.Write(buf[:])
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(m.At(i, j)))
			h.Write(buf[:])
		}
	}
}
