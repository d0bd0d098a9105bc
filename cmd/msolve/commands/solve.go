package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/macrosolve/macrosolve/pkg/config"
	"github.com/macrosolve/macrosolve/pkg/kernel"
	"github.com/macrosolve/macrosolve/pkg/solver"
	"github.com/macrosolve/macrosolve/pkg/stores"
	"github.com/macrosolve/macrosolve/pkg/telemetry"
)

func newSolveCommand() *cobra.Command {
	var (
		storePath   string
		metricsAddr string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "solve <model-file>",
		Short: "Solve a model and print its transition solutions",
		Long: `Solve a model file and print the transition solution of every regime.

The model file is parsed through the YAML or CUE front end by
extension, checked against the guardrail policies, and dispatched to
the solver. With --store, the run and its per-regime solutions are
persisted to a SQLite database keyed by the content of each regime's
equilibrium conditions.`,
		Example: `  # Solve a YAML model
  msolve solve ./models/ar1.yaml

  # Solve a CUE model and persist solutions
  msolve solve --store ~/.msolve.db ./models/policy-switch.cue

  # Machine-readable output
  msolve solve --json ./models/ar1.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			tel, err := buildTelemetry(metricsAddr)
			if err != nil {
				return err
			}
			defer func() {
				_ = tel.Shutdown(context.Background())
			}()

			return runSolve(ctx, tel, args[0], storePath)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "SQLite solution store path (empty disables persistence)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the solve after this duration")

	return cmd
}

// buildTelemetry assembles the telemetry bundle from the global flags.
func buildTelemetry(metricsAddr string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if environment == "production" {
		cfg = telemetry.ProductionConfig()
		cfg.Metrics.Enabled = false
	}
	cfg.ServiceVersion = appVersion
	cfg.Environment = environment
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsAddr
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := tel.Metrics.StartMetricsServer(); err != nil {
			return nil, err
		}
	}
	return tel, nil
}

// runSolve loads a model, checks guardrails, dispatches the solve and
// persists the result. Shared by the solve and watch commands.
func runSolve(ctx context.Context, tel *telemetry.Telemetry, modelPath, storePath string) error {
	logger := tel.Logger.Component("msolve").Zerolog()

	mf, err := loadModel(ctx, modelPath)
	if err != nil {
		return err
	}
	m, err := config.BuildModel(mf, config.NewStarlarkEvaluator(0))
	if err != nil {
		return fmt.Errorf("failed to build model %s: %w", mf.Name, err)
	}

	req := buildRequest(mf, m)
	if err := checkGuardrails(ctx, logger, tel, req, "solve"); err != nil {
		return err
	}

	var (
		store *stores.SQLiteStore
		run   *stores.SolveRun
		runID string
	)
	if storePath != "" {
		store, err = openStore(ctx, storePath)
		if err != nil {
			return err
		}
		defer store.Close()

		run = stores.NewSolveRun(m.Name(), req.Method, req.Regimes)
		if err := store.CreateRun(ctx, run); err != nil {
			return err
		}
		runID = run.ID
		if err := store.UpdateRunStatus(ctx, runID, stores.RunStatusRunning, nil); err != nil {
			return err
		}
	}

	ctx, span := tel.Tracer.StartSolveSpan(ctx, runID, m.Name())
	defer span.End()

	s, err := solver.New(m.SolverConfig(), m.Registry(), solver.Deps{
		Kernel:    kernel.DirectKernel{},
		Builder:   m,
		Augmenter: kernel.IdentityAugmenter{},
	}, logger)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if store != nil {
		observeReuse(ctx, tel, store, m)
	}

	tel.Metrics.RecordSolveStarted(req.Method)
	_ = tel.Events.PublishSolveStarted(runID, m.Name(), req.Method)
	started := time.Now()

	result, err := s.Solve(ctx, m)
	elapsed := time.Since(started)
	if err != nil {
		class := errorClass(err)
		tel.Metrics.RecordSolveCompleted(req.Method, "failure", elapsed)
		tel.Metrics.RecordFailure(class)
		regime, _ := solver.FailingRegime(err)
		_ = tel.Events.PublishSolveFailed(runID, class, err.Error(), regime)
		telemetry.RecordError(span, err)
		if store != nil {
			msg := err.Error()
			_ = store.UpdateRunStatus(ctx, runID, stores.RunStatusFailed, &msg)
		}
		return err
	}

	tel.Metrics.RecordSolveCompleted(req.Method, "success", elapsed)
	_ = tel.Events.PublishSolveCompleted(runID, len(result.Solutions), elapsed)
	telemetry.RecordSuccess(span)

	if store != nil {
		persistSolutions(ctx, tel, store, m, runID, result)
		if err := store.UpdateRunStatus(ctx, runID, stores.RunStatusCompleted, nil); err != nil {
			return err
		}
	}

	logger.Info().
		Str("model", m.Name()).
		Int("regimes", len(result.Solutions)).
		Dur("duration", elapsed).
		Msg("Solve completed")

	return printResult(m, result)
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// observeReuse records which of the model's explicit condition blocks
// already have a stored solution.
func observeReuse(ctx context.Context, tel *telemetry.Telemetry, store *stores.SQLiteStore, m *config.MatrixModel) {
	for _, regime := range m.DefinedRegimes() {
		ec, ok := m.Conditions(regime)
		if !ok {
			continue
		}
		_, err := store.GetSolution(ctx, stores.ConditionsHash(ec))
		switch {
		case err == nil:
			tel.Metrics.RecordStoreLookup("hit")
		case errors.Is(err, stores.ErrNotFound):
			tel.Metrics.RecordStoreLookup("miss")
		default:
			tel.Logger.WithError(err).Warn("Solution store lookup failed")
		}
	}
}

// persistSolutions upserts the solved regimes under their conditions
// hashes and links them to the run. Regimes whose conditions come from
// generator scripts have no stable content hash and are skipped.
func persistSolutions(ctx context.Context, tel *telemetry.Telemetry, store *stores.SQLiteStore, m *config.MatrixModel, runID string, result *solver.Result) {
	for regime, sol := range result.Solutions {
		ec, ok := m.Conditions(regime)
		if !ok {
			continue
		}
		hash := stores.ConditionsHash(ec)
		stored := &stores.StoredSolution{
			ConditionsHash: hash,
			Eigen:          solver.Eigenstate{Existence: 1, Uniqueness: 1},
			Solution:       sol,
		}
		if err := store.PutSolution(ctx, stored); err != nil {
			tel.Logger.WithError(err).WithRegime(regime).Warn("Failed to persist solution")
			continue
		}
		if err := store.LinkRunSolution(ctx, runID, regime, hash); err != nil {
			tel.Logger.WithError(err).WithRegime(regime).Warn("Failed to link solution to run")
		}
	}
}

func errorClass(err error) string {
	switch {
	case solver.IsSolveFailure(err):
		return string(solver.ClassSolveFailure)
	case solver.IsUnsupportedConfiguration(err):
		return string(solver.ClassUnsupportedConfiguration)
	case solver.IsPrecondition(err):
		return string(solver.ClassPrecondition)
	default:
		return "internal"
	}
}
