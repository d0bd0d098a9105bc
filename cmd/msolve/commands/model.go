package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/macrosolve/macrosolve/pkg/config"
	"github.com/macrosolve/macrosolve/pkg/policy"
	"github.com/macrosolve/macrosolve/pkg/solver"
	"github.com/macrosolve/macrosolve/pkg/telemetry"
)

// loadModel parses a model file through the front end matching its
// extension.
func loadModel(ctx context.Context, path string) (*config.ModelFile, error) {
	var (
		parsed *config.ParsedModel
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		var parser *config.CUEParser
		parser, err = config.NewCUEParser()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CUE parser: %w", err)
		}
		parsed, err = parser.Parse(ctx, []string{path})
	case ".yaml", ".yml":
		parsed, err = config.NewYAMLLoader().Load(path)
	default:
		return nil, fmt.Errorf("unsupported model file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if len(parsed.Errors) > 0 {
		for _, e := range parsed.Errors {
			fmt.Fprintln(os.Stderr, e.String())
		}
		return nil, fmt.Errorf("model file %s has %d validation errors", path, len(parsed.Errors))
	}

	return &parsed.Model, nil
}

// buildRequest assembles the guardrail input for a model.
func buildRequest(mf *config.ModelFile, m *config.MatrixModel) *policy.SolveRequest {
	cfg := m.SolverConfig()
	regimes := 1
	if cfg.RegimeSwitching {
		regimes = cfg.Regimes
	}
	return &policy.SolveRequest{
		Model:                 m.Name(),
		Method:                string(cfg.Method),
		Regimes:               regimes,
		States:                m.CoreStates(),
		AugmentedStates:       m.AugmentedStates(),
		Shocks:                len(mf.Shocks),
		ExpectationErrors:     len(mf.ExpectationErrors),
		RegimeSwitching:       cfg.RegimeSwitching,
		StabilityDivider:      cfg.StabilityDivider,
		TemporaryPolicyLength: cfg.TemporaryPolicyLength,
		UncertainTemporary:    cfg.UncertainTemporary,
	}
}

// checkGuardrails evaluates the built-in and user policies against a
// solve request. Violations are printed; blocking ones produce an
// error.
func checkGuardrails(ctx context.Context, logger zerolog.Logger, tel *telemetry.Telemetry, req *policy.SolveRequest, operation string) error {
	engine, err := policy.NewEngine(logger)
	if err != nil {
		return fmt.Errorf("failed to create policy engine: %w", err)
	}
	if len(policyDirs) > 0 {
		if err := engine.LoadPolicies(ctx, policyDirs); err != nil {
			return err
		}
	}

	result, err := engine.EvaluateRequest(ctx, req, &policy.PolicyContext{
		Environment: environment,
		Operation:   operation,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, v := range result.Violations {
		fmt.Fprintf(os.Stderr, "policy %s [%s]: %s\n", v.Policy, v.Severity, v.Message)
		if tel != nil {
			_ = tel.Events.PublishPolicyViolation(v.Policy, v.Message)
		}
	}
	if !result.Allowed {
		return fmt.Errorf("solve request for model %s blocked by %d policy violations", req.Model, len(result.Violations))
	}
	return nil
}

// solutionOutput is the JSON shape of one regime's solution.
type solutionOutput struct {
	Regime int         `json:"regime"`
	States int         `json:"states"`
	TTT    [][]float64 `json:"ttt"`
	RRR    [][]float64 `json:"rrr"`
	CCC    []float64   `json:"ccc"`
}

// printResult writes the solutions to stdout, as JSON or formatted
// matrices.
func printResult(m *config.MatrixModel, result *solver.Result) error {
	regimes := make([]int, 0, len(result.Solutions))
	for regime := range result.Solutions {
		regimes = append(regimes, regime)
	}
	sort.Ints(regimes)

	if jsonOutput {
		out := make([]solutionOutput, 0, len(regimes))
		for _, regime := range regimes {
			sol := result.Solutions[regime]
			out = append(out, solutionOutput{
				Regime: regime,
				States: sol.States(),
				TTT:    denseRows(sol.TTT),
				RRR:    denseRows(sol.RRR),
				CCC:    vecValues(sol.CCC),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("model %s: %d regime solution(s)\n", m.Name(), len(regimes))
	for _, regime := range regimes {
		sol := result.Solutions[regime]
		fmt.Printf("\nregime %d (%d states)\n", regime, sol.States())
		fmt.Printf("  TTT =\n%v\n", mat.Formatted(sol.TTT, mat.Prefix("      "), mat.Squeeze()))
		fmt.Printf("  RRR =\n%v\n", mat.Formatted(sol.RRR, mat.Prefix("      "), mat.Squeeze()))
		fmt.Printf("  CCC =\n%v\n", mat.Formatted(sol.CCC.T(), mat.Prefix("      "), mat.Squeeze()))
	}
	return nil
}

func denseRows(a *mat.Dense) [][]float64 {
	r, c := a.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			rows[i][j] = a.At(i, j)
		}
	}
	return rows
}

func vecValues(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = v.AtVec(i)
	}
	return out
}
