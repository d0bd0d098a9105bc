package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/macrosolve/macrosolve/pkg/solver"
)

// StarlarkEvaluator executes condition-generator scripts. A script
// sees the regime index and the model dimensions as predeclared
// globals and must assign gamma0, gamma1, c, psi and, for
// forward-looking models, pi.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates an evaluator. A zero timeout selects
// 30 seconds.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// GeneratorResult is one evaluation's output.
type GeneratorResult struct {
	// Conditions is the generated equilibrium system.
	Conditions *solver.EquilibriumConditions

	// ExecutionTime is how long the script ran.
	ExecutionTime time.Duration
}

// Generator wraps a script as a solver conditions generator.
func (se *StarlarkEvaluator) Generator(script string) solver.ConditionsFunc {
	return func(ctx context.Context, m solver.Model, regime int) (*solver.EquilibriumConditions, error) {
		res, err := se.Evaluate(ctx, script, regime, m.CoreStates())
		if err != nil {
			return nil, err
		}
		return res.Conditions, nil
	}
}

// Evaluate runs a generator script for one regime. Execution is bounded
// by the evaluator's timeout.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, regime, states int) (*GeneratorResult, error) {
	start := time.Now()
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	resultCh := make(chan *solver.EquilibriumConditions, 1)
	errCh := make(chan error, 1)
	go func() {
		ec, err := se.evaluateSync(script, regime, states)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- ec
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("generator script timed out after %v", se.timeout)
	case err := <-errCh:
		return nil, err
	case ec := <-resultCh:
		return &GeneratorResult{Conditions: ec, ExecutionTime: time.Since(start)}, nil
	}
}

func (se *StarlarkEvaluator) evaluateSync(script string, regime, states int) (*solver.EquilibriumConditions, error) {
	thread := &starlark.Thread{
		Name:  "macrosolve",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	predeclared := starlark.StringDict{
		"regime": starlark.MakeInt(regime),
		"states": starlark.MakeInt(states),
	}

	globals, err := starlark.ExecFile(thread, "generator.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("generator script failed: %w", err)
	}

	gamma0, err := gridGlobal(globals, "gamma0", true)
	if err != nil {
		return nil, err
	}
	gamma1, err := gridGlobal(globals, "gamma1", true)
	if err != nil {
		return nil, err
	}
	psi, err := gridGlobal(globals, "psi", true)
	if err != nil {
		return nil, err
	}
	pi, err := gridGlobal(globals, "pi", false)
	if err != nil {
		return nil, err
	}
	c, err := rowGlobal(globals, "c")
	if err != nil {
		return nil, err
	}

	n := len(gamma0)
	g0, err := toDense(gamma0, n, n, "gamma0")
	if err != nil {
		return nil, err
	}
	g1, err := toDense(gamma1, n, n, "gamma1")
	if err != nil {
		return nil, err
	}
	cv, err := toVec(c, n, "c")
	if err != nil {
		return nil, err
	}
	psiM, err := toDense(psi, n, len(psi[0]), "psi")
	if err != nil {
		return nil, err
	}
	piM, err := piDense(pi, n)
	if err != nil {
		return nil, err
	}

	ec := &solver.EquilibriumConditions{Gamma0: g0, Gamma1: g1, C: cv, Psi: psiM, Pi: piM}
	if err := ec.Validate(); err != nil {
		return nil, fmt.Errorf("generated conditions are inconsistent: %w", err)
	}
	return ec, nil
}

// gridGlobal reads a list-of-lists global as a float grid.
func gridGlobal(globals starlark.StringDict, name string, required bool) ([][]float64, error) {
	v, ok := globals[name]
	if !ok {
		if required {
			return nil, fmt.Errorf("generator script did not assign %s", name)
		}
		return nil, nil
	}
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of rows, got %s", name, v.Type())
	}
	grid := make([][]float64, list.Len())
	for i := 0; i < list.Len(); i++ {
		row, ok := list.Index(i).(*starlark.List)
		if !ok {
			return nil, fmt.Errorf("%s row %d is not a list", name, i)
		}
		grid[i] = make([]float64, row.Len())
		for j := 0; j < row.Len(); j++ {
			f, err := floatValue(row.Index(j))
			if err != nil {
				return nil, fmt.Errorf("%s[%d][%d]: %w", name, i, j, err)
			}
			grid[i][j] = f
		}
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	return grid, nil
}

// rowGlobal reads a flat list global as a float slice.
func rowGlobal(globals starlark.StringDict, name string) ([]float64, error) {
	v, ok := globals[name]
	if !ok {
		return nil, fmt.Errorf("generator script did not assign %s", name)
	}
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %s", name, v.Type())
	}
	out := make([]float64, list.Len())
	for i := 0; i < list.Len(); i++ {
		f, err := floatValue(list.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

func floatValue(v starlark.Value) (float64, error) {
	switch val := v.(type) {
	case starlark.Float:
		return float64(val), nil
	case starlark.Int:
		f, _ := starlark.AsFloat(val)
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", v.Type())
	}
}
