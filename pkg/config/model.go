package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/macrosolve/macrosolve/pkg/solver"
)

// MatrixModel is a concrete model backed by loaded matrices. It
// implements both solver.Model and solver.ConditionsBuilder, and
// carries the solver configuration and policy registry derived from
// the document.
type MatrixModel struct {
	name      string
	states    []string
	augmented []string
	shocks    []string
	expErrors []string

	conds map[int]*solver.EquilibriumConditions
	cfg   solver.Config
	reg   solver.PolicyRegistry
}

// BuildModel turns a validated model document into a MatrixModel.
// Generator scripts are compiled lazily through eval; a nil eval
// rejects documents that use generators.
func BuildModel(mf *ModelFile, eval *StarlarkEvaluator) (*MatrixModel, error) {
	m := &MatrixModel{
		name:      mf.Name,
		states:    mf.States,
		augmented: mf.AugmentedStates,
		shocks:    mf.Shocks,
		expErrors: mf.ExpectationErrors,
		conds:     make(map[int]*solver.EquilibriumConditions, len(mf.Regimes)),
		cfg:       solverConfig(mf),
		reg: solver.PolicyRegistry{
			Active:               solver.AltPolicy{Key: "historical", Kind: solver.PolicyDefault},
			Weights:              mf.Policies.Weights,
			IdenticalConditions:  make(map[int]int),
			IdenticalTransitions: mf.Policies.IdenticalTransitions,
			Replacements:         make(map[int]solver.ConditionsFunc),
		},
	}
	for _, key := range mf.Policies.Candidates {
		m.reg.Candidates = append(m.reg.Candidates, solver.AltPolicy{Key: key, Kind: solver.PolicyDefault})
	}

	n := len(mf.States)
	seen := make(map[int]bool, len(mf.Regimes))
	for _, block := range mf.Regimes {
		if seen[block.Regime] {
			return nil, fmt.Errorf("regime %d defined twice", block.Regime)
		}
		seen[block.Regime] = true

		switch {
		case block.IdenticalTo > 0:
			if block.IdenticalTo >= block.Regime {
				return nil, fmt.Errorf("regime %d: identical_to must reference an earlier regime, got %d", block.Regime, block.IdenticalTo)
			}
			m.reg.IdenticalConditions[block.Regime] = block.IdenticalTo
		case block.Generator != "":
			if eval == nil {
				return nil, fmt.Errorf("regime %d uses a generator script but no evaluator was supplied", block.Regime)
			}
			m.reg.Replacements[block.Regime] = eval.Generator(block.Generator)
		default:
			ec, err := blockConditions(block, n, len(mf.Shocks))
			if err != nil {
				return nil, err
			}
			m.conds[block.Regime] = ec
		}
	}
	return m, nil
}

func blockConditions(block RegimeBlock, states, shocks int) (*solver.EquilibriumConditions, error) {
	g0, err := toDense(block.Gamma0, states, states, fmt.Sprintf("regimes[%d].gamma0", block.Regime))
	if err != nil {
		return nil, err
	}
	g1, err := toDense(block.Gamma1, states, states, fmt.Sprintf("regimes[%d].gamma1", block.Regime))
	if err != nil {
		return nil, err
	}
	c, err := toVec(block.C, states, fmt.Sprintf("regimes[%d].c", block.Regime))
	if err != nil {
		return nil, err
	}
	psi, err := toDense(block.Psi, states, shocks, fmt.Sprintf("regimes[%d].psi", block.Regime))
	if err != nil {
		return nil, err
	}
	pi, err := piDense(block.Pi, states)
	if err != nil {
		return nil, fmt.Errorf("regimes[%d]: %w", block.Regime, err)
	}
	ec := &solver.EquilibriumConditions{Gamma0: g0, Gamma1: g1, C: c, Psi: psi, Pi: pi}
	if err := ec.Validate(); err != nil {
		return nil, fmt.Errorf("regimes[%d]: %w", block.Regime, err)
	}
	return ec, nil
}

func solverConfig(mf *ModelFile) solver.Config {
	cfg := solver.DefaultConfig()
	if mf.Solver.Method != "" {
		cfg.Method = solver.Method(mf.Solver.Method)
	}
	cfg.RegimeSwitching = mf.Solver.RegimeSwitching
	if cfg.RegimeSwitching {
		cfg.Regimes = regimeCount(mf)
	}
	cfg.Gensys2Regimes = mf.Solver.Gensys2Regimes
	cfg.TemporaryPolicyLength = mf.Solver.TemporaryPolicyLength
	if mf.Solver.StabilityDivider > 0 {
		cfg.StabilityDivider = mf.Solver.StabilityDivider
	}
	cfg.SparseSplicing = mf.Solver.SparseSplicing
	cfg.UncertainPolicy = mf.Solver.UncertainPolicy
	cfg.UncertainTemporary = mf.Solver.UncertainTemporary
	cfg.ReplaceConditions = mf.Solver.ReplaceConditions
	return cfg
}

func regimeCount(mf *ModelFile) int {
	max := 0
	for _, block := range mf.Regimes {
		if block.Regime > max {
			max = block.Regime
		}
	}
	return max
}

// Name returns the model name.
func (m *MatrixModel) Name() string { return m.name }

// CoreStates implements solver.Model.
func (m *MatrixModel) CoreStates() int { return len(m.states) }

// AugmentedStates implements solver.Model.
func (m *MatrixModel) AugmentedStates() int { return len(m.states) + len(m.augmented) }

// StateNames returns the core state names in order.
func (m *MatrixModel) StateNames() []string { return m.states }

// ShockNames returns the shock names in order.
func (m *MatrixModel) ShockNames() []string { return m.shocks }

// SolverConfig returns the solver configuration derived from the
// document.
func (m *MatrixModel) SolverConfig() solver.Config { return m.cfg }

// Registry returns the policy registry derived from the document.
func (m *MatrixModel) Registry() solver.PolicyRegistry { return m.reg }

// DefinedRegimes lists the regimes with static matrix blocks, in
// ascending order.
func (m *MatrixModel) DefinedRegimes() []int {
	out := make([]int, 0, len(m.conds))
	for r := range m.conds {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// Conditions returns the static conditions for a regime, if defined.
func (m *MatrixModel) Conditions(regime int) (*solver.EquilibriumConditions, bool) {
	ec, ok := m.conds[regime]
	return ec, ok
}

// Build implements solver.ConditionsBuilder. Every call hands out an
// independent copy.
func (m *MatrixModel) Build(_ context.Context, _ solver.Model, regime int) (*solver.EquilibriumConditions, error) {
	ec, ok := m.conds[regime]
	if !ok {
		return nil, fmt.Errorf("model %s has no conditions for regime %d", m.name, regime)
	}
	return ec.Clone(), nil
}
