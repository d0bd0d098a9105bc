package solver

import "math"

// Method selects the numerical solution path.
type Method string

const (
	// MethodGensys solves through the rational-expectations
	// (generalized Schur) kernel. Supports regime switching.
	MethodGensys Method = "gensys"

	// MethodPerturbation solves through the alternative jump/state
	// factorization kernel. Regime switching is not supported.
	MethodPerturbation Method = "perturbation"
)

// Validate checks the method is known.
func (m Method) Validate() error {
	switch m {
	case MethodGensys, MethodPerturbation:
		return nil
	default:
		return NewUnsupportedConfiguration("unknown solution method %q", string(m))
	}
}

// weightTolerance absorbs floating-point slack when checking that
// credibility weights sum to at most one.
const weightTolerance = 1e-10

// Config is the explicit solver configuration, resolved once before
// dispatch. There is no global settings lookup: every flag a component
// consults is a named field here.
type Config struct {
	// Method selects the numerical solution path.
	Method Method

	// RegimeSwitching enables the regime-switching solve.
	RegimeSwitching bool

	// Regimes is the total number of regimes in the partition.
	// Ignored unless RegimeSwitching is set.
	Regimes int

	// Gensys2Regimes lists the regimes of the temporary-policy window
	// in ascending order. The last entry is the lift-off (anchor)
	// regime. Empty when no temporary policy is active.
	Gensys2Regimes []int

	// TemporaryPolicyLength is the configured number of periods the
	// temporary policy is in force. Must equal
	// len(Gensys2Regimes) - 1.
	TemporaryPolicyLength int

	// StabilityDivider is the numerical threshold handed to the
	// kernel for classifying explosive roots.
	StabilityDivider float64

	// SparseSplicing selects the sparse representation for the
	// predictable-form conversion inside the splicer.
	SparseSplicing bool

	// UncertainPolicy is true when agents hold uncertain beliefs
	// about which permanent policy is active.
	UncertainPolicy bool

	// UncertainTemporary is true when agents are unsure, period by
	// period, that the temporary policy will hold. Must agree with
	// the per-regime credibility weights in the registry.
	UncertainTemporary bool

	// ReplaceConditions activates per-regime replacement
	// equilibrium-condition generators from the registry.
	ReplaceConditions bool
}

// DefaultConfig returns a configuration for a single-regime gensys
// solve.
func DefaultConfig() Config {
	return Config{
		Method:           MethodGensys,
		StabilityDivider: 1.0,
	}
}

// Window reports the temporary-policy window regimes, or nil when no
// temporary policy is configured.
func (c *Config) Window() []int {
	if len(c.Gensys2Regimes) == 0 {
		return nil
	}
	return c.Gensys2Regimes
}

// Anchor returns the lift-off regime terminating the window. Only
// meaningful when a window is configured.
func (c *Config) Anchor() int {
	return c.Gensys2Regimes[len(c.Gensys2Regimes)-1]
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.Method.Validate(); err != nil {
		return err
	}
	if c.StabilityDivider <= 0 {
		return NewPrecondition("stability divider must be positive, got %g", c.StabilityDivider)
	}
	if !c.RegimeSwitching {
		if len(c.Gensys2Regimes) > 0 {
			return NewPrecondition("temporary-policy window requires regime switching")
		}
		return nil
	}
	if c.Regimes < 1 {
		return NewPrecondition("regime switching requires at least one regime, got %d", c.Regimes)
	}
	if len(c.Gensys2Regimes) == 0 {
		return nil
	}
	if len(c.Gensys2Regimes) < 2 {
		return NewPrecondition("temporary-policy window needs at least one period and an anchor")
	}
	prev := 0
	for i, r := range c.Gensys2Regimes {
		if r < 2 || r > c.Regimes {
			return NewPrecondition("window regime %d out of range [2,%d]", r, c.Regimes)
		}
		if i > 0 && r != prev+1 {
			return NewPrecondition("window regimes must be contiguous, got %d after %d", r, prev)
		}
		prev = r
	}
	return nil
}

// PolicyRegistry carries the policies and regime maps consulted during
// a solve, resolved once at the top of the dispatcher.
type PolicyRegistry struct {
	// Active is the policy in force. A PolicyCustom active policy
	// supplies its own solve procedure for the non-regime-switching
	// path and the window anchor.
	Active AltPolicy

	// Candidates is the fixed ordered list of alternative policies
	// agents assign credibility mass to. Weight vectors align with
	// this order.
	Candidates []AltPolicy

	// Weights maps a regime to its credibility weights over
	// Candidates. A missing or empty entry means perfect credibility.
	Weights map[int][]float64

	// IdenticalConditions maps a regime to an earlier regime whose
	// equilibrium conditions it shares.
	IdenticalConditions map[int]int

	// IdenticalTransitions maps a regime to an earlier regime whose
	// transition solution it shares under perfect credibility.
	IdenticalTransitions map[int]int

	// Replacements supplies per-regime alternative-policy
	// equilibrium-condition generators, consulted when the
	// replace-conditions flag is active.
	Replacements map[int]ConditionsFunc
}

// WeightsFor returns the credibility weights for a regime. A nil
// result means the regime is solved under perfect credibility.
func (r *PolicyRegistry) WeightsFor(regime int) []float64 {
	w := r.Weights[regime]
	if len(w) == 0 {
		return nil
	}
	return w
}

// Validate checks policies, weights and regime maps. regimes is the
// total regime count (1 for a non-regime-switching solve).
func (r *PolicyRegistry) Validate(regimes int) error {
	if err := r.Active.Validate(); err != nil {
		return err
	}
	for _, p := range r.Candidates {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for regime, w := range r.Weights {
		if len(w) == 0 {
			continue
		}
		if regime < 1 || regime > regimes {
			return NewPrecondition("credibility weights reference regime %d outside [1,%d]", regime, regimes)
		}
		if len(w) != len(r.Candidates) {
			return NewPrecondition("regime %d has %d weights for %d candidate policies", regime, len(w), len(r.Candidates))
		}
		sum := 0.0
		for _, v := range w {
			if v < 0 || math.IsNaN(v) {
				return NewPrecondition("regime %d has negative credibility weight %g", regime, v)
			}
			sum += v
		}
		if sum > 1+weightTolerance {
			return NewPrecondition("regime %d credibility weights sum to %g > 1", regime, sum)
		}
	}
	if err := validateRegimeMap(r.IdenticalConditions, regimes, "identical-conditions"); err != nil {
		return err
	}
	return validateRegimeMap(r.IdenticalTransitions, regimes, "identical-transitions")
}

func validateRegimeMap(m map[int]int, regimes int, name string) error {
	for regime, src := range m {
		if regime < 1 || regime > regimes {
			return NewPrecondition("%s map references regime %d outside [1,%d]", name, regime, regimes)
		}
		if src >= regime || src < 1 {
			return NewPrecondition("%s map: regime %d must reference an earlier regime, got %d", name, regime, src)
		}
	}
	return nil
}
