// Package config loads model and solver configuration from files.
//
// A model document names the state, shock and expectational-error
// vectors, the solver settings, and one equilibrium-condition block per
// regime. Three front ends share the same ModelFile representation:
//
//   - YAML documents, decoded strictly and validated with struct tags.
//   - CUE documents, unified against the built-in model schema.
//   - Starlark scripts, used as per-regime condition generators for
//     alternative policies.
//
// BuildModel turns a validated ModelFile into a MatrixModel, which
// satisfies both the solver's Model and ConditionsBuilder contracts.
package config
