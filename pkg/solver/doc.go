// Package solver computes the reduced-form linear state-space
// representation of a rational-expectations model across policy regimes.
//
// # Overview
//
// A model is described, one regime at a time, by structural equilibrium
// conditions
//
//	Γ0·x_t = Γ1·x_{t-1} + C + Ψ·ε_t + Π·η_t
//
// where η_t are expectational errors. Solving a regime produces a
// transition solution
//
//	x_t = TTT·x_{t-1} + RRR·ε_t + CCC
//
// The package orchestrates that solve across a partition of time into
// regimes:
//
//  1. Conditions - build or copy per-regime equilibrium conditions (cache.go)
//  2. Permanent  - solve ordinary regimes in ascending order, with
//     identical-transition shortcuts and credibility blending (batch.go)
//  3. Temporary  - splice a temporary-policy window backward from its
//     lift-off anchor (splicer.go)
//  4. Dispatch   - select the method and assemble per-regime output
//     (dispatcher.go)
//
// # Collaborators
//
// The numerical kernels and several matrix primitives are external
// collaborators supplied through interfaces:
//
//   - Kernel: generalized Schur (QZ) solve of one regime's conditions
//   - PerturbationKernel: alternative jump/state factorization
//   - ConditionsBuilder: structural matrices for a regime
//   - Augmenter: auxiliary/measurement state augmentation
//   - Blender: credibility-weighted combination across policies
//   - PredictableFormer: predictable form used inside the splicer
//   - BackwardRecursor: backward recursion through a temporary window
//
// # Error Classification
//
// Failures carry a class for the caller to dispatch on:
//
//   - solve_failure: the kernel reports non-existence or non-uniqueness;
//     tagged with the offending regime
//   - unsupported_configuration: e.g. regime switching requested on the
//     perturbation path
//   - precondition: caller configuration bugs (window arithmetic,
//     missing collaborators, inconsistent flags)
//
// Use IsSolveFailure, IsUnsupportedConfiguration, IsPrecondition and
// FailingRegime to inspect errors.
//
// # Ordering
//
// Regimes within a batch are solved strictly in ascending index order:
// identical-regime shortcuts may reference earlier regimes' results.
// All operations are synchronous; a failure aborts the whole call and
// no partial regime set is returned.
//
// # Ownership
//
// Every solve materializes fresh matrices and returns ownership to the
// caller. Identical-regime copies are deep copies: mutating one
// regime's solution never affects another's.
package solver
