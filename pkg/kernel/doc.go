// Package kernel provides the numerical kernels the repository owns:
// a direct solver for purely backward-looking equilibrium systems and
// the state-space transform for jump/state decompositions.
//
// The generalized Schur (QZ) kernel for forward-looking systems is an
// external collaborator behind the solver.Kernel contract; this package
// does not implement it.
package kernel
