// Package stores provides SQLite-backed persistence for solve runs and
// regime solutions.
//
// Solutions are keyed by a content hash of the equilibrium conditions
// that produced them, so identical sub-problems solved in different
// runs resolve to the same stored row. The in-process identical-regime
// shortcuts in the solver remain the fast path; the store is the
// durable layer around them.
package stores
