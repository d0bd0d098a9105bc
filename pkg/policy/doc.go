// Package policy evaluates Rego guardrails against solve requests
// before they reach the dispatcher.
//
// Built-in policies bound regime counts, state dimensions, the
// stability divider, and the solution method. Operators can layer
// their own .rego or .json policies on top through the loader, which
// watches policy directories and reloads on change.
package policy
