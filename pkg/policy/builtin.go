package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		regimeLimitsPolicy(),
		dimensionLimitsPolicy(),
		stabilityRangePolicy(),
		methodRestrictionsPolicy(),
	}
}

// regimeLimitsPolicy bounds the number of regimes in a solve request.
func regimeLimitsPolicy() Policy {
	return Policy{
		Name:        "regime-limits",
		Description: "Bounds the regime count of a solve request",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"regimes", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package macrosolve.policies.regimes

import rego.v1

max_regimes := 64

deny contains violation if {
	input.request
	request := input.request

	request.regimes < 1
	violation := {
		"message": sprintf("Solve for model %s requests %d regimes, at least one is required", [request.model, request.regimes]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	request.regimes > max_regimes
	violation := {
		"message": sprintf("Solve for model %s requests %d regimes, exceeding the limit of %d", [request.model, request.regimes, max_regimes]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	# A single-regime request must not claim to switch regimes.
	request.regime_switching
	request.regimes < 2
	violation := {
		"message": sprintf("Model %s declares regime switching with only %d regime", [request.model, request.regimes]),
		"severity": "error",
	}
}`,
	}
}

// dimensionLimitsPolicy bounds the state-space dimensions.
func dimensionLimitsPolicy() Policy {
	return Policy{
		Name:        "dimension-limits",
		Description: "Bounds state, shock, and expectation-error dimensions",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"dimensions", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package macrosolve.policies.dimensions

import rego.v1

max_states := 1024

deny contains violation if {
	input.request
	request := input.request

	request.states < 1
	violation := {
		"message": sprintf("Model %s has no states", [request.model]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	request.states > max_states
	violation := {
		"message": sprintf("Model %s has %d states, exceeding the limit of %d", [request.model, request.states, max_states]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	# Augmentation can only add states.
	request.augmented_states < request.states
	violation := {
		"message": sprintf("Model %s declares %d augmented states, fewer than its %d core states", [request.model, request.augmented_states, request.states]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	request.expectation_errors > request.states
	violation := {
		"message": sprintf("Model %s has more expectation errors (%d) than states (%d)", [request.model, request.expectation_errors, request.states]),
		"severity": "warning",
	}
}`,
	}
}

// stabilityRangePolicy keeps the eigenvalue threshold in a sane range.
func stabilityRangePolicy() Policy {
	return Policy{
		Name:        "stability-range",
		Description: "Keeps the stability divider within its accepted range",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"stability", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package macrosolve.policies.stability

import rego.v1

deny contains violation if {
	input.request
	request := input.request

	request.stability_divider <= 0
	violation := {
		"message": sprintf("Model %s has non-positive stability divider %.3f", [request.model, request.stability_divider]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	request.stability_divider > 10
	violation := {
		"message": sprintf("Model %s has stability divider %.3f above the accepted maximum of 10", [request.model, request.stability_divider]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	# Far from the unit circle the classification loses meaning.
	request.stability_divider != 0
	request.stability_divider > 2
	request.stability_divider <= 10
	violation := {
		"message": sprintf("Model %s uses stability divider %.3f, well away from the unit circle", [request.model, request.stability_divider]),
		"severity": "warning",
	}
}`,
	}
}

// methodRestrictionsPolicy restricts method and window combinations.
func methodRestrictionsPolicy() Policy {
	return Policy{
		Name:        "method-restrictions",
		Description: "Restricts solution methods and temporary-policy windows",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"methods", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package macrosolve.policies.methods

import rego.v1

allowed_methods := ["gensys", "perturbation"]

max_window := 200

deny contains violation if {
	input.request
	request := input.request

	not request.method in allowed_methods
	violation := {
		"message": sprintf("Model %s requests unknown method %s", [request.model, request.method]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	# Perturbation has no regime-switching variant.
	request.method == "perturbation"
	request.regime_switching
	violation := {
		"message": sprintf("Model %s combines perturbation with regime switching", [request.model]),
		"severity": "critical",
	}
}

deny contains violation if {
	input.request
	request := input.request

	request.temporary_policy_length > max_window
	violation := {
		"message": sprintf("Model %s requests a %d-period temporary policy window, exceeding the limit of %d", [request.model, request.temporary_policy_length, max_window]),
		"severity": "error",
	}
}

deny contains violation if {
	input.request
	request := input.request

	# Credibility weighting needs a window to weight.
	request.uncertain_temporary
	request.temporary_policy_length < 1
	violation := {
		"message": sprintf("Model %s declares an uncertain temporary policy without a window", [request.model]),
		"severity": "error",
	}
}`,
	}
}
