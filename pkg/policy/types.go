package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the solve.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never be bypassed.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// SolveRequest describes a solve about to be dispatched. It is the
// input document the Rego policies evaluate.
type SolveRequest struct {
	// Model is the model name.
	Model string `json:"model"`

	// Method is the requested solution method.
	Method string `json:"method"`

	// Regimes is the number of regimes in the request.
	Regimes int `json:"regimes"`

	// States is the core state dimension.
	States int `json:"states"`

	// AugmentedStates is the state dimension after augmentation.
	AugmentedStates int `json:"augmented_states"`

	// Shocks is the number of exogenous shocks.
	Shocks int `json:"shocks"`

	// ExpectationErrors is the number of expectation errors.
	ExpectationErrors int `json:"expectation_errors"`

	// RegimeSwitching indicates a multi-regime solve.
	RegimeSwitching bool `json:"regime_switching"`

	// StabilityDivider is the eigenvalue classification threshold.
	StabilityDivider float64 `json:"stability_divider"`

	// TemporaryPolicyLength is the length of a temporary policy
	// window, zero when none is requested.
	TemporaryPolicyLength int `json:"temporary_policy_length"`

	// UncertainTemporary indicates credibility-weighted lift-off.
	UncertainTemporary bool `json:"uncertain_temporary"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed indicates if the solve may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// PolicyInput represents the input data for policy evaluation.
type PolicyInput struct {
	// Request is the solve request being evaluated.
	Request *SolveRequest `json:"request"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Environment is the environment (e.g., "production", "development").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the operation being performed (e.g., "solve", "validate").
	Operation string `json:"operation,omitempty"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`
}
