package policy

import "time"

// Severity is the severity level of a policy violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// blocks reports whether a violation at this severity should veto the
// deployment rather than merely be reported.
func (s Severity) blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is one named Rego rule set.
type Policy struct {
	Name        string
	Description string
	Rego        string
	Severity    Severity
	Enabled     bool
	Tags        []string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Violation is a single denial produced by one policy's evaluation.
type Violation struct {
	Policy   string
	Message  string
	Severity Severity
	Details  map[string]any
}

// Result is the outcome of evaluating every enabled policy against one
// deployment.
type Result struct {
	Allowed           bool
	Violations        []Violation
	Warnings          []Violation
	EvaluatedPolicies []string
	EvaluatedAt       time.Time
	Duration          time.Duration
}

// OperationInput is the Rego-visible projection of one OperationModel
// row: the entity/action decomposition the runner also uses, plus the
// raw fields a policy author may want to match against.
type OperationInput struct {
	Order     int    `json:"order"`
	Operation string `json:"operation"`
	Service   string `json:"service,omitempty"`
	Component string `json:"component,omitempty"`
	Action    string `json:"action,omitempty"`
	Host      string `json:"host,omitempty"`
}

// DeploymentInput is the Rego-visible projection of the
// model.DeploymentModel being evaluated.
type DeploymentInput struct {
	Type       string           `json:"type"`
	Operations []OperationInput `json:"operations"`
	Options    map[string]any   `json:"options,omitempty"`
}

// Context carries the operator- and environment-level facts a policy
// may condition on, independent of the deployment's own content.
type Context struct {
	User                  string         `json:"user,omitempty"`
	Environment           string         `json:"environment,omitempty"`
	Timestamp             time.Time      `json:"timestamp"`
	DryRun                bool           `json:"dry_run"`
	MaintenanceWindowOpen bool           `json:"maintenance_window_open"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// Input is the full document passed to every policy's Rego evaluation
// as `input`.
type Input struct {
	Deployment *DeploymentInput `json:"deployment"`
	Context    *Context         `json:"context"`
}
