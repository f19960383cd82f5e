package model

import "time"

// StatusSource is the provenance of a status-log event.
type StatusSource string

// Event sources.
const (
	StatusSourceDeployment  StatusSource = "DEPLOYMENT"
	StatusSourceForced      StatusSource = "FORCED"
	StatusSourceStale       StatusSource = "STALE"
	StatusSourceManual      StatusSource = "MANUAL"
	StatusSourceDecommision StatusSource = "DECOMMISSION"
)

// SCHStatusLogEvent is one append-only row in the status log. Nil fields
// are "not set by this event" and leave the reduced value untouched —
// see HostedEntityStatus and the reducer in internal/status.
type SCHStatusLogEvent struct {
	ID                int64
	EventTime         time.Time
	Service           ServiceName
	Component         *ComponentName
	Host              *HostName
	RunningVersion    *Version
	ConfiguredVersion *Version
	ToConfig          *bool
	ToRestart         *bool
	IsActive          *bool
	Source            StatusSource
	DeploymentID      *int64
	Message           *string
}

// Entity returns the HostedEntity this event targets.
func (e *SCHStatusLogEvent) Entity() HostedEntity {
	entity := EntityName{Service: e.Service}
	if e.Component != nil {
		entity.Component = *e.Component
	}
	return HostedEntity{Entity: entity, Host: e.Host}
}

// HostedEntityStatus is the current, reduced view of one (service,
// component?, host?) tuple.
type HostedEntityStatus struct {
	Entity            HostedEntity
	RunningVersion    *Version
	ConfiguredVersion *Version
	ToConfig          *bool
	ToRestart         *bool
	IsActive          *bool
}

// IsStale reports whether the entity needs reconfiguration or restart.
func (s *HostedEntityStatus) IsStale() bool {
	return (s.ToConfig != nil && *s.ToConfig) || (s.ToRestart != nil && *s.ToRestart)
}

// DeploymentState is the lifecycle state of a DeploymentModel.
type DeploymentState string

// Deployment states.
const (
	DeploymentPlanned DeploymentState = "PLANNED"
	DeploymentRunning DeploymentState = "RUNNING"
	DeploymentSuccess DeploymentState = "SUCCESS"
	DeploymentFailure DeploymentState = "FAILURE"
)

// DeploymentType identifies which planner factory produced a deployment.
type DeploymentType string

// Deployment types.
const (
	DeploymentTypeDAG         DeploymentType = "DAG"
	DeploymentTypeOperations  DeploymentType = "OPERATIONS"
	DeploymentTypeResume      DeploymentType = "RESUME"
	DeploymentTypeReconfigure DeploymentType = "RECONFIGURE"
	DeploymentTypeCustom      DeploymentType = "CUSTOM"
)

// OperationState is the lifecycle state of one OperationModel row.
type OperationState string

// Operation states.
const (
	OperationPlanned OperationState = "PLANNED"
	OperationRunning OperationState = "RUNNING"
	OperationPending OperationState = "PENDING"
	OperationSuccess OperationState = "SUCCESS"
	OperationFailure OperationState = "FAILURE"
	OperationHeld    OperationState = "HELD"
)

// OperationModel is one row of a deployment plan, keyed by
// (deployment_id, operation_order).
type OperationModel struct {
	DeploymentID   int64
	OperationOrder int
	Operation      string // operation name, e.g. "hdfs_namenode_start"
	Host           *HostName
	ExtraVars      []string
	StartTime      *time.Time
	EndTime        *time.Time
	State          OperationState
	Logs           []byte
}

// DeploymentModel is a persisted, ordered plan.
type DeploymentModel struct {
	ID             int64
	Options        map[string]any // opaque JSON of the originating intent
	StartTime      *time.Time
	EndTime        *time.Time
	State          DeploymentState
	DeploymentType DeploymentType
	Operations     []OperationModel
}
