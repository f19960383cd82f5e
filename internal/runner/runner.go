// Package runner implements C7, the deployment runner: a state machine
// that drives a PLANNED DeploymentModel forward one operation at a time
// against an external Executor.
//
// The teacher's pkg/engine/scheduler.go schedules DAG levels across a
// goroutine worker pool (ParallelScheduler) — exactly the speculative,
// parallel execution spec.md §1's Non-goals and §5's "single-threaded
// cooperative" scheduling model forbid. This package keeps the
// teacher's struct shape (a scheduler type holding an executor and a
// status sink, exposing Schedule/Cancel-style entry points) but replaces
// the internal level-by-level goroutine fan-out with a strictly
// sequential pull iterator: Next advances exactly one operation and
// returns control to the caller, who persists the step before calling
// Next again.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TOSIT-IO/tdp-lib/internal/executor"
	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// PlaybookResolver maps an operation name to its playbook path, or
// reports that the operation is a noop (no playbook, immediate SUCCESS
// per spec.md §4.7 step 3).
type PlaybookResolver interface {
	PlaybookPath(operationName string) (path string, noop bool, err error)
}

// VersionReader answers "current_version(service)" for the status-event
// induction rules.
type VersionReader interface {
	CurrentVersion(ctx context.Context, service model.ServiceName) (*model.Version, error)
}

// Step is the (operation_result, cluster_status_events) tuple the
// runner yields per spec.md §4.7.
type Step struct {
	Operation model.OperationModel
	Events    []model.SCHStatusLogEvent
	Done      bool // true once the deployment has terminated
}

// Iterator drives one deployment forward, one operation per Next call.
// It is not safe for concurrent use — spec.md §5 requires exactly one
// caller consuming a deployment's steps at a time.
type Iterator struct {
	deployment *model.DeploymentModel
	exec       executor.Executor
	playbooks  PlaybookResolver
	versions   VersionReader
	now        func() time.Time
	log        zerolog.Logger

	cursor         int
	failed         bool
	lastConfigured map[model.EntityName]model.Version // entity -> version set by a prior config event this run
}

// New returns an Iterator over deployment, which must be PLANNED.
func New(deployment *model.DeploymentModel, exec executor.Executor, playbooks PlaybookResolver, versions VersionReader, now func() time.Time, log zerolog.Logger) (*Iterator, error) {
	if deployment.State != model.DeploymentPlanned {
		return nil, fmt.Errorf("deployment %d is not PLANNED (state=%s)", deployment.ID, deployment.State)
	}
	if now == nil {
		now = time.Now
	}
	return &Iterator{
		deployment:     deployment,
		exec:           exec,
		playbooks:      playbooks,
		versions:       versions,
		now:            now,
		log:            log,
		lastConfigured: make(map[model.EntityName]model.Version),
	}, nil
}

// Start transitions the deployment to RUNNING. Callers must ensure no
// other deployment is RUNNING before calling this (spec.md invariant 4;
// enforced by the store, not this package).
func (it *Iterator) Start() {
	now := it.now()
	it.deployment.State = model.DeploymentRunning
	it.deployment.StartTime = &now
}

// Next executes exactly one PLANNED operation and returns its step.
// When the deployment has no more PLANNED operations, Next returns a
// Step with Done=true and terminates the deployment as SUCCESS. Once an
// operation has failed, the next call drains the HELD operations instead
// and terminates the deployment as FAILURE.
func (it *Iterator) Next(ctx context.Context) (Step, error) {
	if it.failed {
		return it.drainHeld()
	}

	for it.cursor < len(it.deployment.Operations) && it.deployment.Operations[it.cursor].State != model.OperationPlanned {
		it.cursor++
	}
	if it.cursor >= len(it.deployment.Operations) {
		it.terminate(model.DeploymentSuccess)
		return Step{Done: true}, nil
	}

	op := &it.deployment.Operations[it.cursor]
	start := it.now()
	op.StartTime = &start
	op.State = model.OperationRunning

	// Synthetic operations (wait_sleep and the like) have no
	// service/action grammar and induce no status event; a parse failure
	// here just means "not a status-bearing operation", not an error.
	opName, hasOpName := model.OperationName{}, false
	if parsed, err := model.ParseOperationName(op.Operation); err == nil {
		opName, hasOpName = parsed, true
	}

	path, noop, err := it.playbooks.PlaybookPath(op.Operation)
	if err != nil {
		return Step{}, err
	}

	var (
		state executor.State
		logs  []byte
	)
	if noop {
		state, logs = executor.StateSuccess, nil
	} else {
		host := ""
		if op.Host != nil {
			host = string(*op.Host)
		}
		state, logs, err = it.exec.Execute(ctx, path, host, op.ExtraVars)
		if err != nil {
			state = executor.StateFailure
		}
	}

	end := it.now()
	op.EndTime = &end
	op.Logs = logs
	if state == executor.StateSuccess {
		op.State = model.OperationSuccess
	} else {
		op.State = model.OperationFailure
	}

	var events []model.SCHStatusLogEvent
	if hasOpName {
		events, err = it.induceEvents(ctx, opName, op)
		if err != nil {
			return Step{}, err
		}
	}

	step := Step{Operation: *op, Events: events}
	it.cursor++

	if op.State == model.OperationFailure {
		it.failed = true
		it.holdRemaining()
	}

	return step, nil
}

// induceEvents computes the cluster status events a completed operation
// produces, per spec.md §4.7's status-event induction rules.
func (it *Iterator) induceEvents(ctx context.Context, opName model.OperationName, op *model.OperationModel) ([]model.SCHStatusLogEvent, error) {
	if op.State != model.OperationSuccess {
		return nil, nil
	}

	base := model.SCHStatusLogEvent{
		EventTime:    it.now(),
		Service:      opName.Entity.Service,
		Host:         op.Host,
		Source:       model.StatusSourceDeployment,
		DeploymentID: &it.deployment.ID,
	}
	if !opName.Entity.IsService() {
		comp := opName.Entity.Component
		base.Component = &comp
	}

	switch opName.Action {
	case model.ActionConfig:
		v, err := it.versions.CurrentVersion(ctx, opName.Entity.Service)
		if err != nil {
			return nil, err
		}
		e := base
		e.ConfiguredVersion = v
		falseVal := false
		e.ToConfig = &falseVal
		if v != nil {
			it.lastConfigured[opName.Entity] = *v
		}
		return []model.SCHStatusLogEvent{e}, nil

	case model.ActionRestart:
		v, err := it.versions.CurrentVersion(ctx, opName.Entity.Service)
		if err != nil {
			return nil, err
		}
		e := base
		e.RunningVersion = v
		falseVal := false
		e.ToRestart = &falseVal
		return []model.SCHStatusLogEvent{e}, nil

	case model.ActionStart:
		if v, ok := it.lastConfigured[opName.Entity]; ok {
			e := base
			e.RunningVersion = &v
			return []model.SCHStatusLogEvent{e}, nil
		}
		return nil, nil

	default: // install, init, stop: no event
		return nil, nil
	}
}

func (it *Iterator) holdRemaining() {
	for i := it.cursor; i < len(it.deployment.Operations); i++ {
		if it.deployment.Operations[i].State == model.OperationPlanned {
			it.deployment.Operations[i].State = model.OperationHeld
		}
	}
}

func (it *Iterator) drainHeld() (Step, error) {
	it.terminate(model.DeploymentFailure)
	return Step{Done: true}, nil
}

func (it *Iterator) terminate(state model.DeploymentState) {
	now := it.now()
	it.deployment.State = state
	it.deployment.EndTime = &now
}

// ForceFailRunning is the danger-fix-running operator escape hatch
// named in spec.md §6: it flips a stuck RUNNING deployment to FAILURE
// without invoking the executor. Only the CLI adapter should call this.
func ForceFailRunning(d *model.DeploymentModel, now func() time.Time) error {
	if d.State != model.DeploymentRunning {
		return &tdperrors.RunningDeploymentExistsError{RunningID: d.ID}
	}
	end := now()
	d.State = model.DeploymentFailure
	d.EndTime = &end
	for i := range d.Operations {
		if d.Operations[i].State == model.OperationPlanned || d.Operations[i].State == model.OperationRunning {
			d.Operations[i].State = model.OperationHeld
		}
	}
	return nil
}
