package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// CreateDeployment persists d, including every operation row, and
// assigns the generated id back into d.ID.
func (s *SQLiteStore) CreateDeployment(ctx context.Context, d *model.DeploymentModel) error {
	options, err := json.Marshal(d.Options)
	if err != nil {
		return fmt.Errorf("marshaling deployment options: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO deployment (options, deployment_type, state, start_time, end_time)
		VALUES (?, ?, ?, ?, ?)`,
		string(options), string(d.DeploymentType), string(d.State), d.StartTime, d.EndTime,
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading deployment id: %w", err)
	}
	d.ID = id

	for i := range d.Operations {
		d.Operations[i].DeploymentID = id
		if err := insertOperation(ctx, tx, &d.Operations[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertOperation(ctx context.Context, tx *sql.Tx, op *model.OperationModel) error {
	extraVars, err := json.Marshal(op.ExtraVars)
	if err != nil {
		return fmt.Errorf("marshaling extra_vars: %w", err)
	}
	var host *string
	if op.Host != nil {
		h := string(*op.Host)
		host = &h
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO operation (deployment_id, operation_order, operation, host, extra_vars, state, start_time, end_time, logs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.DeploymentID, op.OperationOrder, op.Operation, host, string(extraVars), string(op.State), op.StartTime, op.EndTime, op.Logs,
	)
	if err != nil {
		return fmt.Errorf("insert operation %q: %w", op.Operation, err)
	}
	return nil
}

// GetDeployment loads a deployment and its operations, ordered by
// operation_order.
func (s *SQLiteStore) GetDeployment(ctx context.Context, id int64) (*model.DeploymentModel, error) {
	d := &model.DeploymentModel{ID: id}
	var options string
	var deploymentType, state string
	var startTime, endTime sql.NullTime

	row := s.db.QueryRowContext(ctx, `
		SELECT options, deployment_type, state, start_time, end_time FROM deployment WHERE id = ?`, id)
	if err := row.Scan(&options, &deploymentType, &state, &startTime, &endTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("deployment %d not found", id)
		}
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	d.DeploymentType = model.DeploymentType(deploymentType)
	d.State = model.DeploymentState(state)
	if startTime.Valid {
		d.StartTime = &startTime.Time
	}
	if endTime.Valid {
		d.EndTime = &endTime.Time
	}
	if err := json.Unmarshal([]byte(options), &d.Options); err != nil {
		return nil, fmt.Errorf("unmarshaling deployment options: %w", err)
	}

	ops, err := s.listOperations(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Operations = ops
	return d, nil
}

func (s *SQLiteStore) listOperations(ctx context.Context, deploymentID int64) ([]model.OperationModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation_order, operation, host, extra_vars, state, start_time, end_time, logs
		FROM operation WHERE deployment_id = ? ORDER BY operation_order ASC`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []model.OperationModel
	for rows.Next() {
		var op model.OperationModel
		var host sql.NullString
		var extraVars, state string
		var startTime, endTime sql.NullTime
		op.DeploymentID = deploymentID
		if err := rows.Scan(&op.OperationOrder, &op.Operation, &host, &extraVars, &state, &startTime, &endTime, &op.Logs); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if host.Valid {
			h := model.HostName(host.String)
			op.Host = &h
		}
		if startTime.Valid {
			op.StartTime = &startTime.Time
		}
		if endTime.Valid {
			op.EndTime = &endTime.Time
		}
		if err := json.Unmarshal([]byte(extraVars), &op.ExtraVars); err != nil {
			return nil, fmt.Errorf("unmarshaling extra_vars: %w", err)
		}
		op.State = model.OperationState(state)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}
	return out, nil
}

// UpdateDeploymentState persists d's State/StartTime/EndTime.
func (s *SQLiteStore) UpdateDeploymentState(ctx context.Context, d *model.DeploymentModel) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deployment SET state = ?, start_time = ?, end_time = ? WHERE id = ?`,
		string(d.State), d.StartTime, d.EndTime, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update deployment state: %w", err)
	}
	return nil
}

// UpdateOperation persists one operation row's mutable fields.
func (s *SQLiteStore) UpdateOperation(ctx context.Context, op *model.OperationModel) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE operation SET state = ?, start_time = ?, end_time = ?, logs = ?
		WHERE deployment_id = ? AND operation_order = ?`,
		string(op.State), op.StartTime, op.EndTime, op.Logs, op.DeploymentID, op.OperationOrder,
	)
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return nil
}

// ListDeployments returns every deployment, most recent first, without
// its operations (callers needing operations should call GetDeployment).
func (s *SQLiteStore) ListDeployments(ctx context.Context) ([]*model.DeploymentModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, options, deployment_type, state, start_time, end_time FROM deployment ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []*model.DeploymentModel
	for rows.Next() {
		d := &model.DeploymentModel{}
		var options, deploymentType, state string
		var startTime, endTime sql.NullTime
		if err := rows.Scan(&d.ID, &options, &deploymentType, &state, &startTime, &endTime); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		d.DeploymentType = model.DeploymentType(deploymentType)
		d.State = model.DeploymentState(state)
		if startTime.Valid {
			d.StartTime = &startTime.Time
		}
		if endTime.Valid {
			d.EndTime = &endTime.Time
		}
		if err := json.Unmarshal([]byte(options), &d.Options); err != nil {
			return nil, fmt.Errorf("unmarshaling deployment options: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deployments: %w", err)
	}
	return out, nil
}

// GetRunningDeployment returns the single RUNNING deployment, or nil if
// none exists. Invariant 4 (spec.md §5) guarantees at most one row
// matches.
func (s *SQLiteStore) GetRunningDeployment(ctx context.Context) (*model.DeploymentModel, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM deployment WHERE state = ? LIMIT 1`, string(model.DeploymentRunning)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get running deployment: %w", err)
	}
	return s.GetDeployment(ctx, id)
}

// StartDeployment transitions a PLANNED deployment to RUNNING, failing
// with RunningDeploymentExistsError if another deployment already holds
// that state (spec.md invariant 4).
func (s *SQLiteStore) StartDeployment(ctx context.Context, d *model.DeploymentModel) error {
	running, err := s.GetRunningDeployment(ctx)
	if err != nil {
		return err
	}
	if running != nil {
		return &tdperrors.RunningDeploymentExistsError{RunningID: running.ID}
	}
	return s.UpdateDeploymentState(ctx, d)
}
