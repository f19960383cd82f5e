package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

// AppendEvents inserts every event as a new row and returns them with
// their generated IDs set. It implements status.EventStore.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.SCHStatusLogEvent) ([]model.SCHStatusLogEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]model.SCHStatusLogEvent, len(events))
	for i, e := range events {
		var component, host, runningVersion, configuredVersion, message *string
		if e.Component != nil {
			c := string(*e.Component)
			component = &c
		}
		if e.Host != nil {
			h := string(*e.Host)
			host = &h
		}
		if e.RunningVersion != nil {
			v := string(*e.RunningVersion)
			runningVersion = &v
		}
		if e.ConfiguredVersion != nil {
			v := string(*e.ConfiguredVersion)
			configuredVersion = &v
		}
		message = e.Message

		res, err := tx.ExecContext(ctx, `
			INSERT INTO sch_status_log (
				event_time, service, component, host, running_version, configured_version,
				to_config, to_restart, is_active, source, deployment_id, message
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventTime, string(e.Service), component, host, runningVersion, configuredVersion,
			e.ToConfig, e.ToRestart, e.IsActive, string(e.Source), e.DeploymentID, message,
		)
		if err != nil {
			return nil, fmt.Errorf("insert status log event: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading status log event id: %w", err)
		}
		e.ID = id
		out[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status log events: %w", err)
	}
	return out, nil
}

// AllEvents returns every event in the log, ordered by (event_time, id)
// — the order the reducer requires. It implements status.EventStore.
func (s *SQLiteStore) AllEvents(ctx context.Context) ([]model.SCHStatusLogEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_time, service, component, host, running_version, configured_version,
		       to_config, to_restart, is_active, source, deployment_id, message
		FROM sch_status_log ORDER BY event_time ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list status log events: %w", err)
	}
	defer rows.Close()

	var out []model.SCHStatusLogEvent
	for rows.Next() {
		var e model.SCHStatusLogEvent
		var service, source string
		var component, host, runningVersion, configuredVersion, message sql.NullString
		var toConfig, toRestart, isActive sql.NullBool
		var deploymentID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.EventTime, &service, &component, &host, &runningVersion, &configuredVersion,
			&toConfig, &toRestart, &isActive, &source, &deploymentID, &message); err != nil {
			return nil, fmt.Errorf("scan status log event: %w", err)
		}
		e.Service = model.ServiceName(service)
		e.Source = model.StatusSource(source)
		if component.Valid {
			c := model.ComponentName(component.String)
			e.Component = &c
		}
		if host.Valid {
			h := model.HostName(host.String)
			e.Host = &h
		}
		if runningVersion.Valid {
			v := model.Version(runningVersion.String)
			e.RunningVersion = &v
		}
		if configuredVersion.Valid {
			v := model.Version(configuredVersion.String)
			e.ConfiguredVersion = &v
		}
		if toConfig.Valid {
			b := toConfig.Bool
			e.ToConfig = &b
		}
		if toRestart.Valid {
			b := toRestart.Bool
			e.ToRestart = &b
		}
		if isActive.Valid {
			b := isActive.Bool
			e.IsActive = &b
		}
		if deploymentID.Valid {
			id := deploymentID.Int64
			e.DeploymentID = &id
		}
		if message.Valid {
			m := message.String
			e.Message = &m
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status log events: %w", err)
	}
	return out, nil
}
