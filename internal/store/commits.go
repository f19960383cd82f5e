package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

// variable_commit_file stores a full snapshot of every file at each
// version rather than a delta, keeping FileContentAt/ListFilesAt single
// queries at the cost of write amplification on Commit — acceptable for
// a control plane whose variable trees are a handful of small YAML
// files per service. CommitStore is the interface this implements; see
// internal/variables/store.go for why a commit log replaces a working
// Git repository here.

// CurrentVersion implements variables.CommitStore.
func (s *SQLiteStore) CurrentVersion(ctx context.Context, service model.ServiceName) (*model.Version, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM variable_commit WHERE service = ? ORDER BY id DESC LIMIT 1`, string(service)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current version for %s: %w", service, err)
	}
	v := model.Version(strconv.FormatInt(id, 10))
	return &v, nil
}

// FileContentAt implements variables.CommitStore.
func (s *SQLiteStore) FileContentAt(ctx context.Context, service model.ServiceName, version model.Version, relativePath string) ([]byte, bool, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM variable_commit_file WHERE service = ? AND version = ? AND path = ?`,
		string(service), string(version), relativePath,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("file content for %s@%s/%s: %w", service, version, relativePath, err)
	}
	return content, true, nil
}

// ListFilesAt implements variables.CommitStore.
func (s *SQLiteStore) ListFilesAt(ctx context.Context, service model.ServiceName, version model.Version) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM variable_commit_file WHERE service = ? AND version = ? ORDER BY path ASC`,
		string(service), string(version),
	)
	if err != nil {
		return nil, fmt.Errorf("list files at %s@%s: %w", service, version, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		out = append(out, path)
	}
	return out, rows.Err()
}

// Commit implements variables.CommitStore: it records a new version
// whose file set is the previous tip's file set with files overlaid by
// the given content.
func (s *SQLiteStore) Commit(ctx context.Context, service model.ServiceName, message string, files map[string][]byte) (model.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevID sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM variable_commit WHERE service = ? ORDER BY id DESC LIMIT 1`, string(service)).Scan(&prevID)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("reading previous version: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO variable_commit (service, message, created_at) VALUES (?, ?, ?)`,
		string(service), message, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert variable commit: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("reading new version id: %w", err)
	}
	newVersion := strconv.FormatInt(newID, 10)

	if prevID.Valid {
		prevVersion := strconv.FormatInt(prevID.Int64, 10)
		rows, err := tx.QueryContext(ctx, `
			SELECT path, content FROM variable_commit_file WHERE service = ? AND version = ?`,
			string(service), prevVersion,
		)
		if err != nil {
			return "", fmt.Errorf("reading previous snapshot: %w", err)
		}
		type carried struct {
			path    string
			content []byte
		}
		var toCarry []carried
		for rows.Next() {
			var path string
			var content []byte
			if err := rows.Scan(&path, &content); err != nil {
				rows.Close()
				return "", fmt.Errorf("scan previous snapshot row: %w", err)
			}
			if _, overwritten := files[path]; overwritten {
				continue
			}
			toCarry = append(toCarry, carried{path: path, content: content})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", fmt.Errorf("iterating previous snapshot: %w", err)
		}
		rows.Close()

		for _, c := range toCarry {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO variable_commit_file (service, version, path, content) VALUES (?, ?, ?, ?)`,
				string(service), newVersion, c.path, c.content,
			); err != nil {
				return "", fmt.Errorf("carrying forward %s: %w", c.path, err)
			}
		}
	}

	for path, content := range files {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO variable_commit_file (service, version, path, content) VALUES (?, ?, ?, ?)`,
			string(service), newVersion, path, content,
		); err != nil {
			return "", fmt.Errorf("writing %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit variable commit: %w", err)
	}
	return model.Version(newVersion), nil
}

// ChangedSince implements variables.CommitStore.
func (s *SQLiteStore) ChangedSince(ctx context.Context, service model.ServiceName, since model.Version, relativePath string) (bool, error) {
	tip, err := s.CurrentVersion(ctx, service)
	if err != nil {
		return false, err
	}
	if tip == nil {
		return false, nil
	}

	sinceContent, sinceExisted, err := s.FileContentAt(ctx, service, since, relativePath)
	if err != nil {
		return false, err
	}
	tipContent, tipExisted, err := s.FileContentAt(ctx, service, *tip, relativePath)
	if err != nil {
		return false, err
	}
	if sinceExisted != tipExisted {
		return true, nil
	}
	if !tipExisted {
		return false, nil
	}
	return !bytes.Equal(sinceContent, tipContent), nil
}
