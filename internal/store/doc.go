// Package store provides the SQLite-backed persistence layer for
// TDP-lib's control plane: the deployment and operation tables, the
// append-only cluster status log, and the variable commit log that
// backs internal/variables' CommitStore interface.
package store
