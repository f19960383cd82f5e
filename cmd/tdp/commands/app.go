package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/TOSIT-IO/tdp-lib/internal/collection"
	"github.com/TOSIT-IO/tdp-lib/internal/collections"
	"github.com/TOSIT-IO/tdp-lib/internal/config"
	"github.com/TOSIT-IO/tdp-lib/internal/dag"
	"github.com/TOSIT-IO/tdp-lib/internal/executor"
	"github.com/TOSIT-IO/tdp-lib/internal/store"
	"github.com/TOSIT-IO/tdp-lib/internal/variables"
)

// app bundles the core handles every subcommand needs: the persisted
// store, the merged operation namespace, its DAG, and the variables
// store. It is built fresh per invocation — the core carries no
// process-lifetime singletons, matching the teacher's per-command
// store construction in cmd/froyo/commands/*.go.
type app struct {
	cfg        *config.Config
	store      *store.SQLiteStore
	operations *collections.Operations
	graph      *dag.Graph
	vars       *variables.ClusterVariables
	playbooks  map[string]string // operation name -> playbook path, last collection wins
	log        zerolog.Logger
}

// newApp loads configuration, opens and migrates the store, and reads
// every configured collection directory into one merged namespace.
func newApp(ctx context.Context, log zerolog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	st, err := store.NewSQLiteStore(store.Config{Path: cfg.DatabaseDSN})
	if err != nil {
		return nil, fmt.Errorf("configuring store: %w", err)
	}
	if err := st.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	cols, playbookPaths, err := readCollections(cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ops, err := collections.Aggregate(cols, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("aggregating collections: %w", err)
	}
	graph, err := dag.Build(ops)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("building dag: %w", err)
	}
	graph.ValidateReachability(log)

	return &app{
		cfg:        cfg,
		store:      st,
		operations: ops,
		graph:      graph,
		vars:       variables.NewClusterVariables(st),
		playbooks:  playbookPaths,
		log:        log,
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// readCollections reads every directory in cfg.CollectionPaths, in
// order, and records the last-writer-wins operation-name -> playbook
// path binding that collections.Aggregate applies to HostNames/CanLimit
// but does not itself retain (C2 only aggregates the operation
// namespace, not file paths — spec.md §4.2).
func readCollections(cfg *config.Config, log zerolog.Logger) ([]*collection.Collection, map[string]string, error) {
	inventory := executor.NewStaticReader(nil)

	cols := make([]*collection.Collection, 0, len(cfg.CollectionPaths))
	playbookPaths := make(map[string]string)
	for _, dir := range cfg.CollectionPaths {
		name := filepath.Base(dir)
		col, err := collection.Read(dir, name, inventory, log)
		if err != nil {
			return nil, nil, fmt.Errorf("reading collection %s: %w", dir, err)
		}
		cols = append(cols, col)
		for opName, pb := range col.Playbooks {
			playbookPaths[opName] = pb.Path
		}
	}
	return cols, playbookPaths, nil
}

// PlaybookPath implements runner.PlaybookResolver.
func (a *app) PlaybookPath(operationName string) (string, bool, error) {
	op, ok := a.operations.Operations[operationName]
	if !ok {
		return "", false, fmt.Errorf("unknown operation %q", operationName)
	}
	if op.Noop {
		return "", true, nil
	}
	path, ok := a.playbooks[operationName]
	if !ok {
		return "", false, fmt.Errorf("operation %q has no bound playbook", operationName)
	}
	return path, false, nil
}
