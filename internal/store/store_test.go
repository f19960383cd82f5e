package store

import (
	"context"
	"testing"
	"time"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	return s
}

func TestStoreLifecycle(t *testing.T) {
	s, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	ctx := context.Background()
	tables := []string{"deployment", "operation", "sch_status_log", "variable_commit", "variable_commit_file"}
	for _, table := range tables {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestDeploymentCRUD(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	host := model.HostName("node1")
	d := &model.DeploymentModel{
		Options:        map[string]any{"sources": []any{"hdfs_install"}},
		DeploymentType: model.DeploymentTypeDAG,
		State:          model.DeploymentPlanned,
		Operations: []model.OperationModel{
			{OperationOrder: 1, Operation: "hdfs_namenode_install", State: model.OperationPlanned},
			{OperationOrder: 2, Operation: "hdfs_namenode_config", Host: &host, ExtraVars: []string{"foo=bar"}, State: model.OperationPlanned},
		},
	}

	if err := s.CreateDeployment(ctx, d); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("expected a generated deployment id")
	}

	loaded, err := s.GetDeployment(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if loaded.State != model.DeploymentPlanned || loaded.DeploymentType != model.DeploymentTypeDAG {
		t.Fatalf("unexpected loaded deployment: %+v", loaded)
	}
	if len(loaded.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(loaded.Operations))
	}
	if loaded.Operations[1].Host == nil || *loaded.Operations[1].Host != host {
		t.Fatalf("expected host %q on second operation, got %+v", host, loaded.Operations[1].Host)
	}
	if len(loaded.Operations[1].ExtraVars) != 1 || loaded.Operations[1].ExtraVars[0] != "foo=bar" {
		t.Fatalf("unexpected extra_vars: %v", loaded.Operations[1].ExtraVars)
	}

	now := time.Now()
	d.State = model.DeploymentRunning
	d.StartTime = &now
	if err := s.UpdateDeploymentState(ctx, d); err != nil {
		t.Fatalf("UpdateDeploymentState: %v", err)
	}

	running, err := s.GetRunningDeployment(ctx)
	if err != nil {
		t.Fatalf("GetRunningDeployment: %v", err)
	}
	if running == nil || running.ID != d.ID {
		t.Fatalf("expected running deployment %d, got %+v", d.ID, running)
	}

	loaded.Operations[0].State = model.OperationSuccess
	loaded.Operations[0].StartTime = &now
	loaded.Operations[0].EndTime = &now
	loaded.Operations[0].Logs = []byte("ok")
	if err := s.UpdateOperation(ctx, &loaded.Operations[0]); err != nil {
		t.Fatalf("UpdateOperation: %v", err)
	}

	reloaded, err := s.GetDeployment(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeployment (reload): %v", err)
	}
	if reloaded.Operations[0].State != model.OperationSuccess {
		t.Fatalf("expected first operation SUCCESS after update, got %s", reloaded.Operations[0].State)
	}
	if string(reloaded.Operations[0].Logs) != "ok" {
		t.Fatalf("expected logs to persist, got %q", reloaded.Operations[0].Logs)
	}
}

func TestStartDeployment_RejectsWhenAnotherIsRunning(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	first := &model.DeploymentModel{DeploymentType: model.DeploymentTypeDAG, State: model.DeploymentPlanned}
	if err := s.CreateDeployment(ctx, first); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}
	first.State = model.DeploymentRunning
	if err := s.UpdateDeploymentState(ctx, first); err != nil {
		t.Fatalf("UpdateDeploymentState: %v", err)
	}

	second := &model.DeploymentModel{DeploymentType: model.DeploymentTypeDAG, State: model.DeploymentPlanned}
	if err := s.CreateDeployment(ctx, second); err != nil {
		t.Fatalf("CreateDeployment: %v", err)
	}
	second.State = model.DeploymentRunning
	if err := s.StartDeployment(ctx, second); err == nil {
		t.Fatal("expected StartDeployment to reject a second concurrent RUNNING deployment")
	}
}

func TestAppendAndReduceStatusEvents(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	v1 := model.Version("1")
	events := []model.SCHStatusLogEvent{
		{EventTime: time.Unix(1, 0), Service: "hdfs", ConfiguredVersion: &v1, Source: model.StatusSourceDeployment},
	}
	stored, err := s.AppendEvents(ctx, events)
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if len(stored) != 1 || stored[0].ID == 0 {
		t.Fatalf("expected a stored event with a generated id, got %+v", stored)
	}

	all, err := s.AllEvents(ctx)
	if err != nil {
		t.Fatalf("AllEvents: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 event, got %d", len(all))
	}
	if all[0].ConfiguredVersion == nil || *all[0].ConfiguredVersion != v1 {
		t.Fatalf("expected configured_version %q, got %+v", v1, all[0].ConfiguredVersion)
	}
}

func TestCommitStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	service := model.ServiceName("hdfs")

	initial, err := s.CurrentVersion(ctx, service)
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if initial != nil {
		t.Fatalf("expected nil version before any commit, got %v", *initial)
	}

	v1, err := s.Commit(ctx, service, "initial", map[string][]byte{
		"hdfs.yml": []byte("a: 1\n"),
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	content, existed, err := s.FileContentAt(ctx, service, v1, "hdfs.yml")
	if err != nil {
		t.Fatalf("FileContentAt: %v", err)
	}
	if !existed || string(content) != "a: 1\n" {
		t.Fatalf("unexpected content %q (existed=%v)", content, existed)
	}

	v2, err := s.Commit(ctx, service, "add namenode file", map[string][]byte{
		"hdfs_namenode.yml": []byte("b: 2\n"),
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// v2's snapshot must carry forward hdfs.yml unchanged.
	files, err := s.ListFilesAt(ctx, service, v2)
	if err != nil {
		t.Fatalf("ListFilesAt: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files at v2, got %v", files)
	}

	changed, err := s.ChangedSince(ctx, service, v1, "hdfs.yml")
	if err != nil {
		t.Fatalf("ChangedSince: %v", err)
	}
	if changed {
		t.Fatal("expected hdfs.yml to be unchanged between v1 and v2")
	}

	changed, err = s.ChangedSince(ctx, service, v1, "hdfs_namenode.yml")
	if err != nil {
		t.Fatalf("ChangedSince: %v", err)
	}
	if !changed {
		t.Fatal("expected hdfs_namenode.yml to be reported changed (did not exist at v1)")
	}
}
