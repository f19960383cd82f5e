package variables

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// fakeCommitStore is a minimal in-memory CommitStore for testing, one
// linear commit history per service.
type fakeCommitStore struct {
	tips    map[model.ServiceName]model.Version
	history map[model.ServiceName]map[model.Version]map[string][]byte
	seq     int
}

func newFakeCommitStore() *fakeCommitStore {
	return &fakeCommitStore{
		tips:    make(map[model.ServiceName]model.Version),
		history: make(map[model.ServiceName]map[model.Version]map[string][]byte),
	}
}

func (s *fakeCommitStore) CurrentVersion(ctx context.Context, service model.ServiceName) (*model.Version, error) {
	v, ok := s.tips[service]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *fakeCommitStore) FileContentAt(ctx context.Context, service model.ServiceName, version model.Version, relativePath string) ([]byte, bool, error) {
	files, ok := s.history[service][version]
	if !ok {
		return nil, false, nil
	}
	content, exists := files[relativePath]
	return content, exists, nil
}

func (s *fakeCommitStore) ListFilesAt(ctx context.Context, service model.ServiceName, version model.Version) ([]string, error) {
	files := s.history[service][version]
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeCommitStore) Commit(ctx context.Context, service model.ServiceName, message string, files map[string][]byte) (model.Version, error) {
	s.seq++
	newVersion := model.Version(fmt.Sprintf("v%d", s.seq))

	merged := make(map[string][]byte)
	if current, ok := s.tips[service]; ok {
		for path, content := range s.history[service][current] {
			merged[path] = content
		}
	}
	for path, content := range files {
		merged[path] = content
	}

	if s.history[service] == nil {
		s.history[service] = make(map[model.Version]map[string][]byte)
	}
	s.history[service][newVersion] = merged
	s.tips[service] = newVersion
	return newVersion, nil
}

func (s *fakeCommitStore) ChangedSince(ctx context.Context, service model.ServiceName, since model.Version, relativePath string) (bool, error) {
	current, ok := s.tips[service]
	if !ok {
		return false, nil
	}
	sinceContent, sinceExisted, _ := s.FileContentAt(ctx, service, since, relativePath)
	currentContent, currentExisted, _ := s.FileContentAt(ctx, service, current, relativePath)
	if sinceExisted != currentExisted {
		return true, nil
	}
	return string(sinceContent) != string(currentContent), nil
}

func TestWithTransaction_CommitsOnlyTouchedPaths(t *testing.T) {
	store := newFakeCommitStore()
	sv := New("hdfs", store)

	version, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml", "namenode.yml"}, "set heap size", func(tx *Transaction) error {
		return tx.Set("hdfs.yml", map[string]any{"heap_size": 512})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version == "" {
		t.Fatal("expected a non-empty new version")
	}

	content, existed, err := store.FileContentAt(context.Background(), "hdfs", version, "namenode.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existed && len(content) > 0 {
		t.Errorf("expected namenode.yml to remain untouched, got %q", content)
	}
}

func TestWithTransaction_EmptyCommitErrorWhenNothingSet(t *testing.T) {
	store := newFakeCommitStore()
	sv := New("hdfs", store)

	_, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml"}, "no-op", func(tx *Transaction) error {
		return nil
	})
	var emptyErr *tdperrors.EmptyCommitError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected an EmptyCommitError, got %v", err)
	}
}

func TestWithTransaction_SetDeepMergesAcrossCalls(t *testing.T) {
	store := newFakeCommitStore()
	sv := New("hdfs", store)

	_, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml"}, "first", func(tx *Transaction) error {
		return tx.Set("hdfs.yml", map[string]any{"namenode": map[string]any{"heap_size": 512}})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	version, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml"}, "second", func(tx *Transaction) error {
		return tx.Set("hdfs.yml", map[string]any{"namenode": map[string]any{"gc_opts": "-Xmx"}})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := sv.commits.(*fakeCommitStore)
	content, _, _ := got.FileContentAt(context.Background(), "hdfs", version, "hdfs.yml")
	decoded, err := decodeYAML(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	namenode, ok := decoded["namenode"].(map[string]any)
	if !ok {
		t.Fatalf("expected namenode map, got %v", decoded)
	}
	if namenode["heap_size"] != 512 && fmt.Sprint(namenode["heap_size"]) != "512" {
		t.Errorf("expected heap_size to survive the deep merge, got %v", namenode["heap_size"])
	}
	if namenode["gc_opts"] != "-Xmx" {
		t.Errorf("expected gc_opts from the second commit, got %v", namenode["gc_opts"])
	}
}

func TestWithTransaction_FnErrorAborstsCommit(t *testing.T) {
	store := newFakeCommitStore()
	sv := New("hdfs", store)

	boom := errors.New("boom")
	_, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml"}, "broken", func(tx *Transaction) error {
		if setErr := tx.Set("hdfs.yml", map[string]any{"x": 1}); setErr != nil {
			return setErr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the fn's error to propagate, got %v", err)
	}
	if v, _ := store.CurrentVersion(context.Background(), "hdfs"); v != nil {
		t.Error("expected no commit to have been made")
	}
}

func TestIsEntityModified_ChecksServiceAndComponentFiles(t *testing.T) {
	store := newFakeCommitStore()
	sv := New("hdfs", store)

	v1, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml", "hdfs_namenode.yml"}, "init", func(tx *Transaction) error {
		if err := tx.Set("hdfs.yml", map[string]any{"a": 1}); err != nil {
			return err
		}
		return tx.Set("hdfs_namenode.yml", map[string]any{"b": 1})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = sv.WithTransaction(context.Background(), []string{"hdfs_namenode.yml"}, "touch namenode only", func(tx *Transaction) error {
		return tx.Set("hdfs_namenode.yml", map[string]any{"b": 2})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entity := model.EntityName{Service: "hdfs", Component: "namenode"}
	modified, err := sv.IsEntityModified("hdfs", entity, v1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !modified {
		t.Error("expected the component to be reported modified")
	}

	serviceOnly := model.EntityName{Service: "hdfs"}
	modified, err = sv.IsEntityModified("hdfs", serviceOnly, v1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if modified {
		t.Error("expected the bare service entity to be unaffected by the component-only change")
	}
}
