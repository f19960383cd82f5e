package variables

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestClusterVariables_InitializeCommitsSourceFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hdfs.yml"), []byte("heap_size: 256\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store := newFakeCommitStore()
	cv := NewClusterVariables(store)
	err := cv.Initialize(context.Background(), []InitSource{{Service: "hdfs", Dir: dir}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	version, err := cv.For("hdfs").CurrentVersion(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version == nil {
		t.Fatal("expected a committed version after initialize")
	}

	content, existed, err := store.FileContentAt(context.Background(), "hdfs", *version, "hdfs.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !existed {
		t.Fatal("expected hdfs.yml to have been committed")
	}
	decoded, err := decodeYAML(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["heap_size"] != 256 {
		t.Errorf("expected heap_size 256, got %v", decoded["heap_size"])
	}
}

func TestClusterVariables_InitializeSkipsMissingSourceDir(t *testing.T) {
	store := newFakeCommitStore()
	cv := NewClusterVariables(store)
	err := cv.Initialize(context.Background(), []InitSource{{Service: "hdfs", Dir: "/does/not/exist"}})
	if err != nil {
		t.Fatalf("expected a missing source dir to be skipped, got %v", err)
	}
}

func TestClusterVariables_CurrentServiceVersions(t *testing.T) {
	store := newFakeCommitStore()
	cv := NewClusterVariables(store)
	sv := cv.For("hdfs")
	_, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml"}, "init", func(tx *Transaction) error {
		return tx.Set("hdfs.yml", map[string]any{"a": 1})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cv.For("yarn") // known but never committed

	versions, err := cv.CurrentServiceVersions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if versions["hdfs"] == nil {
		t.Error("expected hdfs to have a version")
	}
	if versions["yarn"] != nil {
		t.Error("expected yarn to have no version yet")
	}
}

func TestClusterVariables_ValidateNoSchemasIsNoop(t *testing.T) {
	store := newFakeCommitStore()
	cv := NewClusterVariables(store)
	err := cv.Validate(context.Background(), "hdfs", nil, nil)
	if err != nil {
		t.Fatalf("expected no-op validation with no schema paths, got %v", err)
	}
}

func TestClusterVariables_DefaultDiffReportsOverrides(t *testing.T) {
	defaultsDir := t.TempDir()
	hdfsDir := filepath.Join(defaultsDir, "hdfs")
	if err := os.MkdirAll(hdfsDir, 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hdfsDir, "hdfs.yml"), []byte("heap_size: 256\nother: unchanged\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store := newFakeCommitStore()
	cv := NewClusterVariables(store)
	sv := cv.For("hdfs")
	_, err := sv.WithTransaction(context.Background(), []string{"hdfs.yml"}, "override", func(tx *Transaction) error {
		return tx.Set("hdfs.yml", map[string]any{"heap_size": 512, "other": "unchanged"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	diffs, err := cv.DefaultDiff(context.Background(), "hdfs", []string{defaultsDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawHeapSize bool
	for _, d := range diffs {
		if d.Path == "heap_size" {
			sawHeapSize = true
			if d.DefaultValue != 256 || d.CurrentValue != 512 {
				t.Errorf("unexpected heap_size diff values: %+v", d)
			}
		}
		if d.Path == "other" {
			t.Errorf("expected 'other' to be unchanged and absent from the diff, got %+v", d)
		}
	}
	if !sawHeapSize {
		t.Errorf("expected a heap_size diff, got %v", diffs)
	}
}

func TestClusterVariables_DefaultDiffUninitializedServiceIsNil(t *testing.T) {
	store := newFakeCommitStore()
	cv := NewClusterVariables(store)
	diffs, err := cv.DefaultDiff(context.Background(), "hdfs", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diffs != nil {
		t.Errorf("expected nil diffs for an uninitialized service, got %v", diffs)
	}
}
