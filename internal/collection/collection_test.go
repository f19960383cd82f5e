package collection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

type stubInventory struct {
	hosts map[string][]string
	err   error
}

func (s *stubInventory) GetHosts(pattern string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hosts[pattern], nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func newFixtureCollection(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tdp_lib_dag", "hdfs.yml"), `
- name: hdfs_namenode_install
- name: hdfs_namenode_config
  depends_on: [hdfs_namenode_install]
`)
	writeFile(t, filepath.Join(root, "playbooks", "hdfs_namenode_install.yml"), `
- hosts: namenodes
  vars:
    tdp_lib:
      can_limit: true
`)
	writeFile(t, filepath.Join(root, "tdp_vars_defaults", "hdfs", "hdfs.yml"), "heap_size: 512\n")
	writeFile(t, filepath.Join(root, "tdp_vars_schema", "hdfs.json"), `{"type": "object"}`)
	writeFile(t, filepath.Join(root, "MANIFEST.json"), `{"collection_info": {"version": "1.2.3"}}`)
	return root
}

func TestRead_ParsesDAGPlaybooksSchemasAndManifest(t *testing.T) {
	root := newFixtureCollection(t)
	inv := &stubInventory{hosts: map[string][]string{"namenodes": {"node1", "node2"}}}

	col, err := Read(root, "", inv, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if col.Name != filepath.Base(root) {
		t.Errorf("expected the directory base name to be used, got %q", col.Name)
	}
	if len(col.DAGNodes) != 2 {
		t.Fatalf("expected 2 DAG nodes, got %d", len(col.DAGNodes))
	}

	pb, ok := col.Playbooks["hdfs_namenode_install"]
	if !ok {
		t.Fatal("expected the hdfs_namenode_install playbook to be parsed")
	}
	if !pb.CanLimit {
		t.Error("expected can_limit true")
	}
	if _, ok := pb.HostNames["node1"]; !ok {
		t.Errorf("expected node1 to be resolved from the inventory, got %v", pb.HostNames)
	}

	if _, ok := col.SchemaFiles["hdfs"]; !ok {
		t.Errorf("expected hdfs schema file to be recorded, got %v", col.SchemaFiles)
	}

	if col.GalaxyVersion == nil || *col.GalaxyVersion != "1.2.3" {
		t.Errorf("expected galaxy version 1.2.3, got %v", col.GalaxyVersion)
	}
}

func TestRead_MissingMandatoryDirIsFatal(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "tdp_lib_dag"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// playbooks/ and tdp_vars_defaults/ are deliberately absent.
	_, err := Read(root, "", nil, zerolog.Nop())
	if err == nil {
		t.Fatal("expected a structure error for a missing mandatory directory")
	}
}

func TestRead_MissingManifestLeavesGalaxyVersionNil(t *testing.T) {
	root := newFixtureCollection(t)
	if err := os.Remove(filepath.Join(root, "MANIFEST.json")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	col, err := Read(root, "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col.GalaxyVersion != nil {
		t.Errorf("expected nil galaxy version, got %v", col.GalaxyVersion)
	}
}

func TestRead_MalformedManifestIsNonFatal(t *testing.T) {
	root := newFixtureCollection(t)
	writeFile(t, filepath.Join(root, "MANIFEST.json"), `{not valid json`)
	col, err := Read(root, "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("expected a malformed manifest to be non-fatal, got %v", err)
	}
	if col.GalaxyVersion != nil {
		t.Errorf("expected nil galaxy version after a malformed manifest, got %v", col.GalaxyVersion)
	}
}

func TestRead_NilInventorySkipsHostResolutionWithoutError(t *testing.T) {
	root := newFixtureCollection(t)
	col, err := Read(root, "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pb := col.Playbooks["hdfs_namenode_install"]
	if len(pb.HostNames) != 0 {
		t.Errorf("expected no resolved hosts without an inventory reader, got %v", pb.HostNames)
	}
}

func TestRead_DAGNodeMissingNameIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tdp_lib_dag", "bad.yml"), `
- depends_on: [something]
`)
	writeFile(t, filepath.Join(root, "playbooks", "placeholder.yml"), "[]\n")
	writeFile(t, filepath.Join(root, "tdp_vars_defaults", "placeholder.yml"), "")
	_, err := Read(root, "", nil, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error for a DAG node with no name")
	}
}
