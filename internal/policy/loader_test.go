package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleRego = `# Requires a backup label on production resources
package tdp.policies.backup

import rego.v1

deny contains violation if {
	input.context.environment == "production"
	violation := {"message": "backup policy placeholder", "severity": "warning"}
}`

func TestLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.rego")
	if err := os.WriteFile(path, []byte(sampleRego), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := NewLoader(testLogger())
	policies, err := l.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
	if policies[0].Name != "backup" {
		t.Fatalf("expected policy name %q, got %q", "backup", policies[0].Name)
	}
	if policies[0].Description == "" {
		t.Fatal("expected description extracted from leading comment")
	}
}

func TestLoader_LoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.rego"), []byte(sampleRego), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := NewLoader(testLogger())
	policies, err := l.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy (non-.rego file skipped), got %d", len(policies))
	}
}

func TestEngine_LoadPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.rego")
	if err := os.WriteFile(path, []byte(sampleRego), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}
	if _, err := eng.GetPolicy("backup"); err != nil {
		t.Fatalf("expected custom policy to be loaded: %v", err)
	}
}
