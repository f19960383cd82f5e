package variables

import (
	"context"
	"os"
	"path/filepath"
	"reflect"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// FieldDiff is one leaf-level difference found by DefaultDiff.
type FieldDiff struct {
	Path          string // dotted key path within the variable file
	DefaultValue  any
	CurrentValue  any
}

// DefaultDiff is the default-diff CLI command's read-only backing
// query: it compares the current committed content of service against
// its collection defaults and reports every field that has been
// overridden. Like CurrentServiceVersions, this exists only so the
// out-of-scope CLI adapter has something real to call (spec.md §6).
func (c *ClusterVariables) DefaultDiff(ctx context.Context, service model.ServiceName, defaultsDirs []string) ([]FieldDiff, error) {
	sv := c.For(service)
	version, err := sv.CurrentVersion(ctx)
	if err != nil || version == nil {
		return nil, err
	}

	defaultDoc := map[string]any{}
	for _, dir := range defaultsDirs {
		files, _ := yamlFilesIn(filepath.Join(dir, string(service)))
		for _, f := range files {
			raw, err := readFile(filepath.Join(dir, string(service), f))
			if err != nil {
				continue
			}
			decoded, err := decodeYAML(raw)
			if err != nil {
				continue
			}
			defaultDoc = deepMerge(defaultDoc, decoded)
		}
	}

	currentDoc := map[string]any{}
	names, err := c.commits.ListFilesAt(ctx, service, *version)
	if err != nil {
		return nil, err
	}
	for _, f := range names {
		raw, existed, err := c.commits.FileContentAt(ctx, service, *version, f)
		if err != nil || !existed {
			continue
		}
		decoded, err := decodeYAML(raw)
		if err != nil {
			continue
		}
		currentDoc = deepMerge(currentDoc, decoded)
	}

	var diffs []FieldDiff
	diffLeaves("", defaultDoc, currentDoc, &diffs)
	return diffs, nil
}

func diffLeaves(prefix string, defaults, current map[string]any, out *[]FieldDiff) {
	keys := make(map[string]struct{}, len(defaults)+len(current))
	for k := range defaults {
		keys[k] = struct{}{}
	}
	for k := range current {
		keys[k] = struct{}{}
	}
	for k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		dv, dok := defaults[k]
		cv, cok := current[k]
		dm, dIsMap := dv.(map[string]any)
		cm, cIsMap := cv.(map[string]any)
		if dIsMap && cIsMap {
			diffLeaves(path, dm, cm, out)
			continue
		}
		if !dok || !cok || !reflect.DeepEqual(dv, cv) {
			*out = append(*out, FieldDiff{Path: path, DefaultValue: dv, CurrentValue: cv})
		}
	}
}
