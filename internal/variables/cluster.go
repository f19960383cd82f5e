package variables

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

// ClusterVariables owns one ServiceVariables per known service and
// implements status.ModificationChecker by delegating to the right one.
type ClusterVariables struct {
	commits  CommitStore
	validate *SchemaValidator
	services map[model.ServiceName]*ServiceVariables
}

// NewClusterVariables returns an empty ClusterVariables over commits.
func NewClusterVariables(commits CommitStore) *ClusterVariables {
	return &ClusterVariables{
		commits:  commits,
		validate: NewSchemaValidator(),
		services: make(map[model.ServiceName]*ServiceVariables),
	}
}

// For returns (creating if necessary) the ServiceVariables handle for service.
func (c *ClusterVariables) For(service model.ServiceName) *ServiceVariables {
	if sv, ok := c.services[service]; ok {
		return sv
	}
	sv := New(service, c.commits)
	c.services[service] = sv
	return sv
}

// IsEntityModified implements status.ModificationChecker.
func (c *ClusterVariables) IsEntityModified(service model.ServiceName, entity model.EntityName, since model.Version) (bool, error) {
	return c.For(service).IsEntityModified(service, entity, since)
}

// InitSource is one source directory to apply during Initialize:
// collection defaults first, then override directories, per spec.md
// §4.3 ("collections first, then overrides").
type InitSource struct {
	Service model.ServiceName
	Dir     string // directory containing this source's *.yml files
}

// Initialize creates an uninitialized service's tree and applies each
// source in order, one transaction per source.
func (c *ClusterVariables) Initialize(ctx context.Context, sources []InitSource) error {
	for _, src := range sources {
		files, err := yamlFilesIn(src.Dir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			continue
		}
		contents := make(map[string]map[string]any, len(files))
		var paths []string
		for _, f := range files {
			raw, err := os.ReadFile(filepath.Join(src.Dir, f))
			if err != nil {
				return fmt.Errorf("reading %s: %w", f, err)
			}
			decoded, err := decodeYAML(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			contents[f] = decoded
			paths = append(paths, f)
		}

		sv := c.For(src.Service)
		_, err = sv.WithTransaction(ctx, paths, fmt.Sprintf("initialize from %s", src.Dir), func(t *Transaction) error {
			for _, f := range paths {
				if err := t.Set(f, contents[f]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("initializing %s from %s: %w", src.Service, src.Dir, err)
		}
	}
	return nil
}

// Validate runs schema validation for service using schemaPaths against
// the current content of every default and service file.
func (c *ClusterVariables) Validate(ctx context.Context, service model.ServiceName, schemaPaths []string, defaultsDirs []string) error {
	sv := c.For(service)
	version, err := sv.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	document := map[string]any{}
	var paths []string
	if version != nil {
		names, err := c.commits.ListFilesAt(ctx, service, *version)
		if err != nil {
			return err
		}
		paths = append(paths, names...)
	}
	for _, dir := range defaultsDirs {
		files, err := yamlFilesIn(filepath.Join(dir, string(service)))
		if err != nil {
			continue
		}
		paths = append(paths, files...)
	}
	sort.Strings(paths)
	seen := make(map[string]struct{})

	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		for _, dir := range defaultsDirs {
			if raw, err := os.ReadFile(filepath.Join(dir, string(service), p)); err == nil {
				if decoded, err := decodeYAML(raw); err == nil {
					document = deepMerge(document, decoded)
				}
			}
		}
		var content map[string]any
		if version != nil {
			raw, existed, err := c.commits.FileContentAt(ctx, service, *version, p)
			if err == nil && existed {
				content, _ = decodeYAML(raw)
			}
		}
		if content == nil {
			continue
		}
		document = deepMerge(document, content)
	}

	return c.validate.Validate(string(service), schemaPaths, document)
}

// CurrentServiceVersions is the service-versions CLI command's
// read-only backing query: the current version of every known service.
func (c *ClusterVariables) CurrentServiceVersions(ctx context.Context) (map[model.ServiceName]*model.Version, error) {
	out := make(map[model.ServiceName]*model.Version, len(c.services))
	for service, sv := range c.services {
		v, err := sv.CurrentVersion(ctx)
		if err != nil {
			return nil, err
		}
		out[service] = v
	}
	return out, nil
}

func yamlFilesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil // non-existent source directories are skipped, not fatal
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yml" || ext == ".yaml" {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
