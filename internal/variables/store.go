// Package variables implements C3, the variables store: a per-service
// versioned key-value tree with atomic, validated commits.
//
// The source backs ServiceVariables with an actual Git repository
// (GitPython's Repo, committed to inside a validate(msg) context
// manager — see original_source/tdp/core/repository/git_repository.py).
// No Git-porcelain library appears anywhere in the retrieved example
// pack, so this package reimplements the same current_version /
// is_clean / is_file_modified / open_files contract as an append-only
// commit log kept in the SQLite store (internal/store), without a
// working tree or a real Git object database. See DESIGN.md, Open
// Question O1.
package variables

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// CommitStore is the persistence adapter backing one or more services'
// commit logs. internal/store provides the SQLite-backed
// implementation; tests use an in-memory fake.
type CommitStore interface {
	// CurrentVersion returns the tip version for service, or nil if no
	// commit has ever been made.
	CurrentVersion(ctx context.Context, service model.ServiceName) (*model.Version, error)

	// FileContentAt returns the raw bytes of relativePath as of version,
	// and whether the file existed at that version.
	FileContentAt(ctx context.Context, service model.ServiceName, version model.Version, relativePath string) ([]byte, bool, error)

	// ListFilesAt returns every relative path that exists at version.
	ListFilesAt(ctx context.Context, service model.ServiceName, version model.Version) ([]string, error)

	// Commit stages exactly the given files (path -> new full content)
	// as a new version whose parent is the current tip, and returns the
	// new version. WithTransaction calls it with every path its fn called
	// Set on, whether or not that path's content changed, and never with
	// an empty file set (see its EmptyCommitError handling).
	Commit(ctx context.Context, service model.ServiceName, message string, files map[string][]byte) (model.Version, error)

	// ChangedSince reports whether relativePath's content at the current
	// tip differs from its content at since (or did not exist at since).
	ChangedSince(ctx context.Context, service model.ServiceName, since model.Version, relativePath string) (bool, error)
}

// ServiceVariables is the per-service handle over a CommitStore.
type ServiceVariables struct {
	service model.ServiceName
	commits CommitStore
}

// New returns a handle for service backed by commits.
func New(service model.ServiceName, commits CommitStore) *ServiceVariables {
	return &ServiceVariables{service: service, commits: commits}
}

// CurrentVersion reads the tip of the service's commit history.
func (v *ServiceVariables) CurrentVersion(ctx context.Context) (*model.Version, error) {
	return v.commits.CurrentVersion(ctx, v.service)
}

// IsClean reports whether there are no uncommitted changes. Since this
// store only ever mutates through Commit (there is no working tree),
// IsClean is always true between transactions; it exists to preserve
// the contract's shape for callers ported from the source.
func (v *ServiceVariables) IsClean(ctx context.Context) (bool, error) {
	return true, nil
}

// IsFileModified reports whether relativePath changed between
// versionFrom and the current tip.
func (v *ServiceVariables) IsFileModified(ctx context.Context, versionFrom model.Version, relativePath string) (bool, error) {
	return v.commits.ChangedSince(ctx, v.service, versionFrom, relativePath)
}

// IsEntityModified implements status.ModificationChecker: an entity
// (service, component?) is modified since V if the service's file
// and/or the component's file changed between V and the current
// version. Hosts never appear in variable paths, so this is
// host-independent (spec.md §4.3).
func (v *ServiceVariables) IsEntityModified(service model.ServiceName, entity model.EntityName, since model.Version) (bool, error) {
	ctx := context.Background()
	servicePath := fmt.Sprintf("%s.yml", service)
	modified, err := v.commits.ChangedSince(ctx, service, since, servicePath)
	if err != nil {
		return false, err
	}
	if modified || entity.IsService() {
		return modified, nil
	}
	componentPath := fmt.Sprintf("%s.yml", entity)
	return v.commits.ChangedSince(ctx, service, since, componentPath)
}

// deepMerge applies the deep-merge rule from spec.md §4.3: mappings are
// merged key-wise; non-mapping values are replaced.
func deepMerge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, overlayVal := range overlay {
		baseVal, exists := out[k]
		if !exists {
			out[k] = overlayVal
			continue
		}
		baseMap, baseIsMap := baseVal.(map[string]any)
		overlayMap, overlayIsMap := overlayVal.(map[string]any)
		if baseIsMap && overlayIsMap {
			out[k] = deepMerge(baseMap, overlayMap)
			continue
		}
		out[k] = overlayVal
	}
	return out
}

func decodeYAML(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid variable file content: %w", err)
	}
	return out, nil
}

func encodeYAML(content map[string]any) ([]byte, error) {
	return yaml.Marshal(content)
}

// Transaction is the scoped mutation context open_files returns.
// WithTransaction commits its pending changes when fn returns nil and
// discards them when fn returns an error. Use WithTransaction, never
// construct directly.
type Transaction struct {
	v       *ServiceVariables
	paths   []string
	pending map[string]map[string]any
	ctx     context.Context
	touched map[string]bool
}

// Get returns the deep-merged-so-far content of relativePath (must be
// one of the paths passed to WithTransaction).
func (t *Transaction) Get(relativePath string) map[string]any {
	return t.pending[relativePath]
}

// Set deep-merges patch into relativePath's content within this
// transaction. relativePath must be one of the paths passed to
// WithTransaction.
func (t *Transaction) Set(relativePath string, patch map[string]any) error {
	if _, ok := t.pending[relativePath]; !ok {
		return fmt.Errorf("path %q was not opened in this transaction", relativePath)
	}
	t.pending[relativePath] = deepMerge(t.pending[relativePath], patch)
	t.touched[relativePath] = true
	return nil
}

// WithTransaction opens relativePaths, runs fn against a Transaction,
// and on fn's successful return commits every path Set was called on as
// one new version with message. If fn returns an error, nothing is
// committed. If fn succeeds without calling Set, returns EmptyCommitError.
// Content is not compared: a Set that leaves a file's content unchanged
// still counts, and the transaction then commits a new version.
func (v *ServiceVariables) WithTransaction(ctx context.Context, relativePaths []string, message string, fn func(*Transaction) error) (model.Version, error) {
	current, err := v.commits.CurrentVersion(ctx, v.service)
	if err != nil {
		return "", err
	}

	t := &Transaction{
		v:       v,
		paths:   append([]string{}, relativePaths...),
		pending: make(map[string]map[string]any, len(relativePaths)),
		touched: make(map[string]bool, len(relativePaths)),
		ctx:     ctx,
	}
	for _, p := range relativePaths {
		var raw []byte
		if current != nil {
			content, existed, err := v.commits.FileContentAt(ctx, v.service, *current, p)
			if err != nil {
				return "", err
			}
			if existed {
				raw = content
			}
		}
		decoded, err := decodeYAML(raw)
		if err != nil {
			return "", err
		}
		t.pending[p] = decoded
	}

	if err := fn(t); err != nil {
		return "", err
	}

	if len(t.touched) == 0 {
		return "", &tdperrors.EmptyCommitError{Service: string(v.service)}
	}

	files := make(map[string][]byte, len(t.touched))
	touchedPaths := make([]string, 0, len(t.touched))
	for p := range t.touched {
		touchedPaths = append(touchedPaths, p)
	}
	sort.Strings(touchedPaths)
	for _, p := range touchedPaths {
		encoded, err := encodeYAML(t.pending[p])
		if err != nil {
			return "", err
		}
		files[p] = encoded
	}

	return v.commits.Commit(ctx, v.service, message, files)
}
