// Package collection implements C1, the collection reader: it parses a
// single collection directory into DAG nodes, playbooks, default
// variable locations, and schema file locations.
package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

const (
	dagDirName      = "tdp_lib_dag"
	playbooksDir    = "playbooks"
	defaultVarsDir  = "tdp_vars_defaults"
	schemasDirName  = "tdp_vars_schema"
	manifestFile    = "MANIFEST.json"
)

// Playbook is a parsed operation playbook: the union of all `hosts:`
// entries it declares plus its resolved `can_limit` flag.
type Playbook struct {
	Name      string
	HostNames map[model.HostName]struct{}
	CanLimit  bool
	Path      string
}

// Collection is everything read out of one collection root directory.
type Collection struct {
	Name             string
	Root             string
	DAGNodes         []model.DAGNode
	Playbooks        map[string]*Playbook
	DefaultVarsDir   string            // tdp_vars_defaults root for this collection
	SchemaFiles      map[string]string // service -> schema file path, if present
	GalaxyVersion    *model.Version
}

// InventoryReader resolves playbook host patterns to concrete host
// names. Production callers supply their own; the core only depends on
// this small interface (spec.md §6).
type InventoryReader interface {
	GetHosts(pattern string) ([]string, error)
}

// playbookMeta mirrors the subset of playbook YAML this reader cares
// about: a list of plays, each optionally declaring hosts and a
// vars.tdp_lib.can_limit flag.
type playbookMeta struct {
	Hosts string `yaml:"hosts"`
	Vars  struct {
		TDPLib struct {
			CanLimit *bool `yaml:"can_limit"`
		} `yaml:"tdp_lib"`
	} `yaml:"vars"`
}

type dagFile struct {
	Nodes []model.DAGNode
}

// Read parses one collection directory rooted at root, named name (the
// directory's base name is used when name is empty).
func Read(root, name string, inventory InventoryReader, log zerolog.Logger) (*Collection, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, &tdperrors.CollectionStructureError{Path: root, Err: fmt.Errorf("not a directory")}
	}
	if name == "" {
		name = filepath.Base(root)
	}

	for _, sub := range []string{dagDirName, defaultVarsDir, playbooksDir} {
		subPath := filepath.Join(root, sub)
		if st, err := os.Stat(subPath); err != nil || !st.IsDir() {
			return nil, &tdperrors.CollectionStructureError{
				Path: root,
				Err:  fmt.Errorf("missing mandatory directory %q", sub),
			}
		}
	}

	c := &Collection{
		Name:           name,
		Root:           root,
		Playbooks:      make(map[string]*Playbook),
		DefaultVarsDir: filepath.Join(root, defaultVarsDir),
		SchemaFiles:    make(map[string]string),
	}

	if err := c.readDAGFiles(); err != nil {
		return nil, err
	}
	if err := c.readPlaybooks(inventory, log); err != nil {
		return nil, err
	}
	c.readSchemas()
	c.readGalaxyVersion(log)

	return c, nil
}

func (c *Collection) readDAGFiles() error {
	dagDir := filepath.Join(c.Root, dagDirName)
	entries, err := os.ReadDir(dagDir)
	if err != nil {
		return &tdperrors.CollectionStructureError{Path: dagDir, Err: err}
	}

	validate := validator.New()
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for _, fname := range files {
		path := filepath.Join(dagDir, fname)
		raw, err := os.ReadFile(path)
		if err != nil {
			return &tdperrors.CollectionStructureError{Path: path, Err: err}
		}
		var nodes []model.DAGNode
		if err := yaml.Unmarshal(raw, &nodes); err != nil {
			return &tdperrors.CollectionStructureError{
				Path: path,
				Err:  fmt.Errorf("invalid DAG file: %w", err),
			}
		}
		for i := range nodes {
			if err := validate.Var(nodes[i].Name, "required"); err != nil {
				return &tdperrors.CollectionStructureError{
					Path: path,
					Err:  fmt.Errorf("DAG node missing required name: %w", err),
				}
			}
		}
		c.DAGNodes = append(c.DAGNodes, nodes...)
	}
	return nil
}

func (c *Collection) readPlaybooks(inventory InventoryReader, log zerolog.Logger) error {
	dir := filepath.Join(c.Root, playbooksDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &tdperrors.CollectionStructureError{Path: dir, Err: err}
	}

	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return &tdperrors.CollectionStructureError{Path: path, Err: err}
		}

		var plays []playbookMeta
		if err := yaml.Unmarshal(raw, &plays); err != nil {
			return &tdperrors.CollectionStructureError{
				Path: path,
				Err:  fmt.Errorf("invalid playbook: %w", err),
			}
		}

		pb := &Playbook{Name: name, HostNames: make(map[model.HostName]struct{}), CanLimit: true, Path: path}
		sawCanLimit := false
		for _, play := range plays {
			if play.Hosts != "" && inventory != nil {
				hosts, err := inventory.GetHosts(play.Hosts)
				if err != nil {
					log.Warn().Err(err).Str("playbook", name).Str("pattern", play.Hosts).
						Msg("could not resolve playbook hosts pattern")
					continue
				}
				for _, h := range hosts {
					pb.HostNames[model.HostName(h)] = struct{}{}
				}
			}
			if play.Vars.TDPLib.CanLimit != nil {
				if sawCanLimit && pb.CanLimit != *play.Vars.TDPLib.CanLimit {
					log.Warn().Str("playbook", name).Msg("plays disagree on can_limit; false wins")
				}
				sawCanLimit = true
				pb.CanLimit = pb.CanLimit && *play.Vars.TDPLib.CanLimit
			}
		}
		c.Playbooks[name] = pb
	}
	return nil
}

func (c *Collection) readSchemas() {
	dir := filepath.Join(c.Root, schemasDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // schemas directory is optional
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		service := strings.TrimSuffix(e.Name(), ".json")
		c.SchemaFiles[service] = filepath.Join(dir, e.Name())
	}
}

// readGalaxyVersion extracts collection_info.version from MANIFEST.json.
// Every failure mode (missing, malformed, unreadable, absent field) is
// non-fatal and leaves GalaxyVersion nil, per spec.md §4.1, logging at
// most one warning.
func (c *Collection) readGalaxyVersion(log zerolog.Logger) {
	path := filepath.Join(c.Root, manifestFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var manifest struct {
		CollectionInfo struct {
			Version string `json:"version"`
		} `json:"collection_info"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		log.Warn().Err(err).Str("collection", c.Name).Msg("could not parse MANIFEST.json")
		return
	}
	if manifest.CollectionInfo.Version == "" {
		return
	}
	v := model.Version(manifest.CollectionInfo.Version)
	c.GalaxyVersion = &v
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yml" || ext == ".yaml"
}
