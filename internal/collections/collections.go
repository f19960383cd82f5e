// Package collections implements C2, the collections aggregator: it
// merges an ordered list of parsed collections into a single namespace
// of operations, applying the override and dependency-merge rules from
// spec.md §4.2.
package collections

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TOSIT-IO/tdp-lib/internal/collection"
	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

// Operations is the aggregated namespace produced by merging an ordered
// list of collections.
type Operations struct {
	// All operations, dag-operations and other-operations combined.
	Operations map[string]*model.Operation

	// Schemas maps service name to the ordered list of schema files bound
	// to it across every collection that declared one.
	Schemas map[string][]string

	// DefaultVarsDirs lists, in collection order, each collection's
	// default-variables root.
	DefaultVarsDirs []string

	// Entities maps service name to the set of component names declared
	// by any operation on that service.
	Entities map[model.ServiceName]map[model.ComponentName]struct{}
}

// Aggregate merges cols, in order, into one Operations namespace.
func Aggregate(cols []*collection.Collection, log zerolog.Logger) (*Operations, error) {
	out := &Operations{
		Operations: make(map[string]*model.Operation),
		Schemas:    make(map[string][]string),
		Entities:   make(map[model.ServiceName]map[model.ComponentName]struct{}),
	}

	for _, c := range cols {
		out.DefaultVarsDirs = append(out.DefaultVarsDirs, c.DefaultVarsDir)
		for service, path := range c.SchemaFiles {
			out.Schemas[service] = append(out.Schemas[service], path)
		}

		// DAG nodes: later definitions extend (set-union) depends_on of
		// earlier ones; they never override it.
		for _, node := range c.DAGNodes {
			opName, err := model.ParseOperationName(node.Name)
			if err != nil {
				return nil, fmt.Errorf("dag node %q: %w", node.Name, err)
			}
			op, exists := out.Operations[node.Name]
			if !exists {
				op = &model.Operation{
					Name:           opName,
					CollectionName: c.Name,
					DependsOn:      make(map[string]struct{}),
					HostNames:      make(map[model.HostName]struct{}),
					Noop:           true,
					FromDAG:        true,
				}
				out.Operations[node.Name] = op
			}
			op.FromDAG = true
			for _, dep := range node.DependsOn {
				op.DependsOn[dep] = struct{}{}
			}
			out.trackEntity(opName)
		}
	}

	// Playbook binding: host_names and can_limit come from the playbook
	// of the same name in the LAST collection that provides one. Last
	// writer wins; operations without a matching DAG node are created
	// here as other-operations.
	for _, c := range cols {
		for name, pb := range c.Playbooks {
			opName, err := model.ParseOperationName(name)
			if err != nil {
				log.Debug().Str("playbook", name).Msg("playbook name is not a valid operation name, skipping binding")
				continue
			}
			op, exists := out.Operations[name]
			if !exists {
				op = &model.Operation{
					Name:           opName,
					CollectionName: c.Name,
					DependsOn:      make(map[string]struct{}),
					HostNames:      make(map[model.HostName]struct{}),
				}
				out.Operations[name] = op
			} else {
				log.Debug().Str("operation", name).Str("collection", c.Name).
					Msg("playbook binding overridden by later collection")
			}
			op.CollectionName = c.Name
			op.CanLimit = pb.CanLimit
			op.Noop = false
			op.HostNames = make(map[model.HostName]struct{}, len(pb.HostNames))
			for h := range pb.HostNames {
				op.HostNames[h] = struct{}{}
			}
			out.trackEntity(opName)
		}
	}

	// Noop _start expansion: a noop start operation gets synthetic
	// restart/stop siblings with the same dependencies, placed among the
	// other-operations (not the DAG).
	var synthesized []*model.Operation
	for _, op := range out.Operations {
		if !op.Noop || op.Name.Action != model.ActionStart {
			continue
		}
		for _, action := range []model.ActionName{model.ActionRestart, model.ActionStop} {
			siblingName := model.OperationName{Entity: op.Name.Entity, Action: action}
			siblingKey := siblingName.String()
			if _, exists := out.Operations[siblingKey]; exists {
				continue
			}
			sibling := &model.Operation{
				Name:           siblingName,
				CollectionName: op.CollectionName,
				DependsOn:      copyStringSet(op.DependsOn),
				HostNames:      make(map[model.HostName]struct{}),
				Noop:           true,
				FromDAG:        false,
			}
			synthesized = append(synthesized, sibling)
		}
	}
	for _, s := range synthesized {
		out.Operations[s.Name.String()] = s
	}

	return out, nil
}

func (o *Operations) trackEntity(name model.OperationName) {
	set, ok := o.Entities[name.Entity.Service]
	if !ok {
		set = make(map[model.ComponentName]struct{})
		o.Entities[name.Entity.Service] = set
	}
	if !name.Entity.IsService() {
		set[name.Entity.Component] = struct{}{}
	}
}

func copyStringSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
