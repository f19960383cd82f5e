// Package dag implements C4, the DAG engine: it builds the operation
// graph from an aggregated Operations namespace, validates it, and
// computes deterministic topological orderings and ancestor/descendant
// closures.
package dag

import (
	"fmt"
	"path"
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/TOSIT-IO/tdp-lib/internal/collections"
	"github.com/TOSIT-IO/tdp-lib/internal/model"
	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// Graph is the validated operation dependency graph built from an
// Operations namespace. Edges run dep -> op for every op.DependsOn dep,
// matching spec.md §4.4.
type Graph struct {
	ops       *collections.Operations
	forward   map[string]map[string]struct{} // op -> set of ops that depend on it
	backward  map[string]map[string]struct{} // op -> set of its dependencies
	allNames  []string
}

// Build constructs and validates the graph. Per spec.md §4.4 its nodes
// are the names of all dag-operations only (op.FromDAG) — other-operations
// (playbook-only operations and the synthesized noop _restart/_stop
// siblings of a noop _start) never become graph nodes. Every depends_on
// edge must resolve to a known dag-operation (fatal), and the graph must
// be acyclic (fatal).
func Build(ops *collections.Operations) (*Graph, error) {
	g := &Graph{
		ops:      ops,
		forward:  make(map[string]map[string]struct{}),
		backward: make(map[string]map[string]struct{}),
	}

	for name, op := range ops.Operations {
		if !op.FromDAG {
			continue
		}
		g.allNames = append(g.allNames, name)
		g.forward[name] = make(map[string]struct{})
		g.backward[name] = make(map[string]struct{})
	}
	sort.Strings(g.allNames)

	for name := range g.forward {
		op := ops.Operations[name]
		for dep := range op.DependsOn {
			depOp, ok := ops.Operations[dep]
			if !ok || !depOp.FromDAG {
				return nil, &tdperrors.GraphValidationError{
					Reason: fmt.Sprintf("operation %q depends on unresolved dag-operation %q", name, dep),
				}
			}
			g.forward[dep][name] = struct{}{}
			g.backward[name][dep] = struct{}{}
		}
	}

	if cyclePath, ok := g.findCycle(); ok {
		return nil, &tdperrors.GraphValidationError{
			Reason: fmt.Sprintf("cycle detected: %v", cyclePath),
		}
	}

	return g, nil
}

// ValidateReachability performs spec.md §4.4's topological validation
// diagnostic: for every non-noop dag-operation there must exist a path
// to the matching service-level <service>_<action> aggregator, if one
// exists in the dag-operation set. Violations are logged at warn and
// never fail the build — this check is diagnostic only.
func (g *Graph) ValidateReachability(log zerolog.Logger) {
	for _, name := range g.allNames {
		op := g.ops.Operations[name]
		if op == nil || op.Noop {
			continue
		}
		aggregator := model.OperationName{
			Entity: model.EntityName{Service: op.Name.Entity.Service},
			Action: op.Name.Action,
		}.String()
		if aggregator == name {
			continue // op is already the service-level aggregator
		}
		if _, ok := g.forward[aggregator]; !ok {
			continue // no matching aggregator exists in the dag-operation set
		}
		if _, reachable := g.descendants([]string{name})[aggregator]; !reachable {
			log.Warn().Str("operation", name).Str("aggregator", aggregator).
				Msg("no path from operation to its matching service-level aggregator")
		}
	}
}

// findCycle runs a DFS cycle check over the forward adjacency, returning
// the cyclic path if one exists.
func (g *Graph) findCycle() ([]string, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.allNames))
	var path []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		dependents := make([]string, 0, len(g.forward[node]))
		for d := range g.forward[node] {
			dependents = append(dependents, d)
		}
		sort.Strings(dependents)
		for _, next := range dependents {
			switch color[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				cycle = append(append([]string{}, path...), next)
				return true
			}
		}
		color[node] = black
		path = path[:len(path)-1]
		return false
	}

	for _, name := range g.allNames {
		if color[name] == white {
			if visit(name) {
				return cycle, true
			}
		}
	}
	return nil, false
}

// GetAllOperations returns every operation name in the graph, in a
// deterministic topological order.
func (g *Graph) GetAllOperations() []string {
	return g.TopoSort(g.allNames)
}

// descendants returns the inclusive descendants closure of sources
// (every node reachable by following forward edges, plus sources).
func (g *Graph) descendants(sources []string) map[string]struct{} {
	seen := make(map[string]struct{})
	var stack []string
	for _, s := range sources {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.forward[n] {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// ancestors returns the inclusive ancestors closure of targets (every
// node that can reach a target by following forward edges, plus
// targets).
func (g *Graph) ancestors(targets []string) map[string]struct{} {
	seen := make(map[string]struct{})
	var stack []string
	for _, t := range targets {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			stack = append(stack, t)
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for prev := range g.backward[n] {
			if _, ok := seen[prev]; !ok {
				seen[prev] = struct{}{}
				stack = append(stack, prev)
			}
		}
	}
	return seen
}

// Options controls GetOperations filtering and rewriting.
type Options struct {
	Sources []string
	Targets []string
	Restart bool
	Stop    bool
}

// GetOperations computes the working operation set per spec.md §4.4 and
// returns it in deterministic topological order, with the restart/stop
// name rewrite applied last.
func (g *Graph) GetOperations(opt Options) []string {
	var working map[string]struct{}

	switch {
	case len(opt.Sources) > 0 && len(opt.Targets) > 0:
		desc := g.descendants(opt.Sources)
		anc := g.ancestors(opt.Targets)
		working = intersect(desc, anc)
	case len(opt.Sources) > 0:
		working = g.descendants(opt.Sources)
	case len(opt.Targets) > 0:
		working = g.ancestors(opt.Targets)
	default:
		working = make(map[string]struct{}, len(g.allNames))
		for _, n := range g.allNames {
			working[n] = struct{}{}
		}
	}

	names := make([]string, 0, len(working))
	for n := range working {
		names = append(names, n)
	}
	ordered := g.TopoSort(names)

	if opt.Restart {
		return rewriteAction(ordered, model.ActionStart, model.ActionRestart)
	}
	if opt.Stop {
		return rewriteAction(ordered, model.ActionStart, model.ActionStop)
	}
	return ordered
}

// TopoSort returns names in a deterministic topological order:
// primary key service priority, secondary key node name, respecting
// every forward dependency edge among the given names.
func (g *Graph) TopoSort(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	inDegree := make(map[string]int, len(names))
	for n := range set {
		inDegree[n] = 0
	}
	for n := range set {
		for dep := range g.backward[n] {
			if _, ok := set[dep]; ok {
				inDegree[n]++
			}
		}
	}

	less := func(a, b string) bool {
		opA, opB := g.ops.Operations[a], g.ops.Operations[b]
		pa, pb := model.ServicePriorityDefault, model.ServicePriorityDefault
		if opA != nil {
			pa = model.Priority(opA.Name.Entity.Service)
		}
		if opB != nil {
			pb = model.Priority(opB.Name.Entity.Service)
		}
		if pa != pb {
			return pa < pb
		}
		return a < b
	}

	ready := make([]string, 0)
	for n := range set {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	var out []string
	for len(ready) > 0 {
		// Pop the lowest-priority-key ready node.
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)

		var newlyReady []string
		for next := range g.forward[n] {
			if _, ok := set[next]; !ok {
				continue
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				newlyReady = append(newlyReady, next)
			}
		}
		sort.Slice(newlyReady, func(i, j int) bool { return less(newlyReady[i], newlyReady[j]) })
		ready = mergeSorted(ready, newlyReady, less)
	}

	return out
}

func mergeSorted(a, b []string, less func(i, j string) bool) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(a[i], b[j]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func rewriteAction(names []string, from, to model.ActionName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		opName, err := model.ParseOperationName(n)
		if err != nil || opName.Action != from {
			out[i] = n
			continue
		}
		opName.Action = to
		out[i] = opName.String()
	}
	return out
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if _, ok := large[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// FilterRegex keeps operation names matching pattern.
func FilterRegex(names []string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex filter %q: %w", pattern, err)
	}
	var out []string
	for _, n := range names {
		if re.MatchString(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// FilterGlob keeps operation names matching a shell glob pattern.
func FilterGlob(names []string, pattern string) ([]string, error) {
	var out []string
	for _, n := range names {
		matched, err := path.Match(pattern, n)
		if err != nil {
			return nil, fmt.Errorf("invalid glob filter %q: %w", pattern, err)
		}
		if matched {
			out = append(out, n)
		}
	}
	return out, nil
}

// SubGraph returns nodes plus all their ancestors, for visualization
// only — not used by the planner or runner.
func (g *Graph) SubGraph(nodes []string) []string {
	anc := g.ancestors(nodes)
	out := make([]string, 0, len(anc))
	for n := range anc {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
