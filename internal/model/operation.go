package model

// Operation is a node in the aggregated operation graph (C2 output).
// It merges DAG dependency information with playbook binding.
type Operation struct {
	Name           OperationName
	CollectionName string
	DependsOn      map[string]struct{} // operation name -> present
	HostNames      map[HostName]struct{}
	Noop           bool // true when no playbook is bound to this operation
	CanLimit       bool
	// FromDAG is true for dag-operations (appeared in at least one DAG
	// file); false for other-operations (playbook-only, or synthesized
	// restart/stop siblings of a noop _start — see spec.md §4.2).
	FromDAG bool
}

// DependsOnSlice returns DependsOn as a sorted-free slice, for callers
// that just need to range over it (graph construction sorts separately).
func (o *Operation) DependsOnSlice() []string {
	out := make([]string, 0, len(o.DependsOn))
	for dep := range o.DependsOn {
		out = append(out, dep)
	}
	return out
}

// HostNamesSlice returns HostNames as a slice in no particular order.
func (o *Operation) HostNamesSlice() []HostName {
	out := make([]HostName, 0, len(o.HostNames))
	for h := range o.HostNames {
		out = append(out, h)
	}
	return out
}

// Playbook is a named operation definition bound to a set of hosts.
type Playbook struct {
	Name           string
	CollectionName string
	HostNames      map[HostName]struct{}
	CanLimit       bool
	Path           string
}

// DAGNode is one raw record parsed out of a tdp_lib_dag/*.yml file.
type DAGNode struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on"`
}

// ServicePriority is the fixed ordering table used as the primary sort
// key for deterministic topological sort (spec.md §4.4).
var ServicePriority = map[ServiceName]int{
	"exporter":  1,
	"zookeeper": 2,
	"hadoop":    3,
	"ranger":    4,
	"hdfs":      5,
	"yarn":      6,
	"hive":      7,
	"hbase":     8,
	"spark":     9,
	"spark3":    10,
	"knox":      11,
}

// ServicePriorityDefault is used for any service absent from the table.
const ServicePriorityDefault = 99

// Priority returns a service's position in the deterministic sort order.
func Priority(s ServiceName) int {
	if p, ok := ServicePriority[s]; ok {
		return p
	}
	return ServicePriorityDefault
}

// WaitSleepOperationName is the reserved synthetic operation name the
// planner injects between rolling-restart steps (spec.md §6).
const WaitSleepOperationName = "wait_sleep"
