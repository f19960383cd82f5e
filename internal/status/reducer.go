// Package status implements C5, the cluster status engine: the
// append-only SCHStatusLogEvent log, the field-wise reducer that
// derives HostedEntityStatus from it, and the stale-detection
// algorithm.
package status

import (
	"sort"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

// groupKey identifies one (service, component, host) reduction bucket.
type groupKey struct {
	service   model.ServiceName
	component model.ComponentName // empty for service-level
	host      model.HostName      // empty for unplaced
}

func keyOf(e *model.SCHStatusLogEvent) groupKey {
	k := groupKey{service: e.Service}
	if e.Component != nil {
		k.component = *e.Component
	}
	if e.Host != nil {
		k.host = *e.Host
	}
	return k
}

// Reduce computes current_status(): for each (service, component, host)
// group, walk events ordered by (event_time, id) and overwrite the
// running tuple field-wise with every non-null field. Reduce never
// mutates events and is pure in the events it's given — see spec.md
// invariant 6 and testable property 6 (reducer purity under any
// order-preserving permutation).
func Reduce(events []model.SCHStatusLogEvent) []model.HostedEntityStatus {
	ordered := make([]model.SCHStatusLogEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].EventTime.Equal(ordered[j].EventTime) {
			return ordered[i].EventTime.Before(ordered[j].EventTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	groups := make(map[groupKey]*model.HostedEntityStatus)
	var order []groupKey

	for i := range ordered {
		e := &ordered[i]
		k := keyOf(e)
		s, ok := groups[k]
		if !ok {
			s = &model.HostedEntityStatus{Entity: e.Entity()}
			groups[k] = s
			order = append(order, k)
		}
		if e.RunningVersion != nil {
			s.RunningVersion = e.RunningVersion
		}
		if e.ConfiguredVersion != nil {
			s.ConfiguredVersion = e.ConfiguredVersion
		}
		if e.ToConfig != nil {
			s.ToConfig = e.ToConfig
		}
		if e.ToRestart != nil {
			s.ToRestart = e.ToRestart
		}
		if e.IsActive != nil {
			s.IsActive = e.IsActive
		}
	}

	out := make([]model.HostedEntityStatus, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}

// Filter narrows a reduced status list by the optional criteria
// find_statuses accepts.
type Filter struct {
	Service   *model.ServiceName
	Component *model.ComponentName
	Hosts     []model.HostName
	Stale     *bool
	Active    *bool
}

// Find applies a Filter to a reduced status list.
func Find(statuses []model.HostedEntityStatus, f Filter) []model.HostedEntityStatus {
	hostSet := make(map[model.HostName]struct{}, len(f.Hosts))
	for _, h := range f.Hosts {
		hostSet[h] = struct{}{}
	}

	var out []model.HostedEntityStatus
	for _, s := range statuses {
		if f.Service != nil && s.Entity.Entity.Service != *f.Service {
			continue
		}
		if f.Component != nil && s.Entity.Entity.Component != *f.Component {
			continue
		}
		if len(hostSet) > 0 {
			if s.Entity.Host == nil {
				continue
			}
			if _, ok := hostSet[*s.Entity.Host]; !ok {
				continue
			}
		}
		if f.Stale != nil && s.IsStale() != *f.Stale {
			continue
		}
		if f.Active != nil {
			active := s.IsActive != nil && *s.IsActive
			if active != *f.Active {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
