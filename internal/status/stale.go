package status

import (
	"context"
	"time"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

// ModificationChecker answers whether an entity's backing variable
// files changed since a given version — the ClusterVariables dependency
// the stale-detection algorithm needs from C3 (spec.md §4.3's
// "modification detection").
type ModificationChecker interface {
	IsEntityModified(service model.ServiceName, entity model.EntityName, since model.Version) (bool, error)
}

// EventStore is the append-only log this package reads from and writes
// to. Persistence itself lives in internal/store; this package only
// depends on the small interface it needs.
type EventStore interface {
	AppendEvents(ctx context.Context, events []model.SCHStatusLogEvent) ([]model.SCHStatusLogEvent, error)
	AllEvents(ctx context.Context) ([]model.SCHStatusLogEvent, error)
}

func boolPtr(b bool) *bool { return &b }

// GenerateStaleSCHLogs runs the stale-detection algorithm from spec.md
// §4.5 against the store's current reduced status and the given
// modification checker, appends the resulting events to the store, and
// returns them. It is idempotent: if nothing has changed since the last
// pass, it appends and returns nothing.
func GenerateStaleSCHLogs(ctx context.Context, store EventStore, checker ModificationChecker, now func() time.Time) ([]model.SCHStatusLogEvent, error) {
	existing, err := store.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	current := Reduce(existing)

	var toConfigParents = make(map[model.EntityName]struct{})
	var newEvents []model.SCHStatusLogEvent

	// Step 1: entities whose configured version is stale relative to
	// their on-disk variable file.
	for _, s := range current {
		if s.ConfiguredVersion == nil {
			continue
		}
		if s.ToConfig != nil && *s.ToConfig {
			continue // already flagged by a prior pass; don't re-emit until it's acted on
		}
		modified, err := checker.IsEntityModified(s.Entity.Entity.Service, s.Entity.Entity, *s.ConfiguredVersion)
		if err != nil {
			return nil, err
		}
		if !modified {
			continue
		}
		e := model.SCHStatusLogEvent{
			EventTime: now(),
			Service:   s.Entity.Entity.Service,
			Host:      s.Entity.Host,
			ToConfig:  boolPtr(true),
			Source:    model.StatusSourceStale,
		}
		if !s.Entity.Entity.IsService() {
			comp := s.Entity.Entity.Component
			e.Component = &comp
		}
		newEvents = append(newEvents, e)
		toConfigParents[s.Entity.Entity] = struct{}{}
	}

	// Step 2: entities whose running version trails their configured
	// version, or whose parent entity just became to_config — both need
	// a restart.
	for _, s := range current {
		if s.ToRestart != nil && *s.ToRestart {
			continue // already flagged by a prior pass; don't re-emit until it's acted on
		}
		needsRestart := false
		if s.ConfiguredVersion != nil && (s.RunningVersion == nil || *s.RunningVersion != *s.ConfiguredVersion) {
			needsRestart = true
		}
		if !needsRestart && !s.Entity.Entity.IsService() {
			parent := model.EntityName{Service: s.Entity.Entity.Service}
			if _, ok := toConfigParents[parent]; ok {
				needsRestart = true
			}
		}
		if !needsRestart {
			continue
		}
		e := model.SCHStatusLogEvent{
			EventTime: now(),
			Service:   s.Entity.Entity.Service,
			Host:      s.Entity.Host,
			ToRestart: boolPtr(true),
			Source:    model.StatusSourceStale,
		}
		if !s.Entity.Entity.IsService() {
			comp := s.Entity.Entity.Component
			e.Component = &comp
		}
		newEvents = append(newEvents, e)
	}

	if len(newEvents) == 0 {
		return nil, nil
	}
	return store.AppendEvents(ctx, newEvents)
}
