package status

import (
	"context"
	"testing"
	"time"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

type fakeEventStore struct {
	events []model.SCHStatusLogEvent
	nextID int64
}

func (f *fakeEventStore) AllEvents(ctx context.Context) ([]model.SCHStatusLogEvent, error) {
	return append([]model.SCHStatusLogEvent{}, f.events...), nil
}

func (f *fakeEventStore) AppendEvents(ctx context.Context, events []model.SCHStatusLogEvent) ([]model.SCHStatusLogEvent, error) {
	out := make([]model.SCHStatusLogEvent, len(events))
	for i, e := range events {
		f.nextID++
		e.ID = f.nextID
		f.events = append(f.events, e)
		out[i] = e
	}
	return out, nil
}

type fakeModificationChecker struct {
	modified map[string]bool // entity.String() ("service" or "service_component") -> modified
}

func (f *fakeModificationChecker) IsEntityModified(service model.ServiceName, entity model.EntityName, since model.Version) (bool, error) {
	return f.modified[entity.String()], nil
}

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestGenerateStaleSCHLogs_MarksModifiedEntityToConfig(t *testing.T) {
	store := &fakeEventStore{
		events: []model.SCHStatusLogEvent{
			{ID: 1, Service: "hdfs", ConfiguredVersion: versionP("v1"), RunningVersion: versionP("v1")},
		},
	}
	checker := &fakeModificationChecker{modified: map[string]bool{"hdfs": true}}

	events, err := GenerateStaleSCHLogs(context.Background(), store, checker, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one stale event")
	}

	var sawToConfig bool
	for _, e := range events {
		if e.ToConfig != nil && *e.ToConfig {
			sawToConfig = true
		}
		if e.Source != model.StatusSourceStale {
			t.Errorf("expected STALE source, got %s", e.Source)
		}
	}
	if !sawToConfig {
		t.Error("expected a to_config=true event for the modified entity")
	}
}

func TestGenerateStaleSCHLogs_NoopWhenNothingModifiedOrLagging(t *testing.T) {
	store := &fakeEventStore{
		events: []model.SCHStatusLogEvent{
			{ID: 1, Service: "hdfs", ConfiguredVersion: versionP("v1"), RunningVersion: versionP("v1")},
		},
	}
	checker := &fakeModificationChecker{modified: map[string]bool{}}

	events, err := GenerateStaleSCHLogs(context.Background(), store, checker, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no stale events, got %v", events)
	}
	if len(store.events) != 1 {
		t.Errorf("expected the store to be untouched, got %d events", len(store.events))
	}
}

func TestGenerateStaleSCHLogs_RunningVersionLagIsRestartStale(t *testing.T) {
	store := &fakeEventStore{
		events: []model.SCHStatusLogEvent{
			{ID: 1, Service: "hdfs", ConfiguredVersion: versionP("v2"), RunningVersion: versionP("v1")},
		},
	}
	checker := &fakeModificationChecker{modified: map[string]bool{}}

	events, err := GenerateStaleSCHLogs(context.Background(), store, checker, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawToRestart bool
	for _, e := range events {
		if e.ToRestart != nil && *e.ToRestart {
			sawToRestart = true
		}
	}
	if !sawToRestart {
		t.Error("expected a to_restart=true event when running trails configured version")
	}
}

func TestGenerateStaleSCHLogs_IsIdempotentAcrossRepeatedCalls(t *testing.T) {
	store := &fakeEventStore{
		events: []model.SCHStatusLogEvent{
			{ID: 1, Service: "hdfs", ConfiguredVersion: versionP("v2"), RunningVersion: versionP("v1")},
		},
	}
	checker := &fakeModificationChecker{modified: map[string]bool{"hdfs": true}}

	first, err := GenerateStaleSCHLogs(context.Background(), store, checker, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected the first pass to emit stale events")
	}

	second, err := GenerateStaleSCHLogs(context.Background(), store, checker, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected the second pass to emit nothing once already flagged, got %v", second)
	}
}
