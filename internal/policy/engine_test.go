package policy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TOSIT-IO/tdp-lib/internal/model"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestNewEngine_LoadsBuiltins(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	expected := []string{"non-empty-plan", "maintenance-window", "production-stop-approval"}
	policies := eng.ListPolicies()
	for _, name := range expected {
		found := false
		for _, p := range policies {
			if p.Name == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected built-in policy %q not loaded", name)
		}
	}
}

func host(h string) *model.HostName {
	hn := model.HostName(h)
	return &hn
}

func TestEvaluatePlan_NonEmptyPlan(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	empty := &model.DeploymentModel{DeploymentType: model.DeploymentTypeDAG}
	result, err := eng.EvaluatePlan(context.Background(), empty, &Context{Timestamp: time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected an empty plan to be denied")
	}

	nonEmpty := &model.DeploymentModel{
		DeploymentType: model.DeploymentTypeDAG,
		Operations:     []model.OperationModel{{OperationOrder: 1, Operation: "hdfs_namenode_install"}},
	}
	result, err = eng.EvaluatePlan(context.Background(), nonEmpty, &Context{Timestamp: time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected a non-empty plan to be allowed, got violations: %+v", result.Violations)
	}
}

func TestEvaluatePlan_MaintenanceWindow(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	d := &model.DeploymentModel{
		DeploymentType: model.DeploymentTypeReconfigure,
		Operations:     []model.OperationModel{{OperationOrder: 1, Operation: "hdfs_namenode_config", Host: host("node1")}},
	}
	pctx := &Context{
		Timestamp:             time.Unix(0, 0),
		MaintenanceWindowOpen: false,
		Metadata:              map[string]any{"protected_services": []any{"hdfs"}},
	}

	result, err := eng.EvaluatePlan(context.Background(), d, pctx)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected RECONFIGURE of a protected service outside the window to be denied")
	}

	pctx.MaintenanceWindowOpen = true
	result, err = eng.EvaluatePlan(context.Background(), d, pctx)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected RECONFIGURE during an open window to be allowed, got: %+v", result.Violations)
	}
}

func TestEvaluatePlan_ProductionStopApproval(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	d := &model.DeploymentModel{
		DeploymentType: model.DeploymentTypeDAG,
		Operations:     []model.OperationModel{{OperationOrder: 1, Operation: "hdfs_namenode_stop", Host: host("node1")}},
	}
	pctx := &Context{Timestamp: time.Unix(0, 0), Environment: "production"}

	result, err := eng.EvaluatePlan(context.Background(), d, pctx)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected an unapproved production stop to be denied")
	}

	pctx.Metadata = map[string]any{"approved": true}
	result, err = eng.EvaluatePlan(context.Background(), d, pctx)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected an approved production stop to be allowed, got: %+v", result.Violations)
	}
}

func TestGate_NilEngineAlwaysAllows(t *testing.T) {
	d := &model.DeploymentModel{DeploymentType: model.DeploymentTypeDAG}
	if err := Gate(context.Background(), nil, d, nil); err != nil {
		t.Fatalf("expected nil engine to always allow, got: %v", err)
	}
}

func TestGate_DeniesEmptyPlan(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	d := &model.DeploymentModel{DeploymentType: model.DeploymentTypeDAG}
	if err := Gate(context.Background(), eng, d, nil); err == nil {
		t.Fatal("expected Gate to deny an empty plan")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng, err := NewEngine(testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := eng.DisablePolicy("non-empty-plan"); err != nil {
		t.Fatalf("DisablePolicy: %v", err)
	}

	empty := &model.DeploymentModel{DeploymentType: model.DeploymentTypeDAG}
	result, err := eng.EvaluatePlan(context.Background(), empty, &Context{Timestamp: time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected a disabled policy to no longer block")
	}

	if err := eng.EnablePolicy("non-empty-plan"); err != nil {
		t.Fatalf("EnablePolicy: %v", err)
	}
	if _, err := eng.GetPolicy("does-not-exist"); err == nil {
		t.Fatal("expected GetPolicy to error for an unknown policy name")
	}
}
