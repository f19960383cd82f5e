package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	// Should never panic even though every collector is nil.
	m.RecordDeploymentStarted("DAG")
	m.RecordDeploymentCompleted("DAG", "SUCCESS", time.Second)
	m.RecordOperation("start", "SUCCESS", time.Millisecond)
	m.RecordStatusEventAppended()
	m.RecordPolicyViolation("nonempty", "error")
	m.SetHeldOperations(3)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)
	if rr.Code != 404 {
		t.Errorf("expected disabled metrics handler to 404, got %d", rr.Code)
	}
}

func TestNewMetrics_EnabledServesRegistry(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, ListenAddress: ":0", Path: "/metrics", Namespace: "tdp_test"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordDeploymentStarted("OPERATIONS")
	m.RecordDeploymentCompleted("OPERATIONS", "SUCCESS", 500*time.Millisecond)
	m.RecordOperation("restart", "SUCCESS", 10*time.Millisecond)
	m.RecordStatusEventAppended()
	m.RecordPolicyViolation("maintenance", "warning")
	m.SetHeldOperations(2)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("expected 200 from metrics handler, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"tdp_test_deployments_started_total", "tdp_test_operations_executed_total", "tdp_test_held_operations"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestTimer_Duration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	if timer.Duration() <= 0 {
		t.Error("expected a positive elapsed duration")
	}
}
