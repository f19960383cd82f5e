package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/TOSIT-IO/tdp-lib/internal/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "tdp-lib"
	cfg.Tracing.Exporter = "none"
	cfg.Metrics.ListenAddress = ":0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	logger := telemetry.FromContext(ctx)
	logger.Info("deployment runner started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.NewComponentLogger("runner")
	logger = logger.WithFields(map[string]interface{}{
		"deployment_id": int64(123),
		"entity":        "hdfs_master",
	})

	logger.Debug("starting operation")
	logger.Info("operation succeeded")
	logger.Warn("status log detected stale host")

	err := fmt.Errorf("ssh timeout")
	logger.WithError(err).Error("operation failed")

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ":0"
	cfg.Tracing.Exporter = "none"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Metrics.RecordDeploymentStarted("DAG")

	start := time.Now()
	time.Sleep(5 * time.Millisecond)
	tel.Metrics.RecordDeploymentCompleted("DAG", "SUCCESS", time.Since(start))

	tel.Metrics.RecordOperation("start", "SUCCESS", 2*time.Millisecond)
	tel.Metrics.RecordStatusEventAppended()
	tel.Metrics.RecordPolicyViolation("nonempty", "error")
	tel.Metrics.SetHeldOperations(0)

	fmt.Println("metrics recorded successfully")
	// Output: metrics recorded successfully
}

// Example_eventPublishing demonstrates event publishing and subscription.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false // synchronous for this example
	cfg.Tracing.Exporter = "none"
	cfg.Metrics.ListenAddress = ":0"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("event: %s\n", event.Type)
	}, telemetry.FilterByType(telemetry.EventTypeDeploymentStarted))

	tel.Events.PublishDeploymentStarted(1, "operator")

	// Output: event: deployment.started
}

// Example_deploymentInstrumentation demonstrates instrumenting a deployment.
func Example_deploymentInstrumentation() {
	cfg := telemetry.DefaultConfig()
	cfg.Tracing.Exporter = "none"
	cfg.Metrics.ListenAddress = ":0"
	cfg.Events.EnableAsync = false
	cfg.Logging.Output = "stderr"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx, span := tel.WithDeploymentContext(context.Background(), 9, "OPERATIONS", "operator")
	logger := telemetry.FromContext(ctx)
	logger.Info("executing deployment")
	time.Sleep(2 * time.Millisecond)
	tel.EndDeploymentContext(ctx, span, 9, "OPERATIONS", "SUCCESS", time.Now(), nil)

	fmt.Println("deployment instrumentation complete")
	// Output: deployment instrumentation complete
}
