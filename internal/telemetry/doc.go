// Package telemetry provides TDP-lib's ambient observability stack:
// structured logging (zerolog), metrics (Prometheus), distributed
// tracing (OpenTelemetry), and an in-process event bus, unified behind
// a single Telemetry value threaded through context.Context.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx := tel.WithContext(context.Background())
//
//	start := time.Now()
//	ctx, span := tel.WithDeploymentContext(ctx, deploymentID, "OPERATIONS", "operator")
//	// ... run the deployment ...
//	tel.EndDeploymentContext(ctx, span, deploymentID, "OPERATIONS", "SUCCESS", start, nil)
//
// # Exporters
//
// Tracing supports "stdout" (pretty-printed spans, useful in
// development) and "none" (spans are created but never exported).
// TDP-lib does not ship an OTLP exporter: wiring one in requires a gRPC
// client stack this control plane has no other use for, so it is left
// to an operator who already runs a collector to fork this package.
package telemetry
