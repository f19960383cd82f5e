package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logging, tracing, metrics, and event-bus
// surfaces TDP-lib's components thread through context.Context.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry builds a Telemetry bundle from cfg, validating it first.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating tracer: %w", err)
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}

	return &Telemetry{Logger: logger, Tracer: tracer, Metrics: metrics, Events: events, config: cfg}, nil
}

// WithContext attaches t to ctx, alongside its logger.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the Telemetry stored by WithContext. If
// none is present, it returns a disabled bundle so callers can use the
// zero-value path without nil checks.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	disabled := DefaultConfig()
	disabled.Tracing.Enabled = false
	disabled.Metrics.Enabled = false
	disabled.Events.Enabled = false
	t, _ := NewTelemetry(disabled)
	return t
}

// WithDeploymentContext starts a deployment span, records the started
// metric/event, and returns the instrumented context plus the span.
func (t *Telemetry) WithDeploymentContext(ctx context.Context, deploymentID int64, deploymentType, user string) (context.Context, trace.Span) {
	ctx, span := t.Tracer.StartDeploymentSpan(ctx, deploymentID, deploymentType)
	t.Metrics.RecordDeploymentStarted(deploymentType)
	_ = t.Events.PublishDeploymentStarted(deploymentID, user)

	logger := t.Logger.WithDeploymentID(deploymentID).WithField("deployment_type", deploymentType)
	ctx = logger.WithContext(ctx)
	logger.Info("deployment started")
	return ctx, span
}

// EndDeploymentContext closes out a deployment span, recording its
// terminal state, duration, and any error.
func (t *Telemetry) EndDeploymentContext(ctx context.Context, span trace.Span, deploymentID int64, deploymentType, state string, start time.Time, err error) {
	duration := time.Since(start)
	t.Metrics.RecordDeploymentCompleted(deploymentType, state, duration)

	logger := FromContext(ctx)
	if err != nil {
		RecordError(span, err)
		_ = t.Events.PublishDeploymentFailed(deploymentID, err.Error())
		logger.WithError(err).Error("deployment failed")
	} else {
		RecordSuccess(span)
		_ = t.Events.PublishDeploymentCompleted(deploymentID, state, duration)
		logger.WithField("state", state).WithField("duration_ms", duration.Milliseconds()).Info("deployment completed")
	}
	span.End()
}

// WithOperationContext starts an operation span and returns the
// instrumented context plus the span.
func (t *Telemetry) WithOperationContext(ctx context.Context, operation, host string) (context.Context, trace.Span) {
	ctx, span := t.Tracer.StartOperationSpan(ctx, operation, host)
	logger := FromContext(ctx).WithOperation(operation).WithHost(host)
	ctx = logger.WithContext(ctx)
	logger.Debug("operation started")
	return ctx, span
}

// EndOperationContext closes out an operation span, recording its
// terminal state, duration, and any error.
func (t *Telemetry) EndOperationContext(ctx context.Context, span trace.Span, action, state string, start time.Time, err error) {
	duration := time.Since(start)
	t.Metrics.RecordOperation(action, state, duration)

	logger := FromContext(ctx)
	if err != nil {
		RecordError(span, err)
		logger.WithError(err).Warn("operation failed")
	} else {
		RecordSuccess(span)
		logger.WithField("duration_ms", duration.Milliseconds()).Debug("operation completed")
	}
	span.End()
}

// Shutdown flushes and stops every telemetry subsystem. Safe to call on
// a disabled Telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(t.Tracer.Shutdown(ctx))
	record(t.Events.Shutdown(ctx))
	return firstErr
}

// StartMetricsServer starts the background Prometheus HTTP server.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}
