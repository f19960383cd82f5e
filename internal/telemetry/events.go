package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one item on TDP-lib's in-process event bus.
type Event struct {
	ID           string
	Timestamp    time.Time
	Type         string
	Source       string
	DeploymentID int64
	Operation    string
	Message      string
	Level        string
	Data         map[string]interface{}
}

// Event type constants.
const (
	EventTypeDeploymentStarted   = "deployment.started"
	EventTypeDeploymentCompleted = "deployment.completed"
	EventTypeDeploymentFailed    = "deployment.failed"
	EventTypeOperationStarted    = "operation.started"
	EventTypeOperationCompleted  = "operation.completed"
	EventTypeOperationFailed     = "operation.failed"
	EventTypeOperationHeld       = "operation.held"
	EventTypePolicyViolation     = "policy.violation"
	EventTypeStaleDetected       = "status.stale_detected"
)

// Event level constants.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events.
type EventSubscriber func(event Event)

// EventFilter decides whether an event should be delivered/processed.
type EventFilter func(event Event) bool

// EventPublisher buffers and fans events out to subscribers.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher builds an EventPublisher from cfg. A disabled
// publisher's Publish is a no-op.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{config: cfg, buffer: make(chan Event, cfg.BufferSize), ctx: ctx, cancel: cancel}
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep, nil
}

// Publish delivers event to every subscriber whose filter accepts it.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}
	ep.deliverEvent(event)
	return nil
}

// PublishDeploymentStarted publishes a deployment.started event.
func (ep *EventPublisher) PublishDeploymentStarted(deploymentID int64, user string) error {
	return ep.Publish(Event{
		Type: EventTypeDeploymentStarted, Source: "runner", DeploymentID: deploymentID,
		Message: fmt.Sprintf("deployment %d started by %s", deploymentID, user),
		Level:   EventLevelInfo,
		Data:    map[string]interface{}{"user": user},
	})
}

// PublishDeploymentCompleted publishes a deployment.completed event.
func (ep *EventPublisher) PublishDeploymentCompleted(deploymentID int64, state string, duration time.Duration) error {
	return ep.Publish(Event{
		Type: EventTypeDeploymentCompleted, Source: "runner", DeploymentID: deploymentID,
		Message: fmt.Sprintf("deployment %d completed with state %s", deploymentID, state),
		Level:   EventLevelInfo,
		Data:    map[string]interface{}{"state": state, "duration_seconds": duration.Seconds()},
	})
}

// PublishDeploymentFailed publishes a deployment.failed event.
func (ep *EventPublisher) PublishDeploymentFailed(deploymentID int64, reason string) error {
	return ep.Publish(Event{
		Type: EventTypeDeploymentFailed, Source: "runner", DeploymentID: deploymentID,
		Message: fmt.Sprintf("deployment %d failed: %s", deploymentID, reason),
		Level:   EventLevelError,
		Data:    map[string]interface{}{"reason": reason},
	})
}

// PublishOperationHeld publishes an operation.held event raised by the
// failure cascade.
func (ep *EventPublisher) PublishOperationHeld(deploymentID int64, operation string) error {
	return ep.Publish(Event{
		Type: EventTypeOperationHeld, Source: "runner", DeploymentID: deploymentID, Operation: operation,
		Message: fmt.Sprintf("operation %s held after a prior failure in deployment %d", operation, deploymentID),
		Level:   EventLevelWarning,
	})
}

// PublishPolicyViolation publishes a policy.violation event.
func (ep *EventPublisher) PublishPolicyViolation(deploymentID int64, policyName, reason string) error {
	return ep.Publish(Event{
		Type: EventTypePolicyViolation, Source: "policy", DeploymentID: deploymentID,
		Message: fmt.Sprintf("policy violation: %s - %s", policyName, reason),
		Level:   EventLevelError,
		Data:    map[string]interface{}{"policy": policyName, "reason": reason},
	})
}

// PublishStaleDetected publishes a status.stale_detected event.
func (ep *EventPublisher) PublishStaleDetected(entity string, count int) error {
	return ep.Publish(Event{
		Type: EventTypeStaleDetected, Source: "status",
		Message: fmt.Sprintf("%d stale entit(y/ies) detected, including %s", count, entity),
		Level:   EventLevelWarning,
		Data:    map[string]interface{}{"count": count},
	})
}

// Subscribe registers subscriber, invoked for every event accepted by filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
}

// AddFilter adds a global filter applied before any subscriber sees an event.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher, draining any buffered events first.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}
	ep.cancel()
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel only accepts events at or above minLevel.
func FilterByLevel(minLevel string) EventFilter {
	rank := map[string]int{EventLevelInfo: 0, EventLevelWarning: 1, EventLevelError: 2}
	min := rank[minLevel]
	return func(e Event) bool { return rank[e.Level] >= min }
}

// FilterByType only accepts the given event types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(e Event) bool { return set[e.Type] }
}

// FilterByDeploymentID only accepts events for one deployment.
func FilterByDeploymentID(id int64) EventFilter {
	return func(e Event) bool { return e.DeploymentID == id }
}
