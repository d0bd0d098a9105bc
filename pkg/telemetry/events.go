package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one solve-lifecycle event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated solve run, if any.
	RunID string `json:"run_id,omitempty"`

	// Regime is the associated regime, if any.
	Regime int `json:"regime,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`

	// Data carries event-specific values.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeSolveStarted    = "solve.started"
	EventTypeSolveCompleted  = "solve.completed"
	EventTypeSolveFailed     = "solve.failed"
	EventTypeRegimeSolved    = "regime.solved"
	EventTypeWindowSpliced   = "window.spliced"
	EventTypePolicyViolation = "policy.violation"
)

// Event severities.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events.
type EventSubscriber func(event Event)

// EventFilter decides whether an event is delivered.
type EventFilter func(event Event) bool

// EventPublisher buffers and delivers solve-lifecycle events.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a publisher. When disabled, Publish is a
// no-op.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}
	return ep, nil
}

// Publish delivers an event to subscribers. Under async delivery a
// full buffer drops the event with an error rather than blocking the
// solve path.
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

// PublishSolveStarted publishes a solve-started event.
func (ep *EventPublisher) PublishSolveStarted(runID, model, method string) error {
	return ep.Publish(Event{
		Type:    EventTypeSolveStarted,
		RunID:   runID,
		Message: fmt.Sprintf("solve %s started for model %s", runID, model),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"model":  model,
			"method": method,
		},
	})
}

// PublishSolveCompleted publishes a solve-completed event.
func (ep *EventPublisher) PublishSolveCompleted(runID string, regimes int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeSolveCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("solve %s completed over %d regimes", runID, regimes),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"regimes":  regimes,
			"duration": duration.Seconds(),
		},
	})
}

// PublishSolveFailed publishes a solve-failed event.
func (ep *EventPublisher) PublishSolveFailed(runID, class, reason string, regime int) error {
	return ep.Publish(Event{
		Type:    EventTypeSolveFailed,
		RunID:   runID,
		Regime:  regime,
		Message: fmt.Sprintf("solve %s failed: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"class": class,
		},
	})
}

// PublishRegimeSolved publishes a regime-solved event.
func (ep *EventPublisher) PublishRegimeSolved(runID string, regime int, copied bool) error {
	return ep.Publish(Event{
		Type:    EventTypeRegimeSolved,
		RunID:   runID,
		Regime:  regime,
		Message: fmt.Sprintf("regime %d solved", regime),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"copied": copied,
		},
	})
}

// PublishWindowSpliced publishes a window-spliced event.
func (ep *EventPublisher) PublishWindowSpliced(runID string, window []int) error {
	return ep.Publish(Event{
		Type:    EventTypeWindowSpliced,
		RunID:   runID,
		Message: fmt.Sprintf("temporary-policy window of %d regimes spliced", len(window)),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"window": window,
		},
	})
}

// PublishPolicyViolation publishes a guardrail violation event.
func (ep *EventPublisher) PublishPolicyViolation(policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Message: fmt.Sprintf("policy violation: %s - %s", policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe registers a subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: subscriber, filter: filter})
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

// Shutdown drains the buffer and stops delivery.
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

// FilterByLevel allows events at or above a severity.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	min := levels[minLevel]
	return func(event Event) bool {
		return levels[event.Level] >= min
	}
}

// FilterByType allows only the named event types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool {
		return set[event.Type]
	}
}

// FilterByRunID allows only one run's events.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
