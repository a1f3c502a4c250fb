package pipeline

import "time"

// EventKind identifies the type of event emitted during a build run.
type EventKind string

const (
	// EventBuildStarted is emitted when a run begins.
	EventBuildStarted EventKind = "build.started"

	// EventDefinitionsLoaded is emitted after the workspace snapshot is read.
	EventDefinitionsLoaded EventKind = "definitions.loaded"

	// EventToolGenerated is emitted when a tool's adapter artifacts are written.
	EventToolGenerated EventKind = "tool.generated"

	// EventToolSkipped is emitted when a tool is excluded from the run.
	EventToolSkipped EventKind = "tool.skipped"

	// EventTargetGenerated is emitted when a target's document is shaped.
	EventTargetGenerated EventKind = "target.generated"

	// EventTargetWritten is emitted when a target's document reaches disk.
	EventTargetWritten EventKind = "target.written"

	// EventTargetValidated is emitted after schema validation of a target.
	EventTargetValidated EventKind = "target.validated"

	// EventWarning is emitted once per warning diagnostic.
	EventWarning EventKind = "warning.emitted"

	// EventBuildFinished is emitted when a run completes.
	EventBuildFinished EventKind = "build.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured record of what happened during a run. Events are
// kept small; documents and reports never travel in payloads.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this run.
	RunID string

	// Target is the platform the event concerns (empty for run-level events).
	Target string

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the run started.
	Elapsed time.Duration

	// Payload contains event-specific data.
	Payload map[string]any

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// TraceID is the OpenTelemetry trace ID (hex-encoded, empty when OTel inactive).
	TraceID string

	// SpanID is the OpenTelemetry span ID (hex-encoded, empty when OTel inactive).
	SpanID string
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithTarget sets the target name on the event.
func (e Event) WithTarget(target string) Event {
	e.Target = target
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventHandler is a function type for handling events. Implementations can
// log, store, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// The channel should have sufficient buffer to avoid blocking; events are
// dropped if it is full or unread.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full
		}
	}
}
