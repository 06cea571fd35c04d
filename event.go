package pipeline

// EventKind tags the payload an Event carries. Most kinds are caller-defined
// strings describing whatever data a stage produces (a transcript chunk, an
// action to execute, a status update); EventKindError and EventKindDone are
// reserved because BarrierStage and FanOutStage key off them directly.
type EventKind string

const (
	// EventKindError marks an Event carrying a failure.
	EventKindError EventKind = "error"
	// EventKindDone marks a branch-completion marker.
	EventKindDone EventKind = "done"
	// EventKindWildcard in a stage's declared input/output kinds means it
	// accepts, or may produce, any kind of event.
	EventKindWildcard EventKind = "*"
)

// Event is the unit of data flowing through a pipeline graph: a kind tag
// plus an arbitrary payload. Graph wiring (edge filters, type-compatibility
// validation, barrier/fan-out bookkeeping) only ever inspects Kind; stages
// are free to put whatever they want in Payload.
type Event struct {
	Kind    EventKind
	Payload any
}

// NewEvent tags payload with kind.
func NewEvent(kind EventKind, payload any) Event {
	return Event{Kind: kind, Payload: payload}
}

// NewErrorEvent wraps err as an EventKindError event.
func NewErrorEvent(err error) Event {
	return Event{Kind: EventKindError, Payload: err}
}

// NewDoneEvent returns a branch-completion marker.
func NewDoneEvent() Event {
	return Event{Kind: EventKindDone}
}

// IsError reports whether e carries a failure.
func (e Event) IsError() bool { return e.Kind == EventKindError }

// IsDone reports whether e is a completion marker.
func (e Event) IsDone() bool { return e.Kind == EventKindDone }

// Err returns the wrapped error if e is an error event, else nil.
func (e Event) Err() error {
	if !e.IsError() {
		return nil
	}
	err, _ := e.Payload.(error)
	return err
}
