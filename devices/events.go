package devices

import "time"

// EventKind names a change in a slot's health.
type EventKind int

const (
	EventOpened EventKind = iota
	EventOpenFailed
	EventKilled
	EventFailed
	EventRepaired
	EventRepairFailed
)

var eventNames = []string{
	EventOpened:       "opened",
	EventOpenFailed:   "open-failed",
	EventKilled:       "killed",
	EventFailed:       "failed",
	EventRepaired:     "repaired",
	EventRepairFailed: "repair-failed",
}

func (k EventKind) String() string {
	if int(k) < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, bool) {
	for i, n := range eventNames {
		if n == s {
			return EventKind(i), true
		}
	}
	return 0, false
}

// Event is a single change in a slot's health.
type Event struct {
	Device int
	Path   string
	Kind   EventKind
	Err    error
	Time   time.Time
}

// Recorder receives the events of a table, in order, while the table lock
// is held. Implementations must not call back into the table.
type Recorder interface {
	Record(Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(Event) {}

// RecorderFunc adapts a function to a Recorder.
type RecorderFunc func(Event)

func (f RecorderFunc) Record(e Event) { f(e) }
