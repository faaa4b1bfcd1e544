package conversion

import "fmt"

// EventType distinguishes progress from terminal events.
type EventType int

const (
	EventProgress EventType = iota
	EventSuccess
	EventFailure
)

// Event is one element of a conversion's event sequence. A sequence holds
// zero or more Progress events with non-decreasing percentages followed by
// exactly one Success or Failure.
type Event struct {
	Type    EventType
	Percent int
	Err     error
}

// Progress reports the percentage of declared input bytes read so far. The
// value can exceed 100 when the declared length undercounts the input.
func Progress(percent int) Event {
	return Event{Type: EventProgress, Percent: percent}
}

// Success ends a sequence after the output was written and closed.
func Success() Event {
	return Event{Type: EventSuccess}
}

// Failure ends a sequence with the reason.
func Failure(err error) Event {
	return Event{Type: EventFailure, Err: err}
}

// Terminal reports whether e ends its sequence.
func (e Event) Terminal() bool {
	return e.Type != EventProgress
}

func (e Event) String() string {
	switch e.Type {
	case EventProgress:
		return fmt.Sprintf("progress(%d)", e.Percent)
	case EventSuccess:
		return "success"
	default:
		return fmt.Sprintf("failure(%v)", e.Err)
	}
}
