package engine

import (
	"time"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
	"github.com/chrpow/Wearcast-Pebble/internal/outfit"
)

// EventType identifies what woke the engine loop.
type EventType int

const (
	EventTick EventType = iota
	EventColdStart
	EventRefreshNow
	EventInbound
	EventSendSuccess
	EventSendFailure
	EventReconfigure
)

func (t EventType) String() string {
	switch t {
	case EventTick:
		return "tick"
	case EventColdStart:
		return "cold_start"
	case EventRefreshNow:
		return "refresh_now"
	case EventInbound:
		return "inbound"
	case EventSendSuccess:
		return "send_success"
	case EventSendFailure:
		return "send_failure"
	case EventReconfigure:
		return "reconfigure"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the loop.
type Event struct {
	Type EventType
	// At is the wall-clock time of the event. Zero means now.
	At time.Time
	// Payload is the raw inbound message.
	Payload []byte
	// JSON marks Payload as the JSON dictionary form.
	JSON bool
	// Err carries the failure reason of EventSendFailure.
	Err error
	// SendID tags EventSendSuccess and EventSendFailure with the send they
	// complete. Results for an earlier send are ignored.
	SendID appsync.SendID
	// Settings carries the new presentation settings of EventReconfigure.
	Settings *Settings
	// Reply, if set, receives the dispatch result. Must be buffered.
	Reply chan error
}

// Settings are the parts of Config that can change while the engine runs.
type Settings struct {
	Policy   outfit.Policy
	Clock24h bool
}
