package stream

// EventKind classifies inbound stream events.
type EventKind int

const (
	// EventAudio carries decoded samples.
	EventAudio EventKind = iota
	// EventEndOfStream is the client's explicit end marker.
	EventEndOfStream
	// EventFailure reports an unexpected transport error, such as a
	// malformed frame.
	EventFailure
	// EventDisconnect reports that the client went away.
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventEndOfStream:
		return "eos"
	case EventFailure:
		return "failure"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is one item on a session's inbound channel.
type Event struct {
	Kind    EventKind
	Samples []float32
	Err     error
}

// Audio returns an audio event.
func Audio(samples []float32) Event { return Event{Kind: EventAudio, Samples: samples} }

// EndOfStream returns an end-of-stream event.
func EndOfStream() Event { return Event{Kind: EventEndOfStream} }

// Failure returns a failure event.
func Failure(err error) Event { return Event{Kind: EventFailure, Err: err} }

// Disconnect returns a disconnect event.
func Disconnect() Event { return Event{Kind: EventDisconnect} }
