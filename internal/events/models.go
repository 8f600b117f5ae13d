package events

// Event types.
const (
	TypeFragment  = "transcript.fragment"
	TypeCompleted = "transcript.completed"
)

// FragmentEvent is published for every committed fragment.
type FragmentEvent struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	Seq       int     `json:"seq"`
	Window    int     `json:"window"`
	Text      string  `json:"text"`
	StartSec  float64 `json:"startSec"`
	EndSec    float64 `json:"endSec"`
	Tail      bool    `json:"tail"`
	Timestamp int64   `json:"timestamp"`
}

// CompletedEvent is published once per session when it ends.
type CompletedEvent struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Transport  string `json:"transport"`
	Engine     string `json:"engine"`
	Outcome    string `json:"outcome"`
	Fragments  int    `json:"fragments"`
	Transcript string `json:"transcript"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  int64  `json:"timestamp"`
}
