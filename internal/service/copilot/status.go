package copilot

// State is the coarse session state shown to the UI.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateListening State = "listening"
	StateSpeaking  State = "speaking"
	StateAnalyzing State = "analyzing"
	StateEnded     State = "ended"
	StateError     State = "error"
)

// Status texts.
const (
	TextIdle      = "Session not started"
	TextStarting  = "Initializing..."
	TextListening = "Live & Listening..."
	TextAnalyzing = "Analyzing answer..."
	TextEnded     = "Session ended."
)

// Status is a snapshot of the session for the UI collaborator.
type Status struct {
	SessionID string  `json:"sessionId,omitempty"`
	State     State   `json:"state"`
	Text      string  `json:"text"`
	Mode      Mode    `json:"mode"`
	Level     float64 `json:"level"`
	Speaking  bool    `json:"speaking"`
	Error     string  `json:"error,omitempty"`
	ErrorKind string  `json:"errorKind,omitempty"`
}

// Running reports whether a session run is in progress.
func (s Status) Running() bool {
	switch s.State {
	case StateStarting, StateListening, StateSpeaking, StateAnalyzing:
		return true
	default:
		return false
	}
}
