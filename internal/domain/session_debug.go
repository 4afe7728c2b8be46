package domain

// Transition reasons reported while folding an event stream
const (
	ReasonSessionBreak  = "session_break"
	ReasonImplicitRoot  = "implicit_root"
	ReasonContinuation  = "continuation"
	ReasonSiblingReopen = "sibling_reopen"
	ReasonRestart       = "restart"
	ReasonUnattributed  = "unattributed_end"
	ReasonImplicitStart = "implicit_start"
)

// SessionDebug is an optional verbose event describing session transitions.
type SessionDebug struct {
	Type          string  `json:"type"` // session_debug
	SchemaVersion int     `json:"schemaVersion"`
	Identity      string  `json:"identity,omitempty"`
	Reason        string  `json:"reason"`
	Event         string  `json:"event"`
	EventType     string  `json:"event_type"`
	EventMode     string  `json:"event_mode,omitempty"`
	Timestamp     string  `json:"timestamp"`
	GapSeconds    float64 `json:"gap_seconds,omitempty"`
}
