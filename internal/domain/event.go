package domain

import (
	"strings"
	"time"
)

// EventKind is the closed set of event kinds the reconstruction engine understands
type EventKind int

const (
	// KindOther covers every progress/content event (IMPRESSION, INTERACT, ASSESS, ...)
	KindOther EventKind = iota
	KindStart
	KindEnd
)

// String returns the telemetry name for the kind
func (k EventKind) String() string {
	switch k {
	case KindStart:
		return "START"
	case KindEnd:
		return "END"
	default:
		return "OTHER"
	}
}

// ParseEventKind maps a telemetry event name to its kind. Anything that is
// not START or END is an OTHER event.
func ParseEventKind(name string) EventKind {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "START":
		return KindStart
	case "END":
		return KindEnd
	default:
		return KindOther
	}
}

// TypeApp is the event type of app lifecycle events
const TypeApp = "app"

// Event is one normalized telemetry record
type Event struct {
	Kind      EventKind `json:"-"`
	Name      string    `json:"eid"`            // START, END, IMPRESSION, INTERACT, ASSESS...
	Type      string    `json:"type"`           // app, content, assessment, ...
	Mode      string    `json:"mode,omitempty"` // empty when the event carries no mode
	Timestamp time.Time `json:"timestamp"`      // second resolution

	// Optional payload used for summary statistics
	PageID       string  `json:"page_id,omitempty"`
	PageType     string  `json:"page_type,omitempty"`
	Env          string  `json:"env,omitempty"`
	InteractType string  `json:"interact_type,omitempty"`
	ItemID       string  `json:"item_id,omitempty"`
	Score        float64 `json:"score,omitempty"`
	Pass         bool    `json:"pass,omitempty"`
}

// IsApp reports whether the event is an app-level event
func (e Event) IsApp() bool {
	return e.Type == TypeApp
}

// NormalizeType lower-cases an event type, defaulting to "app" when empty
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return TypeApp
	}
	return t
}

// Identity partitions the event stream into independent reconstruction units
type Identity struct {
	Actor    string `json:"actor"`
	Device   string `json:"device"`
	Channel  string `json:"channel"`
	Platform string `json:"platform"`
}

// Key returns a stable string form of the identity
func (i Identity) Key() string {
	return strings.Join([]string{i.Actor, i.Device, i.Channel, i.Platform}, "|")
}
