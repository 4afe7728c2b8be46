package domain

import "time"

// Summary is the record produced when a reconstructed session or episode closes
type Summary struct {
	SummaryID      string         `json:"summary_id"`
	ParentID       string         `json:"parent_id,omitempty"`
	Type           string         `json:"type"`
	Mode           string         `json:"mode,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	TimeDiff       float64        `json:"time_diff"`  // seconds between start and end
	TimeSpent      float64        `json:"time_spent"` // seconds, idle gaps excluded
	InteractEvents int            `json:"interact_events_count"`
	EventCount     int            `json:"event_count"`
	EventsSummary  []EventCount   `json:"events_summary"`
	PageSummary    []PageSummary  `json:"page_summary,omitempty"`
	EnvSummary     []EnvSummary   `json:"env_summary,omitempty"`
	ItemResponses  []ItemResponse `json:"item_responses,omitempty"`
}

// EventCount is the number of events seen for one event name
type EventCount struct {
	Name  string `json:"id"`
	Count int    `json:"count"`
}

// PageSummary aggregates impressions of one page
type PageSummary struct {
	PageID    string  `json:"id"`
	Type      string  `json:"type,omitempty"`
	Env       string  `json:"env,omitempty"`
	TimeSpent float64 `json:"time_spent"`
	Visits    int     `json:"visit_count"`
}

// EnvSummary aggregates impressions per environment
type EnvSummary struct {
	Env       string  `json:"env"`
	TimeSpent float64 `json:"time_spent"`
	Visits    int     `json:"count"`
}

// ItemResponse is one assessment answer
type ItemResponse struct {
	ItemID    string    `json:"item_id"`
	Score     float64   `json:"score"`
	Pass      bool      `json:"pass"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowSummary is the published envelope around a Summary
type WorkflowSummary struct {
	Type          string   `json:"type"`          // "workflow_summary"
	SchemaVersion int      `json:"schemaVersion"` // 1
	MID           string   `json:"mid"`           // message id
	SyncTS        string   `json:"syncts"`        // ISO8601 emit time
	Identity      Identity `json:"identity"`
	Summary       Summary  `json:"summary"`
}

// NewWorkflowSummary creates a new WorkflowSummary envelope
func NewWorkflowSummary(mid string, syncTS time.Time, id Identity, s Summary) *WorkflowSummary {
	return &WorkflowSummary{
		Type:          "workflow_summary",
		SchemaVersion: 1,
		MID:           mid,
		SyncTS:        syncTS.UTC().Format(time.RFC3339),
		Identity:      id,
		Summary:       s,
	}
}

// RunStats is emitted once after a summarize run
type RunStats struct {
	Type          string `json:"type"` // "run_stats"
	SchemaVersion int    `json:"schemaVersion"`
	Identities    int    `json:"identities"`
	Events        int    `json:"events"`
	Malformed     int    `json:"malformed"`
	Dropped       int    `json:"dropped"`
	Collapsed     int    `json:"collapsed"`
	Summaries     int    `json:"summaries"`
}
