package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vburojevic/wfsum/internal/normalize"
)

// schemaTypes lists every type the schema command knows, in output order
var schemaTypes = []string{"event", "workflow_summary", "run_stats", "session_debug", "validation", "error"}

// SchemaCmd outputs JSON Schema for wfsum inputs and outputs
type SchemaCmd struct {
	Type []string `short:"t" help:"Types to include (event,workflow_summary,run_stats,session_debug,validation,error). Default: all"`
}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	var event map[string]interface{}
	if err := json.Unmarshal(normalize.EventSchema(), &event); err != nil {
		return fmt.Errorf("embedded event schema: %w", err)
	}
	schemas := map[string]interface{}{
		"event":            event,
		"workflow_summary": workflowSummarySchema(),
		"run_stats":        runStatsSchema(),
		"session_debug":    sessionDebugSchema(),
		"validation":       validationSchema(),
		"error":            errorSchema(),
	}

	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		typesToOutput = schemaTypes
	}

	output := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "wfsum Schemas",
		"description": "JSON Schema definitions for wfsum input events and NDJSON output types",
		"definitions": map[string]interface{}{},
	}

	defs := output["definitions"].(map[string]interface{})
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		if schema, ok := schemas[t]; ok {
			defs[t] = schema
		}
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func constProp(value string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "const": value}
}

func summarySchema() map[string]interface{} {
	counts := map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":    prop("string", "Event name"),
				"count": prop("integer", "Occurrences"),
			},
		},
		"description": "Event counts by name, sorted by name",
	}
	return map[string]interface{}{
		"type":  "object",
		"title": "Summary",
		"properties": map[string]interface{}{
			"summary_id":            prop("string", "Unique id of the session or episode"),
			"parent_id":             prop("string", "Id of the enclosing session or episode"),
			"type":                  prop("string", "Workflow type (app, content, ...)"),
			"mode":                  prop("string", "Workflow mode"),
			"start_time":            map[string]interface{}{"type": "string", "format": "date-time"},
			"end_time":              map[string]interface{}{"type": "string", "format": "date-time"},
			"time_diff":             prop("number", "Seconds between first and last event"),
			"time_spent":            prop("number", "Seconds spent, idle gaps excluded"),
			"interact_events_count": prop("integer", "Interactive INTERACT events"),
			"event_count":           prop("integer", "Events accumulated"),
			"events_summary":        counts,
			"page_summary":          prop("array", "Time spent and visits per page"),
			"env_summary":           prop("array", "Time spent and visits per environment"),
			"item_responses":        prop("array", "Assessment responses"),
		},
		"required": []string{"summary_id", "type", "start_time", "end_time", "time_diff", "time_spent", "event_count", "events_summary"},
	}
}

func workflowSummarySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Workflow Summary",
		"description": "One closed session or episode of one identity",
		"properties": map[string]interface{}{
			"type":          constProp("workflow_summary"),
			"schemaVersion": prop("integer", "Record schema version"),
			"mid":           prop("string", "Message id"),
			"syncts":        map[string]interface{}{"type": "string", "format": "date-time", "description": "Emit time"},
			"identity": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"actor":    prop("string", "Actor id"),
					"device":   prop("string", "Device id"),
					"channel":  prop("string", "Channel"),
					"platform": prop("string", "Producer id and pid"),
				},
			},
			"summary": summarySchema(),
		},
		"required": []string{"type", "schemaVersion", "mid", "syncts", "identity", "summary"},
	}
}

func runStatsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Run Statistics",
		"description": "Emitted once at the end of a summarize run",
		"properties": map[string]interface{}{
			"type":          constProp("run_stats"),
			"schemaVersion": prop("integer", "Record schema version"),
			"identities":    prop("integer", "Identities reconstructed"),
			"events":        prop("integer", "Events folded"),
			"malformed":     prop("integer", "Input lines discarded"),
			"dropped":       prop("integer", "Events that could not be attributed"),
			"collapsed":     prop("integer", "Duplicate summaries removed before emit"),
			"summaries":     prop("integer", "Summaries emitted"),
		},
		"required": []string{"type", "schemaVersion", "identities", "events", "summaries"},
	}
}

func sessionDebugSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Session Debug",
		"description": "Notable reconstruction transition (--explain)",
		"properties": map[string]interface{}{
			"type":          constProp("session_debug"),
			"schemaVersion": prop("integer", "Record schema version"),
			"identity":      prop("string", "Identity key"),
			"reason": map[string]interface{}{
				"type": "string",
				"enum": []string{"session_break", "implicit_root", "continuation", "sibling_reopen", "restart", "unattributed_end", "implicit_start"},
			},
			"event":       prop("string", "START, END or OTHER"),
			"event_type":  prop("string", "Event workflow type"),
			"event_mode":  prop("string", "Event workflow mode"),
			"timestamp":   map[string]interface{}{"type": "string", "format": "date-time"},
			"gap_seconds": prop("number", "Silence before the event (session_break only)"),
		},
		"required": []string{"type", "reason", "event", "timestamp"},
	}
}

func validationSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Validation",
		"description": "Result of wfsum validate",
		"properties": map[string]interface{}{
			"type":          constProp("validation"),
			"schemaVersion": prop("integer", "Record schema version"),
			"lines":         prop("integer", "Non-empty lines read"),
			"valid":         prop("integer", "Lines passing the event schema"),
			"invalid":       prop("integer", "Lines failing the event schema"),
		},
		"required": []string{"type", "lines", "valid", "invalid"},
	}
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Error",
		"description": "Error message from wfsum",
		"properties": map[string]interface{}{
			"type":          constProp("error"),
			"schemaVersion": prop("integer", "Record schema version"),
			"code": map[string]interface{}{
				"type":        "string",
				"description": "Error code",
				"enum": []string{
					codeInvalidFlags,
					codeInputOpenFailed,
					codeNormalizeFailed,
					codeUnsortedInput,
					codeReconstructFailed,
					codeOutputFailed,
					codeMetricsWriteFailed,
					codeConfigInvalid,
				},
			},
			"message": prop("string", "Human-readable error description"),
			"hint":    prop("string", "Suggested fix"),
		},
		"required": []string{"type", "code", "message"},
	}
}
