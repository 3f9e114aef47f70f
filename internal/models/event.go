package models

import "encoding/json"

// Recognized event types. The set is open: unrecognized values are stored
// verbatim, never rejected.
const (
	EventSessionStart       = "SessionStart"
	EventSessionEnd         = "SessionEnd"
	EventUserPromptSubmit   = "UserPromptSubmit"
	EventPreToolUse         = "PreToolUse"
	EventPostToolUse        = "PostToolUse"
	EventPostToolUseFailure = "PostToolUseFailure"
	EventPermissionRequest  = "PermissionRequest"
	EventNotification       = "Notification"
	EventSubagentStart      = "SubagentStart"
	EventSubagentStop       = "SubagentStop"
	EventStop               = "Stop"
	EventPreCompact         = "PreCompact"
)

// LevelDefault is the severity assigned when the producer supplies none.
const LevelDefault = "DEFAULT"

// Event is an immutable fact about an agent session. Once inserted, its
// identifying fields are never mutated; DurationMs is set exactly once at
// insert time and never retroactively updated.
type Event struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	ProjectID    string          `json:"project_id"`
	EventType    string          `json:"event_type"`
	Timestamp    string          `json:"timestamp"`
	SpanID       string          `json:"span_id,omitempty"`
	ParentSpanID string          `json:"parent_span_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Level        string          `json:"level"`
	DurationMs   *int64          `json:"duration_ms,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// EventCreate is the ingest payload. session_id, project_dir, source_app,
// event_type, and timestamp are required; everything else is optional.
// Input/Output/Metadata are caller-controlled opaque JSON.
type EventCreate struct {
	SessionID    string          `json:"session_id"`
	ProjectDir   string          `json:"project_dir"`
	SourceApp    string          `json:"source_app"`
	EventType    string          `json:"event_type"`
	Timestamp    string          `json:"timestamp"`
	SpanID       string          `json:"span_id,omitempty"`
	ParentSpanID string          `json:"parent_span_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Level        string          `json:"level,omitempty"`
}

// Validate reports the first missing required field, if any.
func (e *EventCreate) Validate() string {
	switch {
	case e.SessionID == "":
		return "session_id"
	case e.ProjectDir == "":
		return "project_dir"
	case e.SourceApp == "":
		return "source_app"
	case e.EventType == "":
		return "event_type"
	case e.Timestamp == "":
		return "timestamp"
	}
	return ""
}
