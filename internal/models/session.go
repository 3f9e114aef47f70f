package models

import "encoding/json"

// Session represents one agent run. The ID is caller-supplied and opaque;
// re-registering an existing ID is a no-op upsert.
type Session struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	SourceApp string          `json:"source_app"`
	Model     string          `json:"model,omitempty"`
	AgentType string          `json:"agent_type,omitempty"`
	StartedAt string          `json:"started_at"`
	EndedAt   string          `json:"ended_at,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`

	// EventCount is denormalized on read; it is not a column.
	EventCount int `json:"event_count"`

	// Events is populated only by the get-session-with-events query.
	Events []*Event `json:"events,omitempty"`
}
