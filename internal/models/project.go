package models

// Project groups sessions by the filesystem path the agent ran in.
// Its ID is a slug derived from that path, so creating the same path
// twice resolves to the same row.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`

	// SessionCount is denormalized on read; it is not a column.
	SessionCount int `json:"session_count"`
}
