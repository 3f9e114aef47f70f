package models

// Stats is the aggregate view returned by /api/stats.
type Stats struct {
	TotalEvents    int64            `json:"total_events"`
	TotalSessions  int64            `json:"total_sessions"`
	TotalProjects  int64            `json:"total_projects"`
	EventsToday    int64            `json:"events_today"`
	EventsByType   map[string]int64 `json:"events_by_type"`
	RecentSessions []*Session       `json:"recent_sessions"`
}

// SessionOption is the compact session shape used by filter dropdowns.
type SessionOption struct {
	ID        string `json:"id"`
	SourceApp string `json:"source_app"`
	ProjectID string `json:"project_id"`
}

// ProjectOption is the compact project shape used by filter dropdowns.
type ProjectOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilterOptions lists the distinct values available for building filters.
type FilterOptions struct {
	EventTypes []string         `json:"event_types"`
	Projects   []*ProjectOption `json:"projects"`
	Sessions   []*SessionOption `json:"sessions"`
}
