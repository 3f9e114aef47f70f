package store

import (
	"context"

	"github.com/joescharf/beacon/internal/models"
)

// EventListFilter specifies filters for the global event listing. Zero
// values mean "no filter"; Limit and Offset are applied after filtering.
type EventListFilter struct {
	ProjectID string
	SessionID string
	EventType string
	Limit     int
	Offset    int
}

// Store defines the persistence interface for beacon.
//
// EnsureProject and EnsureSession are idempotent upserts: insert-if-absent
// with first-writer-wins on all fields. They never fail on duplicate keys.
type Store interface {
	// Projects
	EnsureProject(ctx context.Context, id, name string) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)

	// Sessions
	EnsureSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, projectID string, limit, offset int) ([]*models.Session, error)

	// Events
	InsertEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, filter EventListFilter) ([]*models.Event, error)
	ListSessionEvents(ctx context.Context, sessionID string) ([]*models.Event, error)

	// FindSpanOpen returns the timestamp of the earliest committed event
	// with the given span_id and event_type. ok is false when none exists.
	FindSpanOpen(ctx context.Context, spanID, eventType string) (timestamp string, ok bool, err error)

	// Aggregates
	Stats(ctx context.Context, projectID string) (*models.Stats, error)
	FilterOptions(ctx context.Context) (*models.FilterOptions, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
