package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/beacon/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// which is also what makes the INSERT OR IGNORE upserts safe under
	// concurrent identical ingest calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// nowISO returns the current UTC time as an ISO-8601 string, the format
// used for every timestamp column.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullable converts an empty string to NULL for optional TEXT columns.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// jsonText converts an opaque JSON payload to its storage form. The store
// keeps these columns as plain TEXT.
func jsonText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// rawJSON converts a stored TEXT column back to a JSON payload. Stored
// text that is not valid JSON is re-encoded as a JSON string rather than
// dropped, so older rows survive producers that sent bare strings.
func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	if json.Valid([]byte(ns.String)) {
		return json.RawMessage(ns.String)
	}
	quoted, err := json.Marshal(ns.String)
	if err != nil {
		return nil
	}
	return quoted
}

// --- Projects ---

func (s *SQLiteStore) EnsureProject(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO projects (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, nowISO(),
	)
	if err != nil {
		return fmt.Errorf("ensure project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p := &models.Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT p.id, p.name, p.created_at, COUNT(s.id)
		FROM projects p
		LEFT JOIN sessions s ON s.project_id = p.id
		WHERE p.id = ?
		GROUP BY p.id`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.SessionCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.created_at, COUNT(s.id)
		FROM projects p
		LEFT JOIN sessions s ON s.project_id = p.id
		GROUP BY p.id
		ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.SessionCount); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Sessions ---

func (s *SQLiteStore) EnsureSession(ctx context.Context, sess *models.Session) error {
	if sess.StartedAt == "" {
		sess.StartedAt = nowISO()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, project_id, source_app, model, agent_type, started_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.SourceApp,
		nullable(sess.Model), nullable(sess.AgentType),
		sess.StartedAt, jsonText(sess.Metadata),
	)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

const sessionColumns = `s.id, s.project_id, s.source_app, s.model, s.agent_type, s.started_at, s.ended_at, s.metadata, COUNT(e.id)`

func scanSession(scan func(dest ...any) error) (*models.Session, error) {
	sess := &models.Session{}
	var model, agentType, endedAt, metadata sql.NullString
	if err := scan(&sess.ID, &sess.ProjectID, &sess.SourceApp,
		&model, &agentType, &sess.StartedAt, &endedAt, &metadata,
		&sess.EventCount); err != nil {
		return nil, err
	}
	sess.Model = model.String
	sess.AgentType = agentType.String
	sess.EndedAt = endedAt.String
	sess.Metadata = rawJSON(metadata)
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		FROM sessions s
		LEFT JOIN events e ON e.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id`, id)

	sess, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, projectID string, limit, offset int) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions s
		LEFT JOIN events e ON e.session_id = s.id`
	var args []any

	if projectID != "" {
		query += " WHERE s.project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY s.id ORDER BY s.started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.scanSessions(ctx, query, args...)
}

func (s *SQLiteStore) scanSessions(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// --- Events ---

func (s *SQLiteStore) InsertEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = newULID()
	}
	if e.Level == "" {
		e.Level = models.LevelDefault
	}
	e.CreatedAt = nowISO()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, session_id, project_id, event_type, timestamp,
			span_id, parent_span_id, name, input, output, metadata, level, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.ProjectID, e.EventType, e.Timestamp,
		nullable(e.SpanID), nullable(e.ParentSpanID), nullable(e.Name),
		jsonText(e.Input), jsonText(e.Output), jsonText(e.Metadata),
		e.Level, e.DurationMs, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const eventColumns = `id, session_id, project_id, event_type, timestamp, span_id, parent_span_id, name, input, output, metadata, level, duration_ms, created_at`

func scanEvent(scan func(dest ...any) error) (*models.Event, error) {
	e := &models.Event{}
	var spanID, parentSpanID, name, input, output, metadata sql.NullString
	var durationMs sql.NullInt64
	if err := scan(&e.ID, &e.SessionID, &e.ProjectID, &e.EventType, &e.Timestamp,
		&spanID, &parentSpanID, &name, &input, &output, &metadata,
		&e.Level, &durationMs, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.SpanID = spanID.String
	e.ParentSpanID = parentSpanID.String
	e.Name = name.String
	e.Input = rawJSON(input)
	e.Output = rawJSON(output)
	e.Metadata = rawJSON(metadata)
	if durationMs.Valid {
		e.DurationMs = &durationMs.Int64
	}
	return e, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventListFilter) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return s.scanEvents(ctx, query, args...)
}

func (s *SQLiteStore) ListSessionEvents(ctx context.Context, sessionID string) ([]*models.Event, error) {
	return s.scanEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE session_id = ? ORDER BY timestamp ASC`,
		sessionID)
}

func (s *SQLiteStore) scanEvents(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) FindSpanOpen(ctx context.Context, spanID, eventType string) (string, bool, error) {
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM events WHERE span_id = ? AND event_type = ? ORDER BY timestamp ASC LIMIT 1`,
		spanID, eventType,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find span open: %w", err)
	}
	return ts, true, nil
}

// --- Aggregates ---

func (s *SQLiteStore) Stats(ctx context.Context, projectID string) (*models.Stats, error) {
	stats := &models.Stats{EventsByType: map[string]int64{}}

	projectFilter := ""
	var projectArgs []any
	if projectID != "" {
		projectFilter = " WHERE project_id = ?"
		projectArgs = []any{projectID}
	}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+projectFilter, projectArgs...).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions"+projectFilter, projectArgs...).Scan(&stats.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&stats.TotalProjects)
	if err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}

	// ISO timestamps sort lexicographically, so the day boundary is a
	// plain string comparison against today's date prefix.
	today := time.Now().UTC().Format("2006-01-02")
	todayQuery := "SELECT COUNT(*) FROM events WHERE timestamp >= ?"
	todayArgs := []any{today}
	if projectID != "" {
		todayQuery += " AND project_id = ?"
		todayArgs = append(todayArgs, projectID)
	}
	if err := s.db.QueryRowContext(ctx, todayQuery, todayArgs...).Scan(&stats.EventsToday); err != nil {
		return nil, fmt.Errorf("count events today: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, COUNT(*) FROM events"+projectFilter+" GROUP BY event_type", projectArgs...)
	if err != nil {
		return nil, fmt.Errorf("count events by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event type count: %w", err)
		}
		stats.EventsByType[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recentQuery := `SELECT ` + sessionColumns + `
		FROM sessions s
		LEFT JOIN events e ON e.session_id = s.id`
	var recentArgs []any
	if projectID != "" {
		recentQuery += " WHERE s.project_id = ?"
		recentArgs = append(recentArgs, projectID)
	}
	recentQuery += " GROUP BY s.id ORDER BY s.started_at DESC LIMIT 10"

	recent, err := s.scanSessions(ctx, recentQuery, recentArgs...)
	if err != nil {
		return nil, err
	}
	stats.RecentSessions = recent

	return stats, nil
}

func (s *SQLiteStore) FilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	opts := &models.FilterOptions{}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT event_type FROM events ORDER BY event_type")
	if err != nil {
		return nil, fmt.Errorf("list event types: %w", err)
	}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan event type: %w", err)
		}
		opts.EventTypes = append(opts.EventTypes, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT id, name FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list project options: %w", err)
	}
	for rows.Next() {
		p := &models.ProjectOption{}
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan project option: %w", err)
		}
		opts.Projects = append(opts.Projects, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT id, source_app, project_id FROM sessions ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list session options: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		so := &models.SessionOption{}
		if err := rows.Scan(&so.ID, &so.SourceApp, &so.ProjectID); err != nil {
			return nil, fmt.Errorf("scan session option: %w", err)
		}
		opts.Sessions = append(opts.Sessions, so)
	}
	return opts, rows.Err()
}
