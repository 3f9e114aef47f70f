// Package ingest turns raw producer events into durable, correctly-linked
// records: it resolves the owning project and session, derives span
// durations for close events, persists the event, and hands the committed
// row to the broadcast registry.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joescharf/beacon/internal/broadcast"
	"github.com/joescharf/beacon/internal/models"
	"github.com/joescharf/beacon/internal/store"
)

// Pipeline is the single entry point for all writes.
type Pipeline struct {
	store    store.Store
	registry *broadcast.Registry
}

// NewPipeline creates a pipeline over the given store and registry.
func NewPipeline(s store.Store, r *broadcast.Registry) *Pipeline {
	return &Pipeline{store: s, registry: r}
}

// Ingest processes one event: resolve project and session, compute the
// span duration when applicable, persist, then publish to live
// subscribers. Any failure before the insert commits surfaces to the
// caller and nothing is broadcast; publish itself can never fail the
// caller.
func (p *Pipeline) Ingest(ctx context.Context, in *models.EventCreate) (*models.Event, error) {
	projectID := Slugify(in.ProjectDir)
	if err := p.store.EnsureProject(ctx, projectID, ProjectName(in.ProjectDir)); err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}

	model, agentType := metadataHints(in.Metadata)
	sessionMeta, _ := json.Marshal(map[string]string{
		"model":      model,
		"agent_type": agentType,
	})
	sess := &models.Session{
		ID:        in.SessionID,
		ProjectID: projectID,
		SourceApp: in.SourceApp,
		Model:     model,
		AgentType: agentType,
		Metadata:  sessionMeta,
	}
	if err := p.store.EnsureSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	// Duration is derived against already-committed rows only, before the
	// close event itself is persisted, so a close never matches itself or
	// another close.
	var durationMs *int64
	if openType, isClose := spanOpenType[in.EventType]; isClose && in.SpanID != "" {
		var err error
		durationMs, err = p.computeDuration(ctx, openType, in.SpanID, in.Timestamp)
		if err != nil {
			return nil, err
		}
	}

	event := &models.Event{
		SessionID:    in.SessionID,
		ProjectID:    projectID,
		EventType:    in.EventType,
		Timestamp:    in.Timestamp,
		SpanID:       in.SpanID,
		ParentSpanID: in.ParentSpanID,
		Name:         in.Name,
		Input:        in.Input,
		Output:       in.Output,
		Metadata:     in.Metadata,
		Level:        in.Level,
		DurationMs:   durationMs,
	}
	if err := p.store.InsertEvent(ctx, event); err != nil {
		return nil, err
	}

	p.registry.Publish(event)

	return event, nil
}

// metadataHints extracts the two optional keys the resolver inspects from
// caller metadata. Metadata is caller-controlled and need not be an
// object, let alone contain these keys.
func metadataHints(raw json.RawMessage) (model, agentType string) {
	if len(raw) == 0 {
		return "", ""
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", ""
	}
	model, _ = m["model"].(string)
	agentType, _ = m["agent_type"].(string)
	return model, agentType
}
