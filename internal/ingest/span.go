package ingest

import (
	"context"
	"time"

	"github.com/joescharf/beacon/internal/models"
)

// spanOpenType maps a span-close event type to the open type it measures
// against. Only these close types ever carry a derived duration.
var spanOpenType = map[string]string{
	models.EventPostToolUse:        models.EventPreToolUse,
	models.EventPostToolUseFailure: models.EventPreToolUse,
	models.EventSubagentStop:       models.EventSubagentStart,
}

// timestampLayouts covers the ISO-8601 variants producers actually send:
// RFC3339 with or without sub-seconds, and naive timestamps without a
// zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// computeDuration finds the earliest committed open event sharing spanID
// and returns the elapsed time to closeTimestamp in whole milliseconds.
// It returns nil when there is no match or either timestamp is
// unparseable; a missing open event is not an error. Negative and zero
// durations are returned as-is (clock skew is not corrected).
func (p *Pipeline) computeDuration(ctx context.Context, openType, spanID, closeTimestamp string) (*int64, error) {
	openTimestamp, ok, err := p.store.FindSpanOpen(ctx, spanID, openType)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	openAt, ok := parseTimestamp(openTimestamp)
	if !ok {
		return nil, nil
	}
	closeAt, ok := parseTimestamp(closeTimestamp)
	if !ok {
		return nil, nil
	}

	ms := closeAt.Sub(openAt).Milliseconds()
	return &ms, nil
}
