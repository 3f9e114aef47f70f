package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/beacon/internal/models"
)

func TestRegistry_FanOut(t *testing.T) {
	r := NewRegistry()
	a := r.Register()
	b := r.Register()
	assert.Equal(t, 2, r.Len())

	e := &models.Event{ID: "e1", EventType: models.EventPreToolUse}
	r.Publish(e)

	assert.Same(t, e, <-a.C())
	assert.Same(t, e, <-b.C())
}

func TestRegistry_UnregisterStopsDelivery(t *testing.T) {
	r := NewRegistry()
	a := r.Register()
	b := r.Register()

	r.Unregister(a)
	assert.Equal(t, 1, r.Len())

	// Channel of the removed subscriber is closed.
	_, open := <-a.C()
	assert.False(t, open)

	r.Publish(&models.Event{ID: "e1"})
	got := <-b.C()
	assert.Equal(t, "e1", got.ID)
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.Register()

	r.Unregister(a)
	assert.NotPanics(t, func() { r.Unregister(a) })
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_PruneSlowSubscriber(t *testing.T) {
	r := NewRegistry()
	slow := r.Register()
	fast := r.Register()

	// Fill the slow subscriber's buffer without draining it.
	for i := 0; i <= subscriberBuffer; i++ {
		r.Publish(&models.Event{ID: "flood"})
		// Keep the fast one drained so it never fills.
		<-fast.C()
	}

	// The overflowing subscriber is pruned and its channel closed.
	assert.Equal(t, 1, r.Len())
	drained := 0
	for range slow.C() {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)

	// Publishing still works for the survivor.
	r.Publish(&models.Event{ID: "after"})
	got := <-fast.C()
	assert.Equal(t, "after", got.ID)
}

func TestRegistry_PublishWithNoSubscribers(t *testing.T) {
	r := NewRegistry()
	require.NotPanics(t, func() {
		r.Publish(&models.Event{ID: "e1"})
	})
}
