// Package broadcast fans newly persisted events out to live subscribers.
// Delivery is best-effort: a subscriber that cannot keep up is pruned,
// and no failure ever reaches the publisher.
package broadcast

import (
	"sync"

	"github.com/joescharf/beacon/internal/models"
)

// subscriberBuffer bounds the per-subscriber queue. A subscriber whose
// queue is full is treated as dead and pruned.
const subscriberBuffer = 64

// Subscriber is one live consumer of the event stream.
type Subscriber struct {
	ch chan *models.Event
}

// C returns the subscriber's event channel. Events arrive in publish
// order; the channel is closed when the subscriber is pruned or
// unregistered.
func (s *Subscriber) C() <-chan *models.Event {
	return s.ch
}

// Registry tracks live subscribers. All methods are safe for concurrent
// use from many subscriber lifecycles and the publish path.
type Registry struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[*Subscriber]struct{})}
}

// Register adds a new subscriber. It receives only events published after
// registration; there is no replay.
func (r *Registry) Register() *Subscriber {
	sub := &Subscriber{ch: make(chan *models.Event, subscriberBuffer)}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	return sub
}

// Unregister removes a subscriber and closes its channel. Unregistering
// twice, or a subscriber already pruned by Publish, is a no-op.
func (r *Registry) Unregister(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub]; ok {
		delete(r.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers the event to every registered subscriber. Delivery is
// independent per subscriber: one full queue does not block the others,
// it just gets that subscriber pruned.
func (r *Registry) Publish(e *models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs {
		select {
		case sub.ch <- e:
		default:
			delete(r.subs, sub)
			close(sub.ch)
		}
	}
}

// Len reports the number of live subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
