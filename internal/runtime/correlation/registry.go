// Package correlation tracks in-flight calls awaiting a reply on a response
// topic. A call is keyed by (topic, correlation id) and is fulfilled at most
// once: whichever of Resolve or Expire reaches it first removes it.
package correlation

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrDuplicate is returned when a key is registered while still pending.
var ErrDuplicate = errors.New("callflow: correlation id already pending on topic")

type key struct {
	topic string
	id    string
}

// Pending is a registered call. Done yields the resolved value exactly once.
type Pending[T any] struct {
	Topic         string
	CorrelationID string
	Deadline      time.Time
	RegisteredAt  time.Time

	slot chan T
}

// Done returns the one-shot result channel. It is buffered, so Resolve never
// blocks on a caller that has stopped waiting.
func (p *Pending[T]) Done() <-chan T {
	return p.slot
}

// Entry is a point-in-time view of a pending call.
type Entry struct {
	Topic         string    `json:"topic"`
	CorrelationID string    `json:"correlation_id"`
	RegisteredAt  time.Time `json:"registered_at"`
	Deadline      time.Time `json:"deadline"`
}

// Registry is safe for concurrent use. The zero value is not usable; call
// NewRegistry.
type Registry[T any] struct {
	mu      sync.Mutex
	pending map[key]*Pending[T]
	now     func() time.Time
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		pending: make(map[key]*Pending[T]),
		now:     time.Now,
	}
}

// Register creates a pending call for (topic, id).
func (r *Registry[T]) Register(topic, id string, deadline time.Time) (*Pending[T], error) {
	k := key{topic: topic, id: id}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[k]; exists {
		return nil, ErrDuplicate
	}
	p := &Pending[T]{
		Topic:         topic,
		CorrelationID: id,
		Deadline:      deadline,
		RegisteredAt:  r.now(),
		slot:          make(chan T, 1),
	}
	r.pending[k] = p
	return p, nil
}

// Resolve fulfils and removes the pending call for (topic, id). It reports
// false when nothing is pending under that key, which covers unknown, late and
// duplicate replies alike.
func (r *Registry[T]) Resolve(topic, id string, value T) bool {
	k := key{topic: topic, id: id}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[k]
	if !ok {
		return false
	}
	delete(r.pending, k)
	// The send happens under the lock so a caller seeing Expire return false
	// always finds the value in the slot.
	p.slot <- value
	return true
}

// Expire removes the pending call without fulfilling it. It reports false
// when the call was already resolved or never registered.
func (r *Registry[T]) Expire(topic, id string) bool {
	k := key{topic: topic, id: id}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[k]; !ok {
		return false
	}
	delete(r.pending, k)
	return true
}

// Len returns the number of pending calls across all topics.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Pending returns the number of pending calls awaiting topic.
func (r *Registry[T]) Pending(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k := range r.pending {
		if k.topic == topic {
			n++
		}
	}
	return n
}

// Snapshot lists pending calls ordered by registration time.
func (r *Registry[T]) Snapshot() []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.pending))
	for _, p := range r.pending {
		entries = append(entries, Entry{
			Topic:         p.Topic,
			CorrelationID: p.CorrelationID,
			RegisteredAt:  p.RegisteredAt,
			Deadline:      p.Deadline,
		})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RegisteredAt.Equal(entries[j].RegisteredAt) {
			return entries[i].CorrelationID < entries[j].CorrelationID
		}
		return entries[i].RegisteredAt.Before(entries[j].RegisteredAt)
	})
	return entries
}
