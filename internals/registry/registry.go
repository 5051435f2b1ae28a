// Package registry implements the process-wide map from topic name to
// topic controller. Once inserted, a topic is never removed; lookups
// of an existing topic are far more common than inserts, so the map
// is guarded by a read-biased sync.RWMutex rather than a single
// exclusive lock.
package registry

import (
	"sync"

	"zaichik/internals/clock"
	"zaichik/internals/topic"
	"zaichik/interfaces"
)

// Registry is the process-wide topic name -> controller map.
type Registry struct {
	mu             sync.RWMutex
	topics         map[string]*topic.Controller
	bufferCapacity int
	clock          clock.Clock
}

// New builds an empty registry. bufferCapacity sizes every topic's
// broadcast buffer (§3 of the spec's "implementation-chosen fan-out
// capacity").
func New(bufferCapacity int, c clock.Clock) *Registry {
	return &Registry{
		topics:         make(map[string]*topic.Controller),
		bufferCapacity: bufferCapacity,
		clock:          c,
	}
}

// Create registers a brand-new topic with an explicit config. If the
// name is already registered, it returns the existing controller and
// ok=false — the existing config wins, per the CreateTopic reconfigure
// rejection rule.
func (r *Registry) Create(name string, cfg topic.Config) (interfaces.TopicController, bool) {
	if c, ok := r.lookup(name); ok {
		return c, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.topics[name]; ok {
		return c, false
	}

	c := topic.NewController(name, cfg, r.bufferCapacity, r.clock.Now)
	r.topics[name] = c
	return c, true
}

// GetOrCreate returns the named topic, auto-creating it with cfg
// (normally the zero value: no retention, no compaction) if it
// doesn't exist yet.
func (r *Registry) GetOrCreate(name string, cfg topic.Config) (interfaces.TopicController, bool) {
	if c, ok := r.lookup(name); ok {
		return c, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.topics[name]; ok {
		return c, false
	}

	c := topic.NewController(name, cfg, r.bufferCapacity, r.clock.Now)
	r.topics[name] = c
	return c, true
}

// Get looks up an existing topic without creating one.
func (r *Registry) Get(name string) (interfaces.TopicController, bool) {
	return r.lookup(name)
}

func (r *Registry) lookup(name string) (*topic.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.topics[name]
	return c, ok
}

// TopicStats is a read-only snapshot of one topic's counters, used
// only by the debug dashboard — never by the wire protocol path.
type TopicStats struct {
	Name              string
	RetentionTTLMs    int64
	CompactionWindowMs int64
	RetainedCount     int
	SubscriberCount   int
}

// Stats snapshots every registered topic's counters.
func (r *Registry) Stats() []TopicStats {
	r.mu.RLock()
	names := make([]string, 0, len(r.topics))
	controllers := make([]*topic.Controller, 0, len(r.topics))
	for name, c := range r.topics {
		names = append(names, name)
		controllers = append(controllers, c)
	}
	r.mu.RUnlock()

	stats := make([]TopicStats, len(names))
	for i, c := range controllers {
		cfg := c.Config()
		stats[i] = TopicStats{
			Name:               names[i],
			RetentionTTLMs:     cfg.RetentionTTL.Milliseconds(),
			CompactionWindowMs: cfg.CompactionWindow.Milliseconds(),
			RetainedCount:      c.RetainedCount(),
			SubscriberCount:    c.SubscriberCount(),
		}
	}
	return stats
}
