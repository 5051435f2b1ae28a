package topic

import (
	"sync"
	"time"
)

// Subscription is the handle a fresh subscribe() hands back: the
// still-live retained snapshot to replay first, plus the channels
// that carry everything published afterward.
type Subscription struct {
	id       uint64
	topic    *Controller
	Retained []Message
	Messages <-chan Message
	Lagged   <-chan struct{}
}

// Controller owns one topic's state: the retention list, the
// compaction index, the monotonic sequence counter and the shared
// broadcast buffer. publish is serialized against other publishes on
// the same topic by mu; subscribe only needs mu for the instant it
// takes to copy the retention list and register with the broadcaster.
type Controller struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.RWMutex
	nextSeq  uint64
	retained []Message
	compact  map[string]Message

	broadcast *broadcaster
}

// NewController creates a topic controller with immutable config and
// the given broadcast fan-out capacity.
func NewController(name string, cfg Config, bufferCapacity int, now func() time.Time) *Controller {
	return &Controller{
		name:      name,
		config:    cfg,
		now:       now,
		nextSeq:   1,
		compact:   make(map[string]Message),
		broadcast: newBroadcaster(bufferCapacity),
	}
}

// Name returns the topic's name.
func (c *Controller) Name() string { return c.name }

// Config returns the topic's immutable configuration.
func (c *Controller) Config() Config { return c.config }

// Publish assigns a sequence number and timestamp to a new message,
// runs retention eviction and compaction supersession, inserts the
// message into the retention list and compaction index, and
// broadcasts it — all under a single lock so the whole operation is
// atomic with respect to other publishes on this topic.
func (c *Controller) Publish(key *string, payload []byte) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if c.config.RetentionTTL > 0 {
		c.retained = evictExpired(c.retained, now, c.config.RetentionTTL)
	}

	if c.config.CompactionWindow > 0 && key != nil {
		c.retained = evictSuperseded(c.retained, *key, now, c.config.CompactionWindow)
		delete(c.compact, *key)
	}

	msg := Message{
		TopicName:   c.name,
		Key:         key,
		Payload:     payload,
		PublishedAt: now,
		Sequence:    c.nextSeq,
	}
	c.nextSeq++

	if c.config.RetentionTTL > 0 {
		c.retained = append(c.retained, msg)
	}
	if c.config.CompactionWindow > 0 && key != nil {
		c.compact[*key] = msg
	}

	c.broadcast.publish(msg)

	return msg
}

// Subscribe snapshots the current retention list and registers a
// fresh receiver on the broadcast buffer, atomically with respect to
// concurrent publishes: both happen while holding the same read lock
// a publish would need to exclude with its write lock, so no message
// can be missed between the snapshot and the live registration.
func (c *Controller) Subscribe() *Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make([]Message, len(c.retained))
	copy(snapshot, c.retained)

	id, messages, lagged := c.broadcast.subscribe()

	return &Subscription{
		id:       id,
		topic:    c,
		Retained: snapshot,
		Messages: messages,
		Lagged:   lagged,
	}
}

// Unsubscribe detaches a subscription from the broadcast buffer.
func (c *Controller) Unsubscribe(sub *Subscription) {
	c.broadcast.unsubscribe(sub.id)
}

// RetainedCount returns the current size of the retention list, for
// dashboard stats.
func (c *Controller) RetainedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.retained)
}

// SubscriberCount returns the number of attached subscriptions, for
// dashboard stats.
func (c *Controller) SubscriberCount() int {
	return c.broadcast.count()
}

func evictExpired(retained []Message, now time.Time, ttl time.Duration) []Message {
	kept := retained[:0:0]
	for _, m := range retained {
		if now.Sub(m.PublishedAt) <= ttl {
			kept = append(kept, m)
		}
	}
	return kept
}

func evictSuperseded(retained []Message, key string, now time.Time, window time.Duration) []Message {
	kept := retained[:0:0]
	for _, m := range retained {
		if m.Key != nil && *m.Key == key && now.Sub(m.PublishedAt) <= window {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
