// Package topic implements the per-topic controller: the shared
// broadcast buffer, the retention list, the compaction index, and the
// per-subscriber delivery filter.
package topic

import "time"

// Message is immutable once published. Identity is (TopicName, Sequence).
type Message struct {
	TopicName   string
	Key         *string
	Payload     []byte
	PublishedAt time.Time
	Sequence    uint64
}

// Config is a topic's immutable configuration, set once at creation.
type Config struct {
	RetentionTTL     time.Duration
	CompactionWindow time.Duration
}

// Equal reports whether two configs have the same retention and
// compaction settings. Nothing in the broker calls it: reconfigure
// attempts are rejected regardless of whether the new config is equal
// or not (spec: existing config wins).
func (c Config) Equal(other Config) bool {
	return c.RetentionTTL == other.RetentionTTL && c.CompactionWindow == other.CompactionWindow
}
