package topic

import "time"

// Filter is the per-subscriber delivery filter described in the
// topic controller's design: it owns the bookkeeping that makes
// compaction, retention expiry and duplicate suppression a property
// of the individual subscriber rather than the topic. Two filters on
// the same topic with different attach times may legitimately accept
// different subsets of the same message stream.
type Filter struct {
	retentionTTL     time.Duration
	compactionWindow time.Duration
	now              func() time.Time

	hasDelivered  bool
	lastDelivered uint64
	deliveredKeys map[string]time.Time
}

// NewFilter builds a filter for a fresh subscription to a topic with
// the given config.
func NewFilter(cfg Config, now func() time.Time) *Filter {
	return &Filter{
		retentionTTL:     cfg.RetentionTTL,
		compactionWindow: cfg.CompactionWindow,
		now:              now,
		deliveredKeys:    make(map[string]time.Time),
	}
}

// Accept decides whether m should be delivered to this subscriber,
// updating the filter's state as a side effect when it does. Checks
// run in the order the topic controller's design specifies:
// compaction suppression, duplicate-sequence suppression, retention
// expiry, then delivery.
func (f *Filter) Accept(m Message) bool {
	if f.compactionWindow > 0 && m.Key != nil {
		if lastPublishedAt, ok := f.deliveredKeys[*m.Key]; ok {
			if absDuration(m.PublishedAt.Sub(lastPublishedAt)) <= f.compactionWindow {
				return false
			}
		}
	}

	if f.hasDelivered && m.Sequence <= f.lastDelivered {
		return false
	}

	if f.retentionTTL > 0 {
		if f.now().Sub(m.PublishedAt) > f.retentionTTL {
			return false
		}
	}

	f.hasDelivered = true
	f.lastDelivered = m.Sequence
	if f.compactionWindow > 0 && m.Key != nil {
		f.deliveredKeys[*m.Key] = m.PublishedAt
	}
	return true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
