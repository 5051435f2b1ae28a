package topic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterSuppressesWithinCompactionWindow(t *testing.T) {
	now := time.Now()
	f := NewFilter(Config{CompactionWindow: 10 * time.Second}, func() time.Time { return now })

	key := "k"
	m1 := Message{Key: &key, PublishedAt: now, Sequence: 1}
	m2 := Message{Key: &key, PublishedAt: now.Add(2 * time.Second), Sequence: 2}

	assert.True(t, f.Accept(m1))
	assert.False(t, f.Accept(m2)) // m2 shares m1's key within the window; the controller broadcasts both live, so the filter is what suppresses the near-duplicate.
}

func TestFilterDropsDuplicateSequence(t *testing.T) {
	now := time.Now()
	f := NewFilter(Config{}, func() time.Time { return now })

	m := Message{Sequence: 5, PublishedAt: now}
	assert.True(t, f.Accept(m))
	assert.False(t, f.Accept(m))
}

func TestFilterDropsExpiredRetainedMessage(t *testing.T) {
	now := time.Now()
	f := NewFilter(Config{RetentionTTL: time.Second}, func() time.Time { return now })

	old := Message{Sequence: 1, PublishedAt: now.Add(-2 * time.Second)}
	assert.False(t, f.Accept(old))
}

func TestFilterDeliversInIncreasingSequenceOrder(t *testing.T) {
	now := time.Now()
	f := NewFilter(Config{}, func() time.Time { return now })

	for seq := uint64(1); seq <= 3; seq++ {
		assert.True(t, f.Accept(Message{Sequence: seq, PublishedAt: now}))
	}
}
