package topic

import "sync"

// broadcaster is the topic's shared fan-out buffer: a bounded
// multi-producer/multi-consumer channel per receiver, with an
// overflow signal when a receiver falls behind its own buffer
// capacity. A mutex guards the receiver set; message delivery to an
// individual receiver is a non-blocking channel send, so one slow
// subscriber never stalls another.
type broadcaster struct {
	mu        sync.Mutex
	nextID    uint64
	receivers map[uint64]*receiver
	capacity  int
}

type receiver struct {
	messages chan Message
	lagged   chan struct{}
}

func newBroadcaster(capacity int) *broadcaster {
	return &broadcaster{
		receivers: make(map[uint64]*receiver),
		capacity:  capacity,
	}
}

// subscribe registers a fresh receiver and returns its id plus the
// channels the subscription manager will drain.
func (b *broadcaster) subscribe() (id uint64, messages <-chan Message, lagged <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++

	r := &receiver{
		messages: make(chan Message, b.capacity),
		lagged:   make(chan struct{}),
	}
	b.receivers[id] = r

	return id, r.messages, r.lagged
}

// unsubscribe drops a receiver. Its messages channel is closed so any
// forwarder goroutine still draining it observes end-of-stream.
func (b *broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.receivers[id]; ok {
		delete(b.receivers, id)
		close(r.messages)
	}
}

// publish fans msg out to every receiver. A receiver whose buffer is
// full has fallen behind the live stream; it's dropped and signaled
// via its lagged channel rather than blocking the publisher or
// stalling delivery to other receivers.
func (b *broadcaster) publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, r := range b.receivers {
		select {
		case r.messages <- msg:
		default:
			delete(b.receivers, id)
			close(r.lagged)
			close(r.messages)
		}
	}
}

// count returns the number of attached receivers, for dashboard stats.
func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.receivers)
}
