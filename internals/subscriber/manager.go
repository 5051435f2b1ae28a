// Package subscriber implements the per-connection subscription
// manager: the cooperative task that multiplexes the connection's
// command stream with its dynamic set of topic subscriptions, applies
// the per-subscriber delivery filter, owns the socket write side, and
// enforces commit-gated flow control.
package subscriber

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"zaichik/internals/protocol"
	"zaichik/internals/topic"
	"zaichik/interfaces"
)

// entry bundles everything the manager tracks for one active
// subscription: the topic handle, the per-subscriber filter state,
// and the config captured at subscribe time (topics never
// reconfigure, so this never goes stale).
type entry struct {
	name   string
	handle *topic.Subscription
	filter *topic.Filter
}

// event is what a per-subscription forwarder goroutine hands back to
// the manager: either a candidate message to run through the filter,
// or a lag notification.
type event struct {
	entry  *entry
	msg    topic.Message
	lagged bool
}

// Manager is one connection's subscription manager. It is not safe
// for concurrent use from outside its own Run loop; the encoder it
// wraps is the connection's sole writer.
type Manager struct {
	connID   string
	registry interfaces.Registry
	enc      *protocol.Encoder
	log      *logrus.Entry
	now      func() time.Time

	subs   map[string]*entry
	events chan event
	done   chan struct{}

	awaitingCommit bool
}

// New builds a subscription manager for one accepted connection. now
// is the single monotonic time source every subscription's filter on
// this connection compares message ages against.
func New(connID string, reg interfaces.Registry, enc *protocol.Encoder, log *logrus.Entry, now func() time.Time) *Manager {
	return &Manager{
		connID:   connID,
		registry: reg,
		enc:      enc,
		log:      log,
		now:      now,
		subs:     make(map[string]*entry),
		events:   make(chan event),
		done:     make(chan struct{}),
	}
}

// Run drives the manager's main loop until ctx is canceled (the
// reader side hit EOF or a fatal decode error) or the client sends
// Close. It always leaves the connection's subscriptions torn down
// and the encoder flushed before returning.
func (m *Manager) Run(ctx context.Context, commands <-chan protocol.Frame) {
	defer m.cleanup()
	// Closed before cleanup unsubscribes, so a forwarder blocked
	// sending to m.events (nobody left to drain it once this loop
	// exits) is released instead of leaking.
	defer close(m.done)

	for {
		if m.awaitingCommit {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-commands:
				if !ok {
					return
				}
				if !m.handleCommand(f) {
					return
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case f, ok := <-commands:
			if !ok {
				return
			}
			if !m.handleCommand(f) {
				return
			}
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

// handleCommand processes one client command, replying as the
// protocol's command/response contract requires. It returns false if
// the connection should now be torn down (the client sent Close).
func (m *Manager) handleCommand(f protocol.Frame) bool {
	switch v := f.(type) {
	case protocol.CreateTopicFrame:
		m.onCreateTopic(v)
	case protocol.SubscribeFrame:
		m.onSubscribe(v)
	case protocol.UnsubscribeFrame:
		m.onUnsubscribe(v)
	case protocol.PublishFrame:
		m.onPublish(v)
	case protocol.CommitFrame:
		m.onCommit()
	case protocol.CloseFrame:
		return false
	default:
		m.log.WithField("frame", f).Warn("subscriber: unexpected frame on command stream")
	}
	return true
}

func (m *Manager) onCreateTopic(v protocol.CreateTopicFrame) {
	cfg := topic.Config{RetentionTTL: v.RetentionTTL, CompactionWindow: v.CompactionWindow}
	_, created := m.registry.Create(v.Name, cfg)
	if created {
		m.write(protocol.AckFrame{})
		return
	}
	m.write(protocol.TopicAlreadyExistsFrame{Name: v.Name})
}

func (m *Manager) onSubscribe(v protocol.SubscribeFrame) {
	if _, already := m.subs[v.Name]; already {
		m.write(protocol.AckFrame{})
		return
	}

	controller, _ := m.registry.GetOrCreate(v.Name, topic.Config{})
	handle := controller.Subscribe()
	filter := topic.NewFilter(controller.Config(), m.now)

	e := &entry{name: v.Name, handle: handle, filter: filter}
	m.subs[v.Name] = e

	go m.forward(e)

	m.write(protocol.AckFrame{})
}

func (m *Manager) onUnsubscribe(v protocol.UnsubscribeFrame) {
	if e, ok := m.subs[v.Name]; ok {
		m.detach(e)
	}
	m.write(protocol.AckFrame{})
}

func (m *Manager) onPublish(v protocol.PublishFrame) {
	controller, _ := m.registry.GetOrCreate(v.Name, topic.Config{})
	controller.Publish(v.Key, v.Payload)
	m.write(protocol.AckFrame{})
}

func (m *Manager) onCommit() {
	m.awaitingCommit = false
}

// handleEvent applies the per-subscriber filter to a candidate
// message, or reports a lag overflow. Stale events from a
// subscription that's already been detached are dropped silently —
// this can happen when a forwarder is still draining a retained
// snapshot at the moment Unsubscribe is processed.
func (m *Manager) handleEvent(ev event) {
	current, ok := m.subs[ev.entry.name]
	if !ok || current != ev.entry {
		return
	}

	if ev.lagged {
		m.write(protocol.SubscriptionLaggedFrame{Name: ev.entry.name})
		delete(m.subs, ev.entry.name)
		return
	}

	if !ev.entry.filter.Accept(ev.msg) {
		return
	}

	m.write(protocol.MessageFrame{
		TopicName:   ev.msg.TopicName,
		Key:         ev.msg.Key,
		Payload:     ev.msg.Payload,
		PublishedAt: ev.msg.PublishedAt,
		Sequence:    ev.msg.Sequence,
	})
	m.awaitingCommit = true
}

func (m *Manager) detach(e *entry) {
	delete(m.subs, e.name)
	// Unsubscribe closes the receiver's channel; the forwarder
	// goroutine observes end-of-stream on its own and exits.
	topicController, ok := m.registry.Get(e.name)
	if ok {
		topicController.Unsubscribe(e.handle)
	}
}

// forward drains one subscription's retained snapshot followed by its
// live stream, handing each candidate to the manager through the
// shared events channel. It's the dynamic fan-in the manager needs to
// merge an arbitrary number of subscriptions without polling a
// combinator sized for a fixed input count.
func (m *Manager) forward(e *entry) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("subscriber: recovered panic in forwarder")
		}
	}()

	for _, rm := range e.handle.Retained {
		select {
		case m.events <- event{entry: e, msg: rm}:
		case <-m.done:
			return
		}
	}

	for {
		select {
		case <-m.done:
			return
		case msg, ok := <-e.handle.Messages:
			if !ok {
				select {
				case <-e.handle.Lagged:
					select {
					case m.events <- event{entry: e, lagged: true}:
					case <-m.done:
					}
				default:
					// Closed by an ordinary Unsubscribe, not a lag overflow.
				}
				return
			}
			select {
			case m.events <- event{entry: e, msg: msg}:
			case <-m.done:
				return
			}
		}
	}
}

// cleanup drops every active subscription and flushes the encoder, so
// Close's graceful-drain contract holds regardless of why Run
// returned.
func (m *Manager) cleanup() {
	for _, e := range m.subs {
		if controller, ok := m.registry.Get(e.name); ok {
			controller.Unsubscribe(e.handle)
		}
	}
	m.subs = nil

	if err := m.enc.Flush(); err != nil {
		m.log.WithError(err).Debug("subscriber: flush on cleanup failed")
	}
}

func (m *Manager) write(f protocol.Frame) {
	if err := m.enc.WriteFrame(f); err != nil {
		m.log.WithError(err).Debug("subscriber: write failed")
		return
	}
	if err := m.enc.Flush(); err != nil {
		m.log.WithError(err).Debug("subscriber: flush failed")
	}
}
