// Package protocol implements the zaichik wire format: a u32
// big-endian length prefix followed by a tagged-union frame body.
// Strings and byte strings are themselves length-prefixed; timestamps
// and durations are fixed-width big-endian milliseconds.
package protocol

import "time"

// Tag identifies the kind of a frame body.
type Tag byte

const (
	TagCreateTopic Tag = 0x01
	TagSubscribe   Tag = 0x02
	TagUnsubscribe Tag = 0x03
	TagPublish     Tag = 0x04
	TagCommit      Tag = 0x05
	TagClose       Tag = 0x06

	TagAck               Tag = 0x81
	TagTopicAlreadyExists Tag = 0x82
	TagUnknownTopic       Tag = 0x83
	TagMessage            Tag = 0x84
	TagSubscriptionLagged Tag = 0x85
	TagProtocolError      Tag = 0x86
)

// Frame is any decoded wire frame, client->broker or broker->client.
type Frame interface {
	Tag() Tag
}

// CreateTopicFrame asks the broker to create a topic with explicit
// retention/compaction settings.
type CreateTopicFrame struct {
	Name              string
	RetentionTTL      time.Duration
	CompactionWindow  time.Duration
}

func (CreateTopicFrame) Tag() Tag { return TagCreateTopic }

// SubscribeFrame attaches the connection to a topic.
type SubscribeFrame struct {
	Name string
}

func (SubscribeFrame) Tag() Tag { return TagSubscribe }

// UnsubscribeFrame detaches the connection from a topic.
type UnsubscribeFrame struct {
	Name string
}

func (UnsubscribeFrame) Tag() Tag { return TagUnsubscribe }

// PublishFrame publishes a message to a topic, optionally keyed for
// compaction.
type PublishFrame struct {
	Name    string
	Key     *string
	Payload []byte
}

func (PublishFrame) Tag() Tag { return TagPublish }

// CommitFrame acknowledges the previous Message delivery and resumes
// data-plane flow.
type CommitFrame struct{}

func (CommitFrame) Tag() Tag { return TagCommit }

// CloseFrame asks the broker to gracefully tear down the connection.
type CloseFrame struct{}

func (CloseFrame) Tag() Tag { return TagClose }

// AckFrame acknowledges a CreateTopic, Subscribe, Unsubscribe or
// Publish command that isn't rejected. Commit and Close get no reply.
type AckFrame struct{}

func (AckFrame) Tag() Tag { return TagAck }

// TopicAlreadyExistsFrame rejects a CreateTopic for a name that's
// already registered.
type TopicAlreadyExistsFrame struct {
	Name string
}

func (TopicAlreadyExistsFrame) Tag() Tag { return TagTopicAlreadyExists }

// UnknownTopicFrame is reserved by the protocol but never emitted,
// since every topic-name command auto-creates on miss.
type UnknownTopicFrame struct {
	Name string
}

func (UnknownTopicFrame) Tag() Tag { return TagUnknownTopic }

// MessageFrame carries one delivered message to a subscriber.
type MessageFrame struct {
	TopicName   string
	Key         *string
	Payload     []byte
	PublishedAt time.Time
	Sequence    uint64
}

func (MessageFrame) Tag() Tag { return TagMessage }

// SubscriptionLaggedFrame reports that a subscription fell behind its
// broadcast buffer and was dropped.
type SubscriptionLaggedFrame struct {
	Name string
}

func (SubscriptionLaggedFrame) Tag() Tag { return TagSubscriptionLagged }

// ProtocolErrorFrame reports a decode/framing failure. The connection
// is closed immediately after it's sent.
type ProtocolErrorFrame struct {
	Code uint16
	Text string
}

func (ProtocolErrorFrame) Tag() Tag { return TagProtocolError }
