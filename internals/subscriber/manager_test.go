package subscriber

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zaichik/internals/clock"
	"zaichik/internals/protocol"
	"zaichik/internals/registry"
)

func newManager(t *testing.T, reg *registry.Registry) (*Manager, *bytes.Buffer, chan protocol.Frame, context.CancelFunc) {
	t.Helper()
	var out bytes.Buffer
	enc := protocol.NewEncoder(&out)
	log := logrus.New()
	log.Out = nil
	entry := log.WithField("test", t.Name())

	m := New("conn-1", reg, enc, entry, time.Now)
	ctx, cancel := context.WithCancel(context.Background())
	commands := make(chan protocol.Frame)

	go m.Run(ctx, commands)

	return m, &out, commands, cancel
}

func readFrames(t *testing.T, buf *bytes.Buffer) []protocol.Frame {
	t.Helper()
	dec := protocol.NewDecoder(buf)
	var frames []protocol.Frame
	for {
		f, err := dec.ReadFrame()
		if err != nil {
			break
		}
		frames = append(frames, f)
	}
	return frames
}

func TestEchoSubscribeAfterPublishSeesNothing(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, out, cmdsA, cancelA := newManager(t, reg)
	defer cancelA()
	cmdsA <- protocol.PublishFrame{Name: "t", Payload: []byte("hello")}
	time.Sleep(20 * time.Millisecond)
	frames := readFrames(t, out)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.AckFrame{}, frames[0])

	_, outB, cmdsB, cancelB := newManager(t, reg)
	defer cancelB()
	cmdsB <- protocol.SubscribeFrame{Name: "t"}
	cmdsB <- protocol.CommitFrame{}
	time.Sleep(20 * time.Millisecond)

	framesB := readFrames(t, outB)
	require.Len(t, framesB, 1)
	assert.Equal(t, protocol.AckFrame{}, framesB[0])
}

func TestRetentionDeliversToLateSubscriber(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, outA, cmdsA, cancelA := newManager(t, reg)
	defer cancelA()
	cmdsA <- protocol.CreateTopicFrame{Name: "r", RetentionTTL: 60 * time.Second}
	cmdsA <- protocol.PublishFrame{Name: "r", Payload: []byte("x")}
	time.Sleep(20 * time.Millisecond)
	readFrames(t, outA)

	_, outB, cmdsB, cancelB := newManager(t, reg)
	defer cancelB()
	cmdsB <- protocol.SubscribeFrame{Name: "r"}
	time.Sleep(20 * time.Millisecond)

	frames := readFrames(t, outB)
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.AckFrame{}, frames[0])
	msg, ok := frames[1].(protocol.MessageFrame)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), msg.Payload)
	assert.Equal(t, uint64(1), msg.Sequence)
}

func TestCompactionSuppressesSupersededKey(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, outA, cmdsA, cancelA := newManager(t, reg)
	defer cancelA()
	cmdsA <- protocol.CreateTopicFrame{Name: "c", RetentionTTL: 60 * time.Second, CompactionWindow: 60 * time.Second}
	k1 := "k1"
	k2 := "k2"
	cmdsA <- protocol.PublishFrame{Name: "c", Key: &k1, Payload: []byte("v1")}
	cmdsA <- protocol.PublishFrame{Name: "c", Key: &k1, Payload: []byte("v2")}
	cmdsA <- protocol.PublishFrame{Name: "c", Key: &k2, Payload: []byte("v3")}
	time.Sleep(20 * time.Millisecond)
	readFrames(t, outA)

	_, outB, cmdsB, cancelB := newManager(t, reg)
	defer cancelB()
	cmdsB <- protocol.SubscribeFrame{Name: "c"}
	// Commit only after v2 has been delivered; an earlier Commit is a
	// no-op and would leave v3 gated.
	time.Sleep(20 * time.Millisecond)
	cmdsB <- protocol.CommitFrame{}
	time.Sleep(20 * time.Millisecond)

	frames := readFrames(t, outB)
	// Ack, then v2, then v3 - v1 is superseded.
	require.Len(t, frames, 3)
	assert.Equal(t, protocol.AckFrame{}, frames[0])
	m1 := frames[1].(protocol.MessageFrame)
	assert.Equal(t, []byte("v2"), m1.Payload)
	m2 := frames[2].(protocol.MessageFrame)
	assert.Equal(t, []byte("v3"), m2.Payload)
}

func TestCommitGatingAllowsOneMessageAtATime(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, outA, cmdsA, cancelA := newManager(t, reg)
	defer cancelA()

	_, outB, cmdsB, cancelB := newManager(t, reg)
	defer cancelB()
	cmdsB <- protocol.SubscribeFrame{Name: "t"}
	time.Sleep(10 * time.Millisecond)
	readFrames(t, outB) // Ack

	cmdsA <- protocol.PublishFrame{Name: "t", Payload: []byte("1")}
	cmdsA <- protocol.PublishFrame{Name: "t", Payload: []byte("2")}
	cmdsA <- protocol.PublishFrame{Name: "t", Payload: []byte("3")}
	time.Sleep(20 * time.Millisecond)
	readFrames(t, outA)

	frames := readFrames(t, outB)
	require.Len(t, frames, 1, "only one Message should be delivered before a Commit")
	msg := frames[0].(protocol.MessageFrame)
	assert.Equal(t, []byte("1"), msg.Payload)

	cmdsB <- protocol.CommitFrame{}
	time.Sleep(20 * time.Millisecond)
	frames2 := readFrames(t, outB)
	require.Len(t, frames2, 1)
	msg2 := frames2[0].(protocol.MessageFrame)
	assert.Equal(t, []byte("2"), msg2.Payload)
}

func TestSelfPublishIsDelivered(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, out, cmds, cancel := newManager(t, reg)
	defer cancel()

	cmds <- protocol.SubscribeFrame{Name: "t"}
	cmds <- protocol.PublishFrame{Name: "t", Payload: []byte("m")}
	cmds <- protocol.CommitFrame{}
	time.Sleep(20 * time.Millisecond)

	frames := readFrames(t, out)
	require.GreaterOrEqual(t, len(frames), 2)
	var sawOwnMessage bool
	for _, f := range frames {
		if msg, ok := f.(protocol.MessageFrame); ok && string(msg.Payload) == "m" {
			sawOwnMessage = true
		}
	}
	assert.True(t, sawOwnMessage)
}

func TestDuplicateSubscribeIsIdempotent(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, out, cmds, cancel := newManager(t, reg)
	defer cancel()

	cmds <- protocol.SubscribeFrame{Name: "t"}
	cmds <- protocol.SubscribeFrame{Name: "t"}
	time.Sleep(20 * time.Millisecond)

	frames := readFrames(t, out)
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.AckFrame{}, frames[0])
	assert.Equal(t, protocol.AckFrame{}, frames[1])
}

func TestUnsubscribeUnknownTopicIsNoopAck(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, out, cmds, cancel := newManager(t, reg)
	defer cancel()

	cmds <- protocol.UnsubscribeFrame{Name: "never-subscribed"}
	time.Sleep(20 * time.Millisecond)

	frames := readFrames(t, out)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.AckFrame{}, frames[0])
}

func TestReconfigureRejected(t *testing.T) {
	reg := registry.New(16, clock.New())

	_, out, cmds, cancel := newManager(t, reg)
	defer cancel()

	cmds <- protocol.CreateTopicFrame{Name: "t", RetentionTTL: 5 * time.Second}
	cmds <- protocol.CreateTopicFrame{Name: "t", RetentionTTL: 10 * time.Second}
	time.Sleep(20 * time.Millisecond)

	frames := readFrames(t, out)
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.AckFrame{}, frames[0])
	assert.Equal(t, protocol.TopicAlreadyExistsFrame{Name: "t"}, frames[1])
}
