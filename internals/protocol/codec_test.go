package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := "k1"
	frames := []Frame{
		CreateTopicFrame{Name: "orders", RetentionTTL: 60 * time.Second, CompactionWindow: 5 * time.Second},
		SubscribeFrame{Name: "orders"},
		UnsubscribeFrame{Name: "orders"},
		PublishFrame{Name: "orders", Key: &key, Payload: []byte("hello")},
		PublishFrame{Name: "orders", Key: nil, Payload: []byte("hello")},
		CommitFrame{},
		CloseFrame{},
		AckFrame{},
		TopicAlreadyExistsFrame{Name: "orders"},
		MessageFrame{TopicName: "orders", Key: &key, Payload: []byte("v"), PublishedAt: time.UnixMilli(1700000000123), Sequence: 42},
		SubscriptionLaggedFrame{Name: "orders"},
		ProtocolErrorFrame{Code: 1, Text: "malformed frame"},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, f := range frames {
		require.NoError(t, enc.WriteFrame(f))
	}
	require.NoError(t, enc.Flush())

	dec := NewDecoder(&buf)
	for _, want := range frames {
		got, err := dec.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeMultiplexedStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.WriteFrame(PublishFrame{Name: "topic1", Payload: []byte{1, 2, 3}}))
	require.NoError(t, enc.WriteFrame(PublishFrame{Name: "topic2", Payload: []byte{4, 5}}))
	require.NoError(t, enc.Flush())

	dec := NewDecoder(&buf)
	f1, err := dec.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, PublishFrame{Name: "topic1", Payload: []byte{1, 2, 3}}, f1)

	f2, err := dec.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, PublishFrame{Name: "topic2", Payload: []byte{4, 5}}, f2)
}

func TestDecodeUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 1, 0xFF})

	dec := NewDecoder(&buf)
	_, err := dec.ReadFrame()
	assert.Error(t, err)
}

func TestDecodeOversizedFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	dec := NewDecoder(&buf)
	_, err := dec.ReadFrame()
	assert.Error(t, err)
}
