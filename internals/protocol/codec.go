package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// maxFrameLen bounds a single frame body so a corrupt length prefix
// can't make the decoder allocate unbounded memory.
const maxFrameLen = 16 << 20 // 16MiB

// Encoder serializes frames onto a writer using the zaichik wire
// format. It is not safe for concurrent use; the subscription manager
// is the sole writer for a given connection.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder wraps w for frame writes.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// WriteFrame encodes and writes a single frame, prefixed with its
// length.
func (e *Encoder) WriteFrame(f Frame) error {
	var body bytes.Buffer
	body.WriteByte(byte(f.Tag()))

	if err := encodeBody(&body, f); err != nil {
		return err
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(body.Len()))

	if _, err := e.w.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(body.Bytes()); err != nil {
		return err
	}
	return nil
}

// Flush pushes any buffered bytes to the underlying writer. Close's
// graceful-drain semantics rely on this being called before the
// socket is closed.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

func encodeBody(buf *bytes.Buffer, f Frame) error {
	switch v := f.(type) {
	case CreateTopicFrame:
		writeString(buf, v.Name)
		writeUint64(buf, uint64(v.RetentionTTL/time.Millisecond))
		writeUint64(buf, uint64(v.CompactionWindow/time.Millisecond))
	case SubscribeFrame:
		writeString(buf, v.Name)
	case UnsubscribeFrame:
		writeString(buf, v.Name)
	case PublishFrame:
		writeString(buf, v.Name)
		writeOptString(buf, v.Key)
		writeBytes(buf, v.Payload)
	case CommitFrame:
	case CloseFrame:
	case AckFrame:
	case TopicAlreadyExistsFrame:
		writeString(buf, v.Name)
	case UnknownTopicFrame:
		writeString(buf, v.Name)
	case MessageFrame:
		writeString(buf, v.TopicName)
		writeOptString(buf, v.Key)
		writeBytes(buf, v.Payload)
		writeUint64(buf, uint64(v.PublishedAt.UnixMilli()))
		writeUint64(buf, v.Sequence)
	case SubscriptionLaggedFrame:
		writeString(buf, v.Name)
	case ProtocolErrorFrame:
		writeUint16(buf, v.Code)
		writeString(buf, v.Text)
	default:
		return fmt.Errorf("protocol: unknown frame type %T", f)
	}
	return nil
}

// Decoder reads frames off a reader using the zaichik wire format. It
// is not safe for concurrent use; each connection has exactly one
// reader goroutine.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for frame reads.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadFrame blocks until a full frame is available, decodes it, and
// returns it. io.EOF is returned verbatim on a clean close; any other
// error indicates a malformed frame and should be surfaced to the
// client as a ProtocolErrorFrame before closing the connection.
func (d *Decoder) ReadFrame() (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(d.r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n == 0 {
		return nil, fmt.Errorf("protocol: empty frame")
	}
	if n > maxFrameLen {
		return nil, fmt.Errorf("protocol: frame of %d bytes exceeds limit", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, err
	}

	return decodeBody(bytes.NewReader(body))
}

func decodeBody(r *bytes.Reader) (Frame, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch Tag(tagByte) {
	case TagCreateTopic:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		retMs, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		compMs, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return CreateTopicFrame{
			Name:             name,
			RetentionTTL:     time.Duration(retMs) * time.Millisecond,
			CompactionWindow: time.Duration(compMs) * time.Millisecond,
		}, nil

	case TagSubscribe:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		return SubscribeFrame{Name: name}, nil

	case TagUnsubscribe:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		return UnsubscribeFrame{Name: name}, nil

	case TagPublish:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		key, err := readOptString(r)
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return PublishFrame{Name: name, Key: key, Payload: payload}, nil

	case TagCommit:
		return CommitFrame{}, nil

	case TagClose:
		return CloseFrame{}, nil

	case TagAck:
		return AckFrame{}, nil

	case TagTopicAlreadyExists:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		return TopicAlreadyExistsFrame{Name: name}, nil

	case TagUnknownTopic:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		return UnknownTopicFrame{Name: name}, nil

	case TagMessage:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		key, err := readOptString(r)
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		publishedAtMs, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		seq, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return MessageFrame{
			TopicName:   name,
			Key:         key,
			Payload:     payload,
			PublishedAt: time.UnixMilli(int64(publishedAtMs)),
			Sequence:    seq,
		}, nil

	case TagSubscriptionLagged:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		return SubscriptionLaggedFrame{Name: name}, nil

	case TagProtocolError:
		code, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		text, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ProtocolErrorFrame{Code: code, Text: text}, nil

	default:
		return nil, fmt.Errorf("protocol: unknown frame tag 0x%02x", tagByte)
	}
}
