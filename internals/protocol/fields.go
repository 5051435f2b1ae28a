package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const maxFieldLen = 16 << 20 // mirrors maxFrameLen; a field can't exceed its frame

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, v []byte) {
	writeUint32(buf, uint32(len(v)))
	buf.Write(v)
}

func writeString(buf *bytes.Buffer, v string) {
	writeBytes(buf, []byte(v))
}

func writeOptString(buf *bytes.Buffer, v *string) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeString(buf, *v)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, fmt.Errorf("protocol: field of %d bytes exceeds limit", n)
	}
	v := make([]byte, n)
	if _, err := io.ReadFull(r, v); err != nil {
		return nil, err
	}
	return v, nil
}

func readString(r *bytes.Reader) (string, error) {
	v, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func readOptString(r *bytes.Reader) (*string, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	s, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
