package packets

import (
	"bytes"
	"encoding/binary"
	"errors"

	corebytes "github.com/patchgate/patchgate/internal/core/bytes"
)

// ErrTruncated is returned when a packet's payload ends before a field the
// format requires. Callers treat it as a protocol violation.
var ErrTruncated = errors.New("packet truncated")

// writer accumulates a packet payload. The header is prepended by frame once
// the payload is complete.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeUint8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) writeUint16(v uint16) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) writeUint32(v uint32) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) writeInt64(v int64)   { _ = binary.Write(&w.buf, binary.LittleEndian, v) }

// writeString writes a u16 byte count followed by the raw UTF-8 bytes.
func (w *writer) writeString(s string) {
	w.writeUint16(uint16(len(s)))
	w.buf.WriteString(s)
}

// writeWideString writes a u16 byte count followed by UTF-16 LE text. The
// client renders notice bodies from wide strings.
func (w *writer) writeWideString(s string) {
	encoded := corebytes.ConvertToUtf16(s)
	w.writeUint16(uint16(len(encoded)))
	w.buf.Write(encoded)
}

// frame prepends the packet header to the accumulated payload.
func (w *writer) frame(packetType uint16) []byte {
	payload := w.buf.Bytes()
	framed := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(framed[0:2], uint16(len(framed)))
	binary.LittleEndian.PutUint16(framed[2:4], packetType)
	copy(framed[HeaderSize:], payload)
	return framed
}

// reader consumes a packet payload field by field, returning ErrTruncated
// rather than panicking since its input comes straight off the network.
type reader struct {
	data []byte
	pos  int
}

// newReader returns a reader positioned at the start of the payload of a
// framed packet. The reader is bounded by the header's declared size, never
// by len(data): a packet declaring more bytes than were provided is
// truncated, and bytes past the declared size (stale data from a reused
// buffer) are unreachable.
func newReader(data []byte) (*reader, error) {
	header, err := PeekHeader(data)
	if err != nil {
		return nil, err
	}
	if int(header.Size) < HeaderSize || int(header.Size) > len(data) {
		return nil, ErrTruncated
	}
	return &reader{data: data[:header.Size], pos: HeaderSize}, nil
}

func (r *reader) readUint8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, ErrTruncated
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) readUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) readInt64() (int64, error) {
	if r.pos+8 > len(r.data) {
		return 0, ErrTruncated
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *reader) readString() (string, error) {
	length, err := r.readUint16()
	if err != nil {
		return "", err
	}
	if r.pos+int(length) > len(r.data) {
		return "", ErrTruncated
	}
	s := string(r.data[r.pos : r.pos+int(length)])
	r.pos += int(length)
	return s, nil
}

func (r *reader) readWideString() (string, error) {
	length, err := r.readUint16()
	if err != nil {
		return "", err
	}
	if r.pos+int(length) > len(r.data) {
		return "", ErrTruncated
	}
	s := corebytes.ConvertFromUtf16(r.data[r.pos : r.pos+int(length)])
	r.pos += int(length)
	return s, nil
}

// PeekHeader decodes the packet header from the first four bytes of data.
func PeekHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrTruncated
	}
	return Header{
		Size: binary.LittleEndian.Uint16(data[0:2]),
		Type: binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}
