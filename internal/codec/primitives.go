package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// writer is a small self-describing binary encoder. It never returns errors;
// bytes.Buffer.Write never fails.
type writer struct {
	buf bytes.Buffer
	tmp [binary.MaxVarintLen64]byte
}

func (w *writer) Bytes() []byte { return w.buf.Bytes() }

func (w *writer) WriteUvarint(v uint64) {
	n := binary.PutUvarint(w.tmp[:], v)
	w.buf.Write(w.tmp[:n])
}

func (w *writer) WriteVarint(v int64) {
	n := binary.PutVarint(w.tmp[:], v)
	w.buf.Write(w.tmp[:n])
}

func (w *writer) WriteByte_(b byte) { w.buf.WriteByte(b) }

func (w *writer) WriteBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *writer) WriteFixed64(v uint64) {
	binary.LittleEndian.PutUint64(w.tmp[:8], v)
	w.buf.Write(w.tmp[:8])
}

func (w *writer) WriteFloat64(f float64) {
	w.WriteFixed64(math.Float64bits(f))
}

func (w *writer) WriteBytes(b []byte) {
	w.WriteUvarint(uint64(len(b)))
	w.buf.Write(b)
}

func (w *writer) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) WriteRaw(b []byte) { w.buf.Write(b) }

// reader is the inverse of writer, reading from an in-memory byte slice
// rather than a stream, since every frame is fully decompressed up front.
type reader struct {
	buf []byte
	pos int
}

var errShortRead = errors.New("codec: unexpected end of frame")

func (r *reader) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errShortRead
	}
	r.pos += n
	return v, nil
}

func (r *reader) ReadVarint() (int64, error) {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errShortRead
	}
	r.pos += n
	return v, nil
}

func (r *reader) ReadByte_() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errShortRead
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) ReadBool() (bool, error) {
	b, err := r.ReadByte_()
	return b != 0, err
}

func (r *reader) ReadFixed64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errShortRead
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) ReadFloat64() (float64, error) {
	v, err := r.ReadFixed64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if uint64(r.pos)+n > uint64(len(r.buf)) {
		return nil, errShortRead
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

func (r *reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) ReadRaw(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errShortRead
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) Exhausted() bool { return r.pos >= len(r.buf) }
