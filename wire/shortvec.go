package wire

import (
	"bytes"
	"errors"
	"io"
)

// Collection lengths are encoded as a compact u16: little-endian groups of
// seven bits with the high bit of each byte flagging continuation.  Values
// fit in at most three bytes.
const maxShortVecValue = 0xffff

// ErrShortVecOverflow is returned when a length cannot be represented as a
// compact u16.
var ErrShortVecOverflow = errors.New("length exceeds compact u16 range")

// appendShortVecLen appends the compact u16 encoding of n to buf.
func appendShortVecLen(buf []byte, n int) ([]byte, error) {
	if n < 0 || n > maxShortVecValue {
		return nil, ErrShortVecOverflow
	}
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b), nil
		}
		buf = append(buf, b|0x80)
	}
}

// shortVecLenSize returns the encoded size of n in bytes.
func shortVecLenSize(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	default:
		return 3
	}
}

// readShortVecLen decodes a compact u16 from r.
func readShortVecLen(r io.ByteReader) (int, error) {
	var value uint32
	for shift := uint(0); shift < 21; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			if value > maxShortVecValue {
				return 0, ErrShortVecOverflow
			}
			return int(value), nil
		}
	}
	return 0, ErrShortVecOverflow
}

// readByteVec decodes a compact u16 length followed by that many bytes.
// A zero length yields a nil slice.
func readByteVec(r *bytes.Reader) ([]byte, error) {
	n, err := readShortVecLen(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
