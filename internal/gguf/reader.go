package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// reader decodes little-endian GGUF primitives and tracks the offset.
type reader struct {
	r    *bufio.Reader
	off  int64
	size int64
	buf  [8]byte
}

func newReader(rd io.Reader, size int64) *reader {
	return &reader{r: bufio.NewReader(rd), size: size}
}

func (r *reader) remaining() uint64 {
	return uint64(r.size - r.off)
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 || r.off+int64(n) > r.size {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	r.off += int64(n)
	return b, nil
}

func (r *reader) fixed(n int) ([]byte, error) {
	if r.off+int64(n) > r.size {
		return nil, io.ErrUnexpectedEOF
	}
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		return nil, err
	}
	r.off += int64(n)
	return r.buf[:n], nil
}

func (r *reader) readU8() (uint8, error) {
	b, err := r.fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readU16() (uint16, error) {
	b, err := r.fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readF32() (float32, error) {
	u, err := r.readU32()
	return math.Float32frombits(u), err
}

func (r *reader) readF64() (float64, error) {
	u, err := r.readU64()
	return math.Float64frombits(u), err
}

func (r *reader) readString() (string, error) {
	n, err := r.readU64()
	if err != nil {
		return "", err
	}
	if n > r.remaining() {
		return "", fmt.Errorf("%w: string of %d bytes with %d left", ErrCorrupt, n, r.remaining())
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
