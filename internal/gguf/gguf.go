// Package gguf reads the header, metadata and tensor directory of GGUF model
// files. Tensor payloads are never touched: chatloop only needs the metadata
// to validate a model before handing it to an inference backend and to
// describe it in `chatloop inspect`.
package gguf

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

const magic = "GGUF"

// Smallest encodings of a metadata pair (empty key, one-byte value) and of a
// tensor directory entry (empty name, no dimensions). Counts in the header are
// checked against them before anything is allocated.
const (
	minKVSize     = 8 + 4 + 1
	minTensorSize = 8 + 4 + 4 + 8

	// maxPrealloc caps capacity hints taken from the file.
	maxPrealloc = 1 << 12
)

var (
	// ErrNotGGUF is returned when a file does not start with the GGUF magic.
	ErrNotGGUF = errors.New("not a GGUF file")
	// ErrCorrupt is returned when a count in the file exceeds what the
	// remaining bytes could hold.
	ErrCorrupt = errors.New("corrupt GGUF file")
)

type ValueType uint32

const (
	TypeUint8 ValueType = iota
	TypeInt8
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeFloat32
	TypeBool
	TypeString
	TypeArray
	TypeUint64
	TypeInt64
	TypeFloat64
)

var valueTypeNames = [...]string{"u8", "i8", "u16", "i16", "u32", "i32", "f32", "bool", "string", "array", "u64", "i64", "f64"}

// width is the smallest encoded size of one value of type t.
func (t ValueType) width() (uint64, bool) {
	switch t {
	case TypeUint8, TypeInt8, TypeBool:
		return 1, true
	case TypeUint16, TypeInt16:
		return 2, true
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4, true
	case TypeUint64, TypeInt64, TypeFloat64, TypeString:
		return 8, true
	}
	return 0, false
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// TensorType is the ggml storage type of a tensor.
type TensorType uint32

var tensorTypeNames = map[TensorType]string{
	0: "F32", 1: "F16", 2: "Q4_0", 3: "Q4_1", 6: "Q5_0", 7: "Q5_1", 8: "Q8_0", 9: "Q8_1",
	10: "Q2_K", 11: "Q3_K", 12: "Q4_K", 13: "Q5_K", 14: "Q6_K", 15: "Q8_K",
	16: "I8", 17: "I16", 18: "I32", 19: "I64", 20: "F64", 30: "BF16",
}

func (t TensorType) String() string {
	if s, ok := tensorTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

type TensorInfo struct {
	Name   string
	Dims   []uint64
	Type   TensorType
	Offset uint64
}

// Elements is the product of the tensor dimensions.
func (t TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

type File struct {
	Path       string
	Size       int64
	Header     Header
	KV         map[string]Value
	Tensors    []TensorInfo
	Alignment  uint64
	DataOffset uint64
}

// Open maps path read-only and parses its metadata. The mapping is released
// before Open returns.
func Open(path string) (*File, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer ra.Close()

	f, err := Read(ra, int64(ra.Len()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Read parses GGUF metadata from the first size bytes of ra.
func Read(ra io.ReaderAt, size int64) (*File, error) {
	r := newReader(io.NewSectionReader(ra, 0, size), size)

	m, err := r.readN(4)
	if err != nil {
		return nil, err
	}
	if string(m) != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrNotGGUF, m)
	}

	var h Header
	if h.Version, err = r.readU32(); err != nil {
		return nil, err
	}
	if h.Version < 2 {
		return nil, fmt.Errorf("unsupported GGUF version %d", h.Version)
	}
	if h.TensorCount, err = r.readU64(); err != nil {
		return nil, err
	}
	if h.KVCount, err = r.readU64(); err != nil {
		return nil, err
	}
	if rem := r.remaining(); h.KVCount > rem/minKVSize || h.TensorCount > rem/minTensorSize ||
		h.KVCount*minKVSize+h.TensorCount*minTensorSize > rem {
		return nil, fmt.Errorf("%w: %d kv pairs and %d tensors cannot fit in %d bytes", ErrCorrupt, h.KVCount, h.TensorCount, rem)
	}

	kv := make(map[string]Value, min(h.KVCount, maxPrealloc))
	for i := range h.KVCount {
		key, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		t, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("read value type for %s: %w", key, err)
		}
		v, err := r.readValue(ValueType(t))
		if err != nil {
			return nil, fmt.Errorf("read value for %s: %w", key, err)
		}
		kv[key] = Value{Type: ValueType(t), Value: v}
	}

	tensors := make([]TensorInfo, 0, min(h.TensorCount, maxPrealloc))
	for i := range h.TensorCount {
		ti, err := r.readTensorInfo()
		if err != nil {
			return nil, fmt.Errorf("read tensor %d: %w", i, err)
		}
		tensors = append(tensors, ti)
	}

	alignment := uint64(32)
	if a, ok := GetUint64(kv, "general.alignment"); ok && a > 0 {
		alignment = a
	}

	return &File{
		Size:       size,
		Header:     h,
		KV:         kv,
		Tensors:    tensors,
		Alignment:  alignment,
		DataOffset: align(uint64(r.off), alignment),
	}, nil
}

func (r *reader) readTensorInfo() (TensorInfo, error) {
	name, err := r.readString()
	if err != nil {
		return TensorInfo{}, err
	}
	nDim, err := r.readU32()
	if err != nil {
		return TensorInfo{}, fmt.Errorf("%s: %w", name, err)
	}
	if nDim > 8 {
		return TensorInfo{}, fmt.Errorf("%s: %d dimensions", name, nDim)
	}
	dims := make([]uint64, nDim)
	for d := range dims {
		if dims[d], err = r.readU64(); err != nil {
			return TensorInfo{}, fmt.Errorf("%s dim %d: %w", name, d, err)
		}
	}
	t, err := r.readU32()
	if err != nil {
		return TensorInfo{}, fmt.Errorf("%s type: %w", name, err)
	}
	off, err := r.readU64()
	if err != nil {
		return TensorInfo{}, fmt.Errorf("%s offset: %w", name, err)
	}
	return TensorInfo{Name: name, Dims: dims, Type: TensorType(t), Offset: off}, nil
}

func (r *reader) readValue(t ValueType) (any, error) {
	switch t {
	case TypeUint8:
		return r.readU8()
	case TypeInt8:
		v, err := r.readU8()
		return int8(v), err
	case TypeUint16:
		return r.readU16()
	case TypeInt16:
		v, err := r.readU16()
		return int16(v), err
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		v, err := r.readU32()
		return int32(v), err
	case TypeUint64:
		return r.readU64()
	case TypeInt64:
		v, err := r.readU64()
		return int64(v), err
	case TypeFloat32:
		return r.readF32()
	case TypeFloat64:
		return r.readF64()
	case TypeBool:
		v, err := r.readU8()
		return v != 0, err
	case TypeString:
		return r.readString()
	case TypeArray:
		et, err := r.readU32()
		if err != nil {
			return nil, err
		}
		if ValueType(et) == TypeArray {
			return nil, errors.New("nested arrays are not supported")
		}
		w, ok := ValueType(et).width()
		if !ok {
			return nil, fmt.Errorf("unsupported array element type %d", et)
		}
		n, err := r.readU64()
		if err != nil {
			return nil, err
		}
		if n > r.remaining()/w {
			return nil, fmt.Errorf("%w: %d %s elements cannot fit in %d bytes", ErrCorrupt, n, ValueType(et), r.remaining())
		}
		values := make([]any, 0, min(n, maxPrealloc))
		for range n {
			v, err := r.readValue(ValueType(et))
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: ValueType(et), Values: values}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %d", uint32(t))
	}
}

func align(offset, alignment uint64) uint64 {
	if rem := offset % alignment; rem != 0 {
		return offset + alignment - rem
	}
	return offset
}
