package gguf

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// builder writes little-endian GGUF fixtures.
type builder struct {
	bytes.Buffer
}

func (b *builder) u32(v uint32) { _ = binary.Write(&b.Buffer, binary.LittleEndian, v) }
func (b *builder) u64(v uint64) { _ = binary.Write(&b.Buffer, binary.LittleEndian, v) }

func (b *builder) str(s string) {
	b.u64(uint64(len(s)))
	b.WriteString(s)
}

func (b *builder) kvString(key, val string) {
	b.str(key)
	b.u32(uint32(TypeString))
	b.str(val)
}

func (b *builder) kvU32(key string, val uint32) {
	b.str(key)
	b.u32(uint32(TypeUint32))
	b.u32(val)
}

func fixture() []byte {
	var b builder
	b.WriteString("GGUF")
	b.u32(3)
	b.u64(1) // tensors
	b.u64(5) // kv pairs

	b.kvString("general.architecture", "llama")
	b.kvString("general.name", "tiny chat")
	b.kvU32("llama.context_length", 4096)
	b.kvString("tokenizer.ggml.model", "llama")

	b.str("tokenizer.ggml.tokens")
	b.u32(uint32(TypeArray))
	b.u32(uint32(TypeString))
	b.u64(3)
	for _, tok := range []string{"<s>", "</s>", "hi"} {
		b.str(tok)
	}

	b.str("token_embd.weight")
	b.u32(2)
	b.u64(8)
	b.u64(3)
	b.u32(8) // Q8_0
	b.u64(0)
	return b.Bytes()
}

func TestRead(t *testing.T) {
	t.Parallel()

	data := fixture()
	f, err := Read(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	require.Equal(t, Header{Version: 3, TensorCount: 1, KVCount: 5}, f.Header)
	require.Equal(t, "llama", f.Architecture())
	require.Equal(t, "tiny chat", f.Name())
	require.Equal(t, 4096, f.ContextLength())
	require.Equal(t, "llama", f.TokenizerModel())

	toks, ok := GetArray[string](f.KV, "tokenizer.ggml.tokens")
	require.True(t, ok)
	require.Equal(t, []string{"<s>", "</s>", "hi"}, toks)

	require.Len(t, f.Tensors, 1)
	require.Equal(t, "token_embd.weight", f.Tensors[0].Name)
	require.Equal(t, uint64(24), f.Tensors[0].Elements())
	require.Equal(t, "Q8_0", f.Tensors[0].Type.String())
	require.Zero(t, f.DataOffset%f.Alignment)
	require.GreaterOrEqual(t, f.DataOffset, uint64(len(data)))
}

func TestOpenMapsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tiny.gguf")
	require.NoError(t, os.WriteFile(path, fixture(), 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, path, f.Path)
	require.Equal(t, "llama", f.Architecture())
	require.Equal(t, []string{
		"general.architecture",
		"general.name",
		"llama.context_length",
		"tokenizer.ggml.model",
		"tokenizer.ggml.tokens",
	}, f.Keys())
}

func TestReadRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := Read(bytes.NewReader([]byte("GGML\x03\x00\x00\x00")), 8)
	require.ErrorIs(t, err, ErrNotGGUF)

	data := fixture()
	for _, n := range []int{3, 10, 40, len(data) - 1} {
		_, err := Read(bytes.NewReader(data[:n]), int64(n))
		require.Errorf(t, err, "truncated at %d", n)
	}
}

// header starts a version 3 file and pads it with zeros to size bytes.
func header(tensors, kvs uint64, size int, body func(*builder)) []byte {
	var b builder
	b.WriteString("GGUF")
	b.u32(3)
	b.u64(tensors)
	b.u64(kvs)
	if body != nil {
		body(&b)
	}
	if pad := size - b.Len(); pad > 0 {
		b.Write(make([]byte, pad))
	}
	return b.Bytes()
}

func TestReadRejectsInflatedCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"tensor count", header(20_000_000, 0, 1<<20, nil)},
		{"kv count", header(0, 1<<40, 1<<20, nil)},
		{"counts combined", header(1<<19/minTensorSize, 1<<19/minKVSize+1, 1<<20, nil)},
		{"array length", header(0, 1, 1<<20, func(b *builder) {
			b.str("tokenizer.ggml.scores")
			b.u32(uint32(TypeArray))
			b.u32(uint32(TypeUint64))
			b.u64(1 << 20)
		})},
		{"string length", header(0, 1, 1<<20, func(b *builder) {
			b.u64(1 << 30)
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Read(bytes.NewReader(tt.data), int64(len(tt.data)))
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestReadArrayOfUnknownType(t *testing.T) {
	t.Parallel()

	data := header(0, 1, 256, func(b *builder) {
		b.str("weird")
		b.u32(uint32(TypeArray))
		b.u32(99)
		b.u64(1)
	})
	_, err := Read(bytes.NewReader(data), int64(len(data)))
	require.ErrorContains(t, err, "unsupported array element type 99")
}

// Not parallel: it reads the process-wide allocation counter.
func TestReadInflatedHeaderAllocatesLittle(t *testing.T) {
	data := header(10_000_000, 0, 16<<20, nil)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := Read(bytes.NewReader(data), int64(len(data)))
	runtime.ReadMemStats(&after)

	require.ErrorIs(t, err, ErrCorrupt)
	require.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
}

func TestGetArray(t *testing.T) {
	t.Parallel()

	kv := map[string]Value{
		"ints":      {Type: TypeArray, Value: ArrayValue{ElemType: TypeInt32, Values: []any{int32(1), int32(2)}}},
		"mixed":     {Type: TypeArray, Value: ArrayValue{ElemType: TypeString, Values: []any{"a", 1}}},
		"not_array": {Type: TypeString, Value: "hello"},
	}

	ints, ok := GetArray[int32](kv, "ints")
	require.True(t, ok)
	require.Equal(t, []int32{1, 2}, ints)

	for _, key := range []string{"mixed", "not_array", "missing"} {
		_, ok := GetArray[string](kv, key)
		require.Falsef(t, ok, "key %s", key)
	}
}

func TestGetUint64(t *testing.T) {
	t.Parallel()

	kv := map[string]Value{
		"u8":  {Type: TypeUint8, Value: uint8(7)},
		"i32": {Type: TypeInt32, Value: int32(12)},
		"neg": {Type: TypeInt64, Value: int64(-1)},
		"str": {Type: TypeString, Value: "x"},
	}
	v, ok := GetUint64(kv, "u8")
	require.True(t, ok)
	require.Equal(t, uint64(7), v)
	v, ok = GetUint64(kv, "i32")
	require.True(t, ok)
	require.Equal(t, uint64(12), v)
	_, ok = GetUint64(kv, "neg")
	require.False(t, ok)
	_, ok = GetUint64(kv, "str")
	require.False(t, ok)
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	require.Equal(t, `"llama"`, FormatValue(Value{Type: TypeString, Value: "llama"}, 3))
	require.Equal(t, "4096", FormatValue(Value{Type: TypeUint32, Value: uint32(4096)}, 3))

	arr := Value{Type: TypeArray, Value: ArrayValue{ElemType: TypeString, Values: []any{"a", "b", "c", "d"}}}
	require.Equal(t, `["a", "b", ... 2 more] (string x4)`, FormatValue(arr, 2))
}
