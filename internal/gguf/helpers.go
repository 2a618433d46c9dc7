package gguf

import (
	"fmt"
	"sort"
	"strings"
)

func GetString(kv map[string]Value, key string) (string, bool) {
	s, ok := kv[key].Value.(string)
	return s, ok
}

func GetUint64(kv map[string]Value, key string) (uint64, bool) {
	v, ok := kv[key]
	if !ok {
		return 0, false
	}
	switch t := v.Value.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8, int16, int32, int64:
		n := toInt64(t)
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	}
	return 0
}

// GetArray returns the elements of an array value as []T. It fails if the
// key is missing, is not an array, or holds elements of another type.
func GetArray[T any](kv map[string]Value, key string) ([]T, bool) {
	arr, ok := kv[key].Value.(ArrayValue)
	if !ok {
		return nil, false
	}
	out := make([]T, 0, len(arr.Values))
	for _, item := range arr.Values {
		v, ok := item.(T)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// Architecture is general.architecture, e.g. "llama".
func (f *File) Architecture() string {
	s, _ := GetString(f.KV, "general.architecture")
	return s
}

// Name is general.name, falling back to the file path.
func (f *File) Name() string {
	if s, ok := GetString(f.KV, "general.name"); ok && s != "" {
		return s
	}
	return f.Path
}

// ContextLength is the training context declared for the architecture, or 0.
func (f *File) ContextLength() int {
	arch := f.Architecture()
	if arch == "" {
		return 0
	}
	n, _ := GetUint64(f.KV, arch+".context_length")
	return int(n)
}

// TokenizerModel is tokenizer.ggml.model, e.g. "llama" or "gpt2".
func (f *File) TokenizerModel() string {
	s, _ := GetString(f.KV, "tokenizer.ggml.model")
	return s
}

// Keys returns the metadata keys in sorted order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.KV))
	for k := range f.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatValue renders v for display. Arrays longer than limit are shown as
// their first elements and a count.
func FormatValue(v Value, limit int) string {
	arr, ok := v.Value.(ArrayValue)
	if !ok {
		if s, ok := v.Value.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprint(v.Value)
	}
	n := min(len(arr.Values), limit)
	parts := make([]string, 0, n+1)
	for _, e := range arr.Values[:n] {
		parts = append(parts, FormatValue(Value{Type: arr.ElemType, Value: e}, limit))
	}
	if len(arr.Values) > n {
		parts = append(parts, fmt.Sprintf("... %d more", len(arr.Values)-n))
	}
	return fmt.Sprintf("[%s] (%s x%d)", strings.Join(parts, ", "), arr.ElemType, len(arr.Values))
}
