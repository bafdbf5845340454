package vector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Well-known metadata keys.
const (
	KeyChunkID    = "chunk_id"
	KeyDocumentID = "document_id"
	KeyContent    = "content"
)

// Metadata is the structured record stored alongside each vector. Values are limited to the
// JSON data model: nil, bool, string, int64, float64, []any and map[string]any.
type Metadata map[string]any

// NormalizeMetadata deep-copies m into the JSON data model, so that an entry reads back the
// same before and after a persist/load cycle. Integral numbers become int64.
func NormalizeMetadata(m map[string]any) (Metadata, error) {
	if m == nil {
		return Metadata{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return decodeMetadata(raw)
}

func decodeMetadata(raw []byte) (Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if out == nil {
		return Metadata{}, nil
	}
	for k, v := range out {
		out[k] = normalizeValue(v)
	}
	return Metadata(out), nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeValue(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeValue(inner)
		}
		return t
	default:
		return v
	}
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// String returns the string value stored at key, or "".
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the integer value stored at key, or 0.
func (m Metadata) Int(key string) int64 {
	switch n := m[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
