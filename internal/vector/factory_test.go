package vector

import (
	"errors"
	"testing"
)

func TestNewBackend_Flat(t *testing.T) {
	b, err := NewBackend("flat", 3)
	if err != nil {
		t.Fatalf("NewBackend(flat): %v", err)
	}
	if err := b.Add([][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if b.Size() != 1 {
		t.Errorf("Size=%d, want 1", b.Size())
	}
	if b.Type() != "flat" {
		t.Errorf("Type=%q, want flat", b.Type())
	}
}

func TestNewBackend_Linear(t *testing.T) {
	b, err := NewBackend("linear", 3)
	if err != nil {
		t.Fatalf("NewBackend(linear): %v", err)
	}
	if b.Type() != "linear" {
		t.Errorf("Type=%q, want linear", b.Type())
	}
	if b.Dimensions() != 3 {
		t.Errorf("Dimensions=%d, want 3", b.Dimensions())
	}
}

func TestNewBackend_Empty(t *testing.T) {
	// Empty string defaults to flat
	b, err := NewBackend("", 3)
	if err != nil {
		t.Fatalf("NewBackend(''): %v", err)
	}
	if b.Type() != "flat" {
		t.Errorf("Type=%q, want flat", b.Type())
	}
	if b.Size() != 0 {
		t.Errorf("Size=%d, want 0", b.Size())
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend("hnsw", 3)
	if !errors.Is(err, ErrUnknownIndexType) {
		t.Errorf("err=%v, want ErrUnknownIndexType", err)
	}
}

func TestNewBackend_InvalidDimension(t *testing.T) {
	for _, typ := range []string{"flat", "linear"} {
		if _, err := NewBackend(typ, 0); err == nil {
			t.Errorf("%s: expected error for zero dimension", typ)
		}
	}
}

func TestNewIndex_UnknownTypeIsWrapped(t *testing.T) {
	_, err := NewIndex("hnsw", 4)
	var ie *Error
	if !errors.As(err, &ie) {
		t.Fatalf("err=%v, want *Error", err)
	}
	if ie.Op != "new" {
		t.Errorf("Op=%q, want new", ie.Op)
	}
}
