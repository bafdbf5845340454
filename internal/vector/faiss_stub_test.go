//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"errors"
	"testing"
)

func TestNewBackend_FAISSUnavailable(t *testing.T) {
	b, err := NewBackend("faiss", 4)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v, want ErrUnavailable", err)
	}
	if b != nil {
		t.Errorf("backend = %v, want nil", b)
	}
	if _, err := NewIndex("faiss", 4); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewIndex err=%v, want ErrUnavailable", err)
	}
}
