package storage

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	key := NewKey("documents")
	if !strings.HasPrefix(key, "documents/") {
		t.Errorf("Key missing prefix: %q", key)
	}

	want := []byte("%PDF-1.4 payload")
	if err := store.Put(key, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("Stored bytes do not round-trip")
	}
}

func TestLocalStore_MissingKey(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	_, err := store.Get("documents/nope")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	for _, key := range []string{"../escape", "/etc/passwd", "a/../../b"} {
		if err := store.Put(key, []byte("x")); !apperr.Is(err, apperr.CodeValidation) {
			t.Errorf("Key %q must be rejected, got %v", key, err)
		}
	}
}

func TestMemStore_CopiesData(t *testing.T) {
	store := NewMemStore()
	data := []byte("original")
	if err := store.Put("k", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data[0] = 'X'
	got, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "original" {
		t.Error("Store must not alias caller buffers")
	}
}
