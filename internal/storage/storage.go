// Package storage is the object storage boundary: opaque byte buffers in
// and out, addressed by string keys. The signing core never talks to a
// storage API directly.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
)

// Store resolves keys to bytes and back.
type Store interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
}

// NewKey mints a storage key under a logical prefix ("documents",
// "signatures").
func NewKey(prefix string) string {
	return prefix + "/" + uuid.NewString()
}

// LocalStore keeps objects on the local filesystem under a base directory.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates the directory-backed store.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperr.New(apperr.CodeValidation, "invalid storage key")
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *LocalStore) Put(key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return apperr.Wrap(apperr.CodeStorage, "write failed", err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return apperr.Wrap(apperr.CodeStorage, "write failed", err)
	}
	return nil
}

func (s *LocalStore) Get(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.CodeNotFound, "object not found", err)
		}
		return nil, apperr.Wrap(apperr.CodeStorage, "read failed", err)
	}
	return data, nil
}

// MemStore is the in-memory Store used by tests.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}}
}

func (s *MemStore) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return nil
}

func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "object not found")
	}
	return data, nil
}
