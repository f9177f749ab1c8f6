package blobstore

import (
	"context"
	"fmt"
	"sync"
)

// MemStore keeps blobs in memory. It backs tests and the "memory" backend.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[Locator][]byte
	puts  int
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[Locator][]byte)}
}

func (s *MemStore) Put(ctx context.Context, data []byte) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc := ContentLocator(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if _, ok := s.blobs[loc]; !ok {
		s.blobs[loc] = append([]byte(nil), data...)
	}
	return loc, nil
}

func (s *MemStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[loc]
	if !ok {
		return nil, fmt.Errorf("blob read %s: %w", loc, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of distinct blobs held.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Puts returns the number of Put calls served, duplicates included.
func (s *MemStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
