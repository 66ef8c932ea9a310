package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process durable-tier stand-in used by unit tests
// that exercise Gate without a live Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), now: now}
}

func storeKey(k Key) string {
	return k.TenantID + "|" + k.Endpoint + "|" + k.ClientKey
}

func (s *MemoryStore) InsertPlaceholder(_ context.Context, key Key, payloadHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := storeKey(key)
	if existing, ok := s.records[sk]; ok && existing.ExpiresAt.After(s.now()) {
		return ErrAlreadyExists
	}

	now := s.now()
	s.records[sk] = &Record{
		TenantID:    key.TenantID,
		Endpoint:    key.Endpoint,
		ClientKey:   key.ClientKey,
		PayloadHash: payloadHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[storeKey(key)]
	if !ok || !rec.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Complete(_ context.Context, key Key, payloadHash string, response []byte, status int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := storeKey(key)
	now := s.now()
	rec, ok := s.records[sk]
	if !ok {
		rec = &Record{TenantID: key.TenantID, Endpoint: key.Endpoint, ClientKey: key.ClientKey, CreatedAt: now}
		s.records[sk] = rec
	}
	rec.PayloadHash = payloadHash
	rec.Response = response
	rec.HTTPStatus = status
	rec.ExpiresAt = now.Add(ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, storeKey(key))
	return nil
}
