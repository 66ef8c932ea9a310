// Package idgen injects UUID generation per spec §6 (Random.uuid()).
package idgen

import "github.com/google/uuid"

// Generator is the collaborator interface for producing new identities.
type Generator interface {
	NewUUID() uuid.UUID
}

// Real generates real random UUIDs (v4).
type Real struct{}

func (Real) NewUUID() uuid.UUID { return uuid.New() }

// Sequence is a deterministic test Generator that replays a fixed list and
// falls back to random UUIDs once exhausted.
type Sequence struct {
	ids []uuid.UUID
	pos int
}

func NewSequence(ids ...uuid.UUID) *Sequence {
	return &Sequence{ids: ids}
}

func (s *Sequence) NewUUID() uuid.UUID {
	if s.pos < len(s.ids) {
		id := s.ids[s.pos]
		s.pos++
		return id
	}
	return uuid.New()
}
