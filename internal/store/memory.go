package store

import (
	"context"
	"sort"
	"sync"

	"phrasehunt/internal/models"
)

// MemoryStore is a process-local store. Records are kept encoded so callers
// never share mutable state with it.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenges := make([]*models.Challenge, 0, len(s.data))
	for _, raw := range s.data {
		c, err := decode(raw)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	sort.Slice(challenges, func(i, j int) bool {
		return challenges[i].CreatedAt.After(challenges[j].CreatedAt)
	})
	return challenges, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data[id]
	if !ok {
		return nil, notFound(id)
	}
	return decode(raw)
}

func (s *MemoryStore) Put(ctx context.Context, c *models.Challenge) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[c.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn MutateFunc) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data[id]
	if !ok {
		return nil, notFound(id)
	}
	c, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	data, err := encode(c)
	if err != nil {
		return nil, err
	}
	s.data[id] = data
	return c, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
