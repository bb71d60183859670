package authcode

import (
	"context"
	"sync"
)

// MemoryStore guarda los códigos en el proceso. No es durable ni replicado;
// solo sirve con una instancia del servidor.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: map[string]string{}}
}

func (s *MemoryStore) Put(_ context.Context, targetID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[targetID] = code
	return nil
}

func (s *MemoryStore) Take(_ context.Context, targetID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[targetID]
	if !ok || stored != code {
		return false, nil
	}
	delete(s.codes, targetID)
	return true, nil
}
