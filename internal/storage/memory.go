package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"replybot/internal/configuration"
)

type memoryStore struct {
	mu    sync.Mutex
	convs map[string]configuration.ConversationConfig
}

// NewMemory returns a process-local store.
func NewMemory() configuration.Store {
	return &memoryStore{convs: map[string]configuration.ConversationConfig{}}
}

func (s *memoryStore) Find(ctx context.Context, id string) (configuration.ConversationConfig, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.convs[id]
	if !ok {
		return configuration.ConversationConfig{}, false, nil
	}
	return cfg.Clone(), true, nil
}

func (s *memoryStore) Create(ctx context.Context, cfg configuration.ConversationConfig) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[cfg.ConversationID]; ok {
		return fmt.Errorf("%w: %s", configuration.ErrConversationExists, cfg.ConversationID)
	}
	cfg = cfg.Clone()
	cfg.Version = 1
	s.convs[cfg.ConversationID] = cfg
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
	return nil
}

func (s *memoryStore) Save(ctx context.Context, cfg configuration.ConversationConfig) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.convs[cfg.ConversationID]
	if err := checkVersion(cfg.ConversationID, cur.Version, ok, cfg.Version); err != nil {
		return err
	}
	cfg = cfg.Clone()
	cfg.Version++
	s.convs[cfg.ConversationID] = cfg
	return nil
}

func (s *memoryStore) ConversationIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryStore) Close() error { return nil }
