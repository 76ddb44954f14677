package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/pkg/cache"
)

// CacheStateStore keeps the latest session snapshots of a symbol.
type CacheStateStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheStateStore(c cache.Service, ttl time.Duration) *CacheStateStore {
	return &CacheStateStore{c: c, ttl: ttl}
}

func (s *CacheStateStore) Save(ctx context.Context, symbol string, snaps []models.SessionSnapshot) error {
	if err := s.c.Set(ctx, cache.GenerateKey("sessions", symbol), snaps, s.ttl); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// Load returns nil, nil when nothing was saved.
func (s *CacheStateStore) Load(ctx context.Context, symbol string) ([]models.SessionSnapshot, error) {
	var snaps []models.SessionSnapshot
	if err := s.c.Get(ctx, cache.GenerateKey("sessions", symbol), &snaps); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session state: %w", err)
	}
	return snaps, nil
}

var _ domrepo.StateStore = (*CacheStateStore)(nil)
