package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/pkg/cache"
)

// CachePositionBook stores the active position of each label under
// position:<symbol>:<label>. Entries expire after ttl as a guard against lost close reports.
type CachePositionBook struct {
	c      cache.Service
	symbol string
	ttl    time.Duration
}

func NewCachePositionBook(c cache.Service, symbol string, ttl time.Duration) *CachePositionBook {
	return &CachePositionBook{c: c, symbol: symbol, ttl: ttl}
}

func (b *CachePositionBook) key(label string) string {
	return cache.GenerateKey("position", b.symbol, label)
}

// Get returns nil, nil when no position is booked for label.
func (b *CachePositionBook) Get(ctx context.Context, label string) (*models.Position, error) {
	var p models.Position
	if err := b.c.Get(ctx, b.key(label), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("position book get %s: %w", label, err)
	}
	return &p, nil
}

func (b *CachePositionBook) Put(ctx context.Context, p models.Position) error {
	if p.Label == "" {
		return errors.New("position book: label required")
	}
	if err := b.c.Set(ctx, b.key(p.Label), p, b.ttl); err != nil {
		return fmt.Errorf("position book put %s: %w", p.Label, err)
	}
	return nil
}

func (b *CachePositionBook) Remove(ctx context.Context, label string) error {
	return b.c.Delete(ctx, b.key(label))
}

// List returns the booked positions of labels ordered by open time.
func (b *CachePositionBook) List(ctx context.Context, labels []string) ([]models.Position, error) {
	keys := make([]string, len(labels))
	for i, l := range labels {
		keys[i] = b.key(l)
	}
	found, err := cache.MGetTyped[models.Position](ctx, b.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("position book list: %w", err)
	}
	out := make([]models.Position, 0, len(found))
	for _, p := range found {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

var _ domrepo.PositionBook = (*CachePositionBook)(nil)
