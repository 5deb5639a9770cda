package cache

import (
	"context"
	"errors"

	"github.com/raymonnguyen/baubiz-sub000/internal/server/repository"
)

type CartCache interface {
	Get(ctx context.Context, userID string) ([]repository.Item, error)
	Set(ctx context.Context, userID string, items []repository.Item) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop satisfies CartCache for deployments without redis: every read misses
// and writes are discarded.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]repository.Item, error) {
	return nil, ErrCacheMiss
}

func (Noop) Set(context.Context, string, []repository.Item) error {
	return nil
}

func (Noop) Delete(context.Context, string) error {
	return nil
}
