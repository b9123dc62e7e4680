package cache

import (
	"context"
	"errors"

	"github.com/fjod/watch_orders/internal/domain"
)

type OrderCache interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	Set(ctx context.Context, orderID string, order *domain.Order) error
	Delete(ctx context.Context, orderID string) error
}

var ErrCacheMiss = errors.New("cache miss")
