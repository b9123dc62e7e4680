package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/watch_orders/internal/domain"
)

var (
	ErrOrderNotFound             = errors.New("order not found")
	ErrDuplicateOrderName        = errors.New("order name already taken")
	ErrDuplicateWatchReservation = errors.New("watch already reserved by an active order")
	ErrDuplicateOrderID          = errors.New("order identifier already exists")
)

// OrderRepository defines the interface for order store operations.
// Consumers define this interface, not the MongoDB implementation.
type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	FindAll(ctx context.Context) ([]domain.Order, error)
	ExistsByOrderName(ctx context.Context, orderName string) (bool, error)
	FindActiveByWatchID(ctx context.Context, watchID string) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, orderID string) error

	AppendEvent(ctx context.Context, event *OutboxEvent) error
	UnprocessedEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
}

// OutboxEvent is an order lifecycle event awaiting publication.
type OutboxEvent struct {
	ID          string     `bson:"_id,omitempty"`
	AggregateID string     `bson:"aggregate_id"`
	EventType   string     `bson:"event_type"`
	Payload     []byte     `bson:"payload"`
	CreatedAt   time.Time  `bson:"created_at"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty"`
}
