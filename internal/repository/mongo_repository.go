package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/watch_orders/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	idxOrderID     = "uniq_order_id"
	idxOrderName   = "uniq_order_name"
	idxActiveWatch = "uniq_active_watch"
)

type mongoRepository struct {
	orders *mongo.Collection
	outbox *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) OrderRepository {
	return &mongoRepository{
		orders: db.Collection("orders"),
		outbox: db.Collection("outbox"),
	}
}

func (m *mongoRepository) Insert(ctx context.Context, order *domain.Order) error {
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	_, err := m.orders.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return translateDuplicateKey(err)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *mongoRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order

	filter := bson.M{"order_id": orderID}
	err := m.orders.FindOne(ctx, filter).Decode(&order)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}

func (m *mongoRepository) FindAll(ctx context.Context) ([]domain.Order, error) {
	cursor, err := m.orders.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (m *mongoRepository) ExistsByOrderName(ctx context.Context, orderName string) (bool, error) {
	count, err := m.orders.CountDocuments(ctx, bson.M{"order_name": orderName}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check order name: %w", err)
	}
	return count > 0, nil
}

func (m *mongoRepository) FindActiveByWatchID(ctx context.Context, watchID string) (*domain.Order, error) {
	filter := bson.M{
		"watch_id": watchID,
		"status":   bson.M{"$in": domain.NonTerminalStatuses()},
	}

	var order domain.Order
	err := m.orders.FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check watch reservation: %w", err)
	}
	return &order, nil
}

func (m *mongoRepository) Update(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now()

	filter := bson.M{"order_id": order.OrderID}
	update := bson.M{"$set": bson.M{
		"order_name":       order.OrderName,
		"price":            order.Price,
		"sale_currency":    order.SaleCurrency,
		"payment_currency": order.PaymentCurrency,
		"order_date":       order.OrderDate,
		"status":           order.Status,
		"updated_at":       order.UpdatedAt,
	}}

	result, err := m.orders.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return translateDuplicateKey(err)
		}
		return fmt.Errorf("failed to update order: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (m *mongoRepository) Delete(ctx context.Context, orderID string) error {
	result, err := m.orders.DeleteOne(ctx, bson.M{"order_id": orderID})
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (m *mongoRepository) AppendEvent(ctx context.Context, event *OutboxEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.ID == "" {
		event.ID = primitive.NewObjectID().Hex()
	}

	_, err := m.outbox.InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	return nil
}

func (m *mongoRepository) UnprocessedEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	filter := bson.M{"processed_at": bson.M{"$exists": false}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := m.outbox.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}
	return events, nil
}

func (m *mongoRepository) MarkEventProcessed(ctx context.Context, eventID string) error {
	now := time.Now()
	update := bson.M{"$set": bson.M{"processed_at": now}}

	result, err := m.outbox.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	return nil
}

// CreateIndexes installs the unique indexes that arbitrate check-then-act races:
// one order per order_id, one order per order_name, and at most one non-terminal
// order per watch_id.
func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(idxOrderID),
		},
		{
			Keys:    bson.D{{Key: "order_name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(idxOrderName),
		},
		{
			Keys: bson.D{{Key: "watch_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(idxActiveWatch).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": domain.NonTerminalStatuses()},
				}),
		},
	}

	_, err := m.orders.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	outboxIdx := mongo.IndexModel{
		Keys: bson.D{{Key: "processed_at", Value: 1}, {Key: "created_at", Value: 1}},
	}
	if _, err := m.outbox.Indexes().CreateOne(ctx, outboxIdx); err != nil {
		return fmt.Errorf("failed to create outbox index: %w", err)
	}
	return nil
}

// EnsureIndexes installs the store-level constraints when the repository is
// mongo-backed; other implementations are expected to enforce their own.
func EnsureIndexes(ctx context.Context, repo OrderRepository) error {
	if m, ok := repo.(*mongoRepository); ok {
		return m.CreateIndexes(ctx)
	}
	return nil
}

// translateDuplicateKey maps a duplicate-key write error to the domain conflict
// for the index that fired. The index name appears in the server error message.
func translateDuplicateKey(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, idxOrderName):
		return ErrDuplicateOrderName
	case strings.Contains(msg, idxActiveWatch):
		return ErrDuplicateWatchReservation
	case strings.Contains(msg, idxOrderID):
		return ErrDuplicateOrderID
	}
	return fmt.Errorf("duplicate key: %w", err)
}
