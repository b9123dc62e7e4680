package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/watch_orders/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (OrderRepository, func()) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	// Get connection string
	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Connect to MongoDB
	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	// Create repository with the unique-index backstops installed
	repo := NewMongoRepository(db)
	require.NoError(t, EnsureIndexes(ctx, repo))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func testOrder(orderID, orderName, watchID string, status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		OrderID:         orderID,
		OrderName:       orderName,
		CustomerID:      "C1",
		CatalogID:       "CAT1",
		WatchID:         watchID,
		ServicePlanID:   "SP1",
		Price:           domain.Price{MSRP: 35000, Cost: 28000, TotalOptionsCost: 1200},
		SaleCurrency:    domain.CurrencyUSD,
		PaymentCurrency: domain.CurrencyCAD,
		OrderDate:       time.Now().UTC().Truncate(time.Millisecond),
		Status:          status,
	}
}

func TestFindByOrderID_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order, err := repo.FindByOrderID(ctx, "nonexistent")

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Nil(t, order)
}

func TestInsert_ThenFind(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending))
	require.NoError(t, err)

	got, err := repo.FindByOrderID(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-100", got.OrderName)
	assert.Equal(t, "W1", got.WatchID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestInsert_DuplicateOrderName(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)))

	err := repo.Insert(ctx, testOrder("O2", "ORD-100", "W2", domain.OrderStatusPending))
	assert.ErrorIs(t, err, ErrDuplicateOrderName)
}

func TestInsert_DuplicateOrderID(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)))

	err := repo.Insert(ctx, testOrder("O1", "ORD-101", "W2", domain.OrderStatusPending))
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
}

func TestInsert_ActiveWatchReservationEnforcedByIndex(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)))

	err := repo.Insert(ctx, testOrder("O2", "ORD-101", "W1", domain.OrderStatusConfirmed))
	assert.ErrorIs(t, err, ErrDuplicateWatchReservation)
}

func TestInsert_TerminalOrdersDoNotHoldWatch(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// a cancelled order for W1 does not block a new active one
	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusCancelled)))
	require.NoError(t, repo.Insert(ctx, testOrder("O2", "ORD-101", "W1", domain.OrderStatusPending)))

	active, err := repo.FindActiveByWatchID(ctx, "W1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "O2", active.OrderID)
}

func TestUpdate_TerminalStatusReleasesWatch(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)
	require.NoError(t, repo.Insert(ctx, order))

	order.Status = domain.OrderStatusCompleted
	require.NoError(t, repo.Update(ctx, order))

	active, err := repo.FindActiveByWatchID(ctx, "W1")
	require.NoError(t, err)
	assert.Nil(t, active)

	// the watch is free for a new reservation now
	require.NoError(t, repo.Insert(ctx, testOrder("O2", "ORD-101", "W1", domain.OrderStatusPending)))
}

func TestUpdate_DuplicateNameRejectedByIndex(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)))
	second := testOrder("O2", "ORD-101", "W2", domain.OrderStatusPending)
	require.NoError(t, repo.Insert(ctx, second))

	second.OrderName = "ORD-100"
	err := repo.Update(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateOrderName)
}

func TestExistsByOrderName(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)))

	taken, err := repo.ExistsByOrderName(ctx, "ORD-100")
	require.NoError(t, err)
	assert.True(t, taken)

	// case-sensitive exact match
	taken, err = repo.ExistsByOrderName(ctx, "ord-100")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestDelete_Idempotency(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)))

	require.NoError(t, repo.Delete(ctx, "O1"))
	assert.ErrorIs(t, repo.Delete(ctx, "O1"), ErrOrderNotFound)
}

func TestFindAll(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testOrder("O1", "ORD-100", "W1", domain.OrderStatusPending)))
	require.NoError(t, repo.Insert(ctx, testOrder("O2", "ORD-101", "W2", domain.OrderStatusPending)))

	orders, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestOutbox_AppendFetchMark(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	event := &OutboxEvent{
		AggregateID: "O1",
		EventType:   "order.created",
		Payload:     []byte(`{"orderId":"O1"}`),
	}
	require.NoError(t, repo.AppendEvent(ctx, event))
	require.NotEmpty(t, event.ID)

	events, err := repo.UnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "order.created", events[0].EventType)

	require.NoError(t, repo.MarkEventProcessed(ctx, events[0].ID))

	events, err = repo.UnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
