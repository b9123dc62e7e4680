package service

import (
	"context"
	"sync"

	"github.com/fjod/watch_orders/internal/cache"
	"github.com/fjod/watch_orders/internal/clients"
	"github.com/fjod/watch_orders/internal/domain"
	"github.com/fjod/watch_orders/internal/repository"
	"github.com/fjod/watch_orders/pkg/logger"
)

// mockRepository implements repository.OrderRepository over an in-memory map,
// simulating the store's unique indexes on insert and update.
type mockRepository struct {
	mu                  sync.Mutex
	orders              map[string]*domain.Order // by order_id
	events              []repository.OutboxEvent
	Err                 error // forced error for every call
	InsertConflict      error // returned by Insert while InsertConflictTimes > 0
	InsertConflictTimes int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orders: make(map[string]*domain.Order),
	}
}

func (m *mockRepository) Insert(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.InsertConflictTimes > 0 {
		m.InsertConflictTimes--
		return m.InsertConflict
	}
	if _, ok := m.orders[order.OrderID]; ok {
		return repository.ErrDuplicateOrderID
	}
	for _, o := range m.orders {
		if o.OrderName == order.OrderName {
			return repository.ErrDuplicateOrderName
		}
		if o.WatchID == order.WatchID && !o.Status.IsTerminal() && !order.Status.IsTerminal() {
			return repository.ErrDuplicateWatchReservation
		}
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *mockRepository) FindByOrderID(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) FindAll(context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var all []domain.Order
	for _, o := range m.orders {
		all = append(all, *o)
	}
	return all, nil
}

func (m *mockRepository) ExistsByOrderName(_ context.Context, orderName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for _, o := range m.orders {
		if o.OrderName == orderName {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) FindActiveByWatchID(_ context.Context, watchID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, o := range m.orders {
		if o.WatchID == watchID && !o.Status.IsTerminal() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) Update(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.orders[order.OrderID]; !ok {
		return repository.ErrOrderNotFound
	}
	for id, o := range m.orders {
		if id != order.OrderID && o.OrderName == order.OrderName {
			return repository.ErrDuplicateOrderName
		}
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *mockRepository) Delete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.orders[orderID]; !ok {
		return repository.ErrOrderNotFound
	}
	delete(m.orders, orderID)
	return nil
}

func (m *mockRepository) AppendEvent(_ context.Context, event *repository.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *mockRepository) UnprocessedEvents(_ context.Context, limit int) ([]repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.OutboxEvent
	for _, e := range m.events {
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepository) MarkEventProcessed(_ context.Context, eventID string) error {
	return nil
}

func (m *mockRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.EventType)
	}
	return types
}

// mockCache implements cache.OrderCache in memory.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]*domain.Order
	deletes []string
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*domain.Order)}
}

func (m *mockCache) Get(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.entries[orderID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return o, nil
}

func (m *mockCache) Set(_ context.Context, orderID string, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[orderID] = order
	return nil
}

func (m *mockCache) Delete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, orderID)
	m.deletes = append(m.deletes, orderID)
	return nil
}

// mockCustomerClient implements clients.CustomerClient.
type mockCustomerClient struct {
	Snap *clients.CustomerSnapshot
	Err  error
}

func (m *mockCustomerClient) Exists(_ context.Context, _ string) (bool, error) {
	if m.Err != nil && m.Err != clients.ErrNotFound {
		return false, m.Err
	}
	return m.Err == nil, nil
}

func (m *mockCustomerClient) Snapshot(_ context.Context, _ string) (*clients.CustomerSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Snap, nil
}

// mockCatalogClient implements clients.CatalogClient.
type mockCatalogClient struct {
	Snap *clients.CatalogSnapshot
	Err  error
}

func (m *mockCatalogClient) Exists(_ context.Context, _ string) (bool, error) {
	if m.Err != nil && m.Err != clients.ErrNotFound {
		return false, m.Err
	}
	return m.Err == nil, nil
}

func (m *mockCatalogClient) Snapshot(_ context.Context, _ string) (*clients.CatalogSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Snap, nil
}

// mockWatchClient implements clients.WatchClient.
type mockWatchClient struct {
	Snap *clients.WatchSnapshot
	Err  error
}

func (m *mockWatchClient) Exists(_ context.Context, _ string) (bool, error) {
	if m.Err != nil && m.Err != clients.ErrNotFound {
		return false, m.Err
	}
	return m.Err == nil, nil
}

func (m *mockWatchClient) Snapshot(_ context.Context, _ string) (*clients.WatchSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Snap, nil
}

// mockServicePlanClient implements clients.ServicePlanClient.
type mockServicePlanClient struct {
	Snap *clients.ServicePlanSnapshot
	Err  error
}

func (m *mockServicePlanClient) Exists(_ context.Context, _ string) (bool, error) {
	if m.Err != nil && m.Err != clients.ErrNotFound {
		return false, m.Err
	}
	return m.Err == nil, nil
}

func (m *mockServicePlanClient) Snapshot(_ context.Context, _ string) (*clients.ServicePlanSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Snap, nil
}

type testFixture struct {
	repo       *mockRepository
	orderCache *mockCache
	customers  *mockCustomerClient
	catalogs   *mockCatalogClient
	watches    *mockWatchClient
	plans      *mockServicePlanClient
	svc        *OrderServiceImpl
}

// newTestService wires a fully mocked OrderService with every collaborator
// answering positively for the W1/C1/CAT1/SP1 ids used across the tests.
func newTestService() *testFixture {
	f := &testFixture{
		repo:       newMockRepository(),
		orderCache: newMockCache(),
		customers:  &mockCustomerClient{Snap: &clients.CustomerSnapshot{CustomerID: "C1", FirstName: "Ada", LastName: "Lovelace"}},
		catalogs:   &mockCatalogClient{Snap: &clients.CatalogSnapshot{CatalogID: "CAT1", Type: "luxury", Description: "flagship line"}},
		watches:    &mockWatchClient{Snap: &clients.WatchSnapshot{WatchID: "W1", CatalogID: "CAT1", Model: "Nautilus", Material: "steel", Quantity: 3}},
		plans:      &mockServicePlanClient{Snap: &clients.ServicePlanSnapshot{PlanID: "SP1", CoverageDetails: "full coverage", ExpirationDate: "2027-01-01"}},
	}
	f.svc = NewOrderService(f.repo, f.orderCache, f.customers, f.catalogs, f.watches, f.plans, logger.NewNop())
	f.svc.assembler.retryDelay = 0
	return f
}

func validCreateRequest() *CreateOrderRequest {
	return &CreateOrderRequest{
		OrderName:       "ORD-100",
		CustomerID:      "C1",
		CatalogID:       "CAT1",
		WatchID:         "W1",
		ServicePlanID:   "SP1",
		Price:           domain.Price{MSRP: 35000, Cost: 28000, TotalOptionsCost: 1200},
		SaleCurrency:    "USD",
		PaymentCurrency: "CAD",
	}
}
