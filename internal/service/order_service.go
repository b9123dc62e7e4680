package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/watch_orders/internal/cache"
	"github.com/fjod/watch_orders/internal/clients"
	"github.com/fjod/watch_orders/internal/domain"
	"github.com/fjod/watch_orders/internal/repository"
	"github.com/fjod/watch_orders/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type CreateOrderRequest struct {
	OrderID         string // optional, generated when empty
	OrderName       string
	CustomerID      string
	CatalogID       string
	WatchID         string
	ServicePlanID   string
	Price           domain.Price
	SaleCurrency    string
	PaymentCurrency string
	OrderDate       time.Time // defaults to now when zero
}

// UpdateOrderRequest carries only mutable fields. Identifier fields may be
// echoed back unchanged but never altered.
type UpdateOrderRequest struct {
	OrderName       string // empty = unchanged
	CustomerID      string // must match the stored order when set
	CatalogID       string
	WatchID         string
	ServicePlanID   string
	Price           *domain.Price
	SaleCurrency    string
	PaymentCurrency string
	Status          domain.OrderStatus // empty = unchanged
	OrderDate       *time.Time
}

type OrderService interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error)
	UpdateOrder(ctx context.Context, orderID string, req *UpdateOrderRequest) (*domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*OrderView, error)
	ListOrders(ctx context.Context) ([]OrderView, error)
}

type OrderServiceImpl struct {
	repo      repository.OrderRepository
	cache     cache.OrderCache
	customers clients.CustomerClient
	catalogs  clients.CatalogClient
	watches   clients.WatchClient
	plans     clients.ServicePlanClient
	assembler *Assembler
	log       *logger.Logger
	sfg       singleflight.Group // Prevents cache stampede
	now       func() time.Time
}

func NewOrderService(
	repo repository.OrderRepository,
	orderCache cache.OrderCache,
	customers clients.CustomerClient,
	catalogs clients.CatalogClient,
	watches clients.WatchClient,
	plans clients.ServicePlanClient,
	log *logger.Logger,
) *OrderServiceImpl {
	return &OrderServiceImpl{
		repo:      repo,
		cache:     orderCache,
		customers: customers,
		catalogs:  catalogs,
		watches:   watches,
		plans:     plans,
		assembler: NewAssembler(customers, catalogs, watches, plans, log),
		log:       log,
		now:       time.Now,
	}
}

func (s *OrderServiceImpl) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error) {
	// Malformed input fails before any network call.
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	orderID, err := domain.ResolveIdentifier(domain.KindOrder, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: orderId: %v", ErrInvalidInput, err)
	}

	watch, err := s.checkCollaborators(ctx, req)
	if err != nil {
		return nil, err
	}

	// The watch must belong to the catalog the order names.
	if watch.CatalogID != req.CatalogID {
		return nil, fmt.Errorf("%w: watch '%s' does not belong to catalog '%s'",
			ErrInvalidInput, req.WatchID, req.CatalogID)
	}
	if watch.Quantity <= 0 {
		return nil, fmt.Errorf("%w: watch '%s' is out of stock", ErrInvalidInput, req.WatchID)
	}

	if err := s.checkWriteInvariants(ctx, req.OrderName, req.WatchID); err != nil {
		return nil, err
	}

	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = s.now()
	}

	order := &domain.Order{
		OrderID:         orderID,
		OrderName:       req.OrderName,
		CustomerID:      req.CustomerID,
		CatalogID:       req.CatalogID,
		WatchID:         req.WatchID,
		ServicePlanID:   req.ServicePlanID,
		Price:           req.Price,
		SaleCurrency:    domain.Currency(req.SaleCurrency),
		PaymentCurrency: domain.Currency(req.PaymentCurrency),
		OrderDate:       orderDate,
		Status:          domain.OrderStatusPending,
	}

	if err := s.insertWithRetry(ctx, order); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, "order.created", order)
	return order, nil
}

// insertWithRetry handles the narrow window where the application-level checks
// passed but the store's unique index rejects the insert. The full validation
// is retried once; if the conflict cleared in the meantime the insert is
// attempted again, otherwise the domain conflict is returned.
func (s *OrderServiceImpl) insertWithRetry(ctx context.Context, order *domain.Order) error {
	err := s.repo.Insert(ctx, order)
	if err == nil {
		return nil
	}
	if !isStoreConflict(err) {
		return fmt.Errorf("failed to persist order: %w", err)
	}

	s.log.Warn("insert hit unique index after checks passed, re-validating",
		"order_id", order.OrderID, "error", err)

	if checkErr := s.checkWriteInvariants(ctx, order.OrderName, order.WatchID); checkErr != nil {
		return checkErr
	}

	if err := s.repo.Insert(ctx, order); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// checkCollaborators issues the four existence checks concurrently. The first
// definitive not-found cancels the in-flight calls. A collaborator that cannot
// answer surfaces as ErrUpstreamUnavailable, never as not-found.
func (s *OrderServiceImpl) checkCollaborators(ctx context.Context, req *CreateOrderRequest) (*clients.WatchSnapshot, error) {
	g, gctx := errgroup.WithContext(ctx)
	var watch *clients.WatchSnapshot

	g.Go(func() error {
		ok, err := s.customers.Exists(gctx, req.CustomerID)
		return existenceResult("customer", req.CustomerID, ok, err)
	})
	g.Go(func() error {
		ok, err := s.catalogs.Exists(gctx, req.CatalogID)
		return existenceResult("catalog", req.CatalogID, ok, err)
	})
	g.Go(func() error {
		ok, err := s.plans.Exists(gctx, req.ServicePlanID)
		return existenceResult("service plan", req.ServicePlanID, ok, err)
	})
	g.Go(func() error {
		snap, err := s.watches.Snapshot(gctx, req.WatchID)
		if errors.Is(err, clients.ErrNotFound) {
			return fmt.Errorf("%w: referenced watch '%s' does not exist", ErrNotFound, req.WatchID)
		}
		if err != nil {
			return fmt.Errorf("%w: watch service: %v", ErrUpstreamUnavailable, err)
		}
		watch = snap
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return watch, nil
}

func existenceResult(kind, id string, ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s service: %v", ErrUpstreamUnavailable, kind, err)
	}
	if !ok {
		return fmt.Errorf("%w: referenced %s '%s' does not exist", ErrNotFound, kind, id)
	}
	return nil
}

// checkWriteInvariants produces friendly conflict errors before the store's
// unique indexes would reject the write.
func (s *OrderServiceImpl) checkWriteInvariants(ctx context.Context, orderName, watchID string) error {
	taken, err := s.repo.ExistsByOrderName(ctx, orderName)
	if err != nil {
		return fmt.Errorf("failed to check order name: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: '%s'", ErrDuplicateOrderName, orderName)
	}

	active, err := s.repo.FindActiveByWatchID(ctx, watchID)
	if err != nil {
		return fmt.Errorf("failed to check watch reservation: %w", err)
	}
	if active != nil {
		return fmt.Errorf("%w: watch '%s' is held by order '%s'",
			ErrDuplicateWatchReservation, watchID, active.OrderID)
	}
	return nil
}

func (s *OrderServiceImpl) UpdateOrder(ctx context.Context, orderID string, req *UpdateOrderRequest) (*domain.Order, error) {
	existing, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if err := rejectIdentifierChange(existing, req); err != nil {
		return nil, err
	}

	if req.Status != "" {
		if !req.Status.IsValid() {
			return nil, fmt.Errorf("%w: unknown order status '%s'", ErrInvalidInput, req.Status)
		}
		if !domain.CanTransitionTo(existing.Status, req.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, existing.Status, req.Status)
		}
	}

	nameChanged := req.OrderName != "" && req.OrderName != existing.OrderName
	if nameChanged {
		taken, err := s.repo.ExistsByOrderName(ctx, req.OrderName)
		if err != nil {
			return nil, fmt.Errorf("failed to check order name: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicateOrderName, req.OrderName)
		}
		existing.OrderName = req.OrderName
	}

	if req.Price != nil {
		if !req.Price.IsValid() {
			return nil, fmt.Errorf("%w: price components must be non-negative", ErrInvalidInput)
		}
		existing.Price = *req.Price
	}
	if req.SaleCurrency != "" {
		c := domain.Currency(req.SaleCurrency)
		if !c.IsValid() {
			return nil, fmt.Errorf("%w: unsupported currency '%s'", ErrInvalidInput, req.SaleCurrency)
		}
		existing.SaleCurrency = c
	}
	if req.PaymentCurrency != "" {
		c := domain.Currency(req.PaymentCurrency)
		if !c.IsValid() {
			return nil, fmt.Errorf("%w: unsupported currency '%s'", ErrInvalidInput, req.PaymentCurrency)
		}
		existing.PaymentCurrency = c
	}
	if req.OrderDate != nil {
		existing.OrderDate = *req.OrderDate
	}
	if req.Status != "" {
		existing.Status = req.Status
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, mapRepoError(err)
	}

	s.invalidateCache(existing.OrderID)
	s.appendEvent(ctx, "order.updated", existing)
	return existing, nil
}

func rejectIdentifierChange(existing *domain.Order, req *UpdateOrderRequest) error {
	switch {
	case req.CustomerID != "" && req.CustomerID != existing.CustomerID:
		return fmt.Errorf("%w: customerId is immutable", ErrInvalidInput)
	case req.CatalogID != "" && req.CatalogID != existing.CatalogID:
		return fmt.Errorf("%w: catalogId is immutable", ErrInvalidInput)
	case req.WatchID != "" && req.WatchID != existing.WatchID:
		return fmt.Errorf("%w: watchId is immutable", ErrInvalidInput)
	case req.ServicePlanID != "" && req.ServicePlanID != existing.ServicePlanID:
		return fmt.Errorf("%w: servicePlanId is immutable", ErrInvalidInput)
	}
	return nil
}

func (s *OrderServiceImpl) DeleteOrder(ctx context.Context, orderID string) error {
	order, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return mapRepoError(err)
	}

	if err := s.repo.Delete(ctx, orderID); err != nil {
		return mapRepoError(err)
	}

	s.invalidateCache(orderID)
	s.appendEvent(ctx, "order.deleted", order)
	return nil
}

func (s *OrderServiceImpl) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	view := s.assembler.Assemble(ctx, order)
	return view, nil
}

func (s *OrderServiceImpl) ListOrders(ctx context.Context) ([]OrderView, error) {
	orders, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, *s.assembler.Assemble(ctx, &orders[i]))
	}
	return views, nil
}

// loadOrder reads the aggregate through the cache, collapsing concurrent
// misses for the same id with singleflight.
func (s *OrderServiceImpl) loadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	v, err, _ := s.sfg.Do(orderID, func() (interface{}, error) {
		order, err := s.cache.Get(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get failed", "order_id", orderID, "error", err)
		}

		order, err = s.repo.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, mapRepoError(err)
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), orderID, order); errSet != nil {
				s.log.Warn("cache set failed", "order_id", orderID, "error", errSet)
			}
		}()
		return order, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Order), nil
}

func (s *OrderServiceImpl) invalidateCache(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, orderID); err != nil {
		s.log.Warn("cache invalidate failed", "order_id", orderID, "error", err)
	}
}

// appendEvent records a lifecycle event in the outbox. A failed append is
// logged, never surfaced: the aggregate write already succeeded.
func (s *OrderServiceImpl) appendEvent(ctx context.Context, eventType string, order *domain.Order) {
	payload, err := json.Marshal(order)
	if err != nil {
		s.log.Error("failed to marshal outbox payload", "order_id", order.OrderID, "error", err)
		return
	}
	event := &repository.OutboxEvent{
		AggregateID: order.OrderID,
		EventType:   eventType,
		Payload:     payload,
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		s.log.Error("failed to append outbox event",
			"order_id", order.OrderID, "event_type", eventType, "error", err)
	}
}

func validateCreateRequest(req *CreateOrderRequest) error {
	if req.OrderName == "" {
		return fmt.Errorf("%w: orderName is required", ErrInvalidInput)
	}
	refs := []struct {
		field string
		id    string
	}{
		{"customerId", req.CustomerID},
		{"catalogId", req.CatalogID},
		{"watchId", req.WatchID},
		{"servicePlanId", req.ServicePlanID},
	}
	for _, ref := range refs {
		if _, err := domain.ValidateIdentifier(ref.id); err != nil {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, ref.field)
		}
	}
	if !req.Price.IsValid() {
		return fmt.Errorf("%w: price components must be non-negative", ErrInvalidInput)
	}
	if !domain.Currency(req.SaleCurrency).IsValid() {
		return fmt.Errorf("%w: unsupported currency '%s'", ErrInvalidInput, req.SaleCurrency)
	}
	if !domain.Currency(req.PaymentCurrency).IsValid() {
		return fmt.Errorf("%w: unsupported payment currency '%s'", ErrInvalidInput, req.PaymentCurrency)
	}
	return nil
}

func isStoreConflict(err error) bool {
	return errors.Is(err, repository.ErrDuplicateOrderName) ||
		errors.Is(err, repository.ErrDuplicateWatchReservation) ||
		errors.Is(err, repository.ErrDuplicateOrderID)
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return fmt.Errorf("%w: order", ErrNotFound)
	case errors.Is(err, repository.ErrDuplicateOrderName):
		return ErrDuplicateOrderName
	case errors.Is(err, repository.ErrDuplicateWatchReservation):
		return ErrDuplicateWatchReservation
	case errors.Is(err, repository.ErrDuplicateOrderID):
		return fmt.Errorf("%w: orderId already exists", ErrInvalidInput)
	}
	return err
}
