package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/watch_orders/internal/clients"
	"github.com/fjod/watch_orders/internal/domain"
	"github.com/fjod/watch_orders/pkg/logger"
)

// SectionStatus marks how fresh one collaborator section of a view is.
type SectionStatus string

const (
	SectionOK SectionStatus = "OK"
	// SectionUnavailable: the referenced entity no longer exists upstream.
	SectionUnavailable SectionStatus = "UNAVAILABLE"
	// SectionDegraded: the collaborator could not answer; fields may be stale.
	SectionDegraded SectionStatus = "DEGRADED"
)

// FieldUnavailable fills projected fields whose source entity is gone.
const FieldUnavailable = "unavailable"

// OrderView is the flattened, denormalized read projection: the order's own
// fields merged with live collaborator data. The order record is authoritative
// for its own fields; collaborator sections degrade independently.
type OrderView struct {
	OrderID         string             `json:"orderId"`
	OrderName       string             `json:"orderName"`
	Price           domain.Price       `json:"price"`
	SaleCurrency    domain.Currency    `json:"saleCurrency"`
	PaymentCurrency domain.Currency    `json:"paymentCurrency"`
	OrderDate       time.Time          `json:"orderDate"`
	OrderStatus     domain.OrderStatus `json:"orderStatus"`

	CustomerID        string        `json:"customerId"`
	CustomerFirstName string        `json:"customerFirstName"`
	CustomerLastName  string        `json:"customerLastName"`
	CustomerSection   SectionStatus `json:"customerSection"`

	CatalogID          string        `json:"catalogId"`
	CatalogType        string        `json:"catalogType"`
	CatalogDescription string        `json:"catalogDescription"`
	CatalogSection     SectionStatus `json:"catalogSection"`

	WatchID       string        `json:"watchId"`
	WatchModel    string        `json:"watchModel"`
	WatchMaterial string        `json:"watchMaterial"`
	WatchSection  SectionStatus `json:"watchSection"`

	ServicePlanID              string        `json:"servicePlanId"`
	ServicePlanCoverageDetails string        `json:"servicePlanCoverageDetails"`
	ServicePlanExpirationDate  string        `json:"servicePlanExpirationDate"`
	ServicePlanSection         SectionStatus `json:"servicePlanSection"`
}

type Assembler struct {
	customers  clients.CustomerClient
	catalogs   clients.CatalogClient
	watches    clients.WatchClient
	plans      clients.ServicePlanClient
	log        *logger.Logger
	retryDelay time.Duration
}

func NewAssembler(
	customers clients.CustomerClient,
	catalogs clients.CatalogClient,
	watches clients.WatchClient,
	plans clients.ServicePlanClient,
	log *logger.Logger,
) *Assembler {
	return &Assembler{
		customers:  customers,
		catalogs:   catalogs,
		watches:    watches,
		plans:      plans,
		log:        log,
		retryDelay: 100 * time.Millisecond,
	}
}

// Assemble merges the persisted order with freshly fetched collaborator data.
// A section fails alone: a vanished entity is marked UNAVAILABLE, an
// unreachable collaborator gets one bounded retry and is then marked DEGRADED.
// The whole read never fails on a collaborator.
func (a *Assembler) Assemble(ctx context.Context, order *domain.Order) *OrderView {
	view := &OrderView{
		OrderID:         order.OrderID,
		OrderName:       order.OrderName,
		Price:           order.Price,
		SaleCurrency:    order.SaleCurrency,
		PaymentCurrency: order.PaymentCurrency,
		OrderDate:       order.OrderDate,
		OrderStatus:     order.Status,
		CustomerID:      order.CustomerID,
		CatalogID:       order.CatalogID,
		WatchID:         order.WatchID,
		ServicePlanID:   order.ServicePlanID,
	}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		var snap *clients.CustomerSnapshot
		status := a.fetchSection(ctx, "customer", order.CustomerID, func(c context.Context) error {
			s, err := a.customers.Snapshot(c, order.CustomerID)
			snap = s
			return err
		})
		view.CustomerSection = status
		if status == SectionOK {
			view.CustomerFirstName = snap.FirstName
			view.CustomerLastName = snap.LastName
		} else {
			view.CustomerFirstName = FieldUnavailable
			view.CustomerLastName = FieldUnavailable
		}
	}()

	go func() {
		defer wg.Done()
		var snap *clients.CatalogSnapshot
		status := a.fetchSection(ctx, "catalog", order.CatalogID, func(c context.Context) error {
			s, err := a.catalogs.Snapshot(c, order.CatalogID)
			snap = s
			return err
		})
		view.CatalogSection = status
		if status == SectionOK {
			view.CatalogType = snap.Type
			view.CatalogDescription = snap.Description
		} else {
			view.CatalogType = FieldUnavailable
			view.CatalogDescription = FieldUnavailable
		}
	}()

	go func() {
		defer wg.Done()
		var snap *clients.WatchSnapshot
		status := a.fetchSection(ctx, "watch", order.WatchID, func(c context.Context) error {
			s, err := a.watches.Snapshot(c, order.WatchID)
			snap = s
			return err
		})
		view.WatchSection = status
		if status == SectionOK {
			view.WatchModel = snap.Model
			view.WatchMaterial = snap.Material
		} else {
			view.WatchModel = FieldUnavailable
			view.WatchMaterial = FieldUnavailable
		}
	}()

	go func() {
		defer wg.Done()
		var snap *clients.ServicePlanSnapshot
		status := a.fetchSection(ctx, "service plan", order.ServicePlanID, func(c context.Context) error {
			s, err := a.plans.Snapshot(c, order.ServicePlanID)
			snap = s
			return err
		})
		view.ServicePlanSection = status
		if status == SectionOK {
			view.ServicePlanCoverageDetails = snap.CoverageDetails
			view.ServicePlanExpirationDate = snap.ExpirationDate
		} else {
			view.ServicePlanCoverageDetails = FieldUnavailable
			view.ServicePlanExpirationDate = FieldUnavailable
		}
	}()

	wg.Wait()
	return view
}

func (a *Assembler) fetchSection(ctx context.Context, kind, id string, fetch func(context.Context) error) SectionStatus {
	err := fetch(ctx)
	if err == nil {
		return SectionOK
	}
	if errors.Is(err, clients.ErrNotFound) {
		a.log.Info("referenced entity gone, degrading section", "kind", kind, "id", id)
		return SectionUnavailable
	}

	// one bounded retry for unreachable collaborators
	select {
	case <-time.After(a.retryDelay):
	case <-ctx.Done():
		return SectionDegraded
	}

	err = fetch(ctx)
	if err == nil {
		return SectionOK
	}
	if errors.Is(err, clients.ErrNotFound) {
		return SectionUnavailable
	}

	a.log.Warn("collaborator unreachable, marking section degraded",
		"kind", kind, "id", id, "error", err)
	return SectionDegraded
}
