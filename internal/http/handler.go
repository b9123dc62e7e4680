package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/watch_orders/internal/domain"
	"github.com/fjod/watch_orders/internal/service"
	"github.com/fjod/watch_orders/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type OrdersHandler struct {
	orders service.OrderService
	log    *logger.Logger
}

func NewOrdersHandler(orders service.OrderService, log *logger.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, log: log}
}

// NewRouter mounts the fixed /api/v1/orders contract.
func NewRouter(h *OrdersHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Get("/{order_id}", h.GetOrder)
		r.Put("/{order_id}", h.UpdateOrder)
		r.Delete("/{order_id}", h.DeleteOrder)
	})

	return otelhttp.NewHandler(r, "order-service")
}

type OrderRequestDTO struct {
	OrderID          string  `json:"orderId,omitempty"`
	OrderName        string  `json:"orderName"`
	CustomerID       string  `json:"customerId"`
	CatalogID        string  `json:"catalogId"`
	WatchID          string  `json:"watchId"`
	ServicePlanID    string  `json:"servicePlanId"`
	MSRP             float64 `json:"msrp"`
	Cost             float64 `json:"cost"`
	TotalOptionsCost float64 `json:"totalOptionsCost"`
	SaleCurrency     string  `json:"saleCurrency"`
	PaymentCurrency  string  `json:"paymentCurrency"`
	OrderDate        *string `json:"orderDate,omitempty"`
	OrderStatus      string  `json:"orderStatus,omitempty"`
}

type OrderResponseDTO struct {
	OrderID         string             `json:"orderId"`
	OrderName       string             `json:"orderName"`
	CustomerID      string             `json:"customerId"`
	CatalogID       string             `json:"catalogId"`
	WatchID         string             `json:"watchId"`
	ServicePlanID   string             `json:"servicePlanId"`
	Price           domain.Price       `json:"price"`
	SaleCurrency    domain.Currency    `json:"saleCurrency"`
	PaymentCurrency domain.Currency    `json:"paymentCurrency"`
	OrderDate       string             `json:"orderDate"`
	OrderStatus     domain.OrderStatus `json:"orderStatus"`
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var dto OrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_body", "request body is not valid JSON")
		return
	}

	req := &service.CreateOrderRequest{
		OrderID:       dto.OrderID,
		OrderName:     dto.OrderName,
		CustomerID:    dto.CustomerID,
		CatalogID:     dto.CatalogID,
		WatchID:       dto.WatchID,
		ServicePlanID: dto.ServicePlanID,
		Price: domain.Price{
			MSRP:             dto.MSRP,
			Cost:             dto.Cost,
			TotalOptionsCost: dto.TotalOptionsCost,
		},
		SaleCurrency:    dto.SaleCurrency,
		PaymentCurrency: dto.PaymentCurrency,
	}
	if dto.OrderDate != nil {
		parsed, err := time.Parse(time.RFC3339, *dto.OrderDate)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "invalid_input", "orderDate must be RFC3339")
			return
		}
		req.OrderDate = parsed
	}

	order, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertOrder(order))
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	view, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.orders.ListOrders(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if views == nil {
		views = []service.OrderView{}
	}
	respondJSON(w, http.StatusOK, views)
}

// PUT /api/v1/orders/{order_id}
func (h *OrdersHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	var dto OrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_body", "request body is not valid JSON")
		return
	}

	req := &service.UpdateOrderRequest{
		OrderName:       dto.OrderName,
		CustomerID:      dto.CustomerID,
		CatalogID:       dto.CatalogID,
		WatchID:         dto.WatchID,
		ServicePlanID:   dto.ServicePlanID,
		SaleCurrency:    dto.SaleCurrency,
		PaymentCurrency: dto.PaymentCurrency,
		Status:          domain.OrderStatus(dto.OrderStatus),
	}
	if dto.MSRP != 0 || dto.Cost != 0 || dto.TotalOptionsCost != 0 {
		req.Price = &domain.Price{
			MSRP:             dto.MSRP,
			Cost:             dto.Cost,
			TotalOptionsCost: dto.TotalOptionsCost,
		}
	}
	if dto.OrderDate != nil {
		parsed, err := time.Parse(time.RFC3339, *dto.OrderDate)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "invalid_input", "orderDate must be RFC3339")
			return
		}
		req.OrderDate = &parsed
	}

	order, err := h.orders.UpdateOrder(r.Context(), orderID, req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}

// DELETE /api/v1/orders/{order_id}
func (h *OrdersHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), orderID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	return OrderResponseDTO{
		OrderID:         o.OrderID,
		OrderName:       o.OrderName,
		CustomerID:      o.CustomerID,
		CatalogID:       o.CatalogID,
		WatchID:         o.WatchID,
		ServicePlanID:   o.ServicePlanID,
		Price:           o.Price,
		SaleCurrency:    o.SaleCurrency,
		PaymentCurrency: o.PaymentCurrency,
		OrderDate:       o.OrderDate.Format(time.RFC3339),
		OrderStatus:     o.Status,
	}
}

func (h *OrdersHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		respondError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrDuplicateOrderName):
		respondError(w, http.StatusConflict, "duplicate_order_name", err.Error())
	case errors.Is(err, service.ErrDuplicateWatchReservation):
		respondError(w, http.StatusConflict, "duplicate_watch_reservation", err.Error())
	case errors.Is(err, service.ErrInvalidStateTransition):
		respondError(w, http.StatusUnprocessableEntity, "invalid_state_transition", err.Error())
	case errors.Is(err, service.ErrUpstreamUnavailable):
		respondError(w, http.StatusServiceUnavailable, "upstream_unavailable", err.Error())
	default:
		h.log.Error("unhandled service error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Code: code, Message: message})
}
