package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OrderService interface {
	CreateOrder(ctx context.Context, ownerID string) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, ownerID string) ([]*domain.Order, error)
	GetStatusHistory(ctx context.Context, id uuid.UUID) ([]domain.StatusChange, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, newStatus string) error
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, log logrus.FieldLogger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type OrderItemDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

type OrderResponseDTO struct {
	ID            string         `json:"id"`
	Number        string         `json:"number"`
	TotalAmount   string         `json:"total_amount"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	Items         []OrderItemDTO `json:"items"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	CancelledAt   *string        `json:"cancelled_at,omitempty"`
}

type StatusChangeDTO struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

func toOrderDTO(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Subtotal:    it.Subtotal().StringFixed(2),
		})
	}

	dto := OrderResponseDTO{
		ID:            o.ID.String(),
		Number:        o.Number,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		Status:        o.Status.String(),
		PaymentStatus: o.PaymentStatus.String(),
		Items:         items,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if o.CancelledAt != nil {
		s := o.CancelledAt.UTC().Format(time.RFC3339)
		dto.CancelledAt = &s
	}
	return dto
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.CreateOrder(ctx, ownerFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderDTO(order))
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, ownerFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderDTO(o))
	}

	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.ownedOrder(ctx, w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// GET /api/v1/orders/{order_id}/history
func (h *OrdersHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.ownedOrder(ctx, w, r)
	if !ok {
		return
	}

	history, err := h.orders.GetStatusHistory(ctx, order.ID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	dtos := make([]StatusChangeDTO, 0, len(history))
	for _, ch := range history {
		dtos = append(dtos, StatusChangeDTO{
			From:      ch.From.String(),
			To:        ch.To.String(),
			Comment:   ch.Comment,
			CreatedAt: ch.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	respondJSON(w, http.StatusOK, dtos)
}

// POST /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.ownedOrder(ctx, w, r)
	if !ok {
		return
	}

	cancelled, err := h.orders.CancelOrder(ctx, order.ID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if !cancelled {
		handleServiceError(w, r, h.log, domain.ErrNotCancellable)
		return
	}

	h.respondOrder(ctx, w, r, order.ID)
}

// PUT /api/v1/orders/{order_id}/status
//
// Operator only; not restricted to the order's owner.
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, req, ok := parseStatusRequest(w, r)
	if !ok {
		return
	}

	if err := h.orders.UpdateStatus(ctx, id, req.Status); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"admin":    adminFromContext(r.Context()),
		"order_id": id,
		"status":   req.Status,
	}).Info("order status set by operator")

	h.respondOrder(ctx, w, r, id)
}

// PUT /api/v1/orders/{order_id}/payment-status
func (h *OrdersHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, req, ok := parseStatusRequest(w, r)
	if !ok {
		return
	}

	if err := h.orders.UpdatePaymentStatus(ctx, id, req.Status); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"admin":    adminFromContext(r.Context()),
		"order_id": id,
		"status":   req.Status,
	}).Info("payment status set by operator")

	h.respondOrder(ctx, w, r, id)
}

// ownedOrder loads the order named in the path. Orders of other owners are
// reported as not found.
func (h *OrdersHandler) ownedOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return nil, false
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return nil, false
	}
	if order.OwnerID != ownerFromContext(r.Context()) {
		handleServiceError(w, r, h.log, domain.ErrOrderNotFound)
		return nil, false
	}
	return order, true
}

func (h *OrdersHandler) respondOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(orderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseStatusRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, UpdateStatusRequestDTO, bool) {
	var req UpdateStatusRequestDTO
	id, ok := parseOrderID(w, r)
	if !ok {
		return id, req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"status\": \"...\"}")
		return id, req, false
	}
	return id, req, true
}
