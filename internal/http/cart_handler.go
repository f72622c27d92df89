package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type CartService interface {
	GetOrCreate(ctx context.Context, ownerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, ownerID string, productID int64, quantity int) (*domain.CartLine, error)
	UpdateItemQuantity(ctx context.Context, ownerID, lineID string, quantity int) error
	RemoveItem(ctx context.Context, ownerID, lineID string) error
	Clear(ctx context.Context, ownerID string) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewCartHandler(carts CartService, timeout time.Duration, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartLineDTO struct {
	ID                string `json:"id"`
	ProductID         int64  `json:"product_id"`
	Quantity          int    `json:"quantity"`
	UnitPriceSnapshot string `json:"unit_price_snapshot"`
	AddedAt           string `json:"added_at"`
}

type CartDTO struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Lines     []CartLineDTO `json:"lines"`
	ItemCount int           `json:"item_count"`
	Subtotal  string        `json:"subtotal"`
	Version   int64         `json:"version"`
	UpdatedAt string        `json:"updated_at"`
}

func toCartLineDTO(l domain.CartLine) CartLineDTO {
	return CartLineDTO{
		ID:                l.ID,
		ProductID:         l.ProductID,
		Quantity:          l.Quantity,
		UnitPriceSnapshot: l.UnitPriceSnapshot.StringFixed(2),
		AddedAt:           l.AddedAt.UTC().Format(time.RFC3339),
	}
}

func toCartDTO(c *domain.Cart) CartDTO {
	lines := make([]CartLineDTO, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, toCartLineDTO(l))
	}
	return CartDTO{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Lines:     lines,
		ItemCount: c.ItemCount(),
		Subtotal:  c.Subtotal().StringFixed(2),
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.respondCart(ctx, w, r, http.StatusOK)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	line, err := h.carts.AddItem(ctx, ownerFromContext(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, toCartLineDTO(*line))
}

// PUT /api/v1/cart/items/{line_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lineID := chi.URLParam(r, "line_id")
	if lineID == "" {
		respondError(w, http.StatusBadRequest, "missing_line_id", "line_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.carts.UpdateItemQuantity(ctx, ownerFromContext(r.Context()), lineID, req.Quantity); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	h.respondCart(ctx, w, r, http.StatusOK)
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lineID := chi.URLParam(r, "line_id")
	if lineID == "" {
		respondError(w, http.StatusBadRequest, "missing_line_id", "line_id is required")
		return
	}

	if err := h.carts.RemoveItem(ctx, ownerFromContext(r.Context()), lineID); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	h.respondCart(ctx, w, r, http.StatusOK)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.Clear(ctx, ownerFromContext(r.Context())); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	h.respondCart(ctx, w, r, http.StatusOK)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, status int) {
	c, err := h.carts.GetOrCreate(ctx, ownerFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, status, toCartDTO(c))
}
