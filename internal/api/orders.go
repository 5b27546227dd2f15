package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/models"
	"github.com/xtrntr/p2pex/internal/order"
)

// CreateOrder handles order placement
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrencyID  int             `json:"currency_id"`
		Amount      decimal.Decimal `json:"amount"`
		Price       decimal.Decimal `json:"price"`
		Type        string          `json:"type"`
		Description string          `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}

	o, err := h.Orders.Create(r.Context(), p, order.CreateInput{
		CurrencyID:  req.CurrencyID,
		Amount:      req.Amount,
		Price:       req.Price,
		Type:        req.Type,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "order placed", "order": o})
}

// GetUserOrders retrieves the caller's orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	orders, err := h.Orders.ListMine(r.Context(), p, r.URL.Query().Get("status"), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetPendingOrders retrieves the agent matching queue
func (h *Handler) GetPendingOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	orders, err := h.Orders.ListPending(r.Context(), p)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// orderTransition runs one state transition handler.
func (h *Handler) orderTransition(w http.ResponseWriter, r *http.Request,
	fn func(p models.Principal, orderID int) (models.Order, error), message string) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	orderID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}
	o, err := fn(p, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "order": o})
}

// MatchOrder assigns the calling agent to a pending order
func (h *Handler) MatchOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, func(p models.Principal, id int) (models.Order, error) {
		return h.Orders.Match(r.Context(), p, id)
	}, "order matched")
}

// ConfirmOrder confirms a matched order
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, func(p models.Principal, id int) (models.Order, error) {
		return h.Orders.Confirm(r.Context(), p, id)
	}, "order confirmed")
}

// CompleteOrder settles a confirmed order
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, func(p models.Principal, id int) (models.Order, error) {
		return h.Orders.Complete(r.Context(), p, id)
	}, "order completed")
}

// CancelOrder cancels a pending or matched order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, func(p models.Principal, id int) (models.Order, error) {
		return h.Orders.Cancel(r.Context(), p, id)
	}, "order cancelled")
}
