package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xtrntr/p2pex/internal/dispute"
)

// CreateDispute opens a dispute against a confirmed or completed order
func (h *Handler) CreateDispute(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		OrderID     int    `json:"order_id"`
		Reason      string `json:"reason"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Disputes.Open(r.Context(), p, dispute.OpenInput{
		OrderID:     req.OrderID,
		Reason:      req.Reason,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "dispute opened", "dispute": d})
}

// GetUserDisputes returns disputes the caller participates in
func (h *Handler) GetUserDisputes(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	disputes, err := h.Disputes.ListMine(r.Context(), p)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": disputes})
}

// GetAllDisputes is the admin queue, optionally filtered by status
func (h *Handler) GetAllDisputes(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	disputes, err := h.Disputes.ListAll(r.Context(), p, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": disputes})
}

// ResolveDispute records an arbiter decision, optionally reversing the
// order's settlement
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	disputeID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid dispute id"})
		return
	}
	var req struct {
		Resolution string `json:"resolution"`
		Reverse    bool   `json:"reverse"`
	}
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Disputes.Resolve(r.Context(), p, disputeID, dispute.ResolveInput{
		Resolution: req.Resolution,
		Reverse:    req.Reverse,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "dispute resolved", "dispute": d})
}

// CloseDispute is the administrative terminal step
func (h *Handler) CloseDispute(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	disputeID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid dispute id"})
		return
	}
	d, err := h.Disputes.Close(r.Context(), p, disputeID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "dispute closed", "dispute": d})
}
