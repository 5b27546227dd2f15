package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xtrntr/p2pex/internal/kyc"
	"github.com/xtrntr/p2pex/internal/models"
)

// SubmitKYC files a verification request. Document images live with an
// external storage collaborator; the core keeps only the metadata.
func (h *Handler) SubmitKYC(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		DocumentType   string `json:"document_type"`
		DocumentNumber string `json:"document_number"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		DateOfBirth    string `json:"date_of_birth"`
		Nationality    string `json:"nationality"`
		Address        string `json:"address"`
		City           string `json:"city"`
		PostalCode     string `json:"postal_code"`
		Country        string `json:"country"`
	}
	if !decode(w, r, &req) {
		return
	}
	record, err := h.KYC.Submit(r.Context(), p.UserID, kyc.SubmitInput{
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		DateOfBirth:    req.DateOfBirth,
		Nationality:    req.Nationality,
		Address:        req.Address,
		City:           req.City,
		PostalCode:     req.PostalCode,
		Country:        req.Country,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "verification submitted", "kyc": record})
}

// GetKYCStatus returns the caller's tier and latest verification state,
// enough for a client to explain a policy_violation denial.
func (h *Handler) GetKYCStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	record, err := h.KYC.Status(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	tier, err := h.KYC.TierFor(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	resp := map[string]any{"level": tier, "status": "none"}
	if record != nil {
		resp["status"] = record.Status
		if record.RejectionReason != "" {
			resp["rejection_reason"] = record.RejectionReason
		}
		if record.VerifiedAt != nil {
			resp["verified_at"] = record.VerifiedAt
		}
		if record.ExpiresAt != nil {
			resp["expires_at"] = record.ExpiresAt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPendingKYCs returns the admin review queue
func (h *Handler) GetPendingKYCs(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if p.Role != models.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
		return
	}
	records, err := h.KYC.ListPending(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kycs": records})
}

// ReviewKYC applies an admin decision to a pending verification
func (h *Handler) ReviewKYC(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	kycID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid kyc id"})
		return
	}
	var req struct {
		Status          string `json:"status"` // "approved" or "rejected"
		Level           int    `json:"level"`
		RejectionReason string `json:"rejection_reason"`
	}
	if !decode(w, r, &req) {
		return
	}

	reviewer, err := h.DB.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	record, err := h.KYC.Review(r.Context(), reviewer, kycID, kyc.ReviewInput{
		Approve:         req.Status == models.KYCApproved,
		Level:           req.Level,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "verification reviewed", "kyc": record})
}
