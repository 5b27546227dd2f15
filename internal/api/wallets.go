package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/models"
)

// GetUserWallets retrieves the caller's wallets
func (h *Handler) GetUserWallets(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	wallets, err := h.DB.ListUserWallets(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

// CreateWallet lazily creates the caller's wallet for a currency
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrencyID int `json:"currency_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.DB.GetCurrency(r.Context(), req.CurrencyID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	wallet, err := h.DB.GetOrCreateWallet(r.Context(), p.UserID, req.CurrencyID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "wallet ready", "wallet": wallet})
}

// GetWalletBalance returns the caller's balance for one currency
func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	currencyID, err := strconv.Atoi(chi.URLParam(r, "currencyId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid currency id"})
		return
	}
	wallet, err := h.DB.GetWalletByUserCurrency(r.Context(), p.UserID, currencyID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": map[string]any{
		"balance":        wallet.Balance,
		"frozen_balance": wallet.FrozenBalance,
	}})
}

// GetTransactionHistory returns the caller's ledger entries, paginated
func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txs, err := h.DB.ListUserTransactions(r.Context(), p.UserID, limit, offset)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// CreateDeposit files a deposit. Chain-backed deposits stay pending until
// confirmed; zero-confirmation deposits credit immediately.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrencyID            int             `json:"currency_id"`
		Amount                decimal.Decimal `json:"amount"`
		TxHash                string          `json:"tx_hash"`
		RequiredConfirmations int             `json:"required_confirmations"`
	}
	if !decode(w, r, &req) {
		return
	}
	txHash := req.TxHash
	if txHash == "" {
		// Internal payment reference for deposits without a chain hash.
		txHash = uuid.NewString()
	}
	tx, err := h.Ledger.Deposit(r.Context(), p.UserID, req.CurrencyID, req.Amount, txHash, req.RequiredConfirmations)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "deposit recorded", "transaction": tx})
}

// ConfirmDeposit records chain confirmations against a pending deposit,
// crediting the wallet once the required count is reached. Admin only; in
// production a payment-processor webhook would sit in front of this.
func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if p.Role != models.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
		return
	}
	transactionID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid transaction id"})
		return
	}
	var req struct {
		Confirmations int `json:"confirmations"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.Ledger.ConfirmDeposit(r.Context(), transactionID, req.Confirmations); err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deposit confirmation recorded"})
}

// Withdraw debits the caller's spendable balance for an external payout
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrencyID int             `json:"currency_id"`
		Amount     decimal.Decimal `json:"amount"`
		ToAddress  string          `json:"to_address"`
	}
	if !decode(w, r, &req) {
		return
	}
	wallet, err := h.DB.GetWalletByUserCurrency(r.Context(), p.UserID, req.CurrencyID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	tx, err := h.Ledger.Withdraw(r.Context(), wallet.ID, req.Amount, req.ToAddress)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "withdrawal recorded", "transaction": tx})
}
