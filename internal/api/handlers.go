// Package api exposes the core over HTTP. Handlers decode requests, resolve
// the authenticated principal and delegate to the services; every capability
// decision lives in the services, never in client-side state.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/auth"
	"github.com/xtrntr/p2pex/internal/db"
	"github.com/xtrntr/p2pex/internal/dispute"
	"github.com/xtrntr/p2pex/internal/kyc"
	"github.com/xtrntr/p2pex/internal/ledger"
	"github.com/xtrntr/p2pex/internal/models"
	"github.com/xtrntr/p2pex/internal/order"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB       *db.DB
	Auth     *auth.Service
	Orders   *order.Service
	Ledger   *ledger.Ledger
	Disputes *dispute.Service
	KYC      *kyc.Service
	Log      zerolog.Logger
}

// NewHandler creates a new handler
func NewHandler(database *db.DB, authSvc *auth.Service, orders *order.Service, l *ledger.Ledger, disputes *dispute.Service, kycSvc *kyc.Service, log zerolog.Logger) *Handler {
	return &Handler{
		DB:       database,
		Auth:     authSvc,
		Orders:   orders,
		Ledger:   l,
		Disputes: disputes,
		KYC:      kycSvc,
		Log:      log,
	}
}

type ctxKey int

const principalKey ctxKey = iota

func principalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// AuthMiddleware verifies the bearer token and attaches the principal to the
// request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization header required"})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		p, err := h.Auth.PrincipalFromToken(tokenString)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return p, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
			"kind":  string(apperr.KindInvalidInput),
		})
		return false
	}
	return true
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}

	user, err := h.Auth.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "registered", "user": user})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, user, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// ListCurrencies returns the active currencies and their bounds.
func (h *Handler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.DB.ListActiveCurrencies(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currencies": currencies})
}
