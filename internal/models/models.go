package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User roles
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleAdmin    = "admin"
)

// Order types
const (
	OrderTypeBuy  = "buy"
	OrderTypeSell = "sell"
)

// Order statuses
const (
	OrderPending   = "pending"
	OrderMatched   = "matched"
	OrderConfirmed = "confirmed"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
	OrderDisputed  = "disputed"
	OrderReversed  = "reversed"
)

// Transaction types
const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxTrade      = "trade"
	TxFee        = "fee"
	TxReward     = "reward"
)

// Transaction statuses
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// Dispute statuses
const (
	DisputeOpen     = "open"
	DisputeInReview = "in_review"
	DisputeResolved = "resolved"
	DisputeClosed   = "closed"
)

// KYC statuses
const (
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
	KYCExpired  = "expired"
)

// Principal is the authenticated caller supplied by the access layer. The
// core trusts it and authorizes every mutating call against its role.
type Principal struct {
	UserID int
	Role   string
}

// User represents a registered user
type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Role         string    `json:"role"` // "customer", "agent" or "admin"
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Currency is a tradable currency with its order bounds and fee rate
type Currency struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	IsActive       bool            `json:"is_active"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	MaxOrderAmount decimal.Decimal `json:"max_order_amount"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	TradingFee     decimal.Decimal `json:"trading_fee"` // fraction of the settled amount
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Wallet holds a user's funds in one currency. Balance is spendable;
// FrozenBalance backs open orders. Neither is ever negative, and only the
// ledger writes them.
type Wallet struct {
	ID            int             `json:"id"`
	UserID        int             `json:"user_id"`
	CurrencyID    int             `json:"currency_id"`
	Balance       decimal.Decimal `json:"balance"`
	FrozenBalance decimal.Decimal `json:"frozen_balance"`
	Address       string          `json:"address,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger entry. Entries are never edited once
// confirmed, only superseded by compensating entries.
type Transaction struct {
	ID                    int             `json:"id"`
	UserID                int             `json:"user_id"`
	WalletID              int             `json:"wallet_id"`
	OrderID               *int            `json:"order_id,omitempty"`
	Type                  string          `json:"type"` // deposit, withdrawal, trade, fee, reward
	Amount                decimal.Decimal `json:"amount"`
	Fee                   decimal.Decimal `json:"fee"`
	Status                string          `json:"status"`
	TxHash                string          `json:"tx_hash,omitempty"`
	FromAddress           string          `json:"from_address,omitempty"`
	ToAddress             string          `json:"to_address,omitempty"`
	Confirmations         int             `json:"confirmations"`
	RequiredConfirmations int             `json:"required_confirmations"`
	Metadata              map[string]any  `json:"metadata,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Order represents a buy or sell intent placed by a customer (the maker)
// and settled against a matched agent.
type Order struct {
	ID          int             `json:"id"`
	UserID      int             `json:"user_id"`
	AgentID     *int            `json:"agent_id,omitempty"`
	CurrencyID  int             `json:"currency_id"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	TotalValue  decimal.Decimal `json:"total_value"` // amount*price, fixed at creation
	Type        string          `json:"type"`        // "buy" or "sell"
	Status      string          `json:"status"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HoldAmount is the amount frozen in the maker's wallet for the life of the
// order: the full order value for a buy, the asset amount for a sell.
func (o Order) HoldAmount() decimal.Decimal {
	if o.Type == OrderTypeBuy {
		return o.TotalValue
	}
	return o.Amount
}

// Dispute contests a confirmed or completed order. At most one non-closed
// dispute exists per order.
type Dispute struct {
	ID           int        `json:"id"`
	OrderID      int        `json:"order_id"`
	InitiatorID  int        `json:"initiator_id"`
	RespondentID int        `json:"respondent_id"`
	Reason       string     `json:"reason"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Resolution   string     `json:"resolution,omitempty"`
	ResolvedBy   *int       `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// KYC is a verification record. The latest approved, unexpired record
// determines a user's tier.
type KYC struct {
	ID              int        `json:"id"`
	UserID          int        `json:"user_id"`
	Level           int        `json:"level"` // 0-3
	Status          string     `json:"status"`
	DocumentType    string     `json:"document_type"`
	DocumentNumber  string     `json:"document_number"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	DateOfBirth     string     `json:"date_of_birth"`
	Nationality     string     `json:"nationality"`
	Address         string     `json:"address"`
	City            string     `json:"city"`
	PostalCode      string     `json:"postal_code"`
	Country         string     `json:"country"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
