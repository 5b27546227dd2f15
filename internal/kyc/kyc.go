// Package kyc holds the tier policy gate consulted by order creation and
// the verification record lifecycle that feeds it. The gate itself is a pure
// function of its inputs; tier changes only alter future checks.
package kyc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/models"
)

// Per-tier ceilings on a single order's total value, in units of the order
// currency. Tier 3 is uncapped.
var tierLimits = map[int]decimal.Decimal{
	0: decimal.NewFromInt(100),
	1: decimal.NewFromInt(1000),
	2: decimal.NewFromInt(10000),
}

const maxTier = 3

// TierLimit returns the order-value ceiling for a tier. ok is false for
// uncapped tiers.
func TierLimit(tier int) (limit decimal.Decimal, ok bool) {
	limit, ok = tierLimits[tier]
	return limit, ok
}

// CheckOrder is the policy gate: it admits or denies an order of the given
// amount and total value for a user at the given tier, against the currency's
// own bounds. It owns no state and performs no I/O.
func CheckOrder(tier int, amount, totalValue decimal.Decimal, c models.Currency) error {
	if amount.LessThan(c.MinOrderAmount) {
		return apperr.New(apperr.KindPolicyViolation,
			"amount %s below currency minimum %s", amount, c.MinOrderAmount)
	}
	if c.MaxOrderAmount.Sign() > 0 && amount.GreaterThan(c.MaxOrderAmount) {
		return apperr.New(apperr.KindPolicyViolation,
			"amount %s above currency maximum %s", amount, c.MaxOrderAmount)
	}
	if limit, capped := TierLimit(tier); capped && totalValue.GreaterThan(limit) {
		return apperr.New(apperr.KindPolicyViolation,
			"order value %s exceeds tier %d limit %s", totalValue, tier, limit)
	}
	return nil
}

// Store is the persistence surface for verification records.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateKYC(ctx context.Context, k *models.KYC) (models.KYC, error)
	GetKYCForUpdate(ctx context.Context, id int) (models.KYC, error)
	GetLatestKYCByUser(ctx context.Context, userID int) (*models.KYC, error)
	GetLatestApprovedKYC(ctx context.Context, userID int) (*models.KYC, error)
	UpdateKYCReview(ctx context.Context, k models.KYC) error
	ListPendingKYC(ctx context.Context) ([]models.KYC, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// approvals are valid for a year before the record expires and the tier
// falls back to 0.
const approvalValidity = 365 * 24 * time.Hour

// TierFor resolves a user's current tier: the level of the latest approved,
// unexpired record, else 0.
func (s *Service) TierFor(ctx context.Context, userID int) (int, error) {
	k, err := s.store.GetLatestApprovedKYC(ctx, userID)
	if err != nil {
		return 0, err
	}
	if k == nil {
		return 0, nil
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(s.now()) {
		return 0, nil
	}
	return k.Level, nil
}

// SubmitInput carries the document metadata of a verification request. The
// documents themselves live with an external storage collaborator.
type SubmitInput struct {
	DocumentType   string
	DocumentNumber string
	FirstName      string
	LastName       string
	DateOfBirth    string
	Nationality    string
	Address        string
	City           string
	PostalCode     string
	Country        string
}

var documentTypes = map[string]bool{
	"passport":        true,
	"id_card":         true,
	"driving_license": true,
}

// Submit files a verification request. A user may have only one pending
// submission at a time.
func (s *Service) Submit(ctx context.Context, userID int, in SubmitInput) (models.KYC, error) {
	if !documentTypes[in.DocumentType] {
		return models.KYC{}, apperr.New(apperr.KindInvalidInput, "unknown document type %q", in.DocumentType)
	}
	if in.DocumentNumber == "" || in.FirstName == "" || in.LastName == "" || in.Country == "" {
		return models.KYC{}, apperr.New(apperr.KindInvalidInput, "document number, name and country are required")
	}

	var created models.KYC
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		latest, err := s.store.GetLatestKYCByUser(ctx, userID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status == models.KYCPending {
			return apperr.New(apperr.KindConflict, "user %d already has a pending submission", userID)
		}
		created, err = s.store.CreateKYC(ctx, &models.KYC{
			UserID:         userID,
			Status:         models.KYCPending,
			DocumentType:   in.DocumentType,
			DocumentNumber: in.DocumentNumber,
			FirstName:      in.FirstName,
			LastName:       in.LastName,
			DateOfBirth:    in.DateOfBirth,
			Nationality:    in.Nationality,
			Address:        in.Address,
			City:           in.City,
			PostalCode:     in.PostalCode,
			Country:        in.Country,
		})
		return err
	})
	if err != nil {
		return models.KYC{}, err
	}
	return created, nil
}

// ReviewInput is an admin decision on a pending record.
type ReviewInput struct {
	Approve         bool
	Level           int
	RejectionReason string
}

// Review applies an admin decision. Approval assigns the tier level and the
// expiry window; rejection records the reason.
func (s *Service) Review(ctx context.Context, reviewer models.User, kycID int, in ReviewInput) (models.KYC, error) {
	if reviewer.Role != models.RoleAdmin {
		return models.KYC{}, apperr.New(apperr.KindPolicyViolation, "only admins review verifications")
	}
	if in.Approve && (in.Level < 1 || in.Level > maxTier) {
		return models.KYC{}, apperr.New(apperr.KindInvalidInput, "approval level must be 1-%d", maxTier)
	}
	if !in.Approve && in.RejectionReason == "" {
		return models.KYC{}, apperr.New(apperr.KindInvalidInput, "rejection requires a reason")
	}

	var reviewed models.KYC
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		k, err := s.store.GetKYCForUpdate(ctx, kycID)
		if err != nil {
			return err
		}
		if k.Status != models.KYCPending {
			return apperr.New(apperr.KindInvalidTransition,
				"verification %d is %s, not pending", kycID, k.Status)
		}
		if in.Approve {
			now := s.now().UTC()
			expires := now.Add(approvalValidity)
			k.Status = models.KYCApproved
			k.Level = in.Level
			k.VerifiedAt = &now
			k.ExpiresAt = &expires
		} else {
			k.Status = models.KYCRejected
			k.RejectionReason = in.RejectionReason
		}
		if err := s.store.UpdateKYCReview(ctx, k); err != nil {
			return err
		}
		reviewed = k
		return nil
	})
	if err != nil {
		return models.KYC{}, err
	}
	return reviewed, nil
}

// Status returns a user's latest verification record, if any.
func (s *Service) Status(ctx context.Context, userID int) (*models.KYC, error) {
	return s.store.GetLatestKYCByUser(ctx, userID)
}

// ListPending returns the admin review queue.
func (s *Service) ListPending(ctx context.Context) ([]models.KYC, error) {
	return s.store.ListPendingKYC(ctx)
}
