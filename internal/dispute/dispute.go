// Package dispute arbitrates contested orders. The arbiter is the only
// component allowed to force a ledger reversal against a settled order.
package dispute

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/event"
	"github.com/xtrntr/p2pex/internal/ledger"
	"github.com/xtrntr/p2pex/internal/models"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateDispute(ctx context.Context, d *models.Dispute) (models.Dispute, error)
	GetDispute(ctx context.Context, id int) (models.Dispute, error)
	GetDisputeForUpdate(ctx context.Context, id int) (models.Dispute, error)
	UpdateDispute(ctx context.Context, d models.Dispute) error
	HasActiveDispute(ctx context.Context, orderID int) (bool, error)
	ListUserDisputes(ctx context.Context, userID int) ([]models.Dispute, error)
	ListDisputes(ctx context.Context, status string) ([]models.Dispute, error)
	GetOrderForUpdate(ctx context.Context, id int) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int, status string) error
	GetOrCreateWallet(ctx context.Context, userID, currencyID int) (models.Wallet, error)
	// GetSettledTradeByOrder returns the order's original trade entry,
	// excluding compensating reversal entries, or nil if the order never
	// settled.
	GetSettledTradeByOrder(ctx context.Context, orderID int) (*models.Transaction, error)
}

type Service struct {
	store  Store
	ledger *ledger.Ledger
	events event.Publisher
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, l *ledger.Ledger, events event.Publisher, log zerolog.Logger) *Service {
	return &Service{store: store, ledger: l, events: events, log: log, now: time.Now}
}

type OpenInput struct {
	OrderID     int
	Reason      string
	Description string
}

// Open files a dispute against a confirmed or completed order. The caller
// must be a party to the order; the respondent is derived as the other
// party. An order carries at most one active dispute at a time.
func (s *Service) Open(ctx context.Context, p models.Principal, in OpenInput) (models.Dispute, error) {
	if in.Reason == "" {
		return models.Dispute{}, apperr.New(apperr.KindInvalidInput, "reason is required")
	}
	var opened models.Dispute
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderConfirmed && o.Status != models.OrderCompleted {
			return apperr.New(apperr.KindInvalidTransition,
				"order %d is %s, disputes require confirmed or completed", in.OrderID, o.Status)
		}
		if o.AgentID == nil {
			return apperr.New(apperr.KindInvariantViolation, "order %d in %s has no agent", o.ID, o.Status)
		}

		var respondent int
		switch p.UserID {
		case o.UserID:
			respondent = *o.AgentID
		case *o.AgentID:
			respondent = o.UserID
		default:
			return apperr.New(apperr.KindPolicyViolation, "only order parties open disputes")
		}

		active, err := s.store.HasActiveDispute(ctx, o.ID)
		if err != nil {
			return err
		}
		if active {
			return apperr.New(apperr.KindConflict, "order %d already has an active dispute", o.ID)
		}

		opened, err = s.store.CreateDispute(ctx, &models.Dispute{
			OrderID:      o.ID,
			InitiatorID:  p.UserID,
			RespondentID: respondent,
			Reason:       in.Reason,
			Description:  in.Description,
			Status:       models.DisputeOpen,
		})
		if err != nil {
			return err
		}
		if err := s.store.UpdateOrderStatus(ctx, o.ID, models.OrderDisputed); err != nil {
			return err
		}
		event.Publish(ctx, s.events, event.DisputeOpened(opened))
		return nil
	})
	if err != nil {
		return models.Dispute{}, err
	}
	return opened, nil
}

type ResolveInput struct {
	Resolution string
	Reverse    bool
}

// Resolve records an arbiter decision. When the decision calls for a
// reversal the order's settlement is compensated through the ledger (or its
// hold released, when the dispute predates settlement) and the order ends
// reversed; otherwise the order returns to its pre-dispute status, derived
// from whether a settled trade entry exists.
func (s *Service) Resolve(ctx context.Context, p models.Principal, disputeID int, in ResolveInput) (models.Dispute, error) {
	if p.Role != models.RoleAdmin {
		return models.Dispute{}, apperr.New(apperr.KindPolicyViolation, "only admins resolve disputes")
	}
	if in.Resolution == "" {
		return models.Dispute{}, apperr.New(apperr.KindInvalidInput, "resolution is required")
	}

	var resolved models.Dispute
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.store.GetDisputeForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != models.DisputeOpen && d.Status != models.DisputeInReview {
			return apperr.New(apperr.KindInvalidTransition, "dispute %d is %s, not open", disputeID, d.Status)
		}
		// A reversal may only be forced while the dispute is still open.
		// Once escalated to in_review the arbiter can record a decision but
		// not unwind the settlement.
		if in.Reverse && d.Status != models.DisputeOpen {
			return apperr.New(apperr.KindInvalidTransition,
				"dispute %d is %s; reversal requires an open dispute", disputeID, d.Status)
		}

		o, err := s.store.GetOrderForUpdate(ctx, d.OrderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderDisputed {
			err := apperr.New(apperr.KindInvariantViolation,
				"dispute %d active but order %d is %s", d.ID, o.ID, o.Status)
			s.log.Error().Err(err).Int("order_id", o.ID).Msg("dispute invariant violated")
			return err
		}

		trade, err := s.store.GetSettledTradeByOrder(ctx, o.ID)
		if err != nil {
			return err
		}

		if in.Reverse {
			if trade != nil {
				if _, err := s.ledger.Reverse(ctx, trade.ID); err != nil {
					return err
				}
			} else {
				// Disputed before settlement: the maker's hold is still in
				// place, so releasing it undoes the order's economic effect.
				wallet, err := s.store.GetOrCreateWallet(ctx, o.UserID, o.CurrencyID)
				if err != nil {
					return err
				}
				if err := s.ledger.Release(ctx, wallet.ID, o.HoldAmount()); err != nil {
					return err
				}
			}
			if err := s.store.UpdateOrderStatus(ctx, o.ID, models.OrderReversed); err != nil {
				return err
			}
		} else {
			back := models.OrderConfirmed
			if trade != nil {
				back = models.OrderCompleted
			}
			if err := s.store.UpdateOrderStatus(ctx, o.ID, back); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		d.Status = models.DisputeResolved
		d.Resolution = in.Resolution
		d.ResolvedBy = &p.UserID
		d.ResolvedAt = &now
		if err := s.store.UpdateDispute(ctx, d); err != nil {
			return err
		}
		resolved = d
		event.Publish(ctx, s.events, event.DisputeResolved(resolved, in.Reverse))
		return nil
	})
	if err != nil {
		return models.Dispute{}, err
	}
	return resolved, nil
}

// Close is the administrative terminal step. Valid only from resolved; a
// closed dispute permits no further mutation.
func (s *Service) Close(ctx context.Context, p models.Principal, disputeID int) (models.Dispute, error) {
	if p.Role != models.RoleAdmin {
		return models.Dispute{}, apperr.New(apperr.KindPolicyViolation, "only admins close disputes")
	}
	var closed models.Dispute
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.store.GetDisputeForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != models.DisputeResolved {
			return apperr.New(apperr.KindInvalidTransition, "dispute %d is %s, not resolved", disputeID, d.Status)
		}
		d.Status = models.DisputeClosed
		if err := s.store.UpdateDispute(ctx, d); err != nil {
			return err
		}
		closed = d
		return nil
	})
	if err != nil {
		return models.Dispute{}, err
	}
	return closed, nil
}

// ListMine returns disputes the caller initiated or responds to.
func (s *Service) ListMine(ctx context.Context, p models.Principal) ([]models.Dispute, error) {
	return s.store.ListUserDisputes(ctx, p.UserID)
}

// ListAll is the admin view, optionally filtered by status.
func (s *Service) ListAll(ctx context.Context, p models.Principal, status string) ([]models.Dispute, error) {
	if p.Role != models.RoleAdmin {
		return nil, apperr.New(apperr.KindPolicyViolation, "only admins list all disputes")
	}
	return s.store.ListDisputes(ctx, status)
}
