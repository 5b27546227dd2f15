// Package order owns the order state machine. State transitions request
// ledger holds, releases and transfers as side effects, all inside one
// database transaction per operation, so an order can never be observed
// completed without its settlement (or vice versa).
package order

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/event"
	"github.com/xtrntr/p2pex/internal/kyc"
	"github.com/xtrntr/p2pex/internal/ledger"
	"github.com/xtrntr/p2pex/internal/models"
)

// Store is the persistence surface for orders plus the lookups order
// transitions depend on.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetUser(ctx context.Context, id int) (models.User, error)
	GetCurrency(ctx context.Context, id int) (models.Currency, error)
	GetOrCreateWallet(ctx context.Context, userID, currencyID int) (models.Wallet, error)
	CreateOrder(ctx context.Context, o *models.Order) (models.Order, error)
	GetOrder(ctx context.Context, id int) (models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int, status string) error
	SetOrderAgent(ctx context.Context, id, agentID int, status string) error
	ListUserOrders(ctx context.Context, userID int, status, orderType string) ([]models.Order, error)
	ListPendingOrders(ctx context.Context) ([]models.Order, error)
}

// TierSource resolves a user's KYC tier for the policy gate.
type TierSource interface {
	TierFor(ctx context.Context, userID int) (int, error)
}

type Service struct {
	store  Store
	ledger *ledger.Ledger
	tiers  TierSource
	events event.Publisher
	log    zerolog.Logger
}

func NewService(store Store, l *ledger.Ledger, tiers TierSource, events event.Publisher, log zerolog.Logger) *Service {
	return &Service{store: store, ledger: l, tiers: tiers, events: events, log: log}
}

type CreateInput struct {
	CurrencyID  int
	Amount      decimal.Decimal
	Price       decimal.Decimal
	Type        string
	Description string
}

// Create places a new order in pending and freezes the maker's funds behind
// it. The total value is computed here and fixed for the life of the order;
// later price changes never affect an open order's settlement.
func (s *Service) Create(ctx context.Context, p models.Principal, in CreateInput) (models.Order, error) {
	if p.Role != models.RoleCustomer {
		return models.Order{}, apperr.New(apperr.KindPolicyViolation, "only customers place orders")
	}
	if in.Type != models.OrderTypeBuy && in.Type != models.OrderTypeSell {
		return models.Order{}, apperr.New(apperr.KindInvalidInput, "type must be %q or %q", models.OrderTypeBuy, models.OrderTypeSell)
	}
	if in.Amount.Sign() <= 0 {
		return models.Order{}, apperr.New(apperr.KindInvalidInput, "amount must be positive")
	}
	if in.Price.Sign() <= 0 {
		return models.Order{}, apperr.New(apperr.KindInvalidInput, "price must be positive")
	}

	currency, err := s.store.GetCurrency(ctx, in.CurrencyID)
	if err != nil {
		return models.Order{}, err
	}
	if !currency.IsActive {
		return models.Order{}, apperr.New(apperr.KindInvalidInput, "currency %s is not active", currency.Symbol)
	}

	totalValue := in.Amount.Mul(in.Price)

	// Policy gate runs before any wallet mutation: a denial leaves no trace.
	tier, err := s.tiers.TierFor(ctx, p.UserID)
	if err != nil {
		return models.Order{}, err
	}
	if err := kyc.CheckOrder(tier, in.Amount, totalValue, currency); err != nil {
		return models.Order{}, err
	}

	var created models.Order
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		wallet, err := s.store.GetOrCreateWallet(ctx, p.UserID, in.CurrencyID)
		if err != nil {
			return err
		}
		created, err = s.store.CreateOrder(ctx, &models.Order{
			UserID:      p.UserID,
			CurrencyID:  in.CurrencyID,
			Amount:      in.Amount,
			Price:       in.Price,
			TotalValue:  totalValue,
			Type:        in.Type,
			Status:      models.OrderPending,
			Description: in.Description,
		})
		if err != nil {
			return err
		}
		if err := s.ledger.Hold(ctx, wallet.ID, created.HoldAmount()); err != nil {
			return err
		}
		s.publishTransition(ctx, created, "")
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return created, nil
}

// Match assigns the calling agent as counterparty. Valid only from pending.
func (s *Service) Match(ctx context.Context, p models.Principal, orderID int) (models.Order, error) {
	if p.Role != models.RoleAgent && p.Role != models.RoleAdmin {
		return models.Order{}, apperr.New(apperr.KindPolicyViolation, "only agents match orders")
	}
	var matched models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		agent, err := s.store.GetUser(ctx, p.UserID)
		if err != nil {
			return err
		}
		o, err := s.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderPending {
			return apperr.New(apperr.KindInvalidTransition, "order %d is %s, not pending", orderID, o.Status)
		}
		if o.UserID == agent.ID {
			return apperr.New(apperr.KindPolicyViolation, "cannot match own order")
		}
		if err := s.store.SetOrderAgent(ctx, o.ID, agent.ID, models.OrderMatched); err != nil {
			return err
		}
		o.AgentID = &agent.ID
		o.Status = models.OrderMatched
		matched = o
		s.publishTransition(ctx, matched, models.OrderPending)
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return matched, nil
}

// Confirm moves a matched order to confirmed. Only the assigned agent (or an
// admin) may confirm.
func (s *Service) Confirm(ctx context.Context, p models.Principal, orderID int) (models.Order, error) {
	var confirmed models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderMatched {
			return apperr.New(apperr.KindInvalidTransition, "order %d is %s, not matched", orderID, o.Status)
		}
		if !isAssignedAgent(o, p) && p.Role != models.RoleAdmin {
			return apperr.New(apperr.KindPolicyViolation, "only the assigned agent confirms this order")
		}
		if err := s.store.UpdateOrderStatus(ctx, o.ID, models.OrderConfirmed); err != nil {
			return err
		}
		o.Status = models.OrderConfirmed
		confirmed = o
		s.publishTransition(ctx, confirmed, models.OrderMatched)
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return confirmed, nil
}

// Complete settles a confirmed order: the maker's hold is transferred to the
// agent's wallet net of the currency trading fee, and the order becomes
// completed. Retrying against an already-completed order is a no-op success,
// never a double transfer.
func (s *Service) Complete(ctx context.Context, p models.Principal, orderID int) (models.Order, error) {
	var completed models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		// Capability first: strangers learn nothing from a retry, not even
		// that the order exists in a completed state.
		if !isParty(o, p) && p.Role != models.RoleAdmin {
			return apperr.New(apperr.KindPolicyViolation, "only order parties complete this order")
		}
		if o.Status == models.OrderCompleted {
			completed = o
			return nil
		}
		if o.Status != models.OrderConfirmed {
			return apperr.New(apperr.KindInvalidTransition, "order %d is %s, not confirmed", orderID, o.Status)
		}
		if o.AgentID == nil {
			return apperr.New(apperr.KindInvariantViolation, "confirmed order %d has no agent", orderID)
		}

		currency, err := s.store.GetCurrency(ctx, o.CurrencyID)
		if err != nil {
			return err
		}
		makerWallet, err := s.store.GetOrCreateWallet(ctx, o.UserID, o.CurrencyID)
		if err != nil {
			return err
		}
		agentWallet, err := s.store.GetOrCreateWallet(ctx, *o.AgentID, o.CurrencyID)
		if err != nil {
			return err
		}

		amount := o.HoldAmount()
		fee := amount.Mul(currency.TradingFee).Round(8)
		if _, err := s.ledger.Transfer(ctx, ledger.TransferInput{
			FromWalletID: makerWallet.ID,
			ToWalletID:   agentWallet.ID,
			Amount:       amount,
			Fee:          fee,
			OrderID:      &o.ID,
		}); err != nil {
			return err
		}
		if err := s.store.UpdateOrderStatus(ctx, o.ID, models.OrderCompleted); err != nil {
			return err
		}
		o.Status = models.OrderCompleted
		completed = o
		s.publishTransition(ctx, completed, models.OrderConfirmed)
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return completed, nil
}

// Cancel releases the maker's hold and terminates the order. Valid only from
// pending or matched.
func (s *Service) Cancel(ctx context.Context, p models.Principal, orderID int) (models.Order, error) {
	var cancelled models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != p.UserID && p.Role != models.RoleAdmin {
			return apperr.New(apperr.KindPolicyViolation, "only the maker cancels this order")
		}
		if o.Status != models.OrderPending && o.Status != models.OrderMatched {
			return apperr.New(apperr.KindInvalidTransition, "order %d is %s, not cancellable", orderID, o.Status)
		}
		from := o.Status

		wallet, err := s.store.GetOrCreateWallet(ctx, o.UserID, o.CurrencyID)
		if err != nil {
			return err
		}
		if err := s.ledger.Release(ctx, wallet.ID, o.HoldAmount()); err != nil {
			return err
		}
		if err := s.store.UpdateOrderStatus(ctx, o.ID, models.OrderCancelled); err != nil {
			return err
		}
		o.Status = models.OrderCancelled
		cancelled = o
		s.publishTransition(ctx, cancelled, from)
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return cancelled, nil
}

// Get returns one order, visible to its parties and admins.
func (s *Service) Get(ctx context.Context, p models.Principal, orderID int) (models.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if !isParty(o, p) && p.Role != models.RoleAdmin {
		return models.Order{}, apperr.New(apperr.KindNotFound, "order %d not found", orderID)
	}
	return o, nil
}

// ListMine returns the caller's orders, optionally filtered by status and type.
func (s *Service) ListMine(ctx context.Context, p models.Principal, status, orderType string) ([]models.Order, error) {
	return s.store.ListUserOrders(ctx, p.UserID, status, orderType)
}

// ListPending returns the agent-facing queue of unmatched orders.
func (s *Service) ListPending(ctx context.Context, p models.Principal) ([]models.Order, error) {
	if p.Role != models.RoleAgent && p.Role != models.RoleAdmin {
		return nil, apperr.New(apperr.KindPolicyViolation, "only agents browse pending orders")
	}
	return s.store.ListPendingOrders(ctx)
}

func isAssignedAgent(o models.Order, p models.Principal) bool {
	return o.AgentID != nil && *o.AgentID == p.UserID
}

func isParty(o models.Order, p models.Principal) bool {
	return o.UserID == p.UserID || isAssignedAgent(o, p)
}

// publishTransition raises the transition event through the context's
// buffer, so nothing is announced until the enclosing transaction commits.
func (s *Service) publishTransition(ctx context.Context, o models.Order, from string) {
	if o.ID == 0 {
		return
	}
	event.Publish(ctx, s.events, event.OrderStateChanged(o, from))
}
