package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/event"
	"github.com/xtrntr/p2pex/internal/ledger"
	"github.com/xtrntr/p2pex/internal/models"
)

// fakeStore backs both the order service and the ledger in memory, the same
// way the real db.DB serves both. WithTx mirrors the real store: it installs
// the event buffer and flushes it only when fn succeeds. failStatusOn makes
// UpdateOrderStatus fail when writing that status, simulating a commit-time
// failure mid-operation.
type fakeStore struct {
	users        map[int]models.User
	currencies   map[int]models.Currency
	wallets      map[int]*models.Wallet
	orders       map[int]*models.Order
	txs          map[int]*models.Transaction
	nextID       int
	failStatusOn string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[int]models.User),
		currencies: make(map[int]models.Currency),
		wallets:    make(map[int]*models.Wallet),
		orders:     make(map[int]*models.Order),
		txs:        make(map[int]*models.Transaction),
		nextID:     1,
	}
}

func (s *fakeStore) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, flush := event.Buffer(ctx)
	if err := fn(ctx); err != nil {
		return err
	}
	flush()
	return nil
}

func (s *fakeStore) GetUser(ctx context.Context, id int) (models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return models.User{}, apperr.New(apperr.KindNotFound, "user %d not found", id)
	}
	return u, nil
}

func (s *fakeStore) GetCurrency(ctx context.Context, id int) (models.Currency, error) {
	c, ok := s.currencies[id]
	if !ok {
		return models.Currency{}, apperr.New(apperr.KindNotFound, "currency %d not found", id)
	}
	return c, nil
}

func (s *fakeStore) GetOrCreateWallet(ctx context.Context, userID, currencyID int) (models.Wallet, error) {
	for _, w := range s.wallets {
		if w.UserID == userID && w.CurrencyID == currencyID {
			return *w, nil
		}
	}
	w := &models.Wallet{ID: s.id(), UserID: userID, CurrencyID: currencyID,
		Balance: decimal.Zero, FrozenBalance: decimal.Zero}
	s.wallets[w.ID] = w
	return *w, nil
}

func (s *fakeStore) GetWalletForUpdate(ctx context.Context, walletID int) (models.Wallet, error) {
	w, ok := s.wallets[walletID]
	if !ok {
		return models.Wallet{}, apperr.New(apperr.KindNotFound, "wallet %d not found", walletID)
	}
	return *w, nil
}

func (s *fakeStore) UpdateWalletBalances(ctx context.Context, walletID int, balance, frozen decimal.Decimal) error {
	w, ok := s.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet %d not found", walletID)
	}
	if balance.IsNegative() || frozen.IsNegative() {
		return fmt.Errorf("negative balance write rejected for wallet %d", walletID)
	}
	w.Balance = balance
	w.FrozenBalance = frozen
	return nil
}

func (s *fakeStore) CreateTransaction(ctx context.Context, tx *models.Transaction) (models.Transaction, error) {
	stored := *tx
	stored.ID = s.id()
	s.txs[stored.ID] = &stored
	return stored, nil
}

func (s *fakeStore) GetTransactionForUpdate(ctx context.Context, id int) (models.Transaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return models.Transaction{}, apperr.New(apperr.KindNotFound, "transaction %d not found", id)
	}
	return *tx, nil
}

func (s *fakeStore) UpdateTransactionStatus(ctx context.Context, id int, status string, confirmations int) error {
	tx, ok := s.txs[id]
	if !ok {
		return fmt.Errorf("transaction %d not found", id)
	}
	tx.Status = status
	tx.Confirmations = confirmations
	return nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, o *models.Order) (models.Order, error) {
	stored := *o
	stored.ID = s.id()
	s.orders[stored.ID] = &stored
	return stored, nil
}

func (s *fakeStore) GetOrder(ctx context.Context, id int) (models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, apperr.New(apperr.KindNotFound, "order %d not found", id)
	}
	return *o, nil
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, id int) (models.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, id int, status string) error {
	if s.failStatusOn != "" && status == s.failStatusOn {
		return fmt.Errorf("status write failed for order %d", id)
	}
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %d not found", id)
	}
	o.Status = status
	return nil
}

func (s *fakeStore) SetOrderAgent(ctx context.Context, id, agentID int, status string) error {
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %d not found", id)
	}
	o.AgentID = &agentID
	o.Status = status
	return nil
}

func (s *fakeStore) ListUserOrders(ctx context.Context, userID int, status, orderType string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		if orderType != "" && o.Type != orderType {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *fakeStore) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderPending {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeStore) countTrades() int {
	n := 0
	for _, tx := range s.txs {
		if tx.Type == models.TxTrade {
			n++
		}
	}
	return n
}

// capturePublisher records every delivered event in order.
type capturePublisher struct {
	events []event.Event
}

func (p *capturePublisher) Publish(e event.Event) {
	p.events = append(p.events, e)
}

// fixedTiers is a TierSource with a static tier per user.
type fixedTiers map[int]int

func (t fixedTiers) TierFor(ctx context.Context, userID int) (int, error) {
	return t[userID], nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const (
	makerID    = 1
	agentID    = 2
	adminID    = 3
	treasuryID = 900
	usdID      = 10
)

var (
	maker = models.Principal{UserID: makerID, Role: models.RoleCustomer}
	agent = models.Principal{UserID: agentID, Role: models.RoleAgent}
	admin = models.Principal{UserID: adminID, Role: models.RoleAdmin}
)

// newTestService wires a service over a fake store with a funded maker, an
// agent and one active USD currency charging a 1% fee.
func newTestService(tiers fixedTiers) (*Service, *fakeStore) {
	return newTestServiceEvents(tiers, nil)
}

func newTestServiceEvents(tiers fixedTiers, events event.Publisher) (*Service, *fakeStore) {
	store := newFakeStore()
	store.users[makerID] = models.User{ID: makerID, Username: "alice", Role: models.RoleCustomer}
	store.users[agentID] = models.User{ID: agentID, Username: "agent1", Role: models.RoleAgent}
	store.users[adminID] = models.User{ID: adminID, Username: "admin", Role: models.RoleAdmin}
	store.currencies[usdID] = models.Currency{
		ID: usdID, Symbol: "USD", IsActive: true,
		MinOrderAmount: dec("1"), MaxOrderAmount: dec("100000"),
		TradingFee: dec("0.01"),
	}
	w := &models.Wallet{ID: store.id(), UserID: makerID, CurrencyID: usdID,
		Balance: dec("100"), FrozenBalance: decimal.Zero}
	store.wallets[w.ID] = w

	if tiers == nil {
		tiers = fixedTiers{makerID: 3}
	}
	l := ledger.New(store, treasuryID, events, zerolog.Nop())
	return NewService(store, l, tiers, events, zerolog.Nop()), store
}

func makerWallet(t *testing.T, store *fakeStore) *models.Wallet {
	t.Helper()
	for _, w := range store.wallets {
		if w.UserID == makerID && w.CurrencyID == usdID {
			return w
		}
	}
	t.Fatal("maker wallet not found")
	return nil
}

func TestService_Create(t *testing.T) {
	svc, store := newTestService(nil)

	o, err := svc.Create(context.Background(), maker, CreateInput{
		CurrencyID: usdID, Amount: dec("10"), Price: dec("2"), Type: models.OrderTypeBuy,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != models.OrderPending {
		t.Errorf("expected pending, got %s", o.Status)
	}
	if !o.TotalValue.Equal(dec("20")) {
		t.Errorf("expected total value 20, got %s", o.TotalValue)
	}

	// A buy order freezes its full value in the maker's wallet.
	w := makerWallet(t, store)
	if !w.Balance.Equal(dec("80")) || !w.FrozenBalance.Equal(dec("20")) {
		t.Errorf("expected balance 80 / frozen 20, got %s / %s", w.Balance, w.FrozenBalance)
	}
}

func TestService_Create_SellHoldsAmount(t *testing.T) {
	svc, store := newTestService(nil)

	_, err := svc.Create(context.Background(), maker, CreateInput{
		CurrencyID: usdID, Amount: dec("30"), Price: dec("2"), Type: models.OrderTypeSell,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// A sell order freezes the asset amount, not the total value.
	w := makerWallet(t, store)
	if !w.FrozenBalance.Equal(dec("30")) {
		t.Errorf("expected frozen 30, got %s", w.FrozenBalance)
	}
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name     string
		p        models.Principal
		in       CreateInput
		wantKind apperr.Kind
	}{
		{
			name:     "AgentCannotPlace",
			p:        agent,
			in:       CreateInput{CurrencyID: usdID, Amount: dec("10"), Price: dec("1"), Type: models.OrderTypeBuy},
			wantKind: apperr.KindPolicyViolation,
		},
		{
			name:     "BadType",
			p:        maker,
			in:       CreateInput{CurrencyID: usdID, Amount: dec("10"), Price: dec("1"), Type: "short"},
			wantKind: apperr.KindInvalidInput,
		},
		{
			name:     "ZeroAmount",
			p:        maker,
			in:       CreateInput{CurrencyID: usdID, Amount: dec("0"), Price: dec("1"), Type: models.OrderTypeBuy},
			wantKind: apperr.KindInvalidInput,
		},
		{
			name:     "NegativePrice",
			p:        maker,
			in:       CreateInput{CurrencyID: usdID, Amount: dec("10"), Price: dec("-1"), Type: models.OrderTypeBuy},
			wantKind: apperr.KindInvalidInput,
		},
		{
			name:     "UnknownCurrency",
			p:        maker,
			in:       CreateInput{CurrencyID: 99, Amount: dec("10"), Price: dec("1"), Type: models.OrderTypeBuy},
			wantKind: apperr.KindNotFound,
		},
		{
			name:     "BelowCurrencyMinimum",
			p:        maker,
			in:       CreateInput{CurrencyID: usdID, Amount: dec("0.5"), Price: dec("1"), Type: models.OrderTypeBuy},
			wantKind: apperr.KindPolicyViolation,
		},
		{
			name:     "InsufficientFunds",
			p:        maker,
			in:       CreateInput{CurrencyID: usdID, Amount: dec("200"), Price: dec("1"), Type: models.OrderTypeBuy},
			wantKind: apperr.KindInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(nil)
			_, err := svc.Create(context.Background(), tt.p, tt.in)
			if !apperr.IsKind(err, tt.wantKind) {
				t.Errorf("expected kind %s, got %v", tt.wantKind, err)
			}
		})
	}
}

func TestService_Create_TierDenied(t *testing.T) {
	// Unverified maker: tier 0 caps order value at 100.
	svc, store := newTestService(fixedTiers{makerID: 0})

	_, err := svc.Create(context.Background(), maker, CreateInput{
		CurrencyID: usdID, Amount: dec("50"), Price: dec("3"), Type: models.OrderTypeBuy,
	})
	if !apperr.IsKind(err, apperr.KindPolicyViolation) {
		t.Fatalf("expected policy_violation, got %v", err)
	}

	// The denial leaves no trace: no order row, no wallet mutation.
	if len(store.orders) != 0 {
		t.Errorf("denied order was persisted")
	}
	w := makerWallet(t, store)
	if !w.Balance.Equal(dec("100")) || !w.FrozenBalance.IsZero() {
		t.Errorf("denied order mutated wallet: balance=%s frozen=%s", w.Balance, w.FrozenBalance)
	}
}

func createOrder(t *testing.T, svc *Service) models.Order {
	t.Helper()
	o, err := svc.Create(context.Background(), maker, CreateInput{
		CurrencyID: usdID, Amount: dec("10"), Price: dec("2"), Type: models.OrderTypeBuy,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return o
}

func TestService_Lifecycle(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()
	o := createOrder(t, svc)

	o, err := svc.Match(ctx, agent, o.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if o.Status != models.OrderMatched || o.AgentID == nil || *o.AgentID != agentID {
		t.Fatalf("unexpected matched order: %+v", o)
	}

	o, err = svc.Confirm(ctx, agent, o.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if o.Status != models.OrderConfirmed {
		t.Fatalf("expected confirmed, got %s", o.Status)
	}

	o, err = svc.Complete(ctx, maker, o.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if o.Status != models.OrderCompleted {
		t.Fatalf("expected completed, got %s", o.Status)
	}

	// Settlement: 20 leaves the maker's hold, agent receives 20 minus the 1%
	// fee, and exactly one trade entry records it.
	mw := makerWallet(t, store)
	if !mw.Balance.Equal(dec("80")) || !mw.FrozenBalance.IsZero() {
		t.Errorf("maker wallet after settlement: balance=%s frozen=%s", mw.Balance, mw.FrozenBalance)
	}
	var aw *models.Wallet
	for _, w := range store.wallets {
		if w.UserID == agentID {
			aw = w
		}
	}
	if aw == nil || !aw.Balance.Equal(dec("19.8")) {
		t.Errorf("expected agent credited 19.8, got %+v", aw)
	}
	if store.countTrades() != 1 {
		t.Errorf("expected exactly one trade entry, got %d", store.countTrades())
	}
}

func TestService_Complete_Idempotent(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()
	o := createOrder(t, svc)
	if _, err := svc.Match(ctx, agent, o.ID); err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := svc.Confirm(ctx, agent, o.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Complete(ctx, maker, o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A retry against a completed order reports success without a second
	// transfer.
	again, err := svc.Complete(ctx, maker, o.ID)
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if again.Status != models.OrderCompleted {
		t.Errorf("expected completed, got %s", again.Status)
	}
	if store.countTrades() != 1 {
		t.Errorf("retry produced a second trade entry")
	}
}

func TestService_Complete_StrangerRetryRejected(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	o := createOrder(t, svc)
	if _, err := svc.Match(ctx, agent, o.ID); err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := svc.Confirm(ctx, agent, o.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Complete(ctx, maker, o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// The idempotent success path is reserved for order parties: a stranger
	// retrying a completed order is rejected and learns nothing about it.
	stranger := models.Principal{UserID: 42, Role: models.RoleCustomer}
	_, err := svc.Complete(ctx, stranger, o.ID)
	if !apperr.IsKind(err, apperr.KindPolicyViolation) {
		t.Fatalf("expected policy_violation, got %v", err)
	}
}

func TestService_Complete_PublishesAfterCommit(t *testing.T) {
	pub := &capturePublisher{}
	svc, _ := newTestServiceEvents(nil, pub)
	ctx := context.Background()
	o := createOrder(t, svc)
	if _, err := svc.Match(ctx, agent, o.ID); err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := svc.Confirm(ctx, agent, o.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	before := len(pub.events)

	if _, err := svc.Complete(ctx, maker, o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var sawTrade, sawTransition bool
	for _, e := range pub.events[before:] {
		switch e.Type {
		case event.TypeTransactionRecorded:
			sawTrade = true
		case event.TypeOrderStateChanged:
			sawTransition = true
		}
	}
	if !sawTrade || !sawTransition {
		t.Errorf("settlement events missing: trade=%v transition=%v", sawTrade, sawTransition)
	}
}

func TestService_Complete_AbortedSettlementPublishesNothing(t *testing.T) {
	pub := &capturePublisher{}
	svc, store := newTestServiceEvents(nil, pub)
	ctx := context.Background()
	o := createOrder(t, svc)
	if _, err := svc.Match(ctx, agent, o.ID); err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := svc.Confirm(ctx, agent, o.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	before := len(pub.events)

	// The final status write fails after the transfer, so the whole
	// settlement rolls back.
	store.failStatusOn = models.OrderCompleted
	if _, err := svc.Complete(ctx, maker, o.ID); err == nil {
		t.Fatal("expected complete to fail")
	}

	// An aborted settlement announces nothing: no trade entry event, no
	// transition event.
	if got := len(pub.events) - before; got != 0 {
		t.Errorf("aborted settlement published %d events: %+v", got, pub.events[before:])
	}
}

func TestService_Cancel(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()
	o := createOrder(t, svc)
	if _, err := svc.Match(ctx, agent, o.ID); err != nil {
		t.Fatalf("match: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, maker, o.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.OrderCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	w := makerWallet(t, store)
	if !w.Balance.Equal(dec("100")) || !w.FrozenBalance.IsZero() {
		t.Errorf("hold not released: balance=%s frozen=%s", w.Balance, w.FrozenBalance)
	}

	// A cancelled order cannot be completed.
	_, err = svc.Complete(ctx, maker, o.ID)
	if !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Errorf("expected invalid_transition, got %v", err)
	}
}

func TestService_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("MatchOwnOrder", func(t *testing.T) {
		svc, store := newTestService(nil)
		o := createOrder(t, svc)
		// Promote the maker to agent so the role check passes and the
		// self-match check is what rejects.
		store.users[makerID] = models.User{ID: makerID, Role: models.RoleAgent}
		_, err := svc.Match(ctx, models.Principal{UserID: makerID, Role: models.RoleAgent}, o.ID)
		if !apperr.IsKind(err, apperr.KindPolicyViolation) {
			t.Errorf("expected policy_violation, got %v", err)
		}
	})

	t.Run("MatchByCustomer", func(t *testing.T) {
		svc, _ := newTestService(nil)
		o := createOrder(t, svc)
		_, err := svc.Match(ctx, maker, o.ID)
		if !apperr.IsKind(err, apperr.KindPolicyViolation) {
			t.Errorf("expected policy_violation, got %v", err)
		}
	})

	t.Run("MatchTwice", func(t *testing.T) {
		svc, _ := newTestService(nil)
		o := createOrder(t, svc)
		if _, err := svc.Match(ctx, agent, o.ID); err != nil {
			t.Fatalf("match: %v", err)
		}
		_, err := svc.Match(ctx, agent, o.ID)
		if !apperr.IsKind(err, apperr.KindInvalidTransition) {
			t.Errorf("expected invalid_transition, got %v", err)
		}
	})

	t.Run("ConfirmUnmatched", func(t *testing.T) {
		svc, _ := newTestService(nil)
		o := createOrder(t, svc)
		_, err := svc.Confirm(ctx, agent, o.ID)
		if !apperr.IsKind(err, apperr.KindInvalidTransition) {
			t.Errorf("expected invalid_transition, got %v", err)
		}
	})

	t.Run("ConfirmByOtherAgent", func(t *testing.T) {
		svc, store := newTestService(nil)
		other := models.Principal{UserID: 42, Role: models.RoleAgent}
		store.users[other.UserID] = models.User{ID: other.UserID, Role: models.RoleAgent}
		o := createOrder(t, svc)
		if _, err := svc.Match(ctx, agent, o.ID); err != nil {
			t.Fatalf("match: %v", err)
		}
		_, err := svc.Confirm(ctx, other, o.ID)
		if !apperr.IsKind(err, apperr.KindPolicyViolation) {
			t.Errorf("expected policy_violation, got %v", err)
		}
	})

	t.Run("CompleteSkippingConfirm", func(t *testing.T) {
		svc, _ := newTestService(nil)
		o := createOrder(t, svc)
		if _, err := svc.Match(ctx, agent, o.ID); err != nil {
			t.Fatalf("match: %v", err)
		}
		_, err := svc.Complete(ctx, maker, o.ID)
		if !apperr.IsKind(err, apperr.KindInvalidTransition) {
			t.Errorf("expected invalid_transition, got %v", err)
		}
	})

	t.Run("CancelByStranger", func(t *testing.T) {
		svc, _ := newTestService(nil)
		o := createOrder(t, svc)
		_, err := svc.Cancel(ctx, models.Principal{UserID: 42, Role: models.RoleCustomer}, o.ID)
		if !apperr.IsKind(err, apperr.KindPolicyViolation) {
			t.Errorf("expected policy_violation, got %v", err)
		}
	})

	t.Run("CancelConfirmed", func(t *testing.T) {
		svc, _ := newTestService(nil)
		o := createOrder(t, svc)
		if _, err := svc.Match(ctx, agent, o.ID); err != nil {
			t.Fatalf("match: %v", err)
		}
		if _, err := svc.Confirm(ctx, agent, o.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		_, err := svc.Cancel(ctx, maker, o.ID)
		if !apperr.IsKind(err, apperr.KindInvalidTransition) {
			t.Errorf("expected invalid_transition, got %v", err)
		}
	})

	t.Run("AdminCanCancel", func(t *testing.T) {
		svc, _ := newTestService(nil)
		o := createOrder(t, svc)
		if _, err := svc.Cancel(ctx, admin, o.ID); err != nil {
			t.Errorf("admin cancel: %v", err)
		}
	})
}

func TestService_Get(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	o := createOrder(t, svc)

	if _, err := svc.Get(ctx, maker, o.ID); err != nil {
		t.Errorf("maker get: %v", err)
	}
	if _, err := svc.Get(ctx, admin, o.ID); err != nil {
		t.Errorf("admin get: %v", err)
	}
	// Strangers see not_found, not forbidden, so order ids leak nothing.
	_, err := svc.Get(ctx, models.Principal{UserID: 42, Role: models.RoleCustomer}, o.ID)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestService_ListPending(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	createOrder(t, svc)

	orders, err := svc.ListPending(ctx, agent)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("expected 1 pending order, got %d", len(orders))
	}

	_, err = svc.ListPending(ctx, maker)
	if !apperr.IsKind(err, apperr.KindPolicyViolation) {
		t.Errorf("expected policy_violation for customer, got %v", err)
	}
}
