// Package ledger owns wallet balances and the append-only transaction
// journal. Every balance mutation in the system goes through one of the
// atomic operations below; no other component writes wallet rows.
package ledger

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/event"
	"github.com/xtrntr/p2pex/internal/models"
)

// Store is the persistence surface the ledger requires. WithTx must reuse a
// transaction already present in ctx so callers can compose ledger calls
// with their own mutations in one commit.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetWalletForUpdate(ctx context.Context, walletID int) (models.Wallet, error)
	GetOrCreateWallet(ctx context.Context, userID, currencyID int) (models.Wallet, error)
	UpdateWalletBalances(ctx context.Context, walletID int, balance, frozen decimal.Decimal) error
	CreateTransaction(ctx context.Context, tx *models.Transaction) (models.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id int) (models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int, status string, confirmations int) error
}

// Ledger performs atomic balance movements and records them. Trading fees
// are credited to the platform account identified by feeUserID, so internal
// transfers conserve total supply exactly.
type Ledger struct {
	store     Store
	feeUserID int
	events    event.Publisher
	log       zerolog.Logger
}

func New(store Store, feeUserID int, events event.Publisher, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, feeUserID: feeUserID, events: events, log: log}
}

// Metadata keys written on trade entries so a reversal needs no out-of-band
// context to find both wallets.
const (
	metaFromWallet = "from_wallet_id"
	metaToWallet   = "to_wallet_id"
	metaReversalOf = "reversal_of"
)

// Hold moves amount from the wallet's spendable balance into its frozen
// balance to back an open order.
func (l *Ledger) Hold(ctx context.Context, walletID int, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return apperr.New(apperr.KindInvalidInput, "hold amount must be positive")
	}
	return l.store.WithTx(ctx, func(ctx context.Context) error {
		w, err := l.store.GetWalletForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return apperr.New(apperr.KindInsufficientFunds,
				"wallet %d balance %s short of hold %s", walletID, w.Balance, amount)
		}
		return l.store.UpdateWalletBalances(ctx, walletID,
			w.Balance.Sub(amount), w.FrozenBalance.Add(amount))
	})
}

// Release reverses a hold. A frozen balance short of the release amount is a
// programming error in the caller, never a user-facing condition.
func (l *Ledger) Release(ctx context.Context, walletID int, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return apperr.New(apperr.KindInvalidInput, "release amount must be positive")
	}
	return l.store.WithTx(ctx, func(ctx context.Context) error {
		w, err := l.store.GetWalletForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if w.FrozenBalance.LessThan(amount) {
			err := apperr.New(apperr.KindInvariantViolation,
				"wallet %d frozen balance %s short of release %s", walletID, w.FrozenBalance, amount)
			l.log.Error().Err(err).Int("wallet_id", walletID).Msg("ledger invariant violated")
			return err
		}
		return l.store.UpdateWalletBalances(ctx, walletID,
			w.Balance.Add(amount), w.FrozenBalance.Sub(amount))
	})
}

// TransferInput describes a settlement: amount leaves the source wallet's
// frozen balance, amount-fee lands in the destination wallet's spendable
// balance, and the fee lands in the platform account's wallet.
type TransferInput struct {
	FromWalletID int
	ToWalletID   int
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	OrderID      *int
}

// Transfer executes a settlement and appends exactly one trade entry (plus a
// fee entry when a fee applies). Either every mutation and every record
// lands, or none does.
func (l *Ledger) Transfer(ctx context.Context, in TransferInput) (models.Transaction, error) {
	if in.Amount.Sign() <= 0 {
		return models.Transaction{}, apperr.New(apperr.KindInvalidInput, "transfer amount must be positive")
	}
	if in.Fee.Sign() < 0 || in.Fee.GreaterThanOrEqual(in.Amount) {
		return models.Transaction{}, apperr.New(apperr.KindInvalidInput,
			"fee %s out of range for amount %s", in.Fee, in.Amount)
	}
	if in.FromWalletID == in.ToWalletID {
		return models.Transaction{}, apperr.New(apperr.KindInvalidInput, "transfer to the same wallet")
	}

	var tradeTx models.Transaction
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		from, to, err := l.lockPair(ctx, in.FromWalletID, in.ToWalletID)
		if err != nil {
			return err
		}
		if from.FrozenBalance.LessThan(in.Amount) {
			err := apperr.New(apperr.KindInvariantViolation,
				"wallet %d frozen balance %s short of transfer %s", from.ID, from.FrozenBalance, in.Amount)
			l.log.Error().Err(err).Int("wallet_id", from.ID).Msg("ledger invariant violated")
			return err
		}

		credit := in.Amount.Sub(in.Fee)
		if err := l.store.UpdateWalletBalances(ctx, from.ID,
			from.Balance, from.FrozenBalance.Sub(in.Amount)); err != nil {
			return err
		}
		if err := l.store.UpdateWalletBalances(ctx, to.ID,
			to.Balance.Add(credit), to.FrozenBalance); err != nil {
			return err
		}

		tradeTx, err = l.store.CreateTransaction(ctx, &models.Transaction{
			UserID:   to.UserID,
			WalletID: to.ID,
			OrderID:  in.OrderID,
			Type:     models.TxTrade,
			Amount:   credit,
			Fee:      in.Fee,
			Status:   models.TxStatusConfirmed,
			Metadata: map[string]any{metaFromWallet: from.ID, metaToWallet: to.ID},
		})
		if err != nil {
			return err
		}
		if in.Fee.Sign() > 0 {
			// The fee stays inside the wallet set: it moves to the platform
			// account so per-currency supply is conserved. The fee wallet is
			// always locked after the pair so lock order stays acyclic.
			feeWallet, err := l.store.GetOrCreateWallet(ctx, l.feeUserID, from.CurrencyID)
			if err != nil {
				return err
			}
			feeWallet, err = l.store.GetWalletForUpdate(ctx, feeWallet.ID)
			if err != nil {
				return err
			}
			if err := l.store.UpdateWalletBalances(ctx, feeWallet.ID,
				feeWallet.Balance.Add(in.Fee), feeWallet.FrozenBalance); err != nil {
				return err
			}
			_, err = l.store.CreateTransaction(ctx, &models.Transaction{
				UserID:   feeWallet.UserID,
				WalletID: feeWallet.ID,
				OrderID:  in.OrderID,
				Type:     models.TxFee,
				Amount:   in.Fee,
				Status:   models.TxStatusConfirmed,
				Metadata: map[string]any{metaFromWallet: from.ID, metaToWallet: to.ID},
			})
			if err != nil {
				return err
			}
		}
		l.publishRecorded(ctx, tradeTx)
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return tradeTx, nil
}

// Reverse appends a compensating transaction pair undoing the economic
// effect of a prior trade entry. The original entry is never edited; the
// journal stays append-only for audit.
func (l *Ledger) Reverse(ctx context.Context, transactionID int) (models.Transaction, error) {
	var compTx models.Transaction
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		orig, err := l.store.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if orig.Type != models.TxTrade || orig.Status != models.TxStatusConfirmed {
			return apperr.New(apperr.KindInvalidTransition,
				"transaction %d is not a settled trade", transactionID)
		}
		fromID := metaInt(orig.Metadata, metaFromWallet)
		toID := metaInt(orig.Metadata, metaToWallet)
		if fromID == 0 || toID == 0 {
			return apperr.New(apperr.KindInvariantViolation,
				"trade %d missing wallet metadata", transactionID)
		}

		from, to, err := l.lockPair(ctx, fromID, toID)
		if err != nil {
			return err
		}
		// orig.Amount is the net credit the recipient received.
		if to.Balance.LessThan(orig.Amount) {
			return apperr.New(apperr.KindInsufficientFunds,
				"wallet %d balance %s short of reversal %s", to.ID, to.Balance, orig.Amount)
		}
		if err := l.store.UpdateWalletBalances(ctx, to.ID,
			to.Balance.Sub(orig.Amount), to.FrozenBalance); err != nil {
			return err
		}
		if err := l.store.UpdateWalletBalances(ctx, from.ID,
			from.Balance.Add(orig.Amount), from.FrozenBalance); err != nil {
			return err
		}

		if _, err := l.store.CreateTransaction(ctx, &models.Transaction{
			UserID:   to.UserID,
			WalletID: to.ID,
			OrderID:  orig.OrderID,
			Type:     models.TxTrade,
			Amount:   orig.Amount.Neg(),
			Status:   models.TxStatusConfirmed,
			Metadata: map[string]any{metaReversalOf: orig.ID},
		}); err != nil {
			return err
		}
		compTx, err = l.store.CreateTransaction(ctx, &models.Transaction{
			UserID:   from.UserID,
			WalletID: from.ID,
			OrderID:  orig.OrderID,
			Type:     models.TxTrade,
			Amount:   orig.Amount,
			Status:   models.TxStatusConfirmed,
			Metadata: map[string]any{metaReversalOf: orig.ID},
		})
		if err != nil {
			return err
		}
		l.publishRecorded(ctx, compTx)
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return compTx, nil
}

// Deposit credits external funds. With requiredConfirmations > 0 the entry
// stays pending and the wallet is credited only once ConfirmDeposit reaches
// the threshold.
func (l *Ledger) Deposit(ctx context.Context, userID, currencyID int, amount decimal.Decimal, txHash string, requiredConfirmations int) (models.Transaction, error) {
	if amount.Sign() <= 0 {
		return models.Transaction{}, apperr.New(apperr.KindInvalidInput, "deposit amount must be positive")
	}
	var dep models.Transaction
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		w, err := l.store.GetOrCreateWallet(ctx, userID, currencyID)
		if err != nil {
			return err
		}
		status := models.TxStatusPending
		if requiredConfirmations == 0 {
			status = models.TxStatusConfirmed
			w, err = l.store.GetWalletForUpdate(ctx, w.ID)
			if err != nil {
				return err
			}
			if err := l.store.UpdateWalletBalances(ctx, w.ID,
				w.Balance.Add(amount), w.FrozenBalance); err != nil {
				return err
			}
		}
		dep, err = l.store.CreateTransaction(ctx, &models.Transaction{
			UserID:                userID,
			WalletID:              w.ID,
			Type:                  models.TxDeposit,
			Amount:                amount,
			Status:                status,
			TxHash:                txHash,
			RequiredConfirmations: requiredConfirmations,
		})
		if err != nil {
			return err
		}
		l.publishRecorded(ctx, dep)
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return dep, nil
}

// ConfirmDeposit advances the confirmation count of a pending deposit and
// credits the wallet once the required threshold is reached.
func (l *Ledger) ConfirmDeposit(ctx context.Context, transactionID, confirmations int) error {
	return l.store.WithTx(ctx, func(ctx context.Context) error {
		dep, err := l.store.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if dep.Type != models.TxDeposit || dep.Status != models.TxStatusPending {
			return apperr.New(apperr.KindInvalidTransition,
				"transaction %d is not a pending deposit", transactionID)
		}
		if confirmations < dep.RequiredConfirmations {
			return l.store.UpdateTransactionStatus(ctx, dep.ID, models.TxStatusPending, confirmations)
		}
		w, err := l.store.GetWalletForUpdate(ctx, dep.WalletID)
		if err != nil {
			return err
		}
		if err := l.store.UpdateWalletBalances(ctx, w.ID,
			w.Balance.Add(dep.Amount), w.FrozenBalance); err != nil {
			return err
		}
		return l.store.UpdateTransactionStatus(ctx, dep.ID, models.TxStatusConfirmed, confirmations)
	})
}

// Withdraw debits spendable funds for an external payout.
func (l *Ledger) Withdraw(ctx context.Context, walletID int, amount decimal.Decimal, toAddress string) (models.Transaction, error) {
	if amount.Sign() <= 0 {
		return models.Transaction{}, apperr.New(apperr.KindInvalidInput, "withdrawal amount must be positive")
	}
	var wd models.Transaction
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		w, err := l.store.GetWalletForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return apperr.New(apperr.KindInsufficientFunds,
				"wallet %d balance %s short of withdrawal %s", walletID, w.Balance, amount)
		}
		if err := l.store.UpdateWalletBalances(ctx, walletID,
			w.Balance.Sub(amount), w.FrozenBalance); err != nil {
			return err
		}
		wd, err = l.store.CreateTransaction(ctx, &models.Transaction{
			UserID:    w.UserID,
			WalletID:  w.ID,
			Type:      models.TxWithdrawal,
			Amount:    amount.Neg(),
			Status:    models.TxStatusConfirmed,
			ToAddress: toAddress,
		})
		if err != nil {
			return err
		}
		l.publishRecorded(ctx, wd)
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return wd, nil
}

// lockPair locks two wallets in ascending id order so concurrent transfers
// touching the same pair cannot deadlock.
func (l *Ledger) lockPair(ctx context.Context, aID, bID int) (a, b models.Wallet, err error) {
	first, second := aID, bID
	if second < first {
		first, second = second, first
	}
	w1, err := l.store.GetWalletForUpdate(ctx, first)
	if err != nil {
		return a, b, err
	}
	w2, err := l.store.GetWalletForUpdate(ctx, second)
	if err != nil {
		return a, b, err
	}
	if w1.ID == aID {
		return w1, w2, nil
	}
	return w2, w1, nil
}

// publishRecorded raises the entry's event through the context's buffer, so
// nothing is announced until the enclosing transaction commits.
func (l *Ledger) publishRecorded(ctx context.Context, tx models.Transaction) {
	if tx.ID == 0 {
		return
	}
	event.Publish(ctx, l.events, event.TransactionRecorded(tx))
}

func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
