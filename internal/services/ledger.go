package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"ticketing/internal/db"
	"ticketing/internal/models"
	"ticketing/internal/store"
	"ticketing/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// RecommendationCost is the coin price of one recommendation request.
const RecommendationCost int64 = 10

type WalletStore interface {
	Ensure(ctx context.Context, tx store.Tx, userID string) (models.Wallet, error)
	GetByUser(ctx context.Context, userID string) (models.Wallet, error)
	Credit(ctx context.Context, tx store.Getter, userID string, coins int64, spent decimal.Decimal) (models.Wallet, error)
	Debit(ctx context.Context, tx store.Getter, userID string, coins int64) (models.Wallet, error)
	Exists(ctx context.Context, tx store.Getter, userID string) (bool, error)
	Reconcile(ctx context.Context) ([]store.WalletBalanceSummary, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	ListByUser(ctx context.Context, userID string, kind models.TransactionKind, limit, offset int) ([]models.Transaction, error)
}

type UserStore interface {
	Ensure(ctx context.Context, tx store.Execer, userID string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data map[string]any) error
}

type WalletNotifier interface {
	NotifyWallet(userID string, update websocket.WalletUpdate)
}

// Ledger owns every coin movement. Balances change only through conditional
// updates that commit together with their ledger row.
type Ledger struct {
	txRunner     db.TxRunner
	wallets      WalletStore
	transactions TransactionStore
	users        UserStore
	notifier     WalletNotifier
	logger       *slog.Logger
}

func NewLedger(txRunner db.TxRunner, wallets WalletStore, transactions TransactionStore, users UserStore, notifier WalletNotifier, logger *slog.Logger) *Ledger {
	return &Ledger{
		txRunner:     txRunner,
		wallets:      wallets,
		transactions: transactions,
		users:        users,
		notifier:     notifier,
		logger:       logger,
	}
}

type CreditInput struct {
	UserID    string
	Coins     int64
	Net       decimal.Decimal
	Fee       decimal.Decimal
	Kind      models.TransactionKind
	PaymentID *string
	OrderID   *string
	RefundOf  *string
	Details   map[string]any
}

type DebitInput struct {
	UserID string
	Coins  int64
	Kind   models.TransactionKind
	// RequestKey, when set, is unique across the ledger. A second debit with
	// the same key rolls back with ErrDuplicateRequest.
	RequestKey *string
	Details    map[string]any
}

type DebitResult struct {
	TransactionID string
	Wallet        models.Wallet
}

type RefundInput struct {
	UserID             string
	DebitTransactionID string
	Coins              int64
	Reason             string
}

// EnsureWallet creates the user's wallet on first contact and returns it.
func (l *Ledger) EnsureWallet(ctx context.Context, userID string) (models.Wallet, error) {
	var wallet models.Wallet
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		wallet, err = l.ensureTx(ctx, tx, userID)
		return err
	})
	return wallet, err
}

func (l *Ledger) ensureTx(ctx context.Context, tx store.Tx, userID string) (models.Wallet, error) {
	if err := l.users.Ensure(ctx, tx, userID); err != nil {
		return models.Wallet{}, err
	}
	return l.wallets.Ensure(ctx, tx, userID)
}

func (l *Ledger) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	wallet, err := l.wallets.GetByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, ErrNotFound
	}
	return wallet, err
}

// HasSufficient is an advisory read. A missing wallet holds no coins.
func (l *Ledger) HasSufficient(ctx context.Context, userID string, coins int64) (bool, error) {
	wallet, err := l.wallets.GetByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return wallet.Coins >= coins, nil
}

// Credit adds coins in its own transaction. The wallet must exist.
func (l *Ledger) Credit(ctx context.Context, input CreditInput) (models.Wallet, error) {
	var wallet models.Wallet
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		wallet, _, err = l.creditTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return models.Wallet{}, err
	}
	l.notify(input.UserID, wallet, string(input.Kind))
	return wallet, nil
}

// creditTx updates the balance and appends the ledger row. A row that is
// already recorded for the same payment or refund key surfaces as
// ErrDuplicatePayment, and the caller's transaction must roll back.
func (l *Ledger) creditTx(ctx context.Context, tx store.Tx, input CreditInput) (models.Wallet, string, error) {
	if input.Coins < 0 || input.Net.IsNegative() || input.Fee.IsNegative() {
		return models.Wallet{}, "", ErrInvalidAmount
	}
	gross := input.Net.Add(input.Fee)
	wallet, err := l.wallets.Credit(ctx, tx, input.UserID, input.Coins, gross)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, "", ErrNotFound
	}
	if err != nil {
		return models.Wallet{}, "", err
	}
	details, err := encodeDetails(input.Details)
	if err != nil {
		return models.Wallet{}, "", err
	}
	transactionID := uuid.NewString()
	err = l.transactions.Create(ctx, tx, store.TransactionInput{
		ID:          transactionID,
		WalletID:    wallet.ID,
		Kind:        input.Kind,
		Amount:      gross,
		Coins:       input.Coins,
		PlatformFee: input.Fee,
		Status:      models.StatusCompleted,
		PaymentID:   input.PaymentID,
		OrderID:     input.OrderID,
		RefundOf:    input.RefundOf,
		Details:     details,
	})
	if errors.Is(err, store.ErrAlreadyRecorded) {
		return models.Wallet{}, "", ErrDuplicatePayment
	}
	if err != nil {
		return models.Wallet{}, "", err
	}
	return wallet, transactionID, nil
}

// Debit takes coins only if the balance covers them, and records the debit
// row in the same transaction.
func (l *Ledger) Debit(ctx context.Context, input DebitInput) (DebitResult, error) {
	if input.Coins <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}
	var result DebitResult
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := l.wallets.Debit(ctx, tx, input.UserID, input.Coins)
		if errors.Is(err, store.ErrNoRowsAffected) {
			exists, existsErr := l.wallets.Exists(ctx, tx, input.UserID)
			if existsErr != nil {
				return existsErr
			}
			if !exists {
				return ErrNotFound
			}
			return ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		details, err := encodeDetails(input.Details)
		if err != nil {
			return err
		}
		transactionID := uuid.NewString()
		err = l.transactions.Create(ctx, tx, store.TransactionInput{
			ID:         transactionID,
			WalletID:   wallet.ID,
			Kind:       input.Kind,
			Amount:     decimal.Zero,
			Coins:      -input.Coins,
			Status:     models.StatusCompleted,
			RequestKey: input.RequestKey,
			Details:    details,
		})
		if errors.Is(err, store.ErrAlreadyRecorded) {
			return ErrDuplicateRequest
		}
		if err != nil {
			return err
		}
		result = DebitResult{TransactionID: transactionID, Wallet: wallet}
		return nil
	})
	if err != nil {
		return DebitResult{}, err
	}
	l.notify(input.UserID, result.Wallet, string(input.Kind))
	return result, nil
}

// Refund returns the coins of a debit. It is keyed by the debit id, so a
// repeated refund for the same debit changes nothing and still succeeds.
func (l *Ledger) Refund(ctx context.Context, input RefundInput) error {
	debitID := input.DebitTransactionID
	var wallet models.Wallet
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		wallet, _, err = l.creditTx(ctx, tx, CreditInput{
			UserID:   input.UserID,
			Coins:    input.Coins,
			Net:      decimal.Zero,
			Fee:      decimal.Zero,
			Kind:     models.KindCredit,
			RefundOf: &debitID,
			Details:  map[string]any{"reason": input.Reason},
		})
		return err
	})
	if errors.Is(err, ErrDuplicatePayment) {
		l.logger.InfoContext(ctx, "refund already recorded", slog.String("transaction_id", debitID))
		return nil
	}
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "debit refunded",
		slog.String("transaction_id", debitID),
		slog.String("user_id", input.UserID),
		slog.Int64("coins", input.Coins),
	)
	l.notify(input.UserID, wallet, "refund")
	return nil
}

func (l *Ledger) ListTransactions(ctx context.Context, userID string, kind models.TransactionKind, limit, offset int) ([]models.Transaction, error) {
	return l.transactions.ListByUser(ctx, userID, kind, limit, offset)
}

func (l *Ledger) Reconcile(ctx context.Context) ([]store.WalletBalanceSummary, error) {
	return l.wallets.Reconcile(ctx)
}

func (l *Ledger) notify(userID string, wallet models.Wallet, reason string) {
	if l.notifier == nil {
		return
	}
	l.notifier.NotifyWallet(userID, websocket.WalletUpdate{
		WalletID:   wallet.ID,
		Coins:      wallet.Coins,
		TotalSpent: wallet.TotalSpent.StringFixed(2),
		Reason:     reason,
	})
}

func encodeDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
