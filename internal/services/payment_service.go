package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ticketing/internal/alerts"
	"ticketing/internal/db"
	"ticketing/internal/gateway"
	"ticketing/internal/models"
	"ticketing/internal/money"
	"ticketing/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type PaymentGateway interface {
	CreateOrder(ctx context.Context, input gateway.CreateOrderRequest) (gateway.Order, error)
	FetchOrder(ctx context.Context, orderID string) (gateway.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

type OrderStore interface {
	Create(ctx context.Context, order models.PaymentOrder) error
	Transition(ctx context.Context, tx store.Execer, orderID string, status models.OrderStatus, paymentID string, reason *string) error
}

type TicketInventory interface {
	GetEvent(ctx context.Context, eventID string) (models.Event, error)
	ReserveAndIssue(ctx context.Context, tx store.Execer, input store.IssueInput) ([]string, error)
	TicketIDsByPayment(ctx context.Context, paymentID string) ([]string, error)
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert alerts.Alert)
}

// PaymentService turns gateway orders into coins or tickets. Everything it
// applies is read back from the gateway; client-sent amounts are ignored.
type PaymentService struct {
	txRunner  db.TxRunner
	ledger    *Ledger
	orders    OrderStore
	inventory TicketInventory
	audit     AuditStore
	gateway   PaymentGateway
	alerts    AlertDispatcher
	currency  string
	logger    *slog.Logger
}

func NewPaymentService(txRunner db.TxRunner, ledger *Ledger, orders OrderStore, inventory TicketInventory, audit AuditStore, gw PaymentGateway, dispatcher AlertDispatcher, currency string, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		txRunner:  txRunner,
		ledger:    ledger,
		orders:    orders,
		inventory: inventory,
		audit:     audit,
		gateway:   gw,
		alerts:    dispatcher,
		currency:  currency,
		logger:    logger,
	}
}

// CreateOrderInput carries the top-up amount for wallet orders. Ticket
// orders are priced from the event.
type CreateOrderInput struct {
	UserID      string
	Kind        models.OrderKind
	AmountMinor int64
	EventID     string
	Quantity    int
}

type OrderResult struct {
	OrderID     string           `json:"order_id"`
	Kind        models.OrderKind `json:"kind"`
	AmountMinor int64            `json:"amount_minor"`
	Amount      string           `json:"amount"`
	Currency    string           `json:"currency"`
	Receipt     string           `json:"receipt"`
}

type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
}

type ApplyResult struct {
	Kind      models.OrderKind `json:"kind"`
	OrderID   string           `json:"order_id"`
	PaymentID string           `json:"payment_id"`
	Amount    string           `json:"amount"`
	Fee       string           `json:"fee,omitempty"`
	Coins     int64            `json:"coins,omitempty"`
	Balance   int64            `json:"balance,omitempty"`
	TicketIDs []string         `json:"ticket_ids,omitempty"`
	Duplicate bool             `json:"duplicate"`
}

// orderIntent is what an order was created for, as recorded in its gateway notes.
type orderIntent struct {
	Kind     models.OrderKind
	UserID   string
	EventID  string
	Quantity int
	Amount   decimal.Decimal
}

func (s *PaymentService) CreateOrder(ctx context.Context, input CreateOrderInput) (OrderResult, error) {
	if !input.Kind.Valid() {
		return OrderResult{}, ErrInvalidKind
	}
	notes := map[string]string{
		"kind":    string(input.Kind),
		"user_id": input.UserID,
	}
	var eventID *string
	var quantity *int
	if input.Kind == models.OrderKindTicket {
		if input.Quantity <= 0 {
			return OrderResult{}, ErrInvalidQuantity
		}
		// Advisory only; seats are taken when the payment is applied.
		event, err := s.inventory.GetEvent(ctx, input.EventID)
		if errors.Is(err, sql.ErrNoRows) {
			return OrderResult{}, ErrNotFound
		}
		if err != nil {
			return OrderResult{}, err
		}
		if event.AvailableTickets < input.Quantity {
			return OrderResult{}, ErrInsufficientInventory
		}
		input.AmountMinor = money.ToMinor(event.Price.Mul(decimal.NewFromInt(int64(input.Quantity))))
		notes["event_id"] = input.EventID
		notes["quantity"] = strconv.Itoa(input.Quantity)
		eventID = &input.EventID
		quantity = &input.Quantity
	}
	if input.AmountMinor <= 0 {
		return OrderResult{}, ErrInvalidAmount
	}
	notes["amount"] = money.FormatMinor(input.AmountMinor)

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   input.AmountMinor,
		Currency: s.currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "gateway order creation failed", slog.String("user_id", input.UserID), slog.Any("error", err))
		return OrderResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if err := s.orders.Create(ctx, models.PaymentOrder{
		OrderID:  order.ID,
		UserID:   input.UserID,
		Kind:     input.Kind,
		Amount:   money.FromMinor(order.Amount),
		Currency: order.Currency,
		EventID:  eventID,
		Quantity: quantity,
	}); err != nil {
		return OrderResult{}, err
	}
	s.logger.InfoContext(ctx, "payment order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", input.UserID),
		slog.String("kind", string(input.Kind)),
	)
	return OrderResult{
		OrderID:     order.ID,
		Kind:        input.Kind,
		AmountMinor: order.Amount,
		Amount:      money.FormatMinor(order.Amount),
		Currency:    order.Currency,
		Receipt:     receipt,
	}, nil
}

// ApplyVerifiedPayment checks the checkout signature, reads the order back
// from the gateway and applies it exactly once per payment id.
func (s *PaymentService) ApplyVerifiedPayment(ctx context.Context, userID string, input VerifyInput) (ApplyResult, error) {
	if input.OrderID == "" || input.PaymentID == "" || input.Signature == "" {
		return ApplyResult{}, ErrSignatureInvalid
	}
	if !s.gateway.VerifySignature(input.OrderID, input.PaymentID, input.Signature) {
		s.logger.WarnContext(ctx, "payment signature mismatch",
			slog.String("order_id", input.OrderID),
			slog.String("payment_id", input.PaymentID),
			slog.String("user_id", userID),
		)
		return ApplyResult{}, ErrSignatureInvalid
	}

	order, err := s.gateway.FetchOrder(ctx, input.OrderID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	intent, err := intentFromOrder(order)
	if err != nil {
		return ApplyResult{}, err
	}
	if intent.UserID != userID {
		return ApplyResult{}, ErrOrderOwnership
	}

	switch intent.Kind {
	case models.OrderKindWallet:
		return s.applyTopUp(ctx, input, intent)
	case models.OrderKindTicket:
		return s.applyTicketPurchase(ctx, input, intent)
	}
	return ApplyResult{}, ErrInvalidKind
}

func (s *PaymentService) applyTopUp(ctx context.Context, input VerifyInput, intent orderIntent) (ApplyResult, error) {
	split := money.SplitTopUp(intent.Amount)
	result := ApplyResult{
		Kind:      models.OrderKindWallet,
		OrderID:   input.OrderID,
		PaymentID: input.PaymentID,
		Amount:    split.Amount.StringFixed(2),
		Fee:       split.Fee.StringFixed(2),
		Coins:     split.Coins,
	}

	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.ledger.ensureTx(ctx, tx, intent.UserID); err != nil {
			return err
		}
		var err error
		wallet, _, err = s.ledger.creditTx(ctx, tx, CreditInput{
			UserID:    intent.UserID,
			Coins:     split.Coins,
			Net:       split.Net,
			Fee:       split.Fee,
			Kind:      models.KindTopUp,
			PaymentID: &input.PaymentID,
			OrderID:   &input.OrderID,
			Details:   map[string]any{"order_id": input.OrderID},
		})
		if err != nil {
			return err
		}
		if err := s.orders.Transition(ctx, tx, input.OrderID, models.OrderApplied, input.PaymentID, nil); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, intent.UserID, "payment.applied", "payment_order", input.OrderID, map[string]any{
			"payment_id": input.PaymentID,
			"kind":       string(models.OrderKindWallet),
			"amount":     result.Amount,
			"fee":        result.Fee,
			"coins":      split.Coins,
		})
	})
	if errors.Is(err, ErrDuplicatePayment) {
		result.Duplicate = true
		if current, getErr := s.ledger.GetWallet(ctx, intent.UserID); getErr == nil {
			result.Balance = current.Coins
		}
		s.logger.InfoContext(ctx, "payment already applied", slog.String("payment_id", input.PaymentID))
		return result, nil
	}
	if err != nil {
		return ApplyResult{}, err
	}
	result.Balance = wallet.Coins
	s.logger.InfoContext(ctx, "wallet topped up",
		slog.String("payment_id", input.PaymentID),
		slog.String("order_id", input.OrderID),
		slog.String("user_id", intent.UserID),
		slog.Int64("coins", split.Coins),
	)
	s.ledger.notify(intent.UserID, wallet, string(models.KindTopUp))
	return result, nil
}

func (s *PaymentService) applyTicketPurchase(ctx context.Context, input VerifyInput, intent orderIntent) (ApplyResult, error) {
	result := ApplyResult{
		Kind:      models.OrderKindTicket,
		OrderID:   input.OrderID,
		PaymentID: input.PaymentID,
		Amount:    intent.Amount.StringFixed(2),
	}
	unitPrice := money.UnitPrice(intent.Amount, intent.Quantity)

	var ticketIDs []string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		ticketIDs, err = s.inventory.ReserveAndIssue(ctx, tx, store.IssueInput{
			EventID:   intent.EventID,
			Quantity:  intent.Quantity,
			BuyerID:   intent.UserID,
			PaymentID: input.PaymentID,
			OrderID:   input.OrderID,
			UnitPrice: unitPrice,
			Amount:    intent.Amount,
		})
		switch {
		case errors.Is(err, store.ErrAlreadyRecorded):
			return ErrDuplicatePayment
		case errors.Is(err, store.ErrNotEnoughStock):
			return ErrInsufficientInventory
		case err != nil:
			return err
		}
		if err := s.orders.Transition(ctx, tx, input.OrderID, models.OrderApplied, input.PaymentID, nil); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, intent.UserID, "payment.applied", "payment_order", input.OrderID, map[string]any{
			"payment_id": input.PaymentID,
			"kind":       string(models.OrderKindTicket),
			"event_id":   intent.EventID,
			"quantity":   intent.Quantity,
			"amount":     result.Amount,
		})
	})
	switch {
	case errors.Is(err, ErrDuplicatePayment):
		result.Duplicate = true
		if ids, lookupErr := s.inventory.TicketIDsByPayment(ctx, input.PaymentID); lookupErr == nil {
			result.TicketIDs = ids
		}
		return result, nil
	case errors.Is(err, ErrInsufficientInventory):
		s.rejectPaidOrder(ctx, input, intent, "insufficient_inventory")
		return ApplyResult{}, ErrPaymentNeedsFollowup
	case err != nil:
		return ApplyResult{}, err
	}
	result.TicketIDs = ticketIDs
	s.logger.InfoContext(ctx, "tickets issued",
		slog.String("payment_id", input.PaymentID),
		slog.String("event_id", intent.EventID),
		slog.String("user_id", intent.UserID),
		slog.Int("quantity", intent.Quantity),
	)
	return result, nil
}

// rejectPaidOrder records that a captured payment could not be fulfilled and
// raises it for manual follow-up. It runs after the purchase rolled back.
func (s *PaymentService) rejectPaidOrder(ctx context.Context, input VerifyInput, intent orderIntent, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.orders.Transition(ctx, tx, input.OrderID, models.OrderRejected, input.PaymentID, &reason)
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark order rejected", slog.String("order_id", input.OrderID), slog.Any("error", err))
	}
	s.alerts.Dispatch(ctx, alerts.Alert{
		Kind:    alerts.KindPaymentFollowup,
		Message: "payment captured but tickets could not be issued",
		Details: map[string]any{
			"order_id":   input.OrderID,
			"payment_id": input.PaymentID,
			"user_id":    intent.UserID,
			"event_id":   intent.EventID,
			"quantity":   intent.Quantity,
			"amount":     intent.Amount.StringFixed(2),
			"reason":     reason,
		},
	})
}

func intentFromOrder(order gateway.Order) (orderIntent, error) {
	intent := orderIntent{
		Kind:   models.OrderKind(order.Notes["kind"]),
		UserID: order.Notes["user_id"],
		Amount: money.FromMinor(order.Amount),
	}
	if !intent.Kind.Valid() {
		return orderIntent{}, ErrInvalidKind
	}
	if !intent.Amount.IsPositive() {
		return orderIntent{}, ErrInvalidAmount
	}
	if intent.Kind == models.OrderKindTicket {
		intent.EventID = order.Notes["event_id"]
		quantity, err := strconv.Atoi(order.Notes["quantity"])
		if err != nil || quantity <= 0 {
			return orderIntent{}, ErrInvalidQuantity
		}
		intent.Quantity = quantity
	}
	return intent, nil
}
