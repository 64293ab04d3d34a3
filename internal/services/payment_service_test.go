package services

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"testing"

	"ticketing/internal/alerts"
	"ticketing/internal/gateway"
	"ticketing/internal/models"
)

func topUpOrder(orderID, userID string, amountMinor int64) gateway.Order {
	return gateway.Order{
		ID:       orderID,
		Amount:   amountMinor,
		Currency: "INR",
		Status:   "paid",
		Notes:    map[string]string{"kind": "wallet", "user_id": userID},
	}
}

func ticketOrder(orderID, userID, eventID string, quantity int, amountMinor int64) gateway.Order {
	return gateway.Order{
		ID:       orderID,
		Amount:   amountMinor,
		Currency: "INR",
		Status:   "paid",
		Notes: map[string]string{
			"kind":     "ticket",
			"user_id":  userID,
			"event_id": eventID,
			"quantity": strconv.Itoa(quantity),
		},
	}
}

func fetchReturns(orders ...gateway.Order) func(context.Context, string) (gateway.Order, error) {
	byID := map[string]gateway.Order{}
	for _, order := range orders {
		byID[order.ID] = order
	}
	return func(_ context.Context, orderID string) (gateway.Order, error) {
		order, ok := byID[orderID]
		if !ok {
			return gateway.Order{}, errors.New("order not found")
		}
		return order, nil
	}
}

func newPaymentService(w *memWorld, gw PaymentGateway, dispatcher AlertDispatcher, notifier WalletNotifier) *PaymentService {
	return NewPaymentService(w, w.ledger(notifier), memOrders{w}, memInventory{w}, memAudit{w}, gw, dispatcher, "INR", discardLogger())
}

func TestApplyVerifiedPaymentTopUp(t *testing.T) {
	w := newMemWorld()
	notifier := &recordingNotifier{}
	svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(topUpOrder("order_1", "user-1", 100000))}, &recordingDispatcher{}, notifier)

	result, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Amount != "1000.00" || result.Fee != "50.00" || result.Coins != 95 || result.Balance != 95 || result.Duplicate {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := w.coins("user-1"); got != 95 {
		t.Fatalf("expected 95 coins, got %d", got)
	}
	if len(w.audits) != 1 || w.audits[0] != "payment.applied" {
		t.Fatalf("expected payment audit, got %v", w.audits)
	}
	if len(notifier.wallet) != 1 {
		t.Fatalf("expected a wallet push, got %d", len(notifier.wallet))
	}
}

func TestApplyVerifiedPaymentTopUpRoundsCoinsDown(t *testing.T) {
	tests := []struct {
		amountMinor int64
		coins       int64
	}{
		{amountMinor: 1000, coins: 0},
		{amountMinor: 1100, coins: 1},
		{amountMinor: 12345, coins: 11},
		{amountMinor: 250000, coins: 237},
	}
	for _, tt := range tests {
		t.Run(strconv.FormatInt(tt.amountMinor, 10), func(t *testing.T) {
			w := newMemWorld()
			svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(topUpOrder("order_1", "user-1", tt.amountMinor))}, &recordingDispatcher{}, nil)

			result, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Coins != tt.coins {
				t.Fatalf("expected %d coins, got %d", tt.coins, result.Coins)
			}
		})
	}
}

func TestApplyVerifiedPaymentIsIdempotent(t *testing.T) {
	w := newMemWorld()
	svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(topUpOrder("order_1", "user-1", 100000))}, &recordingDispatcher{}, nil)
	input := VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}

	if _, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if !result.Duplicate || result.Balance != 95 {
		t.Fatalf("expected duplicate with balance 95, got %+v", result)
	}
	if got := w.coins("user-1"); got != 95 {
		t.Fatalf("expected a single credit, got %d coins", got)
	}
	if got := w.ledgerSum("user-1"); got != 95 {
		t.Fatalf("expected ledger sum 95, got %d", got)
	}
}

func TestApplyVerifiedPaymentConcurrentReplaysCreditOnce(t *testing.T) {
	w := newMemWorld()
	svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(topUpOrder("order_1", "user-1", 100000))}, &recordingDispatcher{}, nil)
	input := VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", input); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := w.coins("user-1"); got != 95 {
		t.Fatalf("expected 95 coins, got %d", got)
	}
}

func TestApplyVerifiedPaymentRejectsBadSignature(t *testing.T) {
	w := newMemWorld()
	fetched := false
	svc := newPaymentService(w, stubGateway{
		verifyFn: func(string, string, string) bool { return false },
		fetchOrderFn: func(context.Context, string) (gateway.Order, error) {
			fetched = true
			return gateway.Order{}, nil
		},
	}, &recordingDispatcher{}, nil)

	_, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "forged"})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if fetched || w.commits != 0 || w.transactionCount() != 0 {
		t.Fatalf("expected no side effects, fetched=%v commits=%d", fetched, w.commits)
	}
}

func TestApplyVerifiedPaymentRequiresAllFields(t *testing.T) {
	svc := newPaymentService(newMemWorld(), stubGateway{}, &recordingDispatcher{}, nil)
	_, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", VerifyInput{OrderID: "order_1", PaymentID: "pay_1"})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestApplyVerifiedPaymentRejectsForeignOrder(t *testing.T) {
	w := newMemWorld()
	svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(topUpOrder("order_1", "user-2", 100000))}, &recordingDispatcher{}, nil)

	_, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	if !errors.Is(err, ErrOrderOwnership) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	if w.transactionCount() != 0 {
		t.Fatalf("expected no credit")
	}
}

func TestApplyVerifiedPaymentGatewayFailure(t *testing.T) {
	svc := newPaymentService(newMemWorld(), stubGateway{
		fetchOrderFn: func(context.Context, string) (gateway.Order, error) { return gateway.Order{}, errors.New("timeout") },
	}, &recordingDispatcher{}, nil)

	_, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestApplyVerifiedPaymentIssuesTickets(t *testing.T) {
	w := newMemWorld()
	w.seedEvent("event-1", 5)
	w.orders["order_1"] = models.PaymentOrder{OrderID: "order_1", Status: models.OrderCreated}
	svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(ticketOrder("order_1", "user-1", "event-1", 2, 50000))}, &recordingDispatcher{}, nil)
	input := VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}

	result, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.TicketIDs) != 2 || result.Amount != "500.00" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := w.event("event-1").AvailableTickets; got != 3 {
		t.Fatalf("expected 3 tickets left, got %d", got)
	}
	if got := w.orderStatus("order_1"); got != models.OrderApplied {
		t.Fatalf("expected applied order, got %s", got)
	}

	replay, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if !replay.Duplicate || len(replay.TicketIDs) != 2 {
		t.Fatalf("expected duplicate with original tickets, got %+v", replay)
	}
	if got := w.event("event-1").AvailableTickets; got != 3 {
		t.Fatalf("expected replay to keep 3 tickets, got %d", got)
	}
	if got := w.coins("user-1"); got != 0 {
		t.Fatalf("ticket purchases must not touch coins, got %d", got)
	}
}

func TestApplyVerifiedPaymentSoldOutRejectsAndAlerts(t *testing.T) {
	w := newMemWorld()
	w.seedEvent("event-1", 1)
	w.orders["order_1"] = models.PaymentOrder{OrderID: "order_1", Status: models.OrderCreated}
	dispatcher := &recordingDispatcher{}
	svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(ticketOrder("order_1", "user-1", "event-1", 2, 50000))}, dispatcher, nil)

	_, err := svc.ApplyVerifiedPayment(context.Background(), "user-1", VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	if !errors.Is(err, ErrPaymentNeedsFollowup) {
		t.Fatalf("expected payment follow-up, got %v", err)
	}
	if got := w.event("event-1").AvailableTickets; got != 1 {
		t.Fatalf("expected inventory untouched, got %d", got)
	}
	if got := w.orderStatus("order_1"); got != models.OrderRejected {
		t.Fatalf("expected rejected order, got %s", got)
	}
	if kinds := dispatcher.kinds(); len(kinds) != 1 || kinds[0] != alerts.KindPaymentFollowup {
		t.Fatalf("expected one follow-up alert, got %v", kinds)
	}
}

func TestApplyVerifiedPaymentLastTicketRace(t *testing.T) {
	w := newMemWorld()
	w.seedEvent("event-1", 1)
	dispatcher := &recordingDispatcher{}
	svc := newPaymentService(w, stubGateway{fetchOrderFn: fetchReturns(
		ticketOrder("order_a", "user-a", "event-1", 1, 50000),
		ticketOrder("order_b", "user-b", "event-1", 1, 50000),
	)}, dispatcher, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []struct{ user, order, payment string }{
		{"user-a", "order_a", "pay_a"},
		{"user-b", "order_b", "pay_b"},
	} {
		i, buyer := i, buyer
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.ApplyVerifiedPayment(context.Background(), buyer.user, VerifyInput{OrderID: buyer.order, PaymentID: buyer.payment, Signature: "sig"})
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrPaymentNeedsFollowup):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected one winner and one loser, got %d/%d", won, lost)
	}
	if got := w.event("event-1").AvailableTickets; got != 0 {
		t.Fatalf("expected 0 tickets left, got %d", got)
	}
	if len(dispatcher.kinds()) != 1 {
		t.Fatalf("expected one alert for the losing payment")
	}
}

func TestCreateOrderValidatesAndMirrors(t *testing.T) {
	w := newMemWorld()
	w.seedEvent("event-1", 2)
	var sent gateway.CreateOrderRequest
	svc := newPaymentService(w, stubGateway{
		createOrderFn: func(_ context.Context, input gateway.CreateOrderRequest) (gateway.Order, error) {
			sent = input
			return gateway.Order{ID: "order_1", Amount: input.Amount, Currency: input.Currency}, nil
		},
	}, &recordingDispatcher{}, nil)

	result, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "user-1", Kind: models.OrderKindTicket, AmountMinor: 1, EventID: "event-1", Quantity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OrderID != "order_1" || result.Amount != "500.00" || result.Currency != "INR" {
		t.Fatalf("expected the event price to win over the client amount, got %+v", result)
	}
	if sent.Amount != 50000 || sent.Notes["user_id"] != "user-1" || sent.Notes["event_id"] != "event-1" || sent.Notes["quantity"] != "2" {
		t.Fatalf("unexpected notes: %v", sent.Notes)
	}
	if got := w.orderStatus("order_1"); got != models.OrderCreated {
		t.Fatalf("expected mirrored order, got %q", got)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateOrderInput
		wantErr error
	}{
		{name: "unknown kind", input: CreateOrderInput{UserID: "user-1", Kind: "gift", AmountMinor: 100}, wantErr: ErrInvalidKind},
		{name: "zero amount", input: CreateOrderInput{UserID: "user-1", Kind: models.OrderKindWallet}, wantErr: ErrInvalidAmount},
		{name: "zero quantity", input: CreateOrderInput{UserID: "user-1", Kind: models.OrderKindTicket, AmountMinor: 100, EventID: "event-1"}, wantErr: ErrInvalidQuantity},
		{name: "unknown event", input: CreateOrderInput{UserID: "user-1", Kind: models.OrderKindTicket, AmountMinor: 100, EventID: "nope", Quantity: 1}, wantErr: ErrNotFound},
		{name: "sold out", input: CreateOrderInput{UserID: "user-1", Kind: models.OrderKindTicket, AmountMinor: 100, EventID: "event-1", Quantity: 3}, wantErr: ErrInsufficientInventory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newMemWorld()
			w.seedEvent("event-1", 2)
			svc := newPaymentService(w, stubGateway{
				createOrderFn: func(context.Context, gateway.CreateOrderRequest) (gateway.Order, error) {
					t.Fatalf("gateway must not be called")
					return gateway.Order{}, nil
				},
			}, &recordingDispatcher{}, nil)

			if _, err := svc.CreateOrder(context.Background(), tt.input); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	svc := newPaymentService(newMemWorld(), stubGateway{
		createOrderFn: func(context.Context, gateway.CreateOrderRequest) (gateway.Order, error) {
			return gateway.Order{}, sql.ErrConnDone
		},
	}, &recordingDispatcher{}, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "user-1", Kind: models.OrderKindWallet, AmountMinor: 100000})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}
