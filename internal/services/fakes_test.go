package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"ticketing/internal/alerts"
	"ticketing/internal/gateway"
	"ticketing/internal/models"
	"ticketing/internal/store"
	dynamostore "ticketing/internal/store/dynamodb"
	"ticketing/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var dynamoNotFound = dynamostore.ErrNotFound

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memWorld is an in-memory database. WithTx holds the lock for the whole
// closure and restores a snapshot when it fails, so transactions are
// serial and atomic. Store methods that take a tx assume the lock is held.
type memWorld struct {
	mu            sync.Mutex
	users         map[string]bool
	wallets       map[string]models.Wallet
	transactions  []store.TransactionInput
	events        map[string]models.Event
	ticketOrders  map[string]string
	tickets       map[string][]string
	orders        map[string]models.PaymentOrder
	pendingEvents map[string]models.PendingEvent
	adminRecs     map[string]models.AdminRecommendation
	audits        []string
	commits       int
	rollbacks     int
}

func newMemWorld() *memWorld {
	return &memWorld{
		users:         map[string]bool{},
		wallets:       map[string]models.Wallet{},
		events:        map[string]models.Event{},
		ticketOrders:  map[string]string{},
		tickets:       map[string][]string{},
		orders:        map[string]models.PaymentOrder{},
		pendingEvents: map[string]models.PendingEvent{},
		adminRecs:     map[string]models.AdminRecommendation{},
	}
}

type memSnapshot struct {
	users         map[string]bool
	wallets       map[string]models.Wallet
	transactions  []store.TransactionInput
	events        map[string]models.Event
	ticketOrders  map[string]string
	tickets       map[string][]string
	orders        map[string]models.PaymentOrder
	pendingEvents map[string]models.PendingEvent
	adminRecs     map[string]models.AdminRecommendation
	audits        []string
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (w *memWorld) snapshot() memSnapshot {
	return memSnapshot{
		users:         copyMap(w.users),
		wallets:       copyMap(w.wallets),
		transactions:  append([]store.TransactionInput(nil), w.transactions...),
		events:        copyMap(w.events),
		ticketOrders:  copyMap(w.ticketOrders),
		tickets:       copyMap(w.tickets),
		orders:        copyMap(w.orders),
		pendingEvents: copyMap(w.pendingEvents),
		adminRecs:     copyMap(w.adminRecs),
		audits:        append([]string(nil), w.audits...),
	}
}

func (w *memWorld) restore(s memSnapshot) {
	w.users = s.users
	w.wallets = s.wallets
	w.transactions = s.transactions
	w.events = s.events
	w.ticketOrders = s.ticketOrders
	w.tickets = s.tickets
	w.orders = s.orders
	w.pendingEvents = s.pendingEvents
	w.adminRecs = s.adminRecs
	w.audits = s.audits
}

func (w *memWorld) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := w.snapshot()
	if err := fn(nil); err != nil {
		w.restore(snap)
		w.rollbacks++
		return err
	}
	w.commits++
	return nil
}

func (w *memWorld) coins(userID string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallets[userID].Coins
}

func (w *memWorld) ledgerSum(userID string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	walletID := w.wallets[userID].ID
	var sum int64
	for _, t := range w.transactions {
		if t.WalletID == walletID && t.Status == models.StatusCompleted {
			sum += t.Coins
		}
	}
	return sum
}

func (w *memWorld) transactionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transactions)
}

func (w *memWorld) seedWallet(userID string, coins int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users[userID] = true
	wallet := models.Wallet{ID: "w-" + userID, UserID: userID, Coins: coins, TotalSpent: decimal.Zero}
	w.wallets[userID] = wallet
	if coins > 0 {
		w.transactions = append(w.transactions, store.TransactionInput{
			ID: "seed-" + userID, WalletID: wallet.ID, Kind: models.KindCredit, Coins: coins, Status: models.StatusCompleted,
		})
	}
}

func (w *memWorld) seedEvent(eventID string, tickets int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events[eventID] = models.Event{
		ID:               eventID,
		Price:            decimal.RequireFromString("250.00"),
		InitialTickets:   tickets,
		AvailableTickets: tickets,
	}
}

type memUsers struct{ w *memWorld }

func (m memUsers) Ensure(_ context.Context, _ store.Execer, userID string) error {
	m.w.users[userID] = true
	return nil
}

type memWallets struct{ w *memWorld }

func (m memWallets) Ensure(_ context.Context, _ store.Tx, userID string) (models.Wallet, error) {
	if !m.w.users[userID] {
		return models.Wallet{}, fmt.Errorf("wallet owner %s missing", userID)
	}
	wallet, ok := m.w.wallets[userID]
	if !ok {
		wallet = models.Wallet{ID: "w-" + userID, UserID: userID, TotalSpent: decimal.Zero}
		m.w.wallets[userID] = wallet
	}
	return wallet, nil
}

func (m memWallets) GetByUser(_ context.Context, userID string) (models.Wallet, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	wallet, ok := m.w.wallets[userID]
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	return wallet, nil
}

func (m memWallets) Credit(_ context.Context, _ store.Getter, userID string, coins int64, spent decimal.Decimal) (models.Wallet, error) {
	wallet, ok := m.w.wallets[userID]
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	wallet.Coins += coins
	wallet.TotalSpent = wallet.TotalSpent.Add(spent)
	m.w.wallets[userID] = wallet
	return wallet, nil
}

func (m memWallets) Debit(_ context.Context, _ store.Getter, userID string, coins int64) (models.Wallet, error) {
	wallet, ok := m.w.wallets[userID]
	if !ok || wallet.Coins < coins {
		return models.Wallet{}, store.ErrNoRowsAffected
	}
	wallet.Coins -= coins
	m.w.wallets[userID] = wallet
	return wallet, nil
}

func (m memWallets) Exists(_ context.Context, _ store.Getter, userID string) (bool, error) {
	_, ok := m.w.wallets[userID]
	return ok, nil
}

func (m memWallets) Reconcile(context.Context) ([]store.WalletBalanceSummary, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var rows []store.WalletBalanceSummary
	for userID, wallet := range m.w.wallets {
		var sum int64
		for _, t := range m.w.transactions {
			if t.WalletID == wallet.ID && t.Status == models.StatusCompleted {
				sum += t.Coins
			}
		}
		rows = append(rows, store.WalletBalanceSummary{
			WalletID: wallet.ID, UserID: userID, StoredCoins: wallet.Coins, CalculatedCoins: sum, Difference: wallet.Coins - sum,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].WalletID < rows[j].WalletID })
	return rows, nil
}

type memTransactions struct{ w *memWorld }

func (m memTransactions) Create(_ context.Context, _ store.Execer, input store.TransactionInput) error {
	for _, t := range m.w.transactions {
		if input.PaymentID != nil && t.PaymentID != nil && *t.PaymentID == *input.PaymentID {
			return store.ErrAlreadyRecorded
		}
		if input.RefundOf != nil && t.RefundOf != nil && *t.RefundOf == *input.RefundOf {
			return store.ErrAlreadyRecorded
		}
		if input.RequestKey != nil && t.RequestKey != nil && *t.RequestKey == *input.RequestKey {
			return store.ErrAlreadyRecorded
		}
	}
	m.w.transactions = append(m.w.transactions, input)
	return nil
}

func (m memTransactions) ListByUser(_ context.Context, userID string, kind models.TransactionKind, limit, offset int) ([]models.Transaction, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	walletID := m.w.wallets[userID].ID
	var rows []models.Transaction
	for _, t := range m.w.transactions {
		if t.WalletID != walletID || (kind != "" && t.Kind != kind) {
			continue
		}
		rows = append(rows, models.Transaction{ID: t.ID, WalletID: t.WalletID, Kind: t.Kind, Coins: t.Coins, Amount: t.Amount})
	}
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

type memAudit struct{ w *memWorld }

func (m memAudit) Log(_ context.Context, _ store.Execer, _, action, _, _ string, _ map[string]any) error {
	m.w.audits = append(m.w.audits, action)
	return nil
}

type memOrders struct{ w *memWorld }

func (m memOrders) Create(_ context.Context, order models.PaymentOrder) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	order.Status = models.OrderCreated
	m.w.orders[order.OrderID] = order
	return nil
}

func (m memOrders) Transition(_ context.Context, _ store.Execer, orderID string, status models.OrderStatus, paymentID string, reason *string) error {
	order, ok := m.w.orders[orderID]
	if !ok || order.Status == models.OrderApplied {
		return nil
	}
	order.Status = status
	order.PaymentID = &paymentID
	order.FailureReason = reason
	m.w.orders[orderID] = order
	return nil
}

func (w *memWorld) orderStatus(orderID string) models.OrderStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orders[orderID].Status
}

type memInventory struct{ w *memWorld }

func (m memInventory) GetEvent(_ context.Context, eventID string) (models.Event, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	event, ok := m.w.events[eventID]
	if !ok {
		return models.Event{}, sql.ErrNoRows
	}
	return event, nil
}

func (m memInventory) ReserveAndIssue(_ context.Context, _ store.Execer, input store.IssueInput) ([]string, error) {
	if _, dup := m.w.ticketOrders[input.PaymentID]; dup {
		return nil, store.ErrAlreadyRecorded
	}
	m.w.ticketOrders[input.PaymentID] = input.OrderID
	event, ok := m.w.events[input.EventID]
	if !ok || event.AvailableTickets < input.Quantity {
		return nil, store.ErrNotEnoughStock
	}
	event.AvailableTickets -= input.Quantity
	m.w.events[input.EventID] = event
	ids := make([]string, 0, input.Quantity)
	for i := 0; i < input.Quantity; i++ {
		ids = append(ids, fmt.Sprintf("%s-t%d", input.PaymentID, i))
	}
	m.w.tickets[input.PaymentID] = ids
	return ids, nil
}

func (m memInventory) TicketIDsByPayment(_ context.Context, paymentID string) ([]string, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	return m.w.tickets[paymentID], nil
}

func (m memInventory) CreateEvent(_ context.Context, _ store.Execer, event models.Event) error {
	m.w.events[event.ID] = event
	return nil
}

type memPendingEvents struct{ w *memWorld }

func (m memPendingEvents) Create(_ context.Context, event models.PendingEvent) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	m.w.pendingEvents[event.ID] = event
	return nil
}

func (m memPendingEvents) GetByID(_ context.Context, id string) (models.PendingEvent, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	event, ok := m.w.pendingEvents[id]
	if !ok {
		return models.PendingEvent{}, sql.ErrNoRows
	}
	return event, nil
}

func (m memPendingEvents) GetForUpdate(_ context.Context, _ store.Getter, id string) (models.PendingEvent, error) {
	event, ok := m.w.pendingEvents[id]
	if !ok {
		return models.PendingEvent{}, sql.ErrNoRows
	}
	return event, nil
}

func (m memPendingEvents) SetField(_ context.Context, _ store.Execer, id string, field models.RecommendationCategory, value any) error {
	event, ok := m.w.pendingEvents[id]
	if !ok || event.Status != models.PendingEventDraft {
		return store.ErrNoRowsAffected
	}
	switch field {
	case models.CategoryLocation:
		event.Location = value.(string)
	case models.CategoryVenue:
		event.Venue = value.(string)
	case models.CategoryCategory:
		event.Category = value.(string)
	case models.CategoryTickets:
		event.TotalTickets = value.(int)
	case models.CategoryPricing:
		event.Price = value.(decimal.Decimal)
	default:
		return fmt.Errorf("pending event field %q is not writable", field)
	}
	m.w.pendingEvents[id] = event
	return nil
}

func (m memPendingEvents) MarkFinalized(_ context.Context, _ store.Execer, id, eventID string) error {
	event, ok := m.w.pendingEvents[id]
	if !ok || event.Status != models.PendingEventDraft {
		return store.ErrNoRowsAffected
	}
	event.Status = models.PendingEventFinalized
	event.EventID = &eventID
	m.w.pendingEvents[id] = event
	return nil
}

type memAdminRecs struct{ w *memWorld }

func (m memAdminRecs) Create(_ context.Context, _ store.Execer, rec models.AdminRecommendation) error {
	m.w.adminRecs[rec.ID] = rec
	return nil
}

func (m memAdminRecs) GetForUpdate(_ context.Context, _ store.Getter, id string) (models.AdminRecommendation, error) {
	rec, ok := m.w.adminRecs[id]
	if !ok {
		return models.AdminRecommendation{}, sql.ErrNoRows
	}
	return rec, nil
}

func (m memAdminRecs) ListByPendingEvent(_ context.Context, pendingEventID string) ([]models.AdminRecommendation, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var rows []models.AdminRecommendation
	for _, rec := range m.w.adminRecs {
		if rec.PendingEventID != nil && *rec.PendingEventID == pendingEventID {
			rows = append(rows, rec)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (m memAdminRecs) Decide(_ context.Context, _ store.Execer, id string, status models.AdminRecommendationStatus, notes *string) error {
	rec, ok := m.w.adminRecs[id]
	if !ok || rec.Status != models.AdminRecommendationPending {
		return store.ErrNoRowsAffected
	}
	rec.Status = status
	rec.AdminNotes = notes
	m.w.adminRecs[id] = rec
	return nil
}

func (m memAdminRecs) CountPending(_ context.Context, _ store.Getter, pendingEventID string) (int, error) {
	var n int
	for _, rec := range m.w.adminRecs {
		if rec.PendingEventID != nil && *rec.PendingEventID == pendingEventID && rec.Status == models.AdminRecommendationPending {
			n++
		}
	}
	return n, nil
}

func (m memAdminRecs) Repoint(_ context.Context, _ store.Execer, pendingEventID, eventID string) (int64, error) {
	var n int64
	for id, rec := range m.w.adminRecs {
		if rec.PendingEventID != nil && *rec.PendingEventID == pendingEventID {
			event := eventID
			rec.EventID = &event
			rec.PendingEventID = nil
			m.w.adminRecs[id] = rec
			n++
		}
	}
	return n, nil
}

func (w *memWorld) adminRec(id string) models.AdminRecommendation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.adminRecs[id]
}

func (w *memWorld) pendingEvent(id string) models.PendingEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingEvents[id]
}

func (w *memWorld) event(id string) models.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events[id]
}

func (w *memWorld) ledger(notifier WalletNotifier) *Ledger {
	return NewLedger(w, memWallets{w}, memTransactions{w}, memUsers{w}, notifier, discardLogger())
}

type stubGateway struct {
	createOrderFn func(ctx context.Context, input gateway.CreateOrderRequest) (gateway.Order, error)
	fetchOrderFn  func(ctx context.Context, orderID string) (gateway.Order, error)
	verifyFn      func(orderID, paymentID, signature string) bool
}

func (s stubGateway) CreateOrder(ctx context.Context, input gateway.CreateOrderRequest) (gateway.Order, error) {
	return s.createOrderFn(ctx, input)
}

func (s stubGateway) FetchOrder(ctx context.Context, orderID string) (gateway.Order, error) {
	return s.fetchOrderFn(ctx, orderID)
}

func (s stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if s.verifyFn == nil {
		return true
	}
	return s.verifyFn(orderID, paymentID, signature)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (r *recordingDispatcher) Dispatch(_ context.Context, alert alerts.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

func (r *recordingDispatcher) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, a := range r.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

type recordingNotifier struct {
	mu              sync.Mutex
	wallet          []websocket.WalletUpdate
	recommendations []websocket.RecommendationUpdate
}

func (r *recordingNotifier) NotifyWallet(_ string, update websocket.WalletUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallet = append(r.wallet, update)
}

func (r *recordingNotifier) NotifyRecommendation(_ string, update websocket.RecommendationUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recommendations = append(r.recommendations, update)
}

type stubRecommendationStore struct {
	createFn       func(ctx context.Context, rec models.Recommendation) (models.Recommendation, error)
	getFn          func(ctx context.Context, id string) (models.Recommendation, error)
	getByTempIDFn  func(ctx context.Context, tempID string) (models.Recommendation, error)
	respondFn      func(ctx context.Context, id, adminID, answer string) (models.Recommendation, bool, error)
	listPendingFn  func(ctx context.Context, organizerID string) ([]models.Recommendation, error)
	markConsumedFn func(ctx context.Context, id, pendingEventID string) error
}

func (s stubRecommendationStore) CreateRecommendation(ctx context.Context, rec models.Recommendation) (models.Recommendation, error) {
	return s.createFn(ctx, rec)
}

func (s stubRecommendationStore) GetRecommendation(ctx context.Context, id string) (models.Recommendation, error) {
	if s.getFn == nil {
		return models.Recommendation{}, dynamoNotFound
	}
	return s.getFn(ctx, id)
}

func (s stubRecommendationStore) GetRecommendationByTempID(ctx context.Context, tempID string) (models.Recommendation, error) {
	if s.getByTempIDFn == nil {
		return models.Recommendation{}, dynamoNotFound
	}
	return s.getByTempIDFn(ctx, tempID)
}

func (s stubRecommendationStore) RespondToRecommendation(ctx context.Context, id, adminID, answer string) (models.Recommendation, bool, error) {
	return s.respondFn(ctx, id, adminID, answer)
}

func (s stubRecommendationStore) ListPendingRecommendations(ctx context.Context, organizerID string) ([]models.Recommendation, error) {
	return s.listPendingFn(ctx, organizerID)
}

func (s stubRecommendationStore) MarkConsumed(ctx context.Context, id, pendingEventID string) error {
	if s.markConsumedFn == nil {
		return nil
	}
	return s.markConsumedFn(ctx, id, pendingEventID)
}
