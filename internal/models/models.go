package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindTopUp                 TransactionKind = "top_up"
	KindCredit                TransactionKind = "credit"
	KindDebit                 TransactionKind = "debit"
	KindRecommendationRequest TransactionKind = "recommendation_request"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

type Wallet struct {
	ID         string          `db:"id" json:"id"`
	UserID     string          `db:"user_id" json:"user_id"`
	Coins      int64           `db:"coins" json:"coins"`
	TotalSpent decimal.Decimal `db:"total_spent" json:"total_spent"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

type Transaction struct {
	ID          string            `db:"id" json:"id"`
	WalletID    string            `db:"wallet_id" json:"wallet_id"`
	Kind        TransactionKind   `db:"kind" json:"kind"`
	Amount      decimal.Decimal   `db:"amount" json:"amount"`
	Coins       int64             `db:"coins" json:"coins"`
	PlatformFee decimal.Decimal   `db:"platform_fee" json:"platform_fee"`
	Status      TransactionStatus `db:"status" json:"status"`
	PaymentID   *string           `db:"payment_id" json:"payment_id,omitempty"`
	OrderID     *string           `db:"order_id" json:"order_id,omitempty"`
	RefundOf    *string           `db:"refund_of" json:"refund_of,omitempty"`
	Details     string            `db:"details" json:"details"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

type Event struct {
	ID               string          `db:"id" json:"id"`
	OrganizerID      string          `db:"organizer_id" json:"organizer_id"`
	Title            string          `db:"title" json:"title"`
	Description      string          `db:"description" json:"description"`
	Location         string          `db:"location" json:"location"`
	Venue            string          `db:"venue" json:"venue"`
	Category         string          `db:"category" json:"category"`
	Price            decimal.Decimal `db:"price" json:"price"`
	InitialTickets   int             `db:"initial_tickets" json:"initial_tickets"`
	AvailableTickets int             `db:"available_tickets" json:"available_tickets"`
	PendingEventID   *string         `db:"pending_event_id" json:"pending_event_id,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

type Ticket struct {
	ID        string          `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	BuyerID   string          `db:"buyer_id" json:"buyer_id"`
	PaymentID string          `db:"payment_id" json:"payment_id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Status    string          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type OrderKind string

const (
	OrderKindWallet OrderKind = "wallet"
	OrderKindTicket OrderKind = "ticket"
)

func (k OrderKind) Valid() bool {
	return k == OrderKindWallet || k == OrderKindTicket
}

type OrderStatus string

const (
	OrderCreated  OrderStatus = "created"
	OrderVerified OrderStatus = "verified"
	OrderApplied  OrderStatus = "applied"
	OrderRejected OrderStatus = "rejected"
)

type PaymentOrder struct {
	OrderID       string          `db:"order_id" json:"order_id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Kind          OrderKind       `db:"kind" json:"kind"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	EventID       *string         `db:"event_id" json:"event_id,omitempty"`
	Quantity      *int            `db:"quantity" json:"quantity,omitempty"`
	Status        OrderStatus     `db:"status" json:"status"`
	PaymentID     *string         `db:"payment_id" json:"payment_id,omitempty"`
	FailureReason *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// RecommendationCategory names the event attribute a recommendation is about.
// The same set types AdminRecommendation values.
type RecommendationCategory string

const (
	CategoryLocation RecommendationCategory = "location"
	CategoryVenue    RecommendationCategory = "venue"
	CategoryTickets  RecommendationCategory = "tickets"
	CategoryCategory RecommendationCategory = "category"
	CategoryPricing  RecommendationCategory = "pricing"
)

func (c RecommendationCategory) Valid() bool {
	switch c {
	case CategoryLocation, CategoryVenue, CategoryTickets, CategoryCategory, CategoryPricing:
		return true
	}
	return false
}

type RecommendationStatus string

const (
	RecommendationPending   RecommendationStatus = "pending"
	RecommendationResponded RecommendationStatus = "responded"
)

type EventDraft struct {
	Title        string `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Description  string `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Location     string `json:"location,omitempty" dynamodbav:"location,omitempty"`
	Venue        string `json:"venue,omitempty" dynamodbav:"venue,omitempty"`
	Category     string `json:"category,omitempty" dynamodbav:"category,omitempty"`
	Price        string `json:"price,omitempty" dynamodbav:"price,omitempty"`
	TotalTickets int    `json:"total_tickets,omitempty" dynamodbav:"total_tickets,omitempty"`
}

// Recommendation lives in the document store. ID is assigned by that store;
// TempID is the correlation id the client committed to before ID existed.
type Recommendation struct {
	ID                 string                 `json:"id,omitempty" dynamodbav:"id"`
	TempID             string                 `json:"temp_id" dynamodbav:"temp_id"`
	OrganizerID        string                 `json:"organizer_id" dynamodbav:"organizer_id"`
	EventDraft         EventDraft             `json:"event_draft" dynamodbav:"event_draft"`
	Category           RecommendationCategory `json:"category" dynamodbav:"category"`
	Ask                string                 `json:"ask" dynamodbav:"ask"`
	Status             RecommendationStatus   `json:"status" dynamodbav:"status"`
	Answer             string                 `json:"answer,omitempty" dynamodbav:"answer,omitempty"`
	RespondedBy        string                 `json:"responded_by,omitempty" dynamodbav:"responded_by,omitempty"`
	DebitTransactionID string                 `json:"debit_transaction_id,omitempty" dynamodbav:"debit_transaction_id,omitempty"`
	ConsumedInto       string                 `json:"consumed_into,omitempty" dynamodbav:"consumed_into,omitempty"`
	CreatedAt          time.Time              `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at" dynamodbav:"updated_at"`
	RespondedAt        *time.Time             `json:"responded_at,omitempty" dynamodbav:"responded_at,omitempty"`
}

type PendingEvent struct {
	ID           string          `db:"id" json:"id"`
	OwnerID      string          `db:"owner_id" json:"owner_id"`
	Title        string          `db:"title" json:"title"`
	Description  string          `db:"description" json:"description"`
	Location     string          `db:"location" json:"location"`
	Venue        string          `db:"venue" json:"venue"`
	Category     string          `db:"category" json:"category"`
	Price        decimal.Decimal `db:"price" json:"price"`
	TotalTickets int             `db:"total_tickets" json:"total_tickets"`
	Status       string          `db:"status" json:"status"`
	EventID      *string         `db:"event_id" json:"event_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

const (
	PendingEventDraft     = "draft"
	PendingEventFinalized = "finalized"
)

type AdminRecommendationStatus string

const (
	AdminRecommendationPending  AdminRecommendationStatus = "pending"
	AdminRecommendationApproved AdminRecommendationStatus = "approved"
	AdminRecommendationRejected AdminRecommendationStatus = "rejected"
)

type AdminRecommendation struct {
	ID               string                    `db:"id" json:"id"`
	PendingEventID   *string                   `db:"pending_event_id" json:"pending_event_id,omitempty"`
	EventID          *string                   `db:"event_id" json:"event_id,omitempty"`
	Type             RecommendationCategory    `db:"type" json:"type"`
	RecommendedValue string                    `db:"recommended_value" json:"recommended_value"`
	Status           AdminRecommendationStatus `db:"status" json:"status"`
	AdminNotes       *string                   `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedBy        string                    `db:"created_by" json:"created_by"`
	CreatedAt        time.Time                 `db:"created_at" json:"created_at"`
	DecidedAt        *time.Time                `db:"decided_at" json:"decided_at,omitempty"`
}

type Alert struct {
	ID              string     `db:"id" json:"id"`
	Kind            string     `db:"kind" json:"kind"`
	Message         string     `db:"message" json:"message"`
	Details         string     `db:"details" json:"details"`
	SourceMessageID *string    `db:"source_message_id" json:"source_message_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
