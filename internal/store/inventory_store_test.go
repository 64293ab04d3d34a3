package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func issueInput() IssueInput {
	return IssueInput{
		EventID:   "event-1",
		Quantity:  2,
		BuyerID:   "user-1",
		PaymentID: "pay_1",
		OrderID:   "order_1",
		UnitPrice: decimal.NewFromInt(250),
		Amount:    decimal.NewFromInt(500),
	}
}

func TestInventoryStoreReserveAndIssue(t *testing.T) {
	var queries []string
	tx := stubTx{queries: &queries}
	ids, err := NewInventoryStore(stubDB{}).ReserveAndIssue(context.Background(), tx, issueInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("expected two distinct ticket ids, got %#v", ids)
	}
	if len(queries) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(queries))
	}
	if !strings.Contains(queries[0], "INSERT INTO ticket_orders") {
		t.Fatalf("payment must be recorded first: %s", queries[0])
	}
	if !strings.Contains(queries[1], "available_tickets >= $1") {
		t.Fatalf("decrement must be conditional: %s", queries[1])
	}
	for _, q := range queries[2:] {
		if !strings.Contains(q, "INSERT INTO tickets") {
			t.Fatalf("unexpected query: %s", q)
		}
	}
}

func TestInventoryStoreReserveAndIssueDuplicatePayment(t *testing.T) {
	var queries []string
	tx := stubTx{
		queries: &queries,
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	_, err := NewInventoryStore(stubDB{}).ReserveAndIssue(context.Background(), tx, issueInput())
	if !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("expected to stop after the payment insert, got %d statements", len(queries))
	}
}

func TestInventoryStoreReserveAndIssueSoldOut(t *testing.T) {
	var queries []string
	tx := stubTx{
		queries: &queries,
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if strings.Contains(query, "UPDATE events") {
				return stubResult{rows: 0}, nil
			}
			return stubResult{rows: 1}, nil
		},
	}
	_, err := NewInventoryStore(stubDB{}).ReserveAndIssue(context.Background(), tx, issueInput())
	if !errors.Is(err, ErrNotEnoughStock) {
		t.Fatalf("expected ErrNotEnoughStock, got %v", err)
	}
	for _, q := range queries {
		if strings.Contains(q, "INSERT INTO tickets") {
			t.Fatalf("no ticket may be issued when stock is short")
		}
	}
}

func TestInventoryStoreReserveAndIssueUnknownEvent(t *testing.T) {
	var queries []string
	tx := stubTx{
		queries: &queries,
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return nil, &pq.Error{Code: "23503", Constraint: "ticket_orders_event_id_fkey"}
		},
	}
	_, err := NewInventoryStore(stubDB{}).ReserveAndIssue(context.Background(), tx, issueInput())
	if !errors.Is(err, ErrNotEnoughStock) {
		t.Fatalf("expected ErrNotEnoughStock, got %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("expected to stop after the payment insert, got %d statements", len(queries))
	}
}

func TestInventoryStoreAdjustBelowZero(t *testing.T) {
	tx := stubTx{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "available_tickets + $1 >= 0") {
				t.Fatalf("unexpected query: %s", query)
			}
			return sql.ErrNoRows
		},
	}
	_, err := NewInventoryStore(stubDB{}).Adjust(context.Background(), tx, "event-1", -50)
	if !errors.Is(err, ErrNoRowsAffected) {
		t.Fatalf("expected ErrNoRowsAffected, got %v", err)
	}
}

func TestInventoryStoreReconcile(t *testing.T) {
	store := NewInventoryStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM events e") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*[]EventStockSummary) = []EventStockSummary{{EventID: "event-1", Initial: 10, Available: 8, Issued: 2}}
			return nil
		},
	})
	rows, err := store.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Drift != 0 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
