package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestAdminStoreIsAdminNoRows(t *testing.T) {
	store := NewAdminStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	})
	isAdmin, isSuper, err := store.IsAdmin(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isAdmin || isSuper {
		t.Fatalf("expected non-admin result")
	}
}

func TestAdminStoreIsAdmin(t *testing.T) {
	store := NewAdminStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM admins") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*bool) = true
			return nil
		},
	})
	isAdmin, isSuper, err := store.IsAdmin(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isAdmin || !isSuper {
		t.Fatalf("expected super admin result")
	}
}

func TestAdminStoreHasRole(t *testing.T) {
	store := NewAdminStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM admin_roles") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != "user-1" || args[1] != "can_adjudicate_events" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*bool) = true
			return nil
		},
	})
	has, err := store.HasRole(context.Background(), "user-1", "can_adjudicate_events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Fatalf("expected role")
	}
}
