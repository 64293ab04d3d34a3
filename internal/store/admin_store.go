package store

import (
	"context"
	"database/sql"
	"errors"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

// IsAdmin reports whether the user is an admin and whether they are a super
// admin, who holds every role implicitly.
func (s *AdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	var isSuper bool
	err := s.db.GetContext(ctx, &isSuper, `
		SELECT is_super
		FROM admins
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, isSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var has bool
	err := s.db.GetContext(ctx, &has, `
		SELECT EXISTS(SELECT 1 FROM admin_roles WHERE admin_user_id = $1 AND role = $2)
	`, userID, role)
	return has, err
}
