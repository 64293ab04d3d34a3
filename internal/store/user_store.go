package store

import "context"

// UserStore mirrors identities issued by the external identity provider so
// wallets can cascade with their owner.
type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Ensure(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, userID)
	return err
}
