package store

import (
	"context"
	"database/sql"
	"errors"
)

// Sentinel results for conditional writes. Services translate these into
// their own error taxonomy.
var (
	ErrNoRowsAffected  = errors.New("no rows affected")
	ErrAlreadyRecorded = errors.New("idempotency key already recorded")
	ErrNotEnoughStock  = errors.New("not enough tickets available")
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

// Tx is the subset of *sqlx.Tx the stores write through.
type Tx interface {
	Execer
	Getter
}

func rowsAffected(res sql.Result) (int64, error) {
	if res == nil {
		return 0, nil
	}
	return res.RowsAffected()
}
