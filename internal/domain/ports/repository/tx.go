package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and hands the
// transaction handle to fn as tx. Repositories accept that handle (or NoTX for
// the non-transactional path) and detect a live transaction themselves, e.g.
// to add FOR UPDATE.
//
// The concrete type of tx is infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// KeyLocker serializes work on a key for the lifetime of the enclosing
// transaction (Postgres: pg_advisory_xact_lock).
type KeyLocker interface {
	LockKey(ctx context.Context, tx Tx, key string) error
}
