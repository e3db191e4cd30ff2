package repository

import (
	"context"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within a
// store transaction, passing the underlying transaction handle via `tx`.
//
// The concrete type of `tx` is infra-defined (pgx.Tx for Postgres,
// mongo.SessionContext for MongoDB, a private handle for the in-memory store).
// Repositories MUST gracefully accept NoTX (non-transactional path).
//
// If fn returns an error the transaction is rolled back and the error is
// returned unchanged, so callers can errors.Is against domain sentinels.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
