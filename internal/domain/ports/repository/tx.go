package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres, *sql.Tx for
// SQLite). Repositories must accept nil and then run outside a transaction.
type Tx interface{}

// TransactionManager runs fn inside one transaction, committing when fn
// returns nil and rolling back otherwise. The runner uses it to create the
// final document and mark the job completed together.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		doc, err := docs.Create(ctx, tx, d)
//		...
//		_, err = jobs.Update(ctx, tx, id, patch)
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
