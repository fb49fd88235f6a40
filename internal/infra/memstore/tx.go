package memstore

import (
	"context"

	"github.com/jackc/pgx/v4"

	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs fn directly. The memory repos apply each call atomically,
// so there is nothing to roll back.
type TxManager struct{}

func NewTxManager() *TxManager { return &TxManager{} }

type memTx struct{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, memTx{})
}
