package repositories

import "context"

// TxFn runs with a context that carries the open transaction.
type TxFn func(ctx context.Context) error

// TransactionManager groups repository calls into one unit of work. A view
// recorded alongside a project read commits or rolls back with it.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
