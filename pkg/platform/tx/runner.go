package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "lifekey/pkg/domain-errors"
)

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// Runner provides a transactional boundary for service mutations. The SQL
// implementation wraps a database transaction; the in-memory one a coarse
// lock. Stores join the transaction through the context (see WithTx/From).
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs fn inside a database/sql transaction. The transaction is
// stashed in the derived context so every store call inside fn joins it; any
// error from fn (including an audit append failure) rolls the whole
// transaction back.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db, timeout: defaultTxTimeout}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	hookCtx, hooks := withCommitHooks(ctx)
	if err := fn(WithTx(hookCtx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	hooks.run()
	return nil
}

// MemoryRunner serializes mutations behind a single mutex. In-memory stores
// have no rollback, so fn must perform its own writes last; the lock gives
// the same one-writer-at-a-time guarantee the SQL runner gets from row locks.
type MemoryRunner struct {
	mu sync.Mutex
}

func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	hookCtx, hooks := withCommitHooks(ctx)
	if err := fn(hookCtx); err != nil {
		return err
	}
	hooks.run()
	return nil
}
