// Package transaction runs groups of SQL statements atomically. The active
// transaction travels in the context so that CRUD services called inside
// WithTransaction join it instead of opening their own.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrDeadlock is returned when a transaction keeps deadlocking after every retry
	ErrDeadlock = errors.New("deadlock detected")
	// ErrNestedTransactionNotSupported is returned when nested transactions are not supported
	ErrNestedTransactionNotSupported = errors.New("nested transactions require an existing transaction")
)

// savepointCounter provides unique savepoint names across all transactions
var savepointCounter atomic.Uint64

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadUncommitted allows dirty reads
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions. Default returns nil
// so that drivers without isolation support (SQLite) accept it.
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	switch l {
	case ReadUncommitted:
		return &sql.TxOptions{Isolation: sql.LevelReadUncommitted}
	case RepeatableRead:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case Serializable:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return nil
	}
}

// Transaction is a database transaction, or a savepoint inside one
type Transaction struct {
	tx            *sql.Tx
	level         int // 0 = top-level, 1+ = savepoint
	savepointName string
	committed     atomic.Bool
	rolledBack    atomic.Bool
}

// Manager begins transactions on a database handle
type Manager struct {
	db    *sql.DB
	level IsolationLevel
	retry *RetryConfig
}

// Option configures a Manager
type Option func(*Manager)

// WithIsolation sets the isolation level of top-level transactions
func WithIsolation(level IsolationLevel) Option {
	return func(m *Manager) { m.level = level }
}

// WithRetryConfig retries top-level transactions that fail on a deadlock or
// serialization error
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(m *Manager) { m.retry = cfg }
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, level: ReadCommitted}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a new top-level transaction
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, m.level.ToSQLOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx}, nil
}

// WithTransaction executes fn within a transaction. The context passed to fn
// carries the transaction. When ctx already carries one, fn runs inside a
// savepoint of it, so a failing fn only undoes its own work. The transaction
// commits when fn returns nil and rolls back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if parent, ok := FromContext(ctx); ok {
		nested, err := parent.BeginNested(ctx)
		if err != nil {
			return err
		}
		return run(ctx, nested, fn)
	}

	if m.retry != nil {
		return m.withRetry(ctx, m.retry, fn)
	}
	return m.once(ctx, fn)
}

func (m *Manager) once(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	return run(ctx, tx, fn)
}

func run(ctx context.Context, tx *Transaction, fn func(ctx context.Context) error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(WithContext(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Level returns the nesting level of the transaction
func (t *Transaction) Level() int {
	return t.level
}

// Commit commits the transaction, or releases the savepoint
func (t *Transaction) Commit() error {
	if t.committed.Load() {
		return errors.New("transaction already committed")
	}
	if t.rolledBack.Load() {
		return errors.New("transaction already rolled back")
	}

	if t.level > 0 {
		if _, err := t.tx.Exec("RELEASE SAVEPOINT " + t.savepointName); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		t.committed.Store(true)
		return nil
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction, or rolls back to the savepoint
func (t *Transaction) Rollback() error {
	if t.committed.Load() {
		return errors.New("transaction already committed")
	}
	if t.rolledBack.Load() {
		return nil
	}

	if t.level > 0 {
		if _, err := t.tx.Exec("ROLLBACK TO SAVEPOINT " + t.savepointName); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		t.rolledBack.Store(true)
		return nil
	}

	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	t.rolledBack.Store(true)
	return nil
}

// BeginNested creates a nested transaction using a savepoint
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	if t.tx == nil {
		return nil, ErrNestedTransactionNotSupported
	}

	name := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	return &Transaction{
		tx:            t.tx,
		level:         t.level + 1,
		savepointName: name,
	}, nil
}

// IsCommitted returns true if the transaction has been committed
func (t *Transaction) IsCommitted() bool {
	return t.committed.Load()
}

// IsRolledBack returns true if the transaction has been rolled back
func (t *Transaction) IsRolledBack() bool {
	return t.rolledBack.Load()
}
