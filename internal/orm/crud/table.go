package crud

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rowmodel/rowmodel/internal/orm/transaction"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Table is a Service over one SQL table. Writes use RETURNING * so the
// stored record, including database defaults, comes back in one round trip.
// Calls join the transaction carried by ctx, if any.
type Table struct {
	db         *sql.DB
	name       string
	dialect    Dialect
	primaryKey string
	generateID IDGenerator
	txManager  *transaction.Manager
}

// TableOption configures a Table
type TableOption func(*Table)

// WithPrimaryKey sets the primary key column (default "id")
func WithPrimaryKey(column string) TableOption {
	return func(t *Table) { t.primaryKey = column }
}

// WithIDGenerator assigns generated ids to records created without one.
// Without it the database is expected to generate the key.
func WithIDGenerator(gen IDGenerator) TableOption {
	return func(t *Table) { t.generateID = gen }
}

// WithTransactionManager sets the manager used by InTransaction
func WithTransactionManager(mgr *transaction.Manager) TableOption {
	return func(t *Table) { t.txManager = mgr }
}

// NewTable creates a Service for the named table
func NewTable(db *sql.DB, name string, dialect Dialect, opts ...TableOption) *Table {
	t := &Table{
		db:         db,
		name:       name,
		dialect:    dialect,
		primaryKey: "id",
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.txManager == nil {
		t.txManager = transaction.NewManager(db)
	}
	return t
}

// Name returns the table name
func (t *Table) Name() string {
	return t.name
}

func (t *Table) conn(ctx context.Context) queryer {
	if tx, ok := transaction.FromContext(ctx); ok {
		return tx.Tx()
	}
	return t.db
}

func (t *Table) query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	rows, err := t.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return results, nil
}

func (t *Table) queryOne(ctx context.Context, query string, args ...interface{}) (Row, error) {
	results, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0], nil
}

// FindFirst implements Service
func (t *Table) FindFirst(ctx context.Context) (Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT 1",
		quoteIdent(t.name), quoteIdent(t.primaryKey))
	return t.queryOne(ctx, query)
}

// FindUnique implements Service
func (t *Table) FindUnique(ctx context.Context, id interface{}) (Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		quoteIdent(t.name), quoteIdent(t.primaryKey), t.dialect.Placeholder(1))
	return t.queryOne(ctx, query, id)
}

// FindMany implements Service
func (t *Table) FindMany(ctx context.Context) ([]Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s",
		quoteIdent(t.name), quoteIdent(t.primaryKey))
	return t.query(ctx, query)
}

// Create implements Service
func (t *Table) Create(ctx context.Context, data Row) (Row, error) {
	record := copyRow(data)
	if record == nil {
		record = Row{}
	}
	if id, ok := record[t.primaryKey]; (!ok || id == nil) && t.generateID != nil {
		record[t.primaryKey] = t.generateID()
	}

	columns := sortedColumns(record, "")
	if len(columns) == 0 {
		query := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", quoteIdent(t.name))
		return t.queryOne(ctx, query)
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		placeholders[i] = t.dialect.Placeholder(i + 1)
		args[i] = record[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdent(t.name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return t.queryOne(ctx, query, args...)
}

// Update implements Service. The primary key column is never rewritten.
func (t *Table) Update(ctx context.Context, id interface{}, data Row) (Row, error) {
	columns := sortedColumns(data, t.primaryKey)
	if len(columns) == 0 {
		return t.FindUnique(ctx, id)
	}

	sets := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = %s", quoteIdent(col), t.dialect.Placeholder(i+1))
		args = append(args, data[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s RETURNING *",
		quoteIdent(t.name), strings.Join(sets, ", "),
		quoteIdent(t.primaryKey), t.dialect.Placeholder(len(args)))
	return t.queryOne(ctx, query, args...)
}

// Delete implements Service
func (t *Table) Delete(ctx context.Context, id interface{}) (Row, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s RETURNING *",
		quoteIdent(t.name), quoteIdent(t.primaryKey), t.dialect.Placeholder(1))
	return t.queryOne(ctx, query, id)
}

// InTransaction implements Transactional
func (t *Table) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.txManager.WithTransaction(ctx, fn)
}

func sortedColumns(data Row, skip string) []string {
	columns := make([]string, 0, len(data))
	for col := range data {
		if skip != "" && col == skip {
			continue
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
