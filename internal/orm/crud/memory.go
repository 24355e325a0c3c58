package crud

import (
	"context"
	"fmt"
	"time"

	memdb "github.com/hashicorp/go-memdb"
)

const (
	memoryRowsTable   = "rows"
	memoryCounterName = "counters"
)

// memoryRecord wraps a stored row. Key is the normalized primary key and
// Position the zero-padded insertion sequence, so that the string index
// iterates records in insertion order.
type memoryRecord struct {
	Key      string
	Position string
	Row      Row
}

func position(seq int64) string {
	return fmt.Sprintf("%020d", seq)
}

// memoryCounters holds the id and insertion sequences. It lives inside the
// database so an aborted transaction rolls the sequences back with the rows.
type memoryCounters struct {
	Name   string
	NextID int64
	Seq    int64
}

var memorySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		memoryRowsTable: {
			Name: memoryRowsTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
				"position": {
					Name:    "position",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Position"},
				},
			},
		},
		memoryCounterName: {
			Name: memoryCounterName,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Name"},
				},
			},
		},
	},
}

// memoryTxnKey scopes an open write transaction to one Memory
type memoryTxnKey struct {
	m *Memory
}

// Memory is an in-process Service backed by go-memdb. Records keep insertion
// order; ids are auto-incrementing int64 values unless an IDGenerator is
// configured. Stored and returned rows are shallow copies so callers never
// alias internal state.
type Memory struct {
	db         *memdb.MemDB
	primaryKey string
	generateID IDGenerator
	createdAt  string
	updatedAt  string
	now        func() time.Time
}

// MemoryOption configures a Memory service
type MemoryOption func(*Memory)

// WithMemoryIDGenerator replaces the int64 sequence with gen
func WithMemoryIDGenerator(gen IDGenerator) MemoryOption {
	return func(m *Memory) { m.generateID = gen }
}

// WithTimestamps stamps created and updated columns on write, the way a
// database default or trigger would
func WithTimestamps(createdColumn, updatedColumn string) MemoryOption {
	return func(m *Memory) {
		m.createdAt = createdColumn
		m.updatedAt = updatedColumn
	}
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory service
func NewMemory(opts ...MemoryOption) *Memory {
	db, err := memdb.NewMemDB(memorySchema)
	if err != nil {
		// the schema is static; failing here is a programming error
		panic(fmt.Sprintf("crud: memory schema: %v", err))
	}
	m := &Memory{
		db:         db,
		primaryKey: "id",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// key normalizes ids so that int(1) and int64(1) address the same record
func key(id interface{}) string {
	return fmt.Sprint(id)
}

// readTxn returns the transaction joined by ctx, or a fresh snapshot
func (m *Memory) readTxn(ctx context.Context) *memdb.Txn {
	if txn, ok := ctx.Value(memoryTxnKey{m}).(*memdb.Txn); ok {
		return txn
	}
	return m.db.Txn(false)
}

// write runs fn in the transaction joined by ctx, or in its own write
// transaction committed when fn succeeds
func (m *Memory) write(ctx context.Context, fn func(txn *memdb.Txn) (Row, error)) (Row, error) {
	if txn, ok := ctx.Value(memoryTxnKey{m}).(*memdb.Txn); ok {
		return fn(txn)
	}
	txn := m.db.Txn(true)
	defer txn.Abort()

	row, err := fn(txn)
	if err != nil {
		return nil, err
	}
	txn.Commit()
	return row, nil
}

func counters(txn *memdb.Txn) (memoryCounters, error) {
	raw, err := txn.First(memoryCounterName, "id", memoryCounterName)
	if err != nil {
		return memoryCounters{}, err
	}
	if raw == nil {
		return memoryCounters{Name: memoryCounterName}, nil
	}
	return *raw.(*memoryCounters), nil
}

func lookup(txn *memdb.Txn, k string) (*memoryRecord, error) {
	raw, err := txn.First(memoryRowsTable, "id", k)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw.(*memoryRecord), nil
}

// FindFirst implements Service
func (m *Memory) FindFirst(ctx context.Context) (Row, error) {
	raw, err := m.readTxn(ctx).First(memoryRowsTable, "position")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return copyRow(raw.(*memoryRecord).Row), nil
}

// FindUnique implements Service
func (m *Memory) FindUnique(ctx context.Context, id interface{}) (Row, error) {
	record, err := lookup(m.readTxn(ctx), key(id))
	if err != nil {
		return nil, err
	}
	return copyRow(record.Row), nil
}

// FindMany implements Service
func (m *Memory) FindMany(ctx context.Context) ([]Row, error) {
	it, err := m.readTxn(ctx).Get(memoryRowsTable, "position")
	if err != nil {
		return nil, err
	}

	results := []Row{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		results = append(results, copyRow(raw.(*memoryRecord).Row))
	}
	return results, nil
}

// Create implements Service
func (m *Memory) Create(ctx context.Context, data Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return m.write(ctx, func(txn *memdb.Txn) (Row, error) {
		seq, err := counters(txn)
		if err != nil {
			return nil, err
		}

		record := copyRow(data)
		if record == nil {
			record = Row{}
		}

		if id, ok := record[m.primaryKey]; !ok || id == nil {
			if m.generateID != nil {
				record[m.primaryKey] = m.generateID()
			} else {
				seq.NextID++
				record[m.primaryKey] = seq.NextID
			}
		} else if n, ok := id.(int64); ok && n > seq.NextID {
			seq.NextID = n
		}

		k := key(record[m.primaryKey])
		if _, err := lookup(txn, k); err == nil {
			return nil, fmt.Errorf("%w: %s %v already exists", ErrUniqueViolation, m.primaryKey, record[m.primaryKey])
		} else if !IsNotFound(err) {
			return nil, err
		}

		now := m.now()
		if m.createdAt != "" {
			record[m.createdAt] = now
		}
		if m.updatedAt != "" {
			record[m.updatedAt] = now
		}

		seq.Seq++
		if err := txn.Insert(memoryRowsTable, &memoryRecord{Key: k, Position: position(seq.Seq), Row: record}); err != nil {
			return nil, err
		}
		if err := txn.Insert(memoryCounterName, &seq); err != nil {
			return nil, err
		}
		return copyRow(record), nil
	})
}

// Update implements Service
func (m *Memory) Update(ctx context.Context, id interface{}, data Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return m.write(ctx, func(txn *memdb.Txn) (Row, error) {
		existing, err := lookup(txn, key(id))
		if err != nil {
			return nil, err
		}

		record := copyRow(existing.Row)
		for col, v := range data {
			if col == m.primaryKey {
				continue
			}
			record[col] = v
		}
		if m.updatedAt != "" {
			record[m.updatedAt] = m.now()
		}

		// stored objects are immutable; replace rather than mutate
		if err := txn.Insert(memoryRowsTable, &memoryRecord{Key: existing.Key, Position: existing.Position, Row: record}); err != nil {
			return nil, err
		}
		return copyRow(record), nil
	})
}

// Delete implements Service
func (m *Memory) Delete(ctx context.Context, id interface{}) (Row, error) {
	return m.write(ctx, func(txn *memdb.Txn) (Row, error) {
		existing, err := lookup(txn, key(id))
		if err != nil {
			return nil, err
		}
		if err := txn.Delete(memoryRowsTable, existing); err != nil {
			return nil, err
		}
		return copyRow(existing.Row), nil
	})
}

// Len returns the number of stored records
func (m *Memory) Len() int {
	it, err := m.db.Txn(false).Get(memoryRowsTable, "id")
	if err != nil {
		return 0
	}
	n := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		n++
	}
	return n
}

// InTransaction implements Transactional. Calls made with the context passed
// to fn share one write transaction, which is aborted when fn fails. A nested
// call joins the outer transaction. Writers are serialized by go-memdb.
func (m *Memory) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memoryTxnKey{m}).(*memdb.Txn); ok {
		return fn(ctx)
	}

	txn := m.db.Txn(true)
	defer txn.Abort()

	if err := fn(context.WithValue(ctx, memoryTxnKey{m}, txn)); err != nil {
		return err
	}
	txn.Commit()
	return nil
}
