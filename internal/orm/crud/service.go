// Package crud defines the CRUD service contract the model layer persists
// through, and ships two implementations: Table, backed by database/sql, and
// Memory, an in-process store.
package crud

import (
	"context"

	"github.com/google/uuid"
)

// Row is a flat record as exchanged with a CRUD service
type Row = map[string]interface{}

// Operation represents a CRUD operation type
type Operation int

const (
	// OperationCreate represents a create operation
	OperationCreate Operation = iota
	// OperationRead represents a read operation
	OperationRead
	// OperationUpdate represents an update operation
	OperationUpdate
	// OperationDelete represents a delete operation
	OperationDelete
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationRead:
		return "read"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Service is the per-entity CRUD contract. Lookups by id that match nothing
// return ErrNotFound; every other failure is returned as the backend reports it.
type Service interface {
	// FindFirst returns the first record in primary key order
	FindFirst(ctx context.Context) (Row, error)
	// FindUnique returns the record with the given id
	FindUnique(ctx context.Context, id interface{}) (Row, error)
	// FindMany returns every record in primary key order
	FindMany(ctx context.Context) ([]Row, error)
	// Create inserts data and returns the stored record
	Create(ctx context.Context, data Row) (Row, error)
	// Update changes the record with the given id and returns the stored record
	Update(ctx context.Context, id interface{}, data Row) (Row, error)
	// Delete removes the record with the given id and returns it
	Delete(ctx context.Context, id interface{}) (Row, error)
}

// Transactional is implemented by services able to run a sequence of calls
// atomically. fn receives a context carrying the transaction; every service
// call made with that context joins it. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactional interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator produces primary keys for records created without one
type IDGenerator func() interface{}

// UUIDGenerator generates random (v4) UUID strings
func UUIDGenerator() interface{} {
	return uuid.NewString()
}

func copyRow(row Row) Row {
	if row == nil {
		return nil
	}
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
