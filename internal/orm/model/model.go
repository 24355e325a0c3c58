// Package model maps CRUD service rows to validated entity instances and
// back. A Model binds one schema.EntityType to the crud.Service persisting
// it; instances are built through the Model's factory methods and written
// back through Save.
package model

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
	"github.com/rowmodel/rowmodel/internal/orm/schema"
)

// Model binds an entity type to its CRUD service
type Model struct {
	entity  *schema.EntityType
	service crud.Service
	logger  *zap.Logger
	catalog *Catalog
}

// ModelOption configures a Model
type ModelOption func(*Model)

// WithLogger sets the logger used for write operations
func WithLogger(logger *zap.Logger) ModelOption {
	return func(m *Model) { m.logger = logger }
}

// WithCatalog resolves relation targets through c without registering the
// model in it
func WithCatalog(c *Catalog) ModelOption {
	return func(m *Model) { m.catalog = c }
}

// NewModel creates a model for entity. service may be nil for models that
// only build and translate instances; persistence calls then fail with
// ErrConfiguration.
func NewModel(entity *schema.EntityType, service crud.Service, opts ...ModelOption) *Model {
	m := &Model{
		entity:  entity,
		service: service,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entity returns the model's entity type
func (m *Model) Entity() *schema.EntityType {
	return m.entity
}

// Service returns the model's CRUD service, which may be nil
func (m *Model) Service() crud.Service {
	return m.service
}

// related returns the model for a relation target: the catalog's when it
// has one for that entity, otherwise an unbound model
func (m *Model) related(rel *schema.Relation) *Model {
	if m.catalog != nil {
		if target, ok := m.catalog.Model(rel.Target.Name); ok && target.entity == rel.Target {
			return target
		}
	}
	return &Model{entity: rel.Target, logger: m.logger, catalog: m.catalog}
}

func (m *Model) svc() (crud.Service, error) {
	if m.service == nil {
		return nil, fmt.Errorf("%w: entity %s has no CRUD service", ErrConfiguration, m.entity.Name)
	}
	if m.entity.PersistedName == "" {
		return nil, fmt.Errorf("%w: entity %s has no persisted name", ErrConfiguration, m.entity.Name)
	}
	return m.service, nil
}

// GetFirst returns the first record as an instance, or nil when there is none
func (m *Model) GetFirst(ctx context.Context, opts ...Option) (*Instance, error) {
	svc, err := m.svc()
	if err != nil {
		return nil, err
	}

	row, err := svc.FindFirst(ctx)
	if err != nil {
		if crud.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return m.Create(row, opts...)
}

// GetOne returns the record with the given id as an instance, or nil when
// there is none
func (m *Model) GetOne(ctx context.Context, id interface{}, opts ...Option) (*Instance, error) {
	svc, err := m.svc()
	if err != nil {
		return nil, err
	}

	row, err := svc.FindUnique(ctx, id)
	if err != nil {
		if crud.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return m.Create(row, opts...)
}

// GetAll returns every record as instances
func (m *Model) GetAll(ctx context.Context, opts ...Option) ([]*Instance, error) {
	svc, err := m.svc()
	if err != nil {
		return nil, err
	}

	rows, err := svc.FindMany(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []crud.Row{}
	}
	return m.CreateCollection(rows, opts...)
}

// DeleteByID deletes the record with the given id. A missing record is not
// an error: it returns false.
func (m *Model) DeleteByID(ctx context.Context, id interface{}) (bool, error) {
	svc, err := m.svc()
	if err != nil {
		return false, err
	}

	if _, err := svc.Delete(ctx, id); err != nil {
		if crud.IsNotFound(err) {
			m.logger.Debug("delete of missing record",
				zap.String("entity", m.entity.Name), zap.Any("id", id))
			return false, nil
		}
		return false, err
	}

	m.logger.Debug("record deleted",
		zap.String("entity", m.entity.Name), zap.Stringer("op", crud.OperationDelete), zap.Any("id", id))
	return true, nil
}

// Save updates the instance's record when it has an id and creates one
// otherwise, then assigns the stored row back to the instance so values set
// by the backend become visible
func (m *Model) Save(ctx context.Context, inst *Instance) error {
	row, err := m.write(ctx, inst)
	if err != nil {
		return err
	}
	return inst.setValues(row, options{validate: true})
}

// write validates the instance, sends it flattened to the service and returns
// the stored row. Nothing reaches the service when validation fails.
func (m *Model) write(ctx context.Context, inst *Instance) (crud.Row, error) {
	if inst == nil {
		return nil, invalidArgument("instance is nil")
	}
	svc, err := m.svc()
	if err != nil {
		return nil, err
	}

	id := inst.ID()
	// creates must satisfy the full schema; updates may be partial
	if err := inst.Validate(id != nil); err != nil {
		return nil, err
	}

	data := inst.Flatten()

	var (
		row crud.Row
		op  crud.Operation
	)
	if id != nil {
		op = crud.OperationUpdate
		row, err = svc.Update(ctx, id, data)
	} else {
		op = crud.OperationCreate
		delete(data, "id")
		row, err = svc.Create(ctx, data)
	}
	if err != nil {
		return nil, err
	}

	m.logger.Debug("record written",
		zap.String("entity", m.entity.Name), zap.Stringer("op", op), zap.Any("id", row["id"]))
	return row, nil
}

// Delete deletes the instance's record. It fails with ErrInvalidState when
// the instance has no id.
func (m *Model) Delete(ctx context.Context, inst *Instance) (bool, error) {
	if inst == nil {
		return false, invalidArgument("instance is nil")
	}
	id := inst.ID()
	if id == nil {
		return false, fmt.Errorf("%w: %s instance has no id", ErrInvalidState, m.entity.Name)
	}
	return m.DeleteByID(ctx, id)
}

// SaveAll saves instances in order. When the service is crud.Transactional
// the writes share one transaction: any failure rolls all of them back and
// no instance is modified. Instances are updated from the stored rows only
// after every write succeeded.
func (m *Model) SaveAll(ctx context.Context, instances []*Instance) error {
	if len(instances) == 0 {
		return nil
	}
	svc, err := m.svc()
	if err != nil {
		return err
	}

	rows := make([]crud.Row, len(instances))
	writeAll := func(ctx context.Context) error {
		for idx, inst := range instances {
			row, err := m.write(ctx, inst)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", m.entity.Name, idx, err)
			}
			rows[idx] = row
		}
		return nil
	}

	if tx, ok := svc.(crud.Transactional); ok {
		err = tx.InTransaction(ctx, writeAll)
	} else {
		err = writeAll(ctx)
	}
	if err != nil {
		return err
	}

	for idx, inst := range instances {
		if err := inst.setValues(rows[idx], options{validate: true}); err != nil {
			return err
		}
	}
	return nil
}
