package model

import (
	"fmt"
	"reflect"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
)

// New returns an empty instance of the model's entity
func (m *Model) New() *Instance {
	return newInstance(m)
}

// Create builds an instance from a string-keyed map. Validation runs unless
// WithoutValidation is given; a failing instance is returned as a
// *ValidationError.
func (m *Model) Create(data interface{}, opts ...Option) (*Instance, error) {
	return m.create(data, newOptions(opts))
}

func (m *Model) create(data interface{}, o options) (*Instance, error) {
	inst := newInstance(m)
	if err := inst.setValues(data, o); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateForUpdate builds a partial instance for an update: id is injected
// into a copy of data and required fields are not enforced
func (m *Model) CreateForUpdate(id interface{}, data interface{}, opts ...Option) (*Instance, error) {
	fields, err := toFieldMap(data)
	if err != nil {
		return nil, err
	}

	withID := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		withID[k] = v
	}
	withID["id"] = id

	o := newOptions(opts)
	o.ignoreRequired = true
	return m.create(withID, o)
}

// CreateCollection builds one instance per element, preserving order. data
// must be a slice or array; an empty one yields an empty, non-nil result.
func (m *Model) CreateCollection(data interface{}, opts ...Option) ([]*Instance, error) {
	return m.createCollection(data, newOptions(opts))
}

func (m *Model) createCollection(data interface{}, o options) ([]*Instance, error) {
	if data == nil {
		return nil, invalidArgument("collection data must be a sequence, got nil")
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalidArgument("collection data must be a sequence, got %T", data)
	}

	instances := make([]*Instance, 0, rv.Len())
	for idx := 0; idx < rv.Len(); idx++ {
		inst, err := m.create(rv.Index(idx).Interface(), o)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", m.entity.Name, idx, err)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// FromFlatRow nests a flat joined row (qualified foreign key columns become
// relation objects) and builds an instance from it
func (m *Model) FromFlatRow(row crud.Row, opts ...Option) (*Instance, error) {
	if row == nil {
		return nil, invalidArgument("row was not provided or is nil")
	}
	return m.create(nestRow(m.entity, row), newOptions(opts))
}
