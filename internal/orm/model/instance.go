package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
	"github.com/rowmodel/rowmodel/internal/orm/schema"
	"github.com/rowmodel/rowmodel/internal/orm/validation"
)

// Instance is one entity object. Its fields are written only through the
// assignment engine (SetValues / Set) and keep their first assignment order.
// An Instance is not safe for concurrent mutation.
type Instance struct {
	model  *Model
	names  []string
	values map[string]interface{}
}

func newInstance(m *Model) *Instance {
	return &Instance{
		model:  m,
		values: make(map[string]interface{}),
	}
}

// fieldStore is the raw storage view handed to accessors. It never goes
// through accessors itself, so a getter may read the field it shadows.
type fieldStore struct {
	inst *Instance
}

func (s fieldStore) Get(name string) (interface{}, bool) {
	v, ok := s.inst.values[name]
	return v, ok
}

func (s fieldStore) Store(name string, value interface{}) {
	s.inst.store(name, value)
}

func (i *Instance) store(name string, value interface{}) {
	if _, exists := i.values[name]; !exists {
		i.names = append(i.names, name)
	}
	i.values[name] = value
}

// Entity returns the entity type of the instance
func (i *Instance) Entity() *schema.EntityType {
	return i.model.entity
}

// Model returns the model the instance belongs to
func (i *Instance) Model() *Model {
	return i.model
}

// Get returns a field value. Fields with an accessor getter are computed on
// every call.
func (i *Instance) Get(name string) (interface{}, bool) {
	if acc, ok := i.model.entity.Accessor(name); ok && acc.Get != nil {
		return acc.Get(fieldStore{i}), true
	}
	v, ok := i.values[name]
	return v, ok
}

// Has reports whether the field is stored or computed
func (i *Instance) Has(name string) bool {
	_, ok := i.Get(name)
	return ok
}

// ID returns the id field, or nil when it is absent
func (i *Instance) ID() interface{} {
	id, _ := i.Get("id")
	return id
}

// Set assigns one field through the assignment engine. The instance is not
// re-validated.
func (i *Instance) Set(name string, value interface{}) error {
	return i.setValue(name, value, options{validate: true})
}

// SetValues assigns every key of data, then validates the instance unless
// WithoutValidation is given
func (i *Instance) SetValues(data interface{}, opts ...Option) error {
	return i.setValues(data, newOptions(opts))
}

// Fields returns the externally visible field names: stored fields in
// assignment order, then computed fields in declaration order. Hidden fields
// are never listed.
func (i *Instance) Fields() []string {
	entity := i.model.entity
	fields := make([]string, 0, len(i.names)+len(entity.Accessors))
	seen := make(map[string]bool, len(i.names))
	for _, name := range i.names {
		seen[name] = true
		if !entity.IsHidden(name) {
			fields = append(fields, name)
		}
	}
	for _, name := range entity.AccessorNames() {
		if !seen[name] && !entity.IsHidden(name) {
			fields = append(fields, name)
		}
	}
	return fields
}

// ToMap returns a snapshot of the visible fields with nested instances
// converted to maps
func (i *Instance) ToMap() map[string]interface{} {
	fields := i.Fields()
	out := make(map[string]interface{}, len(fields))
	for _, name := range fields {
		v, _ := i.Get(name)
		out[name] = plain(v, (*Instance).ToMap)
	}
	return out
}

// MarshalJSON encodes the visible fields
func (i *Instance) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.ToMap())
}

// snapshot returns every stored field, hidden ones included, plus computed
// fields. It is what the schema validates.
func (i *Instance) snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(i.values))
	for name, v := range i.values {
		out[name] = plain(v, (*Instance).snapshot)
	}
	for _, name := range i.model.entity.AccessorNames() {
		v, _ := i.Get(name)
		out[name] = plain(v, (*Instance).snapshot)
	}
	return out
}

func plain(v interface{}, convert func(*Instance) map[string]interface{}) interface{} {
	switch val := v.(type) {
	case *Instance:
		if val == nil {
			return nil
		}
		return convert(val)
	case []*Instance:
		list := make([]interface{}, len(val))
		for idx, item := range val {
			list[idx] = plain(item, convert)
		}
		return list
	default:
		return v
	}
}

// Validate checks the instance against its entity schema
func (i *Instance) Validate(ignoreRequired bool) error {
	err := i.model.entity.Validate(i.snapshot(), ignoreRequired)
	if err == nil {
		return nil
	}

	var verrs *validation.ValidationErrors
	if errors.As(err, &verrs) {
		return &ValidationError{Entity: i.model.entity.Name, Issues: verrs.Issues}
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

// Flatten returns the row written to the CRUD service
func (i *Instance) Flatten() crud.Row {
	return flattenInstance(i.model.entity, i)
}

// Save writes the instance through its model's CRUD service
func (i *Instance) Save(ctx context.Context) error {
	return i.model.Save(ctx, i)
}

// Delete removes the instance's record. It fails with ErrInvalidState when
// the instance has no id.
func (i *Instance) Delete(ctx context.Context) (bool, error) {
	return i.model.Delete(ctx, i)
}
