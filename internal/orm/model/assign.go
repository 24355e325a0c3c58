package model

import (
	"math/big"
	"reflect"
	"sort"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mitchellh/copystructure"

	"github.com/rowmodel/rowmodel/internal/orm/schema"
)

// setValues assigns every key of data in sorted key order, then validates
func (i *Instance) setValues(data interface{}, o options) error {
	fields, err := toFieldMap(data)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := i.setValue(k, fields[k], o); err != nil {
			return err
		}
	}

	if o.validate {
		return i.Validate(o.ignoreRequired)
	}
	return nil
}

// setValue materializes one field. Declared relations receiving a structured
// payload become nested instances; decimal wrappers become float64; anything
// else is deep-copied. Non-relation values go through the field's accessor
// setter when one is declared.
func (i *Instance) setValue(name string, value interface{}, o options) error {
	entity := i.model.entity

	if rel, ok := entity.Relation(name); ok && isStructured(value) {
		nested, err := i.model.buildRelation(rel, value, o.nested())
		if err != nil {
			return err
		}
		i.store(name, nested)
		return nil
	}

	if f, ok := decimalToFloat(value); ok {
		value = f
	} else if isContainer(value) {
		copied, err := copystructure.Copy(value)
		if err != nil {
			return invalidArgument("field %s: %v", name, err)
		}
		value = copied
	}

	if acc, ok := entity.Accessor(name); ok {
		if acc.Set == nil {
			return invalidArgument("field %s of %s is computed and cannot be assigned", name, entity.Name)
		}
		return acc.Set(fieldStore{i}, value)
	}

	i.store(name, value)
	return nil
}

// buildRelation creates the nested instance(s) for a relation payload
func (m *Model) buildRelation(rel *schema.Relation, value interface{}, o options) (interface{}, error) {
	target := m.related(rel)

	switch v := value.(type) {
	case *Instance:
		if rel.Many {
			return nil, invalidArgument("relation %s expects a list", rel.Field)
		}
		if v.model.entity != rel.Target {
			return nil, invalidArgument("relation %s expects %s, got %s", rel.Field, rel.Target.Name, v.model.entity.Name)
		}
		return v, nil
	case []*Instance:
		if !rel.Many {
			return nil, invalidArgument("relation %s expects a single object", rel.Field)
		}
		for _, item := range v {
			if item == nil || item.model.entity != rel.Target {
				return nil, invalidArgument("relation %s expects %s instances", rel.Field, rel.Target.Name)
			}
		}
		return append([]*Instance{}, v...), nil
	}

	if isSequence(value) {
		if !rel.Many {
			return nil, invalidArgument("relation %s expects a single object", rel.Field)
		}
		return target.createCollection(value, o)
	}
	if rel.Many {
		return nil, invalidArgument("relation %s expects a list", rel.Field)
	}
	return target.create(value, o)
}

// toFieldMap accepts any string-keyed map
func toFieldMap(data interface{}) (map[string]interface{}, error) {
	if data == nil {
		return nil, invalidArgument("data was not provided or is nil")
	}
	if m, ok := data.(map[string]interface{}); ok {
		if m == nil {
			return nil, invalidArgument("data was not provided or is nil")
		}
		return m, nil
	}

	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return nil, invalidArgument("sequences are not allowed here, use CreateCollection")
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return nil, invalidArgument("data was not provided or is nil")
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return m, nil
	}
	return nil, invalidArgument("data must be a string-keyed map, got %T", data)
}

// isStructured reports whether value is a relation payload rather than a scalar
func isStructured(value interface{}) bool {
	switch value.(type) {
	case nil:
		return false
	case *Instance, []*Instance:
		return true
	}
	return isSequence(value) || isMapping(value)
}

func isSequence(value interface{}) bool {
	if value == nil {
		return false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	return rv.Type().Elem().Kind() != reflect.Uint8
}

// isContainer reports whether value can alias caller-owned memory through
// a map or slice. Other values are copied on assignment already.
func isContainer(value interface{}) bool {
	if value == nil {
		return false
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice:
		return true
	}
	return false
}

func isMapping(value interface{}) bool {
	if value == nil {
		return false
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
}

// decimalToFloat converts arbitrary-precision decimals to float64. Precision
// beyond float64 is discarded; a NULL numeric becomes nil.
func decimalToFloat(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case pgtype.Numeric:
		return numericToFloat(v), true
	case *pgtype.Numeric:
		if v == nil {
			return nil, true
		}
		return numericToFloat(*v), true
	case *big.Float:
		if v == nil {
			return nil, true
		}
		f, _ := v.Float64()
		return f, true
	case *big.Rat:
		if v == nil {
			return nil, true
		}
		f, _ := v.Float64()
		return f, true
	}
	return nil, false
}

func numericToFloat(n pgtype.Numeric) interface{} {
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return nil
	}
	return f.Float64
}
