package model

import (
	"sort"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
	"github.com/rowmodel/rowmodel/internal/orm/schema"
)

// Flatten converts instances or nested maps into the flat rows written to a
// CRUD service. A to-one relation holding an object is replaced by its
// foreign key set to the object's id; a null relation writes a null foreign
// key. To-many relations are not part of the row. Accepted inputs are
// *Instance, []*Instance, maps, []map and []interface{} of those; nil is
// returned unchanged, as is any other value.
func Flatten(entity *schema.EntityType, data interface{}) interface{} {
	switch v := data.(type) {
	case nil:
		return nil
	case *Instance:
		if v == nil {
			return nil
		}
		return flattenInstance(entity, v)
	case []*Instance:
		rows := make([]crud.Row, len(v))
		for i, inst := range v {
			rows[i] = flattenInstance(entity, inst)
		}
		return rows
	case map[string]interface{}:
		return flattenMap(entity, v)
	case []map[string]interface{}:
		rows := make([]crud.Row, len(v))
		for i, m := range v {
			rows[i] = flattenMap(entity, m)
		}
		return rows
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Flatten(entity, item)
		}
		return out
	default:
		return data
	}
}

func flattenInstance(entity *schema.EntityType, inst *Instance) crud.Row {
	return flattenRow(entity, inst.names, inst.values)
}

func flattenMap(entity *schema.EntityType, data map[string]interface{}) crud.Row {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return flattenRow(entity, names, data)
}

// flattenRow writes plain columns first and to-one relations last: the
// foreign key derived from a relation replaces any value already held under
// the foreign key column.
func flattenRow(entity *schema.EntityType, names []string, values map[string]interface{}) crud.Row {
	row := make(crud.Row, len(names))
	var toOne []string
	for _, name := range names {
		if rel, ok := entity.Relation(name); ok && !rel.Many {
			toOne = append(toOne, name)
			continue
		}
		flattenField(entity, row, name, values[name])
	}
	for _, name := range toOne {
		flattenField(entity, row, name, values[name])
	}
	return row
}

func flattenField(entity *schema.EntityType, row crud.Row, name string, value interface{}) {
	rel, ok := entity.Relation(name)
	if !ok {
		row[name] = value
		return
	}
	if rel.Many {
		if isStructured(value) || value == nil {
			return
		}
		row[name] = value
		return
	}

	fk, ok := entity.FlattenDict()[name]
	if !ok {
		// no foreign key column: the value is written as is
		row[name] = value
		return
	}
	switch v := value.(type) {
	case nil:
		row[fk] = nil
	case *Instance:
		if v == nil {
			row[fk] = nil
			return
		}
		row[fk] = v.ID()
	default:
		if m, ok := toFieldMapLoose(value); ok {
			row[fk] = m["id"]
			return
		}
		// scalar stored under the relation name passes through
		row[name] = value
	}
}

func toFieldMapLoose(value interface{}) (map[string]interface{}, bool) {
	if !isMapping(value) {
		return nil, false
	}
	m, err := toFieldMap(value)
	return m, err == nil
}

// Nest converts flat rows into the nested read shape. A column whose
// qualified name is in the entity's nest dictionary becomes
// {relation: {"id": value}}, or {relation: nil} when the value is null.
// Other columns pass through, so nesting already nested data is a no-op.
// Accepted inputs are a row, []row and []interface{} of rows; nil and any
// other value are returned unchanged.
func Nest(entity *schema.EntityType, data interface{}) interface{} {
	switch v := data.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return nestRow(entity, v)
	case []map[string]interface{}:
		rows := make([]crud.Row, len(v))
		for i, row := range v {
			rows[i] = nestRow(entity, row)
		}
		return rows
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Nest(entity, item)
		}
		return out
	default:
		return data
	}
}

// nestRow resolves a row holding both a foreign key column and its relation
// key in favor of the relation: the relation value is kept and the foreign key
// column passes through unchanged.
func nestRow(entity *schema.EntityType, row map[string]interface{}) crud.Row {
	dict := entity.NestDict()
	out := make(crud.Row, len(row))
	for col, value := range row {
		field, ok := dict[col]
		if !ok {
			field, ok = dict[entity.QualifiedColumn(col)]
		}
		if !ok {
			out[col] = value
			continue
		}
		if _, nested := row[field]; nested {
			out[col] = value
			continue
		}
		if value == nil {
			out[field] = nil
			continue
		}
		out[field] = map[string]interface{}{"id": value}
	}
	return out
}
