// Package schema describes entity types: their persisted collection, validation
// schema, declared relations, hidden fields and accessors. An EntityType is built
// once at startup and shared by reference; the compiled validators and the
// flatten/nest conversion dictionaries it derives are built lazily, at most once.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rowmodel/rowmodel/internal/orm/validation"
)

// FieldKind classifies how a field's value is materialized on assignment
type FieldKind int

const (
	// KindScalar is a plain value stored as a deep copy
	KindScalar FieldKind = iota
	// KindRelation holds one related instance
	KindRelation
	// KindRelationList holds an ordered list of related instances
	KindRelationList
)

// String returns the string representation of the field kind
func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindRelation:
		return "relation"
	case KindRelationList:
		return "relation_list"
	default:
		return "unknown"
	}
}

// Relation declares a field that holds instances of another entity type.
//
// A to-one relation stores its reference in ForeignKey on this entity's row.
// QualifiedColumn is the key flat joined reads use for that column and
// defaults to "<PersistedName>.<ForeignKey>". To-many relations keep no
// foreign key on this side.
type Relation struct {
	Field           string
	Target          *EntityType
	Many            bool
	ForeignKey      string
	QualifiedColumn string
}

// Kind returns the field kind the relation declares
func (r *Relation) Kind() FieldKind {
	if r.Many {
		return KindRelationList
	}
	return KindRelation
}

// One declares a to-one relation stored through foreignKey
func One(field string, target *EntityType, foreignKey string) *Relation {
	return &Relation{Field: field, Target: target, ForeignKey: foreignKey}
}

// Many declares a to-many relation
func Many(field string, target *EntityType) *Relation {
	return &Relation{Field: field, Target: target, Many: true}
}

// Values is the read side of an entity instance as seen by accessors
type Values interface {
	Get(name string) (interface{}, bool)
}

// Store is the write side of an entity instance as seen by accessor setters.
// Store.Store writes the raw field without going through accessors.
type Store interface {
	Values
	Store(name string, value interface{})
}

// Accessor intercepts reads and/or writes of a field name. An accessor with
// only Get is a computed field.
type Accessor struct {
	Name string
	Get  func(v Values) interface{}
	Set  func(s Store, value interface{}) error
}

// Computed declares a read-only computed field
func Computed(name string, get func(v Values) interface{}) *Accessor {
	return &Accessor{Name: name, Get: get}
}

// EntityType describes one domain concept
type EntityType struct {
	// Name identifies the entity type in a Registry
	Name string
	// PersistedName identifies the external CRUD collection (table)
	PersistedName string
	// Schema is the declarative validation schema; nil disables validation
	Schema *validation.Schema
	// Relations maps field names to related entity types; field names are unique
	Relations []*Relation
	// Hidden lists fields excluded from external visibility
	Hidden []string
	// Accessors intercept reads/writes of specific field names
	Accessors []*Accessor

	indexOnce sync.Once
	relations map[string]*Relation
	accessors map[string]*Accessor
	hidden    map[string]bool

	validatorsOnce sync.Once
	strict         *validation.Checker
	relaxed        *validation.Checker
	validatorsErr  error

	dictOnce    sync.Once
	flattenDict map[string]string
	nestDict    map[string]string
}

func (e *EntityType) index() {
	e.indexOnce.Do(func() {
		e.relations = make(map[string]*Relation, len(e.Relations))
		for _, rel := range e.Relations {
			e.relations[rel.Field] = rel
		}
		e.accessors = make(map[string]*Accessor, len(e.Accessors))
		for _, acc := range e.Accessors {
			e.accessors[acc.Name] = acc
		}
		e.hidden = make(map[string]bool, len(e.Hidden))
		for _, name := range e.Hidden {
			e.hidden[name] = true
		}
	})
}

// Kind returns the declared kind of a field
func (e *EntityType) Kind(field string) FieldKind {
	if rel, ok := e.Relation(field); ok {
		return rel.Kind()
	}
	return KindScalar
}

// Relation returns the relation declared for field
func (e *EntityType) Relation(field string) (*Relation, bool) {
	e.index()
	rel, ok := e.relations[field]
	return rel, ok
}

// Accessor returns the accessor declared for field
func (e *EntityType) Accessor(field string) (*Accessor, bool) {
	e.index()
	acc, ok := e.accessors[field]
	return acc, ok
}

// IsHidden reports whether field is excluded from external visibility
func (e *EntityType) IsHidden(field string) bool {
	e.index()
	return e.hidden[field]
}

// Validators returns the strict and relaxed checkers, compiling them on first use
func (e *EntityType) Validators() (strict, relaxed *validation.Checker, err error) {
	e.validatorsOnce.Do(func() {
		e.strict, e.validatorsErr = validation.Compile(e.Schema)
		if e.validatorsErr != nil {
			return
		}
		e.relaxed, e.validatorsErr = validation.Compile(validation.Relaxed(e.Schema))
	})
	if e.validatorsErr != nil {
		return nil, nil, fmt.Errorf("entity %s: %w", e.Name, e.validatorsErr)
	}
	return e.strict, e.relaxed, nil
}

// Validate checks data against the strict checker, or the relaxed one when
// ignoreRequired is set. Violations are returned as *validation.ValidationErrors.
func (e *EntityType) Validate(data map[string]interface{}, ignoreRequired bool) error {
	strict, relaxed, err := e.Validators()
	if err != nil {
		return err
	}
	if ignoreRequired {
		return relaxed.Check(data)
	}
	return strict.Check(data)
}

// FlattenDict returns relation field -> foreign key column for every to-one
// relation. The map is built once and must not be modified.
func (e *EntityType) FlattenDict() map[string]string {
	e.buildDicts()
	return e.flattenDict
}

// NestDict returns qualified column -> relation field for every to-one
// relation. The map is built once and must not be modified.
func (e *EntityType) NestDict() map[string]string {
	e.buildDicts()
	return e.nestDict
}

// QualifiedColumn returns the nest dictionary key for a column of this entity
func (e *EntityType) QualifiedColumn(column string) string {
	return e.PersistedName + "." + column
}

func (e *EntityType) buildDicts() {
	e.dictOnce.Do(func() {
		e.flattenDict = make(map[string]string)
		e.nestDict = make(map[string]string)
		for _, rel := range e.Relations {
			if rel.Many || rel.ForeignKey == "" {
				continue
			}
			e.flattenDict[rel.Field] = rel.ForeignKey
			qualified := rel.QualifiedColumn
			if qualified == "" {
				qualified = e.QualifiedColumn(rel.ForeignKey)
			}
			e.nestDict[qualified] = rel.Field
		}
	})
}

// AccessorNames returns the names of accessors with a getter, in declaration order
func (e *EntityType) AccessorNames() []string {
	names := make([]string, 0, len(e.Accessors))
	for _, acc := range e.Accessors {
		if acc.Get != nil {
			names = append(names, acc.Name)
		}
	}
	return names
}

// checkStructure validates the declaration itself
func (e *EntityType) checkStructure() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}

	seen := make(map[string]bool, len(e.Relations))
	foreignKeys := make(map[string]string)
	for _, rel := range e.Relations {
		if rel.Field == "" {
			return fmt.Errorf("entity %s: relation field name is required", e.Name)
		}
		if seen[rel.Field] {
			return fmt.Errorf("entity %s: duplicate relation %s", e.Name, rel.Field)
		}
		seen[rel.Field] = true

		if rel.Many {
			continue
		}
		if rel.ForeignKey == "" {
			return fmt.Errorf("entity %s: relation %s requires a foreign key", e.Name, rel.Field)
		}
		if other, exists := foreignKeys[rel.ForeignKey]; exists {
			return fmt.Errorf("entity %s: relations %s and %s share foreign key %s",
				e.Name, other, rel.Field, rel.ForeignKey)
		}
		foreignKeys[rel.ForeignKey] = rel.Field
	}

	accessors := make(map[string]bool, len(e.Accessors))
	for _, acc := range e.Accessors {
		if acc.Get == nil && acc.Set == nil {
			return fmt.Errorf("entity %s: accessor %s has neither getter nor setter", e.Name, acc.Name)
		}
		if accessors[acc.Name] {
			return fmt.Errorf("entity %s: duplicate accessor %s", e.Name, acc.Name)
		}
		accessors[acc.Name] = true
	}

	return nil
}

// RelationFields returns the declared relation field names, sorted
func (e *EntityType) RelationFields() []string {
	names := make([]string, 0, len(e.Relations))
	for _, rel := range e.Relations {
		names = append(names, rel.Field)
	}
	sort.Strings(names)
	return names
}
