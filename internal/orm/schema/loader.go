package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rowmodel/rowmodel/internal/orm/validation"
)

// definitionFile is the on-disk layout of entity definitions (YAML or JSON)
type definitionFile struct {
	Entities []entityDefinition `yaml:"entities"`
}

type entityDefinition struct {
	Name          string               `yaml:"name"`
	PersistedName string               `yaml:"persisted_name"`
	Hidden        []string             `yaml:"hidden"`
	Schema        *validation.Schema   `yaml:"schema"`
	Relations     []relationDefinition `yaml:"relations"`
}

type relationDefinition struct {
	Field           string `yaml:"field"`
	Target          string `yaml:"target"`
	Many            bool   `yaml:"many"`
	ForeignKey      string `yaml:"foreign_key"`
	QualifiedColumn string `yaml:"qualified_column"`
}

// LoadFile reads entity definitions from a YAML or JSON file
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity definitions: %w", err)
	}
	defer f.Close()

	registry, err := LoadDefinitions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return registry, nil
}

// LoadDefinitions reads entity definitions and returns a validated registry.
// Relation targets are resolved by entity name once every entity is read, so
// definitions may reference each other in any order.
func LoadDefinitions(r io.Reader) (*Registry, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file definitionFile
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return NewRegistry(), nil
		}
		return nil, fmt.Errorf("failed to parse entity definitions: %w", err)
	}

	entities := make(map[string]*EntityType, len(file.Entities))
	for _, def := range file.Entities {
		persisted := def.PersistedName
		if persisted == "" {
			persisted = def.Name
		}
		entities[def.Name] = &EntityType{
			Name:          def.Name,
			PersistedName: persisted,
			Schema:        def.Schema,
			Hidden:        def.Hidden,
		}
	}

	registry := NewRegistry()
	for _, def := range file.Entities {
		entity := entities[def.Name]
		for _, relDef := range def.Relations {
			target, ok := entities[relDef.Target]
			if !ok {
				return nil, fmt.Errorf("entity %s: relation %s targets unknown entity %q",
					def.Name, relDef.Field, relDef.Target)
			}
			entity.Relations = append(entity.Relations, &Relation{
				Field:           relDef.Field,
				Target:          target,
				Many:            relDef.Many,
				ForeignKey:      relDef.ForeignKey,
				QualifiedColumn: relDef.QualifiedColumn,
			})
		}
		if err := registry.Register(entity); err != nil {
			return nil, err
		}
	}

	if err := registry.ValidateAll(); err != nil {
		return nil, err
	}
	return registry, nil
}
