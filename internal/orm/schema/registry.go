package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry manages all entity types in the application
type Registry struct {
	entities map[string]*EntityType
	mu       sync.RWMutex
}

// NewRegistry creates a new entity registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*EntityType),
	}
}

// Register registers a new entity type
func (r *Registry) Register(entity *EntityType) error {
	if err := entity.checkStructure(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[entity.Name]; exists {
		return fmt.Errorf("entity %s is already registered", entity.Name)
	}

	r.entities[entity.Name] = entity
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(entities ...*EntityType) {
	for _, entity := range entities {
		if err := r.Register(entity); err != nil {
			panic(err)
		}
	}
}

// Get retrieves an entity type by name
func (r *Registry) Get(name string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, exists := r.entities[name]
	return entity, exists
}

// MustGet is like Get but panics when the entity is unknown
func (r *Registry) MustGet(name string) *EntityType {
	entity, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("entity %s not registered", name))
	}
	return entity
}

// List returns the names of all registered entity types, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered entity types
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entities)
}

// Exists checks if an entity type is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.entities[name]
	return exists
}

// DependencyOrder returns the registered entity names with the targets of
// to-one relations before the entities that reference them
func (r *Registry) DependencyOrder() ([]string, error) {
	r.mu.RLock()
	entities := make([]*EntityType, 0, len(r.entities))
	for _, entity := range r.entities {
		entities = append(entities, entity)
	}
	r.mu.RUnlock()

	return NewDependencyGraph(entities).TopologicalSort()
}

// Clear removes all registered entity types (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*EntityType)
}

// ValidateAll checks cross-entity consistency: every relation targets a
// registered entity type and every schema compiles. All problems are reported
// together.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		entity := r.entities[name]
		if entity.PersistedName == "" {
			problems = append(problems, fmt.Sprintf("entity %s: persisted name is required", name))
		}
		for _, rel := range entity.Relations {
			if rel.Target == nil {
				problems = append(problems, fmt.Sprintf("entity %s: relation %s has no target", name, rel.Field))
				continue
			}
			if registered, ok := r.entities[rel.Target.Name]; !ok || registered != rel.Target {
				problems = append(problems, fmt.Sprintf("entity %s: relation %s targets unregistered entity %s",
					name, rel.Field, rel.Target.Name))
			}
		}
		if _, _, err := entity.Validators(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("registry validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
