package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
	"github.com/rowmodel/rowmodel/internal/orm/schema"
)

// Catalog holds the models of an application by entity name. Nested
// instances of a relation are bound to the catalog's model for the target
// entity, so they can be saved like top-level ones.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{models: make(map[string]*Model)}
}

// ServiceFactory returns the CRUD service for an entity type
type ServiceFactory func(entity *schema.EntityType) (crud.Service, error)

// NewCatalogFromRegistry creates one model per registered entity, with the
// service returned by services
func NewCatalogFromRegistry(registry *schema.Registry, services ServiceFactory, opts ...ModelOption) (*Catalog, error) {
	c := NewCatalog()
	for _, name := range registry.List() {
		entity, _ := registry.Get(name)
		svc, err := services(entity)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		if err := c.Register(NewModel(entity, svc, opts...)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a model to the catalog and binds it to it
func (c *Catalog) Register(m *Model) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := m.entity.Name
	if _, exists := c.models[name]; exists {
		return fmt.Errorf("model %s already registered", name)
	}
	m.catalog = c
	c.models[name] = m
	return nil
}

// Model returns the model registered for an entity name
func (c *Catalog) Model(name string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	return m, ok
}

// MustModel is like Model but panics when the entity is unknown
func (c *Catalog) MustModel(name string) *Model {
	m, ok := c.Model(name)
	if !ok {
		panic(fmt.Sprintf("model %s not registered", name))
	}
	return m
}

// Names returns the registered entity names, sorted
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
