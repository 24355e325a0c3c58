package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyGraph(t *testing.T) {
	inventory, product, category, movement := testEntities()
	graph := NewDependencyGraph([]*EntityType{inventory, product, category, movement})

	assert.Equal(t, []string{"product", "productCategory"}, graph.Dependencies("inventory"))
	assert.Empty(t, graph.Dependencies("movement"), "to-many relations store no foreign key")
	assert.Equal(t, []string{"inventory", "product"}, graph.Dependents("productCategory"))
	assert.Empty(t, graph.DetectCycles())

	order, err := graph.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"movement", "productCategory", "product", "inventory"}, order)
}

func TestDependencyGraph_SelfReference(t *testing.T) {
	location := &EntityType{Name: "location", PersistedName: "location"}
	location.Relations = []*Relation{One("parent", location, "parentId")}

	order, err := NewDependencyGraph([]*EntityType{location}).TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"location"}, order)
}

func TestDependencyGraph_Cycle(t *testing.T) {
	a := &EntityType{Name: "a", PersistedName: "a"}
	b := &EntityType{Name: "b", PersistedName: "b"}
	a.Relations = []*Relation{One("b", b, "bId")}
	b.Relations = []*Relation{One("a", a, "aId")}

	graph := NewDependencyGraph([]*EntityType{a, b})
	assert.Equal(t, [][]string{{"a", "b"}}, graph.DetectCycles())

	_, err := graph.TopologicalSort()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle 1: a -> b -> a")
}

func TestRegistry_DependencyOrder(t *testing.T) {
	registry := NewRegistry()
	inventory, product, category, movement := testEntities()
	registry.MustRegister(category, product, movement, inventory)

	order, err := registry.DependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"movement", "productCategory", "product", "inventory"}, order)
}
