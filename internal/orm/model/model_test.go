package model

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
	"github.com/rowmodel/rowmodel/internal/orm/schema"
	"github.com/rowmodel/rowmodel/internal/orm/validation"
)

type fixture struct {
	catalog   *Catalog
	inventory *Model
	product   *Model
	movement  *Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	product := &schema.EntityType{
		Name:          "product",
		PersistedName: "product",
		Schema: &validation.Schema{
			Type:     validation.Types{validation.TypeObject},
			Required: []string{"name"},
			Properties: map[string]*validation.Schema{
				"name": {Type: validation.Types{validation.TypeString}},
			},
		},
	}
	movement := &schema.EntityType{Name: "movement", PersistedName: "movement"}
	inventory := &schema.EntityType{
		Name:          "inventory",
		PersistedName: "inventory",
		Schema: &validation.Schema{
			Type:     validation.Types{validation.TypeObject},
			Required: []string{"costPrice", "origin"},
			Properties: map[string]*validation.Schema{
				"costPrice": {Type: validation.Types{validation.TypeNumber}, Minimum: validation.Float(0)},
				"origin":    {Type: validation.Types{validation.TypeString}, MinLength: validation.Int(1)},
			},
		},
		Relations: []*schema.Relation{
			schema.One("product", product, "productId"),
			schema.Many("movements", movement),
		},
		Hidden: []string{"internalNotes"},
		Accessors: []*schema.Accessor{
			schema.Computed("label", func(v schema.Values) interface{} {
				origin, _ := v.Get("origin")
				return "lot from " + toString(origin)
			}),
			{
				Name: "sku",
				Get: func(v schema.Values) interface{} {
					sku, _ := v.Get("sku")
					return sku
				},
				Set: func(s schema.Store, value interface{}) error {
					str, ok := value.(string)
					if !ok {
						return errors.New("sku must be a string")
					}
					s.Store("sku", strings.ToUpper(str))
					return nil
				},
			},
		},
	}

	f := &fixture{
		catalog:   NewCatalog(),
		inventory: NewModel(inventory, crud.NewMemory()),
		product:   NewModel(product, crud.NewMemory()),
		movement:  NewModel(movement, crud.NewMemory()),
	}
	require.NoError(t, f.catalog.Register(f.inventory))
	require.NoError(t, f.catalog.Register(f.product))
	require.NoError(t, f.catalog.Register(f.movement))
	return f
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func TestCreate_NestedRelation(t *testing.T) {
	f := newFixture(t)

	inst, err := f.inventory.Create(map[string]interface{}{
		"costPrice": 100,
		"origin":    "A",
		"product":   map[string]interface{}{"id": 5},
	})
	require.NoError(t, err)

	value, ok := inst.Get("product")
	require.True(t, ok)
	product, ok := value.(*Instance)
	require.True(t, ok)
	assert.Equal(t, 5, product.ID())
	assert.Same(t, f.product, product.Model(), "nested instances bind to the catalog model")
}

func TestCreate_MissingRequired(t *testing.T) {
	f := newFixture(t)

	_, err := f.inventory.Create(map[string]interface{}{"origin": "A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "costPrice")
	assert.Contains(t, err.Error(), "inventory")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "inventory", verr.Entity)
	assert.Equal(t, []string{"is required"}, verr.Fields()["costPrice"])
}

func TestCreate_CollectsEveryViolation(t *testing.T) {
	f := newFixture(t)

	_, err := f.inventory.Create(map[string]interface{}{"costPrice": -1, "origin": ""})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Issues, 2)

	data, err := json.Marshal(verr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entity":"inventory"`)
}

func TestCreate_Options(t *testing.T) {
	f := newFixture(t)

	_, err := f.inventory.Create(map[string]interface{}{}, IgnoreRequired())
	assert.NoError(t, err)

	_, err = f.inventory.Create(map[string]interface{}{"costPrice": "free"}, IgnoreRequired())
	assert.ErrorIs(t, err, ErrValidation, "relaxed validation still checks types")

	_, err = f.inventory.Create(map[string]interface{}{"costPrice": "free"}, WithoutValidation())
	assert.NoError(t, err)
}

func TestCreate_InvalidArguments(t *testing.T) {
	f := newFixture(t)

	var nilMap map[string]interface{}
	tests := []struct {
		name string
		data interface{}
	}{
		{"nil", nil},
		{"nil map", nilMap},
		{"sequence", []map[string]interface{}{{"origin": "A"}}},
		{"string", "origin=A"},
		{"int keyed map", map[int]string{1: "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.inventory.Create(tt.data)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestCreate_AcceptsTypedMaps(t *testing.T) {
	f := newFixture(t)

	inst, err := f.movement.Create(map[string]string{"kind": "in"})
	require.NoError(t, err)
	kind, _ := inst.Get("kind")
	assert.Equal(t, "in", kind)
}

func TestCreateForUpdate(t *testing.T) {
	f := newFixture(t)

	data := map[string]interface{}{"origin": "B"}
	inst, err := f.inventory.CreateForUpdate(7, data)
	require.NoError(t, err)

	assert.Equal(t, 7, inst.ID())
	assert.NotContains(t, data, "id", "caller data must not be modified")

	_, err = f.inventory.CreateForUpdate(7, []int{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateCollection(t *testing.T) {
	f := newFixture(t)

	_, err := f.inventory.CreateCollection(map[string]interface{}{"origin": "A"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.inventory.CreateCollection(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	empty, err := f.inventory.CreateCollection([]map[string]interface{}{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	items, err := f.inventory.CreateCollection([]interface{}{
		map[string]interface{}{"costPrice": 1, "origin": "first"},
		map[string]interface{}{"costPrice": 2, "origin": "second"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	origin, _ := items[1].Get("origin")
	assert.Equal(t, "second", origin)

	_, err = f.inventory.CreateCollection([]interface{}{
		map[string]interface{}{"costPrice": 1, "origin": "ok"},
		map[string]interface{}{"origin": "missing cost"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory[1]")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHiddenFieldsNeverVisible(t *testing.T) {
	f := newFixture(t)

	orders := [][]string{
		{"internalNotes", "origin", "costPrice"},
		{"origin", "costPrice", "internalNotes"},
	}
	for _, order := range orders {
		inst := f.inventory.New()
		for _, name := range order {
			value := interface{}("x")
			if name == "costPrice" {
				value = 1
			}
			require.NoError(t, inst.Set(name, value))
		}

		assert.NotContains(t, inst.Fields(), "internalNotes")
		assert.NotContains(t, inst.ToMap(), "internalNotes")

		data, err := json.Marshal(inst)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "internalNotes")

		notes, ok := inst.Get("internalNotes")
		assert.True(t, ok, "hidden fields stay readable")
		assert.Equal(t, "x", notes)
		assert.Contains(t, inst.Flatten(), "internalNotes", "hidden fields are still persisted")
	}
}

func TestFields_OrderAndComputed(t *testing.T) {
	f := newFixture(t)

	inst := f.inventory.New()
	require.NoError(t, inst.Set("origin", "A"))
	require.NoError(t, inst.Set("costPrice", 3))

	assert.Equal(t, []string{"origin", "costPrice", "label", "sku"}, inst.Fields())
	assert.Equal(t, "lot from A", inst.ToMap()["label"])
	assert.NotContains(t, inst.Flatten(), "label")

	err := inst.Set("label", "manual")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAccessorSetter(t *testing.T) {
	f := newFixture(t)

	inst, err := f.inventory.Create(map[string]interface{}{
		"costPrice": 1,
		"origin":    "A",
		"sku":       "ab-1",
	})
	require.NoError(t, err)

	sku, _ := inst.Get("sku")
	assert.Equal(t, "AB-1", sku)
	assert.Equal(t, "AB-1", inst.Flatten()["sku"])

	err = inst.Set("sku", 42)
	assert.EqualError(t, err, "sku must be a string")
}

func TestScalarValuesAreCopied(t *testing.T) {
	f := newFixture(t)

	tags := []string{"fragile"}
	meta := map[string]interface{}{"shelf": "B2"}
	inst, err := f.movement.Create(map[string]interface{}{"tags": tags, "meta": meta})
	require.NoError(t, err)

	tags[0] = "changed"
	meta["shelf"] = "changed"

	stored, _ := inst.Get("tags")
	assert.Equal(t, []string{"fragile"}, stored)
	storedMeta, _ := inst.Get("meta")
	assert.Equal(t, map[string]interface{}{"shelf": "B2"}, storedMeta)
}

func TestDecimalCoercion(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{"pgtype numeric", pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, 123.45},
		{"pgtype numeric pointer", &pgtype.Numeric{Int: big.NewInt(5), Exp: 0, Valid: true}, 5.0},
		{"null numeric", pgtype.Numeric{}, nil},
		{"big rat", big.NewRat(1, 4), 0.25},
		{"big float", big.NewFloat(2.5), 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := f.inventory.Create(map[string]interface{}{"costPrice": tt.value}, WithoutValidation())
			require.NoError(t, err)
			got, _ := inst.Get("costPrice")
			assert.Equal(t, tt.want, got)
		})
	}

	inst, err := f.inventory.Create(map[string]interface{}{
		"costPrice": pgtype.Numeric{Int: big.NewInt(1999), Exp: -2, Valid: true},
		"origin":    "A",
	})
	require.NoError(t, err, "coerced decimals satisfy number constraints")
	got, _ := inst.Get("costPrice")
	assert.Equal(t, 19.99, got)
}

func TestNestedValidation(t *testing.T) {
	f := newFixture(t)
	data := map[string]interface{}{
		"costPrice": 1,
		"origin":    "A",
		"product":   map[string]interface{}{"id": 5},
	}

	_, err := f.inventory.Create(data)
	assert.NoError(t, err, "nested payloads are partial by default")

	_, err = f.inventory.Create(data, ValidateDeep())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "product", verr.Entity)
	assert.Contains(t, err.Error(), "name")

	_, err = f.inventory.Create(map[string]interface{}{
		"costPrice": 1,
		"origin":    "A",
		"product":   map[string]interface{}{"id": 5, "name": 12},
	})
	assert.ErrorIs(t, err, ErrValidation, "nested types are still checked")
}

func TestRelationShapes(t *testing.T) {
	f := newFixture(t)
	base := func(extra map[string]interface{}) map[string]interface{} {
		data := map[string]interface{}{"costPrice": 1, "origin": "A"}
		for k, v := range extra {
			data[k] = v
		}
		return data
	}

	t.Run("list relation", func(t *testing.T) {
		inst, err := f.inventory.Create(base(map[string]interface{}{
			"movements": []map[string]interface{}{{"qty": 1}, {"qty": 2}},
		}))
		require.NoError(t, err)
		value, _ := inst.Get("movements")
		list, ok := value.([]*Instance)
		require.True(t, ok)
		require.Len(t, list, 2)
		qty, _ := list[1].Get("qty")
		assert.Equal(t, 2, qty)
		assert.Equal(t, []interface{}{
			map[string]interface{}{"qty": 1},
			map[string]interface{}{"qty": 2},
		}, inst.ToMap()["movements"])
	})

	t.Run("list relation given an object", func(t *testing.T) {
		_, err := f.inventory.Create(base(map[string]interface{}{
			"movements": map[string]interface{}{"qty": 1},
		}))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("single relation given a list", func(t *testing.T) {
		_, err := f.inventory.Create(base(map[string]interface{}{
			"product": []map[string]interface{}{{"id": 1}},
		}))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("null relation", func(t *testing.T) {
		inst, err := f.inventory.Create(base(map[string]interface{}{"product": nil}))
		require.NoError(t, err)
		value, ok := inst.Get("product")
		assert.True(t, ok)
		assert.Nil(t, value)
	})

	t.Run("existing instance", func(t *testing.T) {
		product, err := f.product.Create(map[string]interface{}{"id": 9, "name": "Widget"})
		require.NoError(t, err)

		inst, err := f.inventory.Create(base(map[string]interface{}{"product": product}))
		require.NoError(t, err)
		value, _ := inst.Get("product")
		assert.Same(t, product, value)

		movement, err := f.movement.Create(map[string]interface{}{})
		require.NoError(t, err)
		_, err = f.inventory.Create(base(map[string]interface{}{"product": movement}))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("scalar value on relation", func(t *testing.T) {
		inst, err := f.inventory.Create(base(map[string]interface{}{"product": 5}))
		require.NoError(t, err)
		value, _ := inst.Get("product")
		assert.Equal(t, 5, value)
	})
}

func TestUnboundRelationModel(t *testing.T) {
	f := newFixture(t)
	standalone := NewModel(f.inventory.Entity(), nil)

	inst, err := standalone.Create(map[string]interface{}{
		"costPrice": 1,
		"origin":    "A",
		"product":   map[string]interface{}{"id": 1},
	})
	require.NoError(t, err)

	value, _ := inst.Get("product")
	product := value.(*Instance)
	assert.Nil(t, product.Model().Service())
	assert.Same(t, f.product.Entity(), product.Entity())
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{"inventory", "movement", "product"}, f.catalog.Names())
	assert.Same(t, f.product, f.catalog.MustModel("product"))
	assert.Panics(t, func() { f.catalog.MustModel("order") })

	err := f.catalog.Register(NewModel(f.product.Entity(), nil))
	assert.Error(t, err)
}

func TestNewCatalogFromRegistry(t *testing.T) {
	registry := schema.NewRegistry()
	category := &schema.EntityType{Name: "category", PersistedName: "category"}
	registry.MustRegister(category)

	services := 0
	catalog, err := NewCatalogFromRegistry(registry, func(entity *schema.EntityType) (crud.Service, error) {
		services++
		return crud.NewMemory(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, services)
	assert.Equal(t, []string{"category"}, catalog.Names())

	_, err = NewCatalogFromRegistry(registry, func(*schema.EntityType) (crud.Service, error) {
		return nil, errors.New("no table")
	})
	assert.EqualError(t, err, "entity category: no table")
}
