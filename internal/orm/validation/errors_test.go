package validation

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrors_Empty(t *testing.T) {
	errs := NewValidationErrors()
	assert.False(t, errs.HasErrors())
	assert.Equal(t, 0, errs.Count())
	assert.Equal(t, "validation failed", errs.Error())
}

func TestValidationErrors_AddAndFormat(t *testing.T) {
	errs := NewValidationErrors()
	errs.Add("costPrice", "is required")
	errs.Add("origin", "must be string")
	errs.Add("origin", "must NOT have fewer than 1 characters")

	assert.True(t, errs.HasErrors())
	assert.Equal(t, 3, errs.Count())
	assert.Equal(t,
		"validation failed: costPrice: is required, origin: must be string, origin: must NOT have fewer than 1 characters",
		errs.Error())
	assert.Equal(t, map[string][]string{
		"costPrice": {"is required"},
		"origin":    {"must be string", "must NOT have fewer than 1 characters"},
	}, errs.Fields())
}

func TestFieldError_RootPath(t *testing.T) {
	assert.Equal(t, "must be object", NewFieldError("", "must be object").Error())
	assert.Equal(t, "a.b: is required", NewFieldError("a.b", "is required").Error())
}

func TestValidationErrors_MarshalJSON(t *testing.T) {
	errs := NewValidationErrors()
	errs.Add("costPrice", "is required")

	data, err := json.Marshal(errs)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "validation_failed", decoded["error"])
	assert.Len(t, decoded["issues"], 1)
}
