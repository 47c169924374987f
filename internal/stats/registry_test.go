package stats

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmohaa/match-server/internal/models"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name      string
		validator ValidatorName
		value     any
		want      bool
	}{
		{"int", ValidateNumber, 3, true},
		{"float", ValidateNumber, 2.5, true},
		{"json number", ValidateNumber, json.Number("7"), true},
		{"nan", ValidateNumber, math.NaN(), false},
		{"inf", ValidateNumber, math.Inf(1), false},
		{"string as number", ValidateNumber, "x", false},
		{"bool as number", ValidateNumber, true, false},
		{"nil as number", ValidateNumber, nil, false},
		{"string", ValidateString, "dust", true},
		{"number as string", ValidateString, 1, false},
		{"vec3 array", ValidateVector3, models.Vec3{1, 2, 3}, true},
		{"vec3 any slice", ValidateVector3, []any{1.0, 2, json.Number("3")}, true},
		{"vec3 short", ValidateVector3, []float64{1, 2}, false},
		{"vec3 non numeric", ValidateVector3, []any{1, "a", 3}, false},
		{"vec3 nil", ValidateVector3, nil, false},
		{"number map", ValidateNumberMap, map[string]float64{"rifle": 10}, true},
		{"any map", ValidateNumberMap, map[string]any{"rifle": 10, "smg": 2.5}, true},
		{"any map bad value", ValidateNumberMap, map[string]any{"rifle": "10"}, false},
		{"int keyed map", ValidateNumberMap, map[int]float64{1: 10}, false},
		{"not a map", ValidateNumberMap, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := LookupValidator(tt.validator)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v(tt.value))
		})
	}
}

func TestOperations(t *testing.T) {
	add, err := LookupOperation(OpAdd)
	require.NoError(t, err)
	assert.Equal(t, 5.0, add(2.0, 3))

	addMap, err := LookupOperation(OpAddMap)
	require.NoError(t, err)
	cur := map[string]float64{"rifle": 10}
	got := addMap(cur, map[string]any{"rifle": 5, "pistol": 2})
	assert.Equal(t, map[string]float64{"rifle": 15, "pistol": 2}, got)
	assert.Equal(t, map[string]float64{"rifle": 10}, cur, "current map must not be mutated")

	replace, err := LookupOperation(OpReplace)
	require.NoError(t, err)
	assert.Equal(t, "new", replace("old", "new"))
}

func TestLookup_Unregistered(t *testing.T) {
	_, err := LookupValidator("timestamp")
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "validator", cfgErr.Kind)

	_, err = LookupOperation("multiply")
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "operation", cfgErr.Kind)
}

func TestFieldRulesAreRegistered(t *testing.T) {
	for _, f := range Fields() {
		r := fieldRules[f]
		_, err := LookupValidator(r.validator)
		assert.NoError(t, err, f.String())
		_, err = LookupOperation(r.operation)
		assert.NoError(t, err, f.String())

		parsed, err := ParseField(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}

	_, err := ParseField("headshots")
	assert.ErrorIs(t, err, ErrUnknownField)
}
