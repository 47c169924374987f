// Package stats owns per-round combat counters. Every write goes through a
// closed table that maps a stat field to exactly one validator and one merge
// operation.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/openmohaa/match-server/internal/models"
)

// ValidatorName names a registered value-shape check
type ValidatorName string

const (
	ValidateNumber    ValidatorName = "number"
	ValidateString    ValidatorName = "string"
	ValidateVector3   ValidatorName = "vector3"
	ValidateNumberMap ValidatorName = "numberMap"
)

// OperationName names a registered merge rule
type OperationName string

const (
	OpAdd     OperationName = "add"
	OpAddMap  OperationName = "addMap"
	OpReplace OperationName = "replace"
)

// Validator reports whether a value has the expected shape.
type Validator func(v any) bool

// Operation combines the current value with a delta.
type Operation func(current, delta any) any

var validators = map[ValidatorName]Validator{
	ValidateNumber: func(v any) bool {
		_, ok := ToNumber(v)
		return ok
	},
	ValidateString: func(v any) bool {
		_, ok := v.(string)
		return ok
	},
	ValidateVector3: func(v any) bool {
		_, ok := ToVec3(v)
		return ok
	},
	ValidateNumberMap: func(v any) bool {
		_, ok := ToNumberMap(v)
		return ok
	},
}

var operations = map[OperationName]Operation{
	OpAdd: func(current, delta any) any {
		a, _ := ToNumber(current)
		b, _ := ToNumber(delta)
		return a + b
	},
	OpAddMap: func(current, delta any) any {
		cur, _ := ToNumberMap(current)
		d, _ := ToNumberMap(delta)
		out := make(map[string]float64, len(cur)+len(d))
		for k, v := range cur {
			out[k] = v
		}
		for k, v := range d {
			out[k] += v
		}
		return out
	},
	OpReplace: func(current, delta any) any {
		return delta
	},
}

// ConfigurationError reports a lookup of an unregistered validator or
// operation. It is always a programming error.
type ConfigurationError struct {
	Kind string
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: unregistered %s %q", e.Kind, e.Name)
}

// LookupValidator returns the named validator.
func LookupValidator(name ValidatorName) (Validator, error) {
	v, ok := validators[name]
	if !ok {
		return nil, &ConfigurationError{Kind: "validator", Name: string(name)}
	}
	return v, nil
}

// LookupOperation returns the named merge operation.
func LookupOperation(name OperationName) (Operation, error) {
	op, ok := operations[name]
	if !ok {
		return nil, &ConfigurationError{Kind: "operation", Name: string(name)}
	}
	return op, nil
}

// ToNumber converts any Go numeric kind or json.Number to a finite float64.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToNumberMap converts a string-keyed map whose values are all numeric.
func ToNumberMap(v any) (map[string]float64, bool) {
	if m, ok := v.(map[string]float64); ok {
		for _, x := range m {
			if _, ok := ToNumber(x); !ok {
				return nil, false
			}
		}
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]float64, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		n, ok := ToNumber(iter.Value().Interface())
		if !ok {
			return nil, false
		}
		out[iter.Key().String()] = n
	}
	return out, true
}

// ToVec3 converts a three-element array or slice of finite numbers.
func ToVec3(v any) (models.Vec3, bool) {
	var out models.Vec3
	if v == nil {
		return out, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Array && rv.Kind() != reflect.Slice {
		return out, false
	}
	if rv.Len() != 3 {
		return out, false
	}
	for i := 0; i < 3; i++ {
		n, ok := ToNumber(rv.Index(i).Interface())
		if !ok {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
