package keyedstore

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// ValueType tags the runtime type recorded for a stored value.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeInt     ValueType = "int"
	TypeObject  ValueType = "object"
	TypeArray   ValueType = "array"
	TypeBoolean ValueType = "boolean"
	TypeDate    ValueType = "date"

	// TypeNone is the sentinel recorded for non-strict entries written
	// without an explicit type. It bypasses validation on read.
	TypeNone ValueType = "no-type"
)

// validateValue checks value against a declared type tag.
// Returns ErrConfiguration for a tag outside the supported set and
// ErrTypeMismatch for a recognized tag the value does not satisfy.
func validateValue(value any, typ ValueType) error {
	ok := false
	switch typ {
	case TypeNone:
		return nil
	case TypeString:
		_, ok = value.(string)
	case TypeNumber:
		_, ok = asFloat(value)
	case TypeInt:
		var f float64
		if f, ok = asFloat(value); ok {
			ok = f == math.Trunc(f)
		}
	case TypeObject:
		ok = isObject(value)
	case TypeArray:
		ok = isArray(value)
	case TypeBoolean:
		_, ok = value.(bool)
	case TypeDate:
		ok = isDate(value)
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrConfiguration, typ)
	}
	if !ok {
		return fmt.Errorf("%w: %T value does not satisfy type %q", ErrTypeMismatch, value, typ)
	}
	return nil
}

// asFloat widens any plain numeric value to float64. Named numeric
// types (time.Duration included) do not count.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func isDate(value any) bool {
	switch value.(type) {
	case time.Time, *time.Time:
		return true
	}
	return false
}

// isObject reports whether value is a non-nil structured record:
// a map or a struct (time.Time excluded, that is a date).
func isObject(value any) bool {
	if value == nil {
		return false
	}
	if isDate(value) {
		return false
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		return !rv.IsNil()
	case reflect.Struct:
		return true
	}
	return false
}

func isArray(value any) bool {
	if value == nil {
		return false
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}
