package graphobject

import (
	"fmt"
	"reflect"
)

// CheckProperties verifies every property value is a scalar or a flat array
// of scalars. nil values are allowed and mean "unset".
func CheckProperties(props map[string]any) error {
	for name, v := range props {
		if err := checkValue(v, true); err != nil {
			return fmt.Errorf("%w: property %q: %v", ErrInvalidProperty, name, err)
		}
	}
	return nil
}

func checkValue(v any, allowArray bool) error {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Slice, reflect.Array:
		if !allowArray {
			return fmt.Errorf("nested arrays are not allowed")
		}
		for i := 0; i < rv.Len(); i++ {
			if err := checkValue(rv.Index(i).Interface(), false); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported kind %s", rv.Kind())
	}
}
