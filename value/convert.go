package value

import (
	"fmt"
	"sort"
)

// Of converts common Go values to a Value. Maps are converted with their keys
// sorted because Go maps carry no order; build an *Object to control it.
func Of(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case *Object:
		return ObjectValue(v), nil
	case bool:
		return Bool(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int8:
		return Number(float64(v)), nil
	case int16:
		return Number(float64(v)), nil
	case int32:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case uint:
		return Number(float64(v)), nil
	case uint8:
		return Number(float64(v)), nil
	case uint16:
		return Number(float64(v)), nil
	case uint32:
		return Number(float64(v)), nil
	case uint64:
		return Number(float64(v)), nil
	case string:
		return String(v), nil
	case []byte:
		return String(string(v)), nil
	case []Value:
		return List(v...), nil
	case []any:
		out := make([]Value, len(v))
		for i, e := range v {
			ev, err := Of(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = ev
		}
		return List(out...), nil
	case []string:
		out := make([]Value, len(v))
		for i, e := range v {
			out[i] = String(e)
		}
		return List(out...), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := NewObject()
		for _, k := range keys {
			ev, err := Of(v[k])
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			o.Set(k, ev)
		}
		return ObjectValue(o), nil
	}
	return Value{}, fmt.Errorf("unsupported host value of type %T", x)
}

// OfAll converts statement parameters with Of.
func OfAll(xs []any) ([]Value, error) {
	out := make([]Value, len(xs))
	for i, x := range xs {
		v, err := Of(x)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// MustOf is Of for literals in tests and examples.
func MustOf(x any) Value {
	v, err := Of(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Obj builds an object from alternating key/value pairs, in order.
func Obj(kv ...any) *Object {
	if len(kv)%2 != 0 {
		panic("value.Obj: odd number of arguments")
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("value.Obj: key %d is a %T", i/2, kv[i]))
		}
		o.Set(k, MustOf(kv[i+1]))
	}
	return o
}
