package value

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Record is the engine representation of an object. The engine transport
// does not preserve map key order, so the order travels explicitly in Keys.
type Record struct {
	Keys   []string       `json:"_keys"`
	Fields map[string]any `json:"_object"`
}

const (
	recordKeysField   = "_keys"
	recordFieldsField = "_object"
)

// ContractViolation is the panic value raised when the engine hands back
// data that breaks the record contract. It is never returned as an error.
type ContractViolation struct {
	Detail string
}

func (c *ContractViolation) Error() string {
	return "engine value contract violation: " + c.Detail
}

func violate(format string, args ...any) {
	panic(&ContractViolation{Detail: fmt.Sprintf(format, args...)})
}

// Encode converts v to the engine representation: nil, bool, float64,
// string, []any or *Record.
func Encode(v Value) any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = Encode(e)
		}
		return out
	case KindObject:
		return EncodeObject(v.obj)
	}
	return nil
}

// EncodeObject converts o to a Record.
func EncodeObject(o *Object) *Record {
	r := &Record{
		Keys:   o.Keys(),
		Fields: make(map[string]any, o.Len()),
	}
	if r.Keys == nil {
		r.Keys = []string{}
	}
	o.Range(func(k string, v Value) bool {
		r.Fields[k] = Encode(v)
		return true
	})
	return r
}

// EncodeAll encodes statement parameters in order.
func EncodeAll(vs []Value) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = Encode(v)
	}
	return out
}

// Decode converts an engine value back to a Value. Records, including the
// map form produced by decoding record JSON, are rebuilt in key order.
// Malformed records panic with *ContractViolation.
func Decode(ev any) Value {
	switch x := ev.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			violate("invalid number %q", string(x))
		}
		return Number(f)
	case string:
		return String(x)
	case []byte:
		return String(string(x))
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = Decode(e)
		}
		return List(out...)
	case *Record:
		if x == nil {
			return Null()
		}
		return ObjectValue(decodeRecord(x.Keys, x.Fields))
	case Record:
		return ObjectValue(decodeRecord(x.Keys, x.Fields))
	case map[string]any:
		return ObjectValue(decodeMap(x))
	}
	violate("unsupported engine value of type %T", ev)
	return Value{}
}

// DecodeRow decodes a row document. Rows must be objects.
func DecodeRow(ev any) *Object {
	v := Decode(ev)
	o, ok := v.AsObject()
	if !ok {
		violate("row document is a %s, not an object", v.Kind())
	}
	return o
}

func decodeRecord(keys []string, fields map[string]any) *Object {
	o := NewObject()
	for _, k := range keys {
		fv, ok := fields[k]
		if !ok {
			violate("record key %q has no field", k)
		}
		o.Set(k, Decode(fv))
	}
	return o
}

func decodeMap(m map[string]any) *Object {
	rawKeys, hasKeys := m[recordKeysField]
	rawFields, hasFields := m[recordFieldsField]
	if hasKeys || hasFields {
		if !hasKeys || !hasFields || len(m) != 2 {
			violate("record must carry exactly %q and %q", recordKeysField, recordFieldsField)
		}
		fields, ok := rawFields.(map[string]any)
		if !ok {
			violate("record %q is a %T, not an object", recordFieldsField, rawFields)
		}
		return decodeRecord(recordKeys(rawKeys), fields)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return decodeRecord(keys, m)
}

func recordKeys(raw any) []string {
	switch ks := raw.(type) {
	case []string:
		return ks
	case []any:
		out := make([]string, len(ks))
		for i, k := range ks {
			s, ok := k.(string)
			if !ok {
				violate("record key %d is a %T, not a string", i, k)
			}
			out[i] = s
		}
		return out
	}
	violate("record %q is a %T, not a list", recordKeysField, raw)
	return nil
}
