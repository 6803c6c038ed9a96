package value

import (
	"bytes"
	"encoding/json"
)

// Object is a string-keyed mapping that remembers insertion order. Row
// documents are Objects whose key order is the engine's column order.
type Object struct {
	keys   []string
	fields map[string]Value
}

func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Set stores v under k. Setting an existing key replaces its value but keeps
// its position.
func (o *Object) Set(k string, v Value) *Object {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.fields[k] = v
	return o
}

func (o *Object) Get(k string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.fields[k]
	return v, ok
}

func (o *Object) Has(k string) bool {
	_, ok := o.Get(k)
	return ok
}

// Delete removes k, preserving the order of the remaining keys.
func (o *Object) Delete(k string) {
	if o == nil {
		return
	}
	if _, ok := o.fields[k]; !ok {
		return
	}
	delete(o.fields, k)
	for i, key := range o.keys {
		if key == k {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Range calls fn for every field in order until fn returns false.
func (o *Object) Range(fn func(k string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.fields[k]) {
			return
		}
	}
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	c := NewObject()
	o.Range(func(k string, v Value) bool {
		c.Set(k, cloneValue(v))
		return true
	})
	return c
}

func cloneValue(v Value) Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.list))
		for i, e := range v.list {
			out[i] = cloneValue(e)
		}
		return List(out...)
	case KindObject:
		return ObjectValue(v.obj.Clone())
	}
	return v
}

// Equal reports whether o and p hold the same fields in the same order.
func (o *Object) Equal(p *Object) bool {
	if o.Len() != p.Len() {
		return false
	}
	for i, k := range o.keysOrNil() {
		if p.keys[i] != k {
			return false
		}
		if !o.fields[k].Equal(p.fields[k]) {
			return false
		}
	}
	return true
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keysOrNil() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := o.fields[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) keysOrNil() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

func (o *Object) String() string {
	b, err := o.MarshalJSON()
	if err != nil {
		return "<object>"
	}
	return string(b)
}
