package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeepsInsertionOrder(t *testing.T) {
	o := NewObject()
	o.Set("c", Number(1)).Set("a", Number(2)).Set("b", Number(3))
	o.Set("a", Number(4))

	assert.Equal(t, []string{"c", "a", "b"}, o.Keys())
	v, ok := o.Get("a")
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, 4.0, n)

	o.Delete("a")
	assert.Equal(t, []string{"c", "b"}, o.Keys())
	assert.False(t, o.Has("a"))
	assert.Equal(t, 2, o.Len())
}

func TestObjectEqualIsOrderSensitive(t *testing.T) {
	assert.True(t, Obj("a", 1, "b", 2).Equal(Obj("a", 1, "b", 2)))
	assert.False(t, Obj("a", 1, "b", 2).Equal(Obj("b", 2, "a", 1)))
	assert.False(t, Obj("a", 1).Equal(Obj("a", "1")))
}

func TestObjectCloneIsDeep(t *testing.T) {
	inner := Obj("x", 1)
	o := Obj("inner", inner)

	c := o.Clone()
	inner.Set("x", Number(2))

	got, _ := c.Get("inner")
	gotInner, _ := got.AsObject()
	x, _ := gotInner.Get("x")
	n, _ := x.AsNumber()
	assert.Equal(t, 1.0, n)
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	o := Obj("b", 1, "a", []any{true, nil, "s"})

	b, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":[true,null,"s"]}`, string(b))
	assert.Equal(t, `{"b":1,"a":[true,null,"s"]}`, ObjectValue(o).String())
}

func TestOf(t *testing.T) {
	v, err := Of(map[string]any{"b": 1, "a": []any{"x", uint16(2)}})
	require.NoError(t, err)

	want := ObjectValue(Obj("a", List(String("x"), Number(2)), "b", 1))
	assert.True(t, v.Equal(want), "got %s", v)

	_, err = Of(make(chan int))
	assert.Error(t, err)

	_, err = OfAll([]any{1, struct{}{}})
	assert.ErrorContains(t, err, "parameter 2")
}

func TestAccessorsReportKind(t *testing.T) {
	_, ok := String("x").AsNumber()
	assert.False(t, ok)
	_, ok = Null().AsObject()
	assert.False(t, ok)
	assert.True(t, Null().IsNull())
	assert.Equal(t, "list", List().Kind().String())
}
