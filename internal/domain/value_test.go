package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArguments_NestedConversion(t *testing.T) {
	args, err := ParseArguments(`{"a":[1,{"b":true}],"c":null}`)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, args.Keys())

	a, ok := args.Get("a")
	require.True(t, ok)
	require.Equal(t, KindArray, a.Kind)
	require.Len(t, a.Arr, 2)

	require.Equal(t, KindInt, a.Arr[0].Kind)
	require.Equal(t, int64(1), a.Arr[0].Int)

	nested := a.Arr[1]
	require.Equal(t, KindObject, nested.Kind)
	b, ok := nested.Obj.Get("b")
	require.True(t, ok)
	require.Equal(t, KindBool, b.Kind)
	require.True(t, b.Bool)

	c, ok := args.Get("c")
	require.True(t, ok)
	require.Equal(t, KindNull, c.Kind)
}

func TestParseArguments_NumberKinds(t *testing.T) {
	args, err := ParseArguments(`{"int":42,"neg":-7,"float":3.5,"exp":1e3,"big":9007199254740993}`)
	require.NoError(t, err)

	v, _ := args.Get("int")
	require.Equal(t, KindInt, v.Kind)
	require.Equal(t, int64(42), v.Int)

	v, _ = args.Get("neg")
	require.Equal(t, KindInt, v.Kind)
	require.Equal(t, int64(-7), v.Int)

	v, _ = args.Get("float")
	require.Equal(t, KindFloat, v.Kind)
	require.Equal(t, 3.5, v.Float)

	v, _ = args.Get("exp")
	require.Equal(t, KindFloat, v.Kind)
	require.Equal(t, 1000.0, v.Float)

	// Larger than float64 can hold exactly, still preserved as int64.
	v, _ = args.Get("big")
	require.Equal(t, KindInt, v.Kind)
	require.Equal(t, int64(9007199254740993), v.Int)
}

func TestParseArguments_RejectsNonObject(t *testing.T) {
	_, err := ParseArguments(`[1,2,3]`)
	require.Error(t, err)

	_, err = ParseArguments(`"text"`)
	require.Error(t, err)

	_, err = ParseArguments(`{"a":1} trailing`)
	require.Error(t, err)
}

func TestValueMap_MarshalPreservesOrder(t *testing.T) {
	args, err := ParseArguments(`{"z":1,"a":{"y":2,"b":3},"m":[true,null]}`)
	require.NoError(t, err)

	out, err := json.Marshal(args)
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":{"y":2,"b":3},"m":[true,null]}`, string(out))
}

func TestValueMap_SetOverwriteKeepsPosition(t *testing.T) {
	m := NewValueMap()
	m.Set("first", IntValue(1))
	m.Set("second", IntValue(2))
	m.Set("first", IntValue(3))

	require.Equal(t, []string{"first", "second"}, m.Keys())
	v, _ := m.Get("first")
	require.Equal(t, int64(3), v.Int)
}
