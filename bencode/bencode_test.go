package bencode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeString(t *testing.T) {
	v, tail, err := DecodeBytes([]byte("5:hello"))
	require.NoError(t, err)
	require.Empty(t, tail)
	s, ok := v.Str()
	require.True(t, ok)
	require.Equal(t, "hello", string(s))
}

func TestDecodeInt(t *testing.T) {
	v, tail, err := DecodeBytes([]byte("i42e"))
	require.NoError(t, err)
	require.Empty(t, tail)
	i, ok := v.Int()
	require.True(t, ok)
	require.Equal(t, int64(42), i)
}

func TestDecodeNegativeInt(t *testing.T) {
	v, _, err := DecodeBytes([]byte("i-42e"))
	require.NoError(t, err)
	i, _ := v.Int()
	require.Equal(t, int64(-42), i)
}

func TestDecodeList(t *testing.T) {
	v, tail, err := DecodeBytes([]byte("l4:spam4:eggse"))
	require.NoError(t, err)
	require.Empty(t, tail)
	items, ok := v.List()
	require.True(t, ok)
	require.Len(t, items, 2)
	s0, _ := items[0].Str()
	s1, _ := items[1].Str()
	require.Equal(t, "spam", string(s0))
	require.Equal(t, "eggs", string(s1))
}

// S1 (bencode).
func TestDecodeDict(t *testing.T) {
	v, tail, err := DecodeBytes([]byte("d3:cow3:moo4:spam4:eggse"))
	require.NoError(t, err)
	require.Empty(t, tail)
	d, ok := v.Dict()
	require.True(t, ok)
	require.Len(t, d, 2)
	cow, _ := d["cow"].Str()
	spam, _ := d["spam"].Str()
	require.Equal(t, "moo", string(cow))
	require.Equal(t, "eggs", string(spam))
}

func TestEncodeMatchesS1(t *testing.T) {
	v := Dict(map[string]Value{
		"cow":  StringFrom("moo"),
		"spam": StringFrom("eggs"),
	})
	require.Equal(t, "d3:cow3:moo4:spam4:eggse", string(Marshal(v)))
}

func TestEncodeDictKeysSorted(t *testing.T) {
	v := Dict(map[string]Value{
		"zebra": Int(1),
		"apple": Int(2),
	})
	require.Equal(t, "d5:applei2e5:zebrai1ee", string(Marshal(v)))
}

// Property 1: decode(encode(v)) == (v, empty tail), for a representative
// sample of values covering every Type.
func TestRoundTrip(t *testing.T) {
	values := []Value{
		StringFrom(""),
		StringFrom("hello world"),
		Int(0),
		Int(-1),
		Int(1 << 40),
		List(nil),
		List([]Value{Int(1), StringFrom("a"), List([]Value{Int(2)})}),
		Dict(map[string]Value{}),
		Dict(map[string]Value{
			"a": Int(1),
			"b": List([]Value{StringFrom("x"), StringFrom("y")}),
			"c": Dict(map[string]Value{"nested": Int(7)}),
		}),
	}
	for _, v := range values {
		encoded := Marshal(v)
		decoded, tail, err := DecodeBytes(encoded)
		require.NoError(t, err)
		require.Empty(t, tail)
		require.True(t, v.Equal(decoded), "round trip mismatch for %v", v)
	}
}

func TestDecodeTruncatedString(t *testing.T) {
	_, _, err := DecodeBytes([]byte("5:hi"))
	require.Error(t, err)
	require.IsType(t, &ParseError{}, err)
}

func TestDecodeMissingTerminator(t *testing.T) {
	_, _, err := DecodeBytes([]byte("i42"))
	require.Error(t, err)
}

func TestDecodeMalformedLength(t *testing.T) {
	_, _, err := DecodeBytes([]byte("x:hello"))
	require.Error(t, err)
}

func TestDecodeDictKeyNotString(t *testing.T) {
	_, _, err := DecodeBytes([]byte("di1ei2ee"))
	require.Error(t, err)
}

func TestDecodeResidualTail(t *testing.T) {
	v, tail, err := DecodeBytes([]byte("i1eTRAILING"))
	require.NoError(t, err)
	i, _ := v.Int()
	require.Equal(t, int64(1), i)
	require.Equal(t, "TRAILING", string(tail))
}
