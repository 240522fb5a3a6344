// Package bencode implements the bencode dictionary encoding used by
// metainfo files, tracker responses, DHT KRPC messages and the ut_metadata
// extension.
//
// Unlike a reflection-based struct marshaler, Decode produces a tagged
// Value AST: DHT and tracker dictionaries are heterogeneous and arrive with
// keys unknown ahead of time, so a fixed-shape struct-tag mapping cannot
// losslessly round-trip them. Callers that know the expected shape (the
// metainfo model, KRPC messages) project fields out of the Value themselves.
package bencode

import "fmt"

// Type tags the kind of value a Value holds.
type Type int

// The four bencode value kinds.
const (
	TypeString Type = iota
	TypeInt
	TypeList
	TypeDict
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeList:
		return "list"
	case TypeDict:
		return "dict"
	default:
		return "unknown"
	}
}

// Value is a single bencoded value: a byte string, a signed integer, a list
// of values, or a dict mapping UTF-8 keys to values.
type Value struct {
	typ  Type
	str  []byte
	num  int64
	list []Value
	dict map[string]Value
}

// String wraps a byte string as a Value.
func String(s []byte) Value {
	return Value{typ: TypeString, str: s}
}

// StringFrom wraps a Go string as a Value.
func StringFrom(s string) Value {
	return Value{typ: TypeString, str: []byte(s)}
}

// Int wraps an integer as a Value.
func Int(i int64) Value {
	return Value{typ: TypeInt, num: i}
}

// List wraps a list of values as a Value.
func List(vs []Value) Value {
	return Value{typ: TypeList, list: vs}
}

// Dict wraps a key-sorted dict as a Value. Keys need not be pre-sorted;
// Encode always emits them in ascending byte order regardless of the
// iteration order of the supplied map.
func Dict(d map[string]Value) Value {
	return Value{typ: TypeDict, dict: d}
}

// Type reports which kind of value v holds.
func (v Value) Type() Type {
	return v.typ
}

// Str returns v's byte string and true, or (nil, false) if v is not a
// string.
func (v Value) Str() ([]byte, bool) {
	if v.typ != TypeString {
		return nil, false
	}
	return v.str, true
}

// MustStr returns v's byte string, panicking if v is not a string. Intended
// for call sites that have already validated v's shape.
func (v Value) MustStr() []byte {
	s, ok := v.Str()
	if !ok {
		panic(fmt.Sprintf("bencode: value is a %s, not a string", v.typ))
	}
	return s
}

// Int returns v's integer and true, or (0, false) if v is not an int.
func (v Value) Int() (int64, bool) {
	if v.typ != TypeInt {
		return 0, false
	}
	return v.num, true
}

// List returns v's elements and true, or (nil, false) if v is not a list.
func (v Value) List() ([]Value, bool) {
	if v.typ != TypeList {
		return nil, false
	}
	return v.list, true
}

// Dict returns v's mapping and true, or (nil, false) if v is not a dict.
func (v Value) Dict() (map[string]Value, bool) {
	if v.typ != TypeDict {
		return nil, false
	}
	return v.dict, true
}

// Get looks up key in v's dict. Returns false if v is not a dict or the key
// is absent.
func (v Value) Get(key string) (Value, bool) {
	d, ok := v.Dict()
	if !ok {
		return Value{}, false
	}
	val, ok := d[key]
	return val, ok
}

// Equal reports whether v and o encode the same value.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return string(v.str) == string(o.str)
	case TypeInt:
		return v.num == o.num
	case TypeList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case TypeDict:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, vv := range v.dict {
			ov, ok := o.dict[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
