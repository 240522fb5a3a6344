package bencode

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// Encode writes v's bencoded form to w. Dict keys are always emitted in
// ascending byte order regardless of the iteration order of the underlying
// map, which is what makes the info-hash computation (C3) stable: the same
// logical dict always produces the same bytes.
func (v Value) Encode(w io.Writer) error {
	switch v.typ {
	case TypeString:
		if _, err := fmt.Fprintf(w, "%d:", len(v.str)); err != nil {
			return err
		}
		_, err := w.Write(v.str)
		return err
	case TypeInt:
		_, err := fmt.Fprintf(w, "i%de", v.num)
		return err
	case TypeList:
		if _, err := io.WriteString(w, "l"); err != nil {
			return err
		}
		for _, item := range v.list {
			if err := item.Encode(w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "e")
		return err
	case TypeDict:
		if _, err := io.WriteString(w, "d"); err != nil {
			return err
		}
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := StringFrom(k).Encode(w); err != nil {
				return err
			}
			if err := v.dict[k].Encode(w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "e")
		return err
	default:
		return fmt.Errorf("bencode: cannot encode value of unknown type %d", v.typ)
	}
}

// Marshal returns v's bencoded form as a byte slice.
func Marshal(v Value) []byte {
	var buf bytes.Buffer
	// Encode over a bytes.Buffer never errors.
	_ = v.Encode(&buf)
	return buf.Bytes()
}
