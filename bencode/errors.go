package bencode

import "fmt"

// ParseError reports a bencode decoding failure at a specific byte offset
// into the input, so a malformed tracker/DHT/metainfo payload can be logged
// with enough context to debug without re-dumping the whole message.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bencode: parse error at offset %d: %s", e.Offset, e.Reason)
}

func newParseError(offset int, format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
