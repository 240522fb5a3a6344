// Package errs defines the client's error kinds: distinct exported types
// per the propagation rules each caller needs to react to (close a session,
// back off a tracker, fail the whole run), rather than bare errors.New
// strings that callers would have to string-match. bencode.ParseError is
// the one kind defined beside its own codec instead of here, since it
// already carries codec-specific context (a byte offset) that belongs next
// to the decoder that raises it.
package errs

import "fmt"

// ProtocolError reports a peer that sent something the wire protocol does
// not allow: a malformed frame, a size/id mismatch, or (per BEP-3) a
// handshake whose info-hash does not match this run's.
type ProtocolError struct {
	Peer   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error from %s: %s", e.Peer, e.Reason)
}

// NetworkError wraps a connect/read/write/timeout failure against a peer,
// tracker, or DHT node, so callers can errors.As it without caring whether
// the underlying cause was a *net.OpError, a context deadline, or something
// else entirely.
type NetworkError struct {
	Op     string
	Target string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s against %s: %s", e.Op, e.Target, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IntegrityError reports a piece whose assembled bytes did not hash to its
// declared value. Local to the store: the piece is discarded and re-entered
// into Downloading, never propagated past the admitting session.
type IntegrityError struct {
	PieceIndex int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("piece %d failed hash verification", e.PieceIndex)
}

// ConfigError reports a bad CLI argument or configuration value. The
// supervisor never attempts to recover from one: it is printed to stderr
// and the process exits nonzero.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// IOError wraps a filesystem failure from the file writer (C9). Unlike
// NetworkError and IntegrityError, this one is never locally absorbed: it
// is returned up to the supervisor, which treats the entire run as failed.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error on %s: %s", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
