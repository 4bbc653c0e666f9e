package wire

import "fmt"

// Kind enumerates the error taxonomy of the terminal-sync design (§7),
// independent of Go's own error types so callers can switch on it the same
// way regardless of the underlying cause.
type Kind int

const (
	TransportLost Kind = iota
	ProtocolViolation
	AuthorizationDenied
	StaleInput
	HistoryUnavailable
	HandshakeTimeout
	EncodeOverflow
	Divergence
)

// Error lets a bare Kind serve as an errors.Is sentinel (wire.StaleInput).
func (k Kind) Error() string { return k.String() }

func (k Kind) String() string {
	switch k {
	case TransportLost:
		return "transport_lost"
	case ProtocolViolation:
		return "protocol_violation"
	case AuthorizationDenied:
		return "authorization_denied"
	case StaleInput:
		return "stale_input"
	case HistoryUnavailable:
		return "history_unavailable"
	case HandshakeTimeout:
		return "handshake_timeout"
	case EncodeOverflow:
		return "encode_overflow"
	case Divergence:
		return "divergence"
	default:
		return "unknown"
	}
}

// CoreError wraps an underlying cause with one of the taxonomy kinds above.
// Transport and protocol faults of this shape are handled locally at the
// synchronizer and never torn down the host (see §7 propagation policy).
// PTY death is not a Kind: it ends the host runtime with the PTY read error.
// No code recovers an emulator panic.
type CoreError struct {
	Kind Kind
	Err  error
}

func NewError(kind Kind, err error) *CoreError {
	return &CoreError{Kind: kind, Err: err}
}

func (e *CoreError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CoreError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, wire.TransportLost) style checks against a bare
// Kind value in addition to errors.As(err, &coreErr).
func (e *CoreError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}
