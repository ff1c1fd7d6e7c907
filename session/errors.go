package session

import (
	"errors"
	"fmt"

	"github.com/luma/ldapws/protocol"
)

var (
	ErrNoResponse        = errors.New("ldap: channel closed before a response arrived")
	ErrTruncatedSearch   = errors.New("ldap: channel closed before the search completed")
	ErrUnexpectedMessage = errors.New("ldap: unexpected message")

	// ErrUnsupported is returned by operations that are part of the API but
	// not implemented yet.
	ErrUnsupported = errors.New("ldap: operation not supported")

	// ErrSessionBroken is returned by every call after a fatal error. The
	// session must be discarded and a new one connected.
	ErrSessionBroken = errors.New("ldap: session is broken")

	ErrSessionClosed = errors.New("ldap: session is closed")
	ErrInvalidScope  = errors.New("ldap: invalid search scope")
	ErrNilChannel    = errors.New("ldap: session requires a channel")
	ErrNoAddress     = errors.New("ldap: session requires a target address")

	// ErrNoFilterParser is returned by Search on a session created without
	// WithFilterParser.
	ErrNoFilterParser = errors.New("ldap: session has no filter parser")
)

// TransportError is a failure of the underlying channel. It is always fatal
// to the session.
type TransportError struct {
	// Op is "send" or "receive"
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ldap: transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FilterSyntaxError is returned when a search filter cannot be parsed. No
// message is sent and the session remains usable.
type FilterSyntaxError struct {
	Filter string
	Err    error
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("ldap: invalid filter %q: %v", e.Filter, e.Err)
}

func (e *FilterSyntaxError) Unwrap() error {
	return e.Err
}

type ProtocolErrorKind int

const (
	NoResponse ProtocolErrorKind = iota
	TruncatedSearch
	UnexpectedMessage
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case NoResponse:
		return "NoResponse"
	case TruncatedSearch:
		return "TruncatedSearch"
	case UnexpectedMessage:
		return "UnexpectedMessage"
	default:
		return "Unknown"
	}
}

// ProtocolError is a violation of the request/response contract. It is
// fatal to the session: identifier and response alignment can no longer be
// trusted.
type ProtocolError struct {
	Kind ProtocolErrorKind

	// MessageID is the ID of the request that was outstanding.
	MessageID int64

	// Got is the message that did not fit, for UnexpectedMessage.
	Got *protocol.Message

	// Partial holds what a truncated search collected before the channel
	// closed.
	Partial *SearchResult
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case UnexpectedMessage:
		if e.Got != nil {
			return fmt.Sprintf("%v: got %s with message ID %d while awaiting message ID %d",
				ErrUnexpectedMessage, e.Got.Op.Kind(), e.Got.ID, e.MessageID)
		}
		return fmt.Sprintf("%v (message ID %d)", ErrUnexpectedMessage, e.MessageID)

	case TruncatedSearch:
		n := 0
		if e.Partial != nil {
			n = len(e.Partial.Messages)
		}
		return fmt.Sprintf("%v (message ID %d, %d messages received)", ErrTruncatedSearch, e.MessageID, n)

	default:
		return fmt.Sprintf("%v (message ID %d)", ErrNoResponse, e.MessageID)
	}
}

// Is lets errors.Is match a ProtocolError against the sentinel of its kind.
func (e *ProtocolError) Is(target error) bool {
	switch e.Kind {
	case NoResponse:
		return target == ErrNoResponse
	case TruncatedSearch:
		return target == ErrTruncatedSearch
	case UnexpectedMessage:
		return target == ErrUnexpectedMessage
	}

	return false
}
