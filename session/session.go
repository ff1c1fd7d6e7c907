// Package session implements the client side of an LDAP session over a
// single ordered channel of decoded messages.
//
// A Session owns its channel and its message ID counter. Only one request is
// ever outstanding: every operation holds the session for its whole round
// trip, so responses are correlated by stream order. Any transport or
// protocol failure breaks the session for good; callers reconnect rather than
// retry on the same Session.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/ldapws/protocol"
)

// Channel is a duplex channel of decoded LDAP messages, e.g. a
// transport.Stream.
type Channel interface {
	Send(ctx context.Context, msg *protocol.Message) error

	// Receive blocks until the next message arrives. It returns io.EOF once
	// the channel is closed.
	Receive(ctx context.Context) (*protocol.Message, error)

	Close() error
}

// FilterParser compiles textual search filters.
type FilterParser interface {
	Parse(text string) (*ber.Packet, error)
}

// Params are the connection parameters of a session. They are read-only once
// the session is created.
type Params struct {
	// Address is the transport target the channel was opened against
	Address string

	// Domain, KDCAddress and KDCProxyAddress are reserved for delegated
	// (Kerberos) authentication and are not used yet.
	Domain          string
	KDCAddress      string
	KDCProxyAddress string

	// VerifyMessageID makes the session check that every response carries the
	// ID of the outstanding request.
	VerifyMessageID bool
}

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

func WithFilterParser(parser FilterParser) Option {
	return func(s *Session) {
		s.filters = parser
	}
}

type Session struct {
	id     string
	params Params

	// mu is held for the full round trip of every operation
	mu      sync.Mutex
	ch      Channel
	filters FilterParser

	// nextID is the last message ID used; the first request carries 1.
	nextID int64

	broken error

	// closed is set by Close and Unbind without taking mu, so that Close can
	// interrupt a round trip that is blocked in Receive.
	closed    atomic.Bool
	closeOnce sync.Once

	log *zap.Logger
}

// New creates a session that takes ownership of ch.
func New(params Params, ch Channel, opts ...Option) (*Session, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}

	if params.Address == "" {
		return nil, ErrNoAddress
	}

	s := &Session{
		id:     uuid.Must(uuid.NewV7()).String(),
		params: params,
		ch:     ch,
		log:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With(zap.String("session", s.id), zap.String("address", params.Address))

	return s, nil
}

// ID is a unique identifier for this session, used to correlate logs.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Params() Params {
	return s.params
}

// LastMessageID returns the ID of the most recently sent request, or 0 if
// nothing has been sent.
func (s *Session) LastMessageID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextID
}

// Err returns the error that broke the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.broken
}

// Close closes the channel without unbinding. It does not wait for an
// operation in flight: that operation sees the channel close and fails,
// breaking the session. It is safe to call more than once.
func (s *Session) Close() error {
	return s.closeChannel()
}

// closeChannel closes the channel the first time it is called and returns nil
// afterwards.
func (s *Session) closeChannel() error {
	var err error

	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.ch.Close()
	})

	return err
}

// usable must be called with mu held.
func (s *Session) usable() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	if s.broken != nil {
		return fmt.Errorf("%w: %w", ErrSessionBroken, s.broken)
	}

	return nil
}

// fail records a fatal error and returns it. It must be called with mu held.
func (s *Session) fail(err error) error {
	if s.broken == nil {
		s.broken = err
		s.log.Warn("Session broken", zap.Error(err))
	}

	return err
}
