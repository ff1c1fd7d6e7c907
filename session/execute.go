package session

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/luma/ldapws/protocol"
)

// Execute sends one request and returns the next message received, whatever
// its kind. Callers are expected to check the response kind themselves; the
// typed operations (Bind, Add, ...) do that.
//
// Execute never retries and has no timeout of its own. If ctx ends while a
// response is outstanding the session is broken, since the late response
// could still arrive and be taken as the answer to the next request.
func (s *Session) Execute(ctx context.Context, req protocol.Request) (*protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.execute(ctx, req)
}

// execute must be called with mu held.
func (s *Session) execute(ctx context.Context, req protocol.Request) (*protocol.Message, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	id, err := s.send(ctx, req)
	if err != nil {
		return nil, err
	}

	msg, err := s.ch.Receive(ctx)
	switch {
	case errors.Is(err, io.EOF):
		return nil, s.fail(&ProtocolError{Kind: NoResponse, MessageID: id})

	case err != nil:
		return nil, s.fail(&TransportError{Op: "receive", Err: err})
	}

	if err := s.checkID(id, msg); err != nil {
		return nil, err
	}

	s.log.Debug("Received response",
		zap.Int64("messageID", msg.ID),
		zap.Stringer("op", msg.Op.Kind()))

	return msg, nil
}

// send allocates the next message ID and sends req with it. It must be called
// with mu held.
func (s *Session) send(ctx context.Context, req protocol.Request) (int64, error) {
	s.nextID++
	id := s.nextID

	msg := &protocol.Message{ID: id, Op: req}

	s.log.Debug("Sending request",
		zap.Int64("messageID", id),
		zap.Stringer("op", req.Kind()))

	if err := s.ch.Send(ctx, msg); err != nil {
		return id, s.fail(&TransportError{Op: "send", Err: err})
	}

	return id, nil
}

// checkID enforces Params.VerifyMessageID. It must be called with mu held.
func (s *Session) checkID(id int64, msg *protocol.Message) error {
	if !s.params.VerifyMessageID || msg.ID == id {
		return nil
	}

	return s.fail(&ProtocolError{Kind: UnexpectedMessage, MessageID: id, Got: msg})
}

// roundTrip executes req and requires the response op to be a T.
func roundTrip[T protocol.Op](ctx context.Context, s *Session, req protocol.Request) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T

	msg, err := s.execute(ctx, req)
	if err != nil {
		return zero, err
	}

	resp, ok := msg.Op.(T)
	if !ok {
		return zero, s.fail(&ProtocolError{Kind: UnexpectedMessage, MessageID: s.nextID, Got: msg})
	}

	return resp, nil
}
