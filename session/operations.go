package session

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ldapws/protocol"
)

// Bind performs a simple bind. A rejected bind (e.g. invalid credentials) is
// not an error: the response carries the result code, see Result.Err.
func (s *Session) Bind(ctx context.Context, dn, password string) (*protocol.BindResponse, error) {
	return roundTrip[*protocol.BindResponse](ctx, s, &protocol.BindRequest{
		Version:  protocol.Version3,
		DN:       dn,
		Password: password,
	})
}

// Add creates an entry. Use protocol.AttributesFromMap to build attrs from a
// map.
func (s *Session) Add(ctx context.Context, dn string, attrs []protocol.Attribute) (*protocol.AddResponse, error) {
	return roundTrip[*protocol.AddResponse](ctx, s, &protocol.AddRequest{
		DN:         dn,
		Attributes: attrs,
	})
}

func (s *Session) Delete(ctx context.Context, dn string) (*protocol.DeleteResponse, error) {
	return roundTrip[*protocol.DeleteResponse](ctx, s, &protocol.DeleteRequest{DN: dn})
}

// RenameEntry sends a modify DN request. newSuperior moves the entry when not
// nil.
func (s *Session) RenameEntry(ctx context.Context, dn, newRDN string, deleteOldRDN bool, newSuperior *string) (*protocol.ModifyDNResponse, error) {
	return roundTrip[*protocol.ModifyDNResponse](ctx, s, &protocol.ModifyDNRequest{
		DN:           dn,
		NewRDN:       newRDN,
		DeleteOldRDN: deleteOldRDN,
		NewSuperior:  newSuperior,
	})
}

// Unbind tells the server the session is over and closes the channel. No
// response is expected. The session is closed afterwards even if the send
// failed.
func (s *Session) Unbind(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	var err error
	if s.broken == nil {
		_, err = s.send(ctx, &protocol.UnbindRequest{})
	}

	s.log.Debug("Unbound", zap.Error(err))

	return multierr.Append(err, s.closeChannel())
}

// Abandon would cancel an outstanding request. Only one request is ever
// outstanding and it holds the session until it completes, so there is
// nothing to abandon from the outside yet.
func (s *Session) Abandon(ctx context.Context, messageID int64) error {
	return ErrUnsupported
}
