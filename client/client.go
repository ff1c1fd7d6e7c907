// Package client opens ready-to-use LDAP sessions: it dials the transport,
// wraps it in a session.Session and optionally binds.
package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ldapws/filter"
	"github.com/luma/ldapws/session"
	"github.com/luma/ldapws/transport"
)

const DefaultDialTimeout = 10 * time.Second

type Config struct {
	// Address is an ldap://, tcp://, ws:// or wss:// URL, or a bare host:port
	Address string

	// BindDN and Password are used for a simple bind right after connecting.
	// Both empty means no bind; the session stays anonymous.
	BindDN   string
	Password string

	VerifyMessageID bool

	DialTimeout time.Duration

	// Subprotocols are offered during the WebSocket handshake
	Subprotocols []string

	// Trace dumps every packet to stdout
	Trace bool

	Domain          string
	KDCAddress      string
	KDCProxyAddress string

	Log *zap.Logger
}

func (c *Config) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}

	return c.Log
}

// Connect opens a session to cfg.Address. If a bind DN or password is set
// the session is bound before it is returned, and a rejected bind is returned
// as a *protocol.ResultError.
func Connect(ctx context.Context, cfg Config) (*session.Session, error) {
	log := cfg.logger()

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := transport.Dial(dialCtx, cfg.Address, transport.Options{
		Trace:        cfg.Trace,
		Subprotocols: cfg.Subprotocols,
		Log:          log.Named("transport"),
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to %s: %w", cfg.Address, err)
	}

	s, err := session.New(session.Params{
		Address:         cfg.Address,
		Domain:          cfg.Domain,
		KDCAddress:      cfg.KDCAddress,
		KDCProxyAddress: cfg.KDCProxyAddress,
		VerifyMessageID: cfg.VerifyMessageID,
	}, stream,
		session.WithFilterParser(filter.Parser{}),
		session.WithLogger(log.Named("session")))
	if err != nil {
		return nil, multierr.Append(err, stream.Close())
	}

	if cfg.BindDN == "" && cfg.Password == "" {
		return s, nil
	}

	resp, err := s.Bind(ctx, cfg.BindDN, cfg.Password)
	if err == nil {
		err = resp.Err()
	}

	if err != nil {
		return nil, multierr.Append(fmt.Errorf("Failed to bind as %q: %w", cfg.BindDN, err), s.Close())
	}

	log.Debug("Bound", zap.String("session", s.ID()), zap.String("dn", cfg.BindDN))

	return s, nil
}
