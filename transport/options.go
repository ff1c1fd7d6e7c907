package transport

import (
	"go.uber.org/zap"
)

const (
	DefaultLDAPPort = "389"

	// DefaultReadLimit bounds a single LDAP message and a single WebSocket
	// message. Search entries with large binary attributes (photos,
	// certificates) can be big.
	DefaultReadLimit = 16 << 20
)

type Options struct {
	// Trace will dump packets to stdout. This is only useful in local debugging
	Trace bool

	// Subprotocols are offered during the WebSocket handshake
	Subprotocols []string

	// ReadLimit is the largest LDAP message, and the largest WebSocket
	// message, accepted. Defaults to DefaultReadLimit.
	ReadLimit int64

	Log *zap.Logger
}

func (o Options) readLimit() int64 {
	if o.ReadLimit <= 0 {
		return DefaultReadLimit
	}

	return o.ReadLimit
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}

	return o.Log
}
