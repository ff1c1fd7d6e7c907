package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var ErrUnsupportedScheme = errors.New("Unsupported address scheme")

// Dial opens a stream to address, which is one of
//
//   ldap://host[:port]  plain TCP, port 389 by default
//   tcp://host:port     plain TCP
//   ws://... wss://...  a WebSocket tunnel carrying the LDAP byte stream
//   host:port           plain TCP
func Dial(ctx context.Context, address string, options Options) (*Stream, error) {
	if !strings.Contains(address, "://") {
		return DialTCP(ctx, address, options)
	}

	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "ldap", "tcp":
		host := u.Host
		if u.Port() == "" {
			host = net.JoinHostPort(u.Hostname(), DefaultLDAPPort)
		}
		return DialTCP(ctx, host, options)

	case "ws", "wss":
		return DialWebSocket(ctx, address, options)

	default:
		return nil, fmt.Errorf("%q: %w", u.Scheme, ErrUnsupportedScheme)
	}
}

func DialTCP(ctx context.Context, addr string, options Options) (*Stream, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	options.logger().Debug("Connected", zap.String("network", "tcp"), zap.String("addr", addr))

	return NewStream(conn, options), nil
}

// DialWebSocket connects to a WebSocket endpoint that forwards binary
// messages to and from an LDAP server, e.g. a gateway's TCP forwarding
// route. Message boundaries are ignored: the tunnel is read as one byte
// stream.
func DialWebSocket(ctx context.Context, endpoint string, options Options) (*Stream, error) {
	ws, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		Subprotocols: options.Subprotocols,
	})
	if err != nil {
		return nil, err
	}

	ws.SetReadLimit(options.readLimit())

	options.logger().Debug("Connected",
		zap.String("network", "websocket"),
		zap.String("subprotocol", ws.Subprotocol()))

	// The NetConn context governs the lifetime of the connection, not the
	// dial, so it must not be ctx.
	conn := websocket.NetConn(context.Background(), ws, websocket.MessageBinary)

	return NewStream(conn, options), nil
}
