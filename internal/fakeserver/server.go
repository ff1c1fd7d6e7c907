// Package fakeserver is a small LDAP directory server speaking real BER over
// TCP, backed by a storage.Store. It exists to exercise clients end to end in
// tests and local development; it is not a directory server.
package fakeserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ldapws/protocol"
	"github.com/luma/ldapws/storage"
)

const (
	writeQueueSize = 127

	// maxRequestSize bounds a single request read from a client
	maxRequestSize = 1 << 20
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. 0 picks a free port, see Server.Addr.
	Port int

	// Reuseport controls setting SO_REUSEPORT
	Reuseport bool

	// Credentials maps bind DNs to passwords. Entries with a userPassword
	// attribute can bind too.
	Credentials map[string]string

	// Referrals are returned as a SearchResultReference at the end of every
	// search that is not base scoped.
	Referrals []string

	// TruncateSearches drops the connection after the last entry of every
	// search instead of sending SearchResultDone.
	TruncateSearches bool

	// ShiftMessageIDs is added to the message ID of every response.
	ShiftMessageIDs int64

	Store storage.Store

	Log *zap.Logger
}

type Server struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr     string
	listener net.Listener

	reuseport   bool
	credentials map[string]string
	referrals   []string

	truncateSearches bool
	shiftIDs         int64

	mu          sync.Mutex
	activeConns map[*conn]struct{}

	store storage.Store

	log *zap.Logger
}

func New(options Options) *Server {
	credentials := make(map[string]string, len(options.Credentials))
	for dn, password := range options.Credentials {
		credentials[storage.NormalizeDN(dn)] = password
	}

	store := options.Store
	if store == nil {
		store = storage.NewInmemoryStore()
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		addr:        net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:   options.Reuseport,
		credentials: credentials,
		referrals:   options.Referrals,
		activeConns: make(map[*conn]struct{}),
		store:       store,
		log:         log,

		truncateSearches: options.TruncateSearches,
		shiftIDs:         options.ShiftMessageIDs,
	}
}

// Start listens and begins accepting connections in the background. It
// returns once the listener is bound.
func (s *Server) Start(parentCtx context.Context) error {
	var (
		listener net.Listener
		err      error
	)

	if s.reuseport {
		listener, err = reuseport.Listen("tcp", s.addr)
	} else {
		listener, err = net.Listen("tcp", s.addr)
	}

	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.listener = listener

	s.log.Info("Listening", zap.String("addr", listener.Addr().String()))

	updates := s.store.ListenToUpdates()

	s.stopWaiter.Add(2)

	go func() {
		defer s.stopWaiter.Done()
		s.acceptLoop(ctx)
	}()

	go func() {
		defer s.stopWaiter.Done()
		s.logUpdates(ctx, updates)
	}()

	return nil
}

// Addr is the address the server is listening on.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}

	return s.listener.Addr().String()
}

func (s *Server) Store() storage.Store {
	return s.store
}

// Close immediately closes the listener and all active connections.
func (s *Server) Close() error {
	if s.cancel == nil {
		return nil
	}

	s.log.Info("Stopping fake directory server")
	s.cancel()

	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	s.mu.Lock()
	for c := range s.activeConns {
		err = multierr.Append(err, c.Close())
		delete(s.activeConns, c)
	}
	s.mu.Unlock()

	s.stopWaiter.Wait()
	s.log.Info("Fake directory server stopped")

	return err
}

func (s *Server) acceptLoop(ctx context.Context) {
	var loopWaiter sync.WaitGroup
	defer loopWaiter.Wait()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				return
			}

			s.log.Error("Failed to accept", zap.Error(err))
			return
		}

		c := newConn(ctx, nc, s, s.log.Named("conn").With(zap.String("remote", nc.RemoteAddr().String())))
		s.addConn(c)

		loopWaiter.Add(1)
		go func() {
			defer loopWaiter.Done()
			defer s.removeConn(c)
			c.Start()
		}()
	}
}

func (s *Server) logUpdates(ctx context.Context, updates <-chan *storage.Update) {
	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-updates:
			if !ok {
				return
			}

			s.log.Debug("Directory updated",
				zap.ByteString("dn", update.Key),
				zap.Bool("removed", update.Value == nil))
		}
	}
}

func (s *Server) addConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeConns[c] = struct{}{}
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.activeConns, c)
}

type conn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	conn   net.Conn
	server *Server

	writeQueue chan []byte

	log *zap.Logger
}

func newConn(parentCtx context.Context, nc net.Conn, server *Server, log *zap.Logger) *conn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &conn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       nc,
		server:     server,
		writeQueue: make(chan []byte, writeQueueSize),
		log:        log,
	}
}

func (c *conn) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})

	return err
}

// Start runs the read and write loops and returns once both have exited.
func (c *conn) Start() {
	c.loopWaiter.Add(2)

	go func() {
		defer c.loopWaiter.Done()
		c.readLoop()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.writeLoop()
	}()

	c.loopWaiter.Wait()
	c.Close()
}

func (c *conn) readLoop() {
	log := c.log.Named("readLoop")
	r := bufio.NewReader(c.conn)

	// Stop the write loop once there is nothing left to answer
	defer c.cancel()

	for {
		msg, err := protocol.ReadMessageLimit(r, maxRequestSize)
		if err != nil {
			if c.ctx.Err() == nil {
				log.Debug("Client went away", zap.Error(err))
			}
			return
		}

		log.Debug("Request",
			zap.Int64("messageID", msg.ID),
			zap.Stringer("op", msg.Op.Kind()))

		if !c.server.handle(c.ctx, c, msg) {
			return
		}
	}
}

func (c *conn) writeLoop() {
	log := c.log.Named("writeLoop")

	for {
		select {
		case <-c.ctx.Done():
			c.drain(log)
			return

		case data := <-c.writeQueue:
			if _, err := c.conn.Write(data); err != nil {
				log.Warn("Failed to write response", zap.Error(err))
				return
			}
		}
	}
}

// drain flushes responses queued before the read loop stopped, e.g. the
// answers that precede a client's unbind.
func (c *conn) drain(log *zap.Logger) {
	for {
		select {
		case data := <-c.writeQueue:
			if _, err := c.conn.Write(data); err != nil {
				return
			}

		default:
			return
		}
	}
}

// send queues a response for the write loop.
func (c *conn) send(id int64, op protocol.Op) {
	packet, err := (&protocol.Message{ID: id, Op: op}).Packet()
	if err != nil {
		c.log.Error("Failed to encode response", zap.Error(err))
		return
	}

	select {
	case c.writeQueue <- packet.Bytes():
	case <-c.ctx.Done():
	}
}
