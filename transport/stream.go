package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	"go.uber.org/zap"

	"github.com/luma/ldapws/protocol"
)

var ErrClosed = errors.New("Channel is closed")

type received struct {
	msg *protocol.Message
	err error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Stream is a channel of LDAP messages over one ordered byte stream, such as a
// TCP connection or a WebSocket adapted with websocket.NetConn.
//
// A single read loop decodes messages as they arrive and hands them to
// Receive one at a time; it never reads ahead of the consumer by more than
// one message.
type Stream struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	incoming chan received

	// stop is closed when Close is called
	stop       chan struct{}
	closeOnce  sync.Once
	closeErr   error
	loopWaiter sync.WaitGroup

	writeMu sync.Mutex

	readLimit int64

	log   *zap.Logger
	trace bool
}

// NewStream takes ownership of conn and starts reading from it.
func NewStream(conn io.ReadWriteCloser, options Options) *Stream {
	s := &Stream{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		incoming: make(chan received),
		stop:     make(chan struct{}),
		log:      options.logger(),
		trace:    options.Trace,

		readLimit: options.readLimit(),
	}

	s.loopWaiter.Add(1)
	go func() {
		defer s.loopWaiter.Done()
		s.readLoop()
	}()

	return s
}

// Send writes msg to the stream. If ctx has a deadline and the underlying
// connection supports it, the write is bounded by it.
func (s *Stream) Send(ctx context.Context, msg *protocol.Message) error {
	if !s.isRunning() {
		return ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	packet, err := msg.Packet()
	if err != nil {
		return err
	}

	if s.trace {
		ber.PrintPacket(packet)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if d, ok := s.conn.(writeDeadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			if err := d.SetWriteDeadline(deadline); err != nil {
				return err
			}
			defer d.SetWriteDeadline(time.Time{})
		}
	}

	_, err = s.conn.Write(packet.Bytes())
	return err
}

// Receive returns the next message. It returns io.EOF once the peer has
// closed the stream or Close has been called.
func (s *Stream) Receive(ctx context.Context) (*protocol.Message, error) {
	select {
	case r, ok := <-s.incoming:
		if !ok {
			return nil, io.EOF
		}
		return r.msg, r.err

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the connection and waits for the read loop to exit.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.closeErr = s.conn.Close()
		s.loopWaiter.Wait()
	})

	return s.closeErr
}

func (s *Stream) readLoop() {
	log := s.log.Named("readLoop")

	defer func() {
		close(s.incoming)
		log.Debug("Read loop exited")
	}()

	for {
		packet, err := s.readPacket()
		if err != nil {
			if !s.isRunning() {
				return
			}

			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Debug("Peer closed the stream", zap.Error(err))
				return
			}

			log.Warn("Failed to read message", zap.Error(err))
			s.deliver(received{err: err})
			return
		}

		if s.trace {
			ber.PrintPacket(packet)
		}

		msg, err := protocol.DecodeMessage(packet)
		if err != nil {
			// Framing is intact but we can no longer trust what follows
			log.Warn("Failed to decode message", zap.Error(err))
			s.deliver(received{err: err})
			return
		}

		if !s.deliver(received{msg: msg}) {
			return
		}
	}
}

// readPacket reads the next packet, refusing oversized ones before their
// content is allocated.
func (s *Stream) readPacket() (*ber.Packet, error) {
	if err := protocol.CheckLength(s.reader, s.readLimit); err != nil {
		return nil, err
	}

	return ber.ReadPacket(s.reader)
}

func (s *Stream) deliver(r received) bool {
	select {
	case s.incoming <- r:
		return true

	case <-s.stop:
		return false
	}
}

// isRunning returns true if Close has not been called
func (s *Stream) isRunning() bool {
	select {
	case <-s.stop:
		return false

	default:
		return true
	}
}
