package transport_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/coder/websocket"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ldapws/internal/fakeserver"
	"github.com/luma/ldapws/protocol"
	"github.com/luma/ldapws/transport"
)

// tunnel serves a WebSocket endpoint that forwards binary messages to and
// from a TCP address, the way an LDAP gateway does.
func tunnel(target string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		ctx := r.Context()
		conn := websocket.NetConn(ctx, ws, websocket.MessageBinary)
		defer conn.Close()

		upstream, err := net.Dial("tcp", target)
		if err != nil {
			return
		}
		defer upstream.Close()

		go func() {
			io.Copy(upstream, conn)
			upstream.Close()
		}()

		io.Copy(conn, upstream)
	}))
}

var _ = Describe("transport", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Stream", func() {
		var (
			client *transport.Stream
			peer   net.Conn
		)

		BeforeEach(func() {
			var conn net.Conn
			conn, peer = net.Pipe()
			client = transport.NewStream(conn, transport.Options{})
		})

		AfterEach(func() {
			peer.Close()
			Expect(client.Close()).To(Succeed())
		})

		It("sends and receives messages", func() {
			go func() {
				defer GinkgoRecover()

				req, err := protocol.ReadMessage(bufio.NewReader(peer))
				Expect(err).To(Succeed())
				Expect(req.Op).To(BeAssignableToTypeOf(&protocol.BindRequest{}))

				Expect(protocol.WriteMessage(peer, &protocol.Message{ID: req.ID, Op: &protocol.BindResponse{}})).To(Succeed())
			}()

			Expect(client.Send(ctx, &protocol.Message{ID: 1, Op: &protocol.BindRequest{}})).To(Succeed())

			msg, err := client.Receive(ctx)
			Expect(err).To(Succeed())
			Expect(msg.ID).To(Equal(int64(1)))
			Expect(msg.Op).To(BeAssignableToTypeOf(&protocol.BindResponse{}))
		})

		It("delivers several messages written at once in order", func() {
			go func() {
				defer GinkgoRecover()

				var data []byte
				for i := 0; i < 3; i++ {
					packet, err := (&protocol.Message{ID: 2, Op: &protocol.SearchResultEntry{DN: "cn=x"}}).Packet()
					Expect(err).To(Succeed())
					data = append(data, packet.Bytes()...)
				}

				packet, err := (&protocol.Message{ID: 2, Op: &protocol.SearchResultDone{}}).Packet()
				Expect(err).To(Succeed())
				data = append(data, packet.Bytes()...)

				_, err = peer.Write(data)
				Expect(err).To(Succeed())
			}()

			kinds := make([]protocol.OpKind, 0, 4)
			for i := 0; i < 4; i++ {
				msg, err := client.Receive(ctx)
				Expect(err).To(Succeed())
				kinds = append(kinds, msg.Op.Kind())
			}

			Expect(kinds).To(Equal([]protocol.OpKind{
				protocol.KindSearchResultEntry,
				protocol.KindSearchResultEntry,
				protocol.KindSearchResultEntry,
				protocol.KindSearchResultDone,
			}))
		})

		It("returns io.EOF once the peer hangs up", func() {
			peer.Close()

			_, err := client.Receive(ctx)
			Expect(err).To(Equal(io.EOF))
		})

		It("returns io.EOF after Close", func() {
			Expect(client.Close()).To(Succeed())

			_, err := client.Receive(ctx)
			Expect(err).To(Equal(io.EOF))

			err = client.Send(ctx, &protocol.Message{ID: 1, Op: &protocol.UnbindRequest{}})
			Expect(err).To(MatchError(transport.ErrClosed))
		})

		It("delivers decode errors", func() {
			go func() {
				// A SEQUENCE holding only an OCTET STRING
				peer.Write([]byte{0x30, 0x03, 0x04, 0x01, 'x'})
			}()

			_, err := client.Receive(ctx)
			Expect(err).To(MatchError(protocol.ErrMalformedMessage))
		})

		It("refuses messages announcing more than the read limit", func() {
			go func() {
				peer.Write([]byte{0x30, 0x84, 0x7f, 0xff, 0xff, 0xff})
			}()

			_, err := client.Receive(ctx)
			Expect(err).To(MatchError(protocol.ErrMessageTooLarge))

			_, err = client.Receive(ctx)
			Expect(err).To(Equal(io.EOF))
		})

		It("applies a custom read limit", func() {
			conn, limitedPeer := net.Pipe()
			defer limitedPeer.Close()

			limited := transport.NewStream(conn, transport.Options{ReadLimit: 16})
			defer limited.Close()

			go func() {
				protocol.WriteMessage(limitedPeer, &protocol.Message{
					ID: 2,
					Op: &protocol.SearchResultEntry{DN: "cn=alice,ou=people,dc=example,dc=com"},
				})
			}()

			_, err := limited.Receive(ctx)
			Expect(err).To(MatchError(protocol.ErrMessageTooLarge))
		})

		It("stops waiting when the context ends", func() {
			ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			_, err := client.Receive(ctx)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("Dial()", func() {
		var server *fakeserver.Server

		BeforeEach(func() {
			server = fakeserver.New(fakeserver.Options{Host: "127.0.0.1"})
			Expect(server.Start(ctx)).To(Succeed())
		})

		AfterEach(func() {
			Expect(server.Close()).To(Succeed())
		})

		bind := func(stream *transport.Stream) {
			Expect(stream.Send(ctx, &protocol.Message{ID: 1, Op: &protocol.BindRequest{Version: 3}})).To(Succeed())

			msg, err := stream.Receive(ctx)
			Expect(err).To(Succeed())
			Expect(msg.ID).To(Equal(int64(1)))
			Expect(msg.Op.(*protocol.BindResponse).Code).To(Equal(protocol.ResultSuccess))
		}

		It("connects to host:port", func() {
			stream, err := transport.Dial(ctx, server.Addr(), transport.Options{})
			Expect(err).To(Succeed())
			defer stream.Close()

			bind(stream)
		})

		It("connects to ldap:// URLs", func() {
			stream, err := transport.Dial(ctx, "ldap://"+server.Addr(), transport.Options{})
			Expect(err).To(Succeed())
			defer stream.Close()

			bind(stream)
		})

		It("connects through a WebSocket tunnel", func() {
			ws := tunnel(server.Addr())
			defer ws.Close()

			endpoint := "ws" + strings.TrimPrefix(ws.URL, "http")

			stream, err := transport.Dial(ctx, endpoint, transport.Options{})
			Expect(err).To(Succeed())
			defer stream.Close()

			bind(stream)
		})

		It("rejects unknown schemes", func() {
			_, err := transport.Dial(ctx, "ldapi:///var/run/slapd.sock", transport.Options{})
			Expect(err).To(MatchError(transport.ErrUnsupportedScheme))
		})
	})
})
