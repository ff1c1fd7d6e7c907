package protocol_test

import (
	"bufio"
	"bytes"

	ber "github.com/go-asn1-ber/asn1-ber"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ldapws/protocol"
)

// roundTrip writes msg and reads it back.
func roundTrip(msg *protocol.Message) *protocol.Message {
	var buf bytes.Buffer
	Expect(protocol.WriteMessage(&buf, msg)).To(Succeed())

	decoded, err := protocol.ReadMessage(&buf)
	Expect(err).To(Succeed())
	Expect(buf.Len()).To(Equal(0))

	return decoded
}

var _ = Describe("protocol", func() {
	Describe("WriteMessage()", func() {
		It("encodes an anonymous bind as RFC 4511 BER", func() {
			var buf bytes.Buffer

			err := protocol.WriteMessage(&buf, &protocol.Message{
				ID: 1,
				Op: &protocol.BindRequest{Version: protocol.Version3},
			})
			Expect(err).To(Succeed())

			Expect(buf.Bytes()).To(Equal([]byte{
				0x30, 0x0c, // LDAPMessage
				0x02, 0x01, 0x01, // messageID 1
				0x60, 0x07, // [APPLICATION 0] BindRequest
				0x02, 0x01, 0x03, // version 3
				0x04, 0x00, // name ""
				0x80, 0x00, // simple ""
			}))
		})

		It("encodes an unbind as an empty [APPLICATION 2]", func() {
			var buf bytes.Buffer

			err := protocol.WriteMessage(&buf, &protocol.Message{ID: 7, Op: &protocol.UnbindRequest{}})
			Expect(err).To(Succeed())
			Expect(buf.Bytes()).To(Equal([]byte{0x30, 0x05, 0x02, 0x01, 0x07, 0x42, 0x00}))
		})

		It("refuses messages without an op", func() {
			var buf bytes.Buffer
			Expect(protocol.WriteMessage(&buf, &protocol.Message{ID: 1})).To(MatchError(protocol.ErrMissingOp))
			Expect(buf.Len()).To(Equal(0))
		})
	})

	Describe("ReadMessage()", func() {
		It("decodes requests", func() {
			superior := "ou=archive,dc=example,dc=com"

			requests := []protocol.Request{
				&protocol.BindRequest{Version: 3, DN: "cn=admin,dc=example,dc=com", Password: "secret"},
				&protocol.AddRequest{
					DN:         "cn=alice,dc=example,dc=com",
					Attributes: []protocol.Attribute{{Name: "cn", Values: []string{"alice"}}},
				},
				&protocol.DeleteRequest{DN: "cn=alice,dc=example,dc=com"},
				&protocol.ModifyDNRequest{
					DN:           "cn=alice,dc=example,dc=com",
					NewRDN:       "cn=bob",
					DeleteOldRDN: true,
					NewSuperior:  &superior,
				},
				&protocol.AbandonRequest{MessageID: 3},
				&protocol.UnbindRequest{},
			}

			for i, req := range requests {
				msg := roundTrip(&protocol.Message{ID: int64(i + 1), Op: req})
				Expect(msg.ID).To(Equal(int64(i + 1)))
				Expect(msg.Op).To(Equal(req))
			}
		})

		It("decodes a search request with its filter", func() {
			msg := roundTrip(&protocol.Message{ID: 2, Op: &protocol.SearchRequest{
				BaseDN:     "dc=example,dc=com",
				Scope:      protocol.ScopeWholeSubtree,
				SizeLimit:  100,
				TimeLimit:  10,
				Attributes: []string{"cn", "mail"},
			}})

			req, ok := msg.Op.(*protocol.SearchRequest)
			Expect(ok).To(BeTrue())
			Expect(req.BaseDN).To(Equal("dc=example,dc=com"))
			Expect(req.Scope).To(Equal(protocol.ScopeWholeSubtree))
			Expect(req.SizeLimit).To(Equal(100))
			Expect(req.TimeLimit).To(Equal(10))
			Expect(req.Attributes).To(Equal([]string{"cn", "mail"}))

			// A missing filter is sent as (objectClass=*)
			Expect(req.Filter.ClassType).To(Equal(ber.ClassContext))
			Expect(req.Filter.Tag).To(Equal(ber.Tag(7)))
			Expect(req.Filter.Data.String()).To(Equal("objectClass"))
		})

		It("decodes search results", func() {
			entry := roundTrip(&protocol.Message{ID: 2, Op: &protocol.SearchResultEntry{
				DN: "cn=alice,dc=example,dc=com",
				Attributes: []protocol.Attribute{
					{Name: "cn", Values: []string{"alice"}},
					{Name: "mail", Values: []string{"alice@example.com", "a@example.com"}},
				},
			}})

			Expect(entry.Op.Kind()).To(Equal(protocol.KindSearchResultEntry))
			Expect(entry.Op.(*protocol.SearchResultEntry).GetAttributeValues("mail")).To(
				Equal([]string{"alice@example.com", "a@example.com"}))

			ref := roundTrip(&protocol.Message{ID: 2, Op: &protocol.SearchResultReference{
				URIs: []string{"ldap://other.example.com/dc=other,dc=example,dc=com"},
			}})
			Expect(ref.Op).To(Equal(&protocol.SearchResultReference{
				URIs: []string{"ldap://other.example.com/dc=other,dc=example,dc=com"},
			}))

			done := roundTrip(&protocol.Message{ID: 2, Op: &protocol.SearchResultDone{
				Result: protocol.Result{
					Code:              protocol.ResultReferral,
					DiagnosticMessage: "go elsewhere",
					Referral:          []string{"ldap://other.example.com"},
				},
			}})
			Expect(done.Op).To(Equal(&protocol.SearchResultDone{
				Result: protocol.Result{
					Code:              protocol.ResultReferral,
					DiagnosticMessage: "go elsewhere",
					Referral:          []string{"ldap://other.example.com"},
				},
			}))
		})

		It("decodes controls", func() {
			msg := roundTrip(&protocol.Message{
				ID: 5,
				Op: &protocol.AddResponse{},
				Controls: []protocol.Control{
					{Type: "1.2.840.113556.1.4.319", Criticality: true, Value: []byte{0x30, 0x00}},
				},
			})

			Expect(msg.Controls).To(Equal([]protocol.Control{
				{Type: "1.2.840.113556.1.4.319", Criticality: true, Value: []byte{0x30, 0x00}},
			}))
		})

		It("keeps ops it does not model", func() {
			// ExtendedResponse: notice of disconnection
			op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(protocol.KindExtendedResponse), nil, "Extended Response")
			op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, 52, "Result Code"))
			op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "Matched DN"))
			op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "bye", "Diagnostic Message"))

			envelope := ber.NewSequence("LDAP Message")
			envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, 0, "Message ID"))
			envelope.AppendChild(op)

			msg, err := protocol.ReadMessage(bytes.NewReader(envelope.Bytes()))
			Expect(err).To(Succeed())
			Expect(msg.ID).To(Equal(int64(0)))
			Expect(msg.Op).To(BeAssignableToTypeOf(&protocol.UnknownOp{}))
			Expect(msg.Op.Kind()).To(Equal(protocol.KindExtendedResponse))
			Expect(msg.Op.Kind().String()).To(Equal("ExtendedResponse"))
		})

		It("rejects envelopes that are not a SEQUENCE", func() {
			packet := ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "nope", "")

			_, err := protocol.ReadMessage(bytes.NewReader(packet.Bytes()))
			Expect(err).To(MatchError(protocol.ErrMalformedMessage))
		})

		It("rejects negative message IDs", func() {
			envelope := ber.NewSequence("LDAP Message")
			envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, -1, "Message ID"))
			envelope.AppendChild(ber.Encode(ber.ClassApplication, ber.TypePrimitive, ber.Tag(protocol.KindUnbindRequest), nil, "Unbind Request"))

			_, err := protocol.ReadMessage(bytes.NewReader(envelope.Bytes()))
			Expect(err).To(MatchError(protocol.ErrInvalidMessageID))
		})

		It("rejects ops that are missing elements", func() {
			op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(protocol.KindBindResponse), nil, "Bind Response")
			op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, 0, "Result Code"))

			envelope := ber.NewSequence("LDAP Message")
			envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, 1, "Message ID"))
			envelope.AppendChild(op)

			_, err := protocol.ReadMessage(bytes.NewReader(envelope.Bytes()))
			Expect(err).To(MatchError(protocol.ErrMalformedMessage))
		})
	})

	Describe("decoding results", func() {
		It("rejects result codes outside the ENUMERATED range", func() {
			op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(protocol.KindBindResponse), nil, "Bind Response")
			op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, 70000, "Result Code"))
			op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "Matched DN"))
			op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "Diagnostic Message"))

			envelope := ber.NewSequence("LDAP Message")
			envelope.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, 1, "Message ID"))
			envelope.AppendChild(op)

			_, err := protocol.ReadMessage(bytes.NewReader(envelope.Bytes()))
			Expect(err).To(MatchError(protocol.ErrMalformedMessage))
		})
	})

	Describe("ReadMessageLimit()", func() {
		// A SEQUENCE header announcing 0x7fffffff bytes of content
		hugeHeader := []byte{0x30, 0x84, 0x7f, 0xff, 0xff, 0xff}

		It("refuses messages announcing more than the limit", func() {
			_, err := protocol.ReadMessageLimit(bufio.NewReader(bytes.NewReader(hugeHeader)), 1<<20)
			Expect(err).To(MatchError(protocol.ErrMessageTooLarge))
		})

		It("reads messages within the limit", func() {
			var buf bytes.Buffer
			Expect(protocol.WriteMessage(&buf, &protocol.Message{ID: 3, Op: &protocol.DeleteRequest{DN: "cn=alice,dc=example,dc=com"}})).To(Succeed())

			msg, err := protocol.ReadMessageLimit(bufio.NewReader(&buf), 1<<20)
			Expect(err).To(Succeed())
			Expect(msg.ID).To(Equal(int64(3)))
			Expect(msg.Op).To(Equal(&protocol.DeleteRequest{DN: "cn=alice,dc=example,dc=com"}))
		})

		It("peeks at the length without consuming the header", func() {
			r := bufio.NewReader(bytes.NewReader(hugeHeader))

			length, err := protocol.PeekLength(r)
			Expect(err).To(Succeed())
			Expect(length).To(Equal(int64(0x7fffffff)))
			Expect(r.Buffered()).To(Equal(len(hugeHeader)))
		})

		It("reads short form lengths", func() {
			length, err := protocol.PeekLength(bufio.NewReader(bytes.NewReader([]byte{0x30, 0x05})))
			Expect(err).To(Succeed())
			Expect(length).To(Equal(int64(5)))
		})
	})

	Describe("Result", func() {
		It("is not an error on success", func() {
			Expect(protocol.Result{Code: protocol.ResultSuccess}.Err()).To(BeNil())
		})

		It("is a *ResultError otherwise", func() {
			err := protocol.Result{Code: protocol.ResultInvalidCredentials, DiagnosticMessage: "bad password"}.Err()

			var resultErr *protocol.ResultError
			Expect(err).To(BeAssignableToTypeOf(resultErr))
			Expect(err.Error()).To(ContainSubstring("Invalid Credentials"))
			Expect(err.Error()).To(ContainSubstring("bad password"))
		})

		It("names unknown result codes", func() {
			Expect(protocol.ResultCode(4242).String()).To(Equal("Result Code 4242"))
		})
	})

	Describe("AttributesFromMap()", func() {
		It("orders attributes by name", func() {
			attrs := protocol.AttributesFromMap(map[string][]string{
				"sn":          {"Smith"},
				"cn":          {"alice"},
				"objectClass": {"top", "person"},
			})

			Expect(attrs).To(Equal([]protocol.Attribute{
				{Name: "cn", Values: []string{"alice"}},
				{Name: "objectClass", Values: []string{"top", "person"}},
				{Name: "sn", Values: []string{"Smith"}},
			}))

			Expect(protocol.AttributeMap(attrs)).To(HaveKeyWithValue("objectClass", []string{"top", "person"}))
		})
	})
})
