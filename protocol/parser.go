package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	ber "github.com/go-asn1-ber/asn1-ber"
)

var (
	ErrMalformedMessage = errors.New("Message is malformed")
	ErrInvalidMessageID = errors.New("Message ID is out of range")
	ErrMessageTooLarge  = errors.New("Message exceeds the size limit")
)

// ReadMessage reads exactly one BER-encoded LDAPMessage from r.
//
// The message length is only bounded by ber.MaxPacketLengthBytes; use
// ReadMessageLimit when reading from untrusted peers.
func ReadMessage(r io.Reader) (*Message, error) {
	p, err := ber.ReadPacket(r)
	if err != nil {
		return nil, err
	}

	return DecodeMessage(p)
}

// ReadMessageLimit reads one message like ReadMessage, but fails with
// ErrMessageTooLarge without reading or allocating the content if its header
// announces more than limit bytes.
func ReadMessageLimit(r *bufio.Reader, limit int64) (*Message, error) {
	if err := CheckLength(r, limit); err != nil {
		return nil, err
	}

	return ReadMessage(r)
}

// CheckLength peeks at the BER header of the next packet in r and fails with
// ErrMessageTooLarge if its content is longer than limit. Nothing is
// consumed.
func CheckLength(r *bufio.Reader, limit int64) error {
	length, err := PeekLength(r)
	if err != nil {
		return err
	}

	if length > limit {
		return fmt.Errorf("%d bytes announced, limit is %d: %w", length, limit, ErrMessageTooLarge)
	}

	return nil
}

// PeekLength returns the content length announced by the BER header of the
// next packet in r without consuming anything. The indefinite form is
// reported as 0.
func PeekLength(r *bufio.Reader) (int64, error) {
	n := 1
	b, err := r.Peek(n)
	if err != nil {
		return 0, err
	}

	// High tag numbers continue while bit 8 is set
	if b[0]&0x1f == 0x1f {
		for {
			n++
			if b, err = r.Peek(n); err != nil {
				return 0, err
			}
			if b[n-1]&0x80 == 0 {
				break
			}
			if n > 8 {
				return 0, fmt.Errorf("identifier too long: %w", ErrMalformedMessage)
			}
		}
	}

	n++
	if b, err = r.Peek(n); err != nil {
		return 0, err
	}

	first := b[n-1]
	switch {
	case first < 0x80:
		return int64(first), nil
	case first == 0x80:
		return 0, nil
	}

	count := int(first & 0x7f)
	if count > 8 {
		return 0, fmt.Errorf("length of %d bytes: %w", count, ErrMalformedMessage)
	}

	if b, err = r.Peek(n + count); err != nil {
		return 0, err
	}

	var length uint64
	for _, c := range b[n:] {
		length = length<<8 | uint64(c)
	}

	if length > math.MaxInt64 {
		return math.MaxInt64, nil
	}

	return int64(length), nil
}

// DecodeMessage decodes an LDAPMessage envelope. Operations this package does
// not model are returned as *UnknownOp.
func DecodeMessage(p *ber.Packet) (*Message, error) {
	if p.ClassType != ber.ClassUniversal || p.TagType != ber.TypeConstructed || p.Tag != ber.TagSequence {
		return nil, fmt.Errorf("LDAPMessage is not a SEQUENCE: %w", ErrMalformedMessage)
	}

	if len(p.Children) < 2 {
		return nil, fmt.Errorf("LDAPMessage has %d elements: %w", len(p.Children), ErrMalformedMessage)
	}

	id, err := readInt(p.Children[0])
	if err != nil {
		return nil, fmt.Errorf("Failed to read message ID: %w", err)
	}

	if id < 0 || id > MaxMessageID {
		return nil, fmt.Errorf("Message ID %d: %w", id, ErrInvalidMessageID)
	}

	op, err := decodeOp(p.Children[1])
	if err != nil {
		return nil, err
	}

	msg := &Message{ID: id, Op: op}

	if len(p.Children) > 2 {
		controls := p.Children[2]
		if controls.ClassType == ber.ClassContext && controls.Tag == 0 {
			msg.Controls, err = decodeControls(controls)
			if err != nil {
				return nil, err
			}
		}
	}

	return msg, nil
}

func decodeOp(p *ber.Packet) (Op, error) {
	if p.ClassType != ber.ClassApplication {
		return nil, fmt.Errorf("protocolOp is not APPLICATION tagged: %w", ErrMalformedMessage)
	}

	kind := OpKind(p.Tag)

	var (
		op  Op
		err error
	)

	switch kind {
	case KindBindRequest:
		op, err = decodeBindRequest(p)
	case KindBindResponse:
		op, err = decodeBindResponse(p)
	case KindUnbindRequest:
		op = &UnbindRequest{}
	case KindSearchRequest:
		op, err = decodeSearchRequest(p)
	case KindSearchResultEntry:
		op, err = decodeSearchResultEntry(p)
	case KindSearchResultDone:
		var result Result
		result, err = decodeResult(p)
		op = &SearchResultDone{Result: result}
	case KindSearchResultReference:
		op, err = decodeSearchResultReference(p)
	case KindAddRequest:
		op, err = decodeAddRequest(p)
	case KindAddResponse:
		var result Result
		result, err = decodeResult(p)
		op = &AddResponse{Result: result}
	case KindDeleteRequest:
		op = &DeleteRequest{DN: readString(p)}
	case KindDeleteResponse:
		var result Result
		result, err = decodeResult(p)
		op = &DeleteResponse{Result: result}
	case KindModifyDNRequest:
		op, err = decodeModifyDNRequest(p)
	case KindModifyDNResponse:
		var result Result
		result, err = decodeResult(p)
		op = &ModifyDNResponse{Result: result}
	case KindAbandonRequest:
		var id int64
		id, err = readInt(p)
		op = &AbandonRequest{MessageID: id}
	default:
		op = &UnknownOp{Tag: kind, Packet: p}
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to decode %s: %w", kind, err)
	}

	return op, nil
}

func decodeBindRequest(p *ber.Packet) (*BindRequest, error) {
	if err := expectChildren(p, 3); err != nil {
		return nil, err
	}

	version, err := readInt(p.Children[0])
	if err != nil {
		return nil, err
	}

	auth := p.Children[2]
	if auth.ClassType != ber.ClassContext || auth.Tag != 0 {
		// SASL ([3]) is not supported
		return nil, fmt.Errorf("unsupported authentication choice [%d]: %w", auth.Tag, ErrMalformedMessage)
	}

	return &BindRequest{
		Version:  int(version),
		DN:       readString(p.Children[1]),
		Password: readString(auth),
	}, nil
}

func decodeBindResponse(p *ber.Packet) (*BindResponse, error) {
	result, err := decodeResult(p)
	if err != nil {
		return nil, err
	}

	resp := &BindResponse{Result: result}
	for _, child := range p.Children[3:] {
		if child.ClassType == ber.ClassContext && child.Tag == 7 {
			resp.ServerSASLCreds = readBytes(child)
		}
	}

	return resp, nil
}

func decodeSearchRequest(p *ber.Packet) (*SearchRequest, error) {
	if err := expectChildren(p, 8); err != nil {
		return nil, err
	}

	var ints [4]int64
	for i := range ints {
		v, err := readInt(p.Children[i+1])
		if err != nil {
			return nil, err
		}
		ints[i] = v
	}

	req := &SearchRequest{
		BaseDN:       readString(p.Children[0]),
		Scope:        Scope(ints[0]),
		DerefAliases: DerefAliases(ints[1]),
		SizeLimit:    int(ints[2]),
		TimeLimit:    int(ints[3]),
		TypesOnly:    readBool(p.Children[5]),
		Filter:       p.Children[6],
	}

	for _, attr := range p.Children[7].Children {
		req.Attributes = append(req.Attributes, readString(attr))
	}

	return req, nil
}

func decodeSearchResultEntry(p *ber.Packet) (*SearchResultEntry, error) {
	if err := expectChildren(p, 2); err != nil {
		return nil, err
	}

	attrs, err := decodeAttributeList(p.Children[1])
	if err != nil {
		return nil, err
	}

	return &SearchResultEntry{
		DN:         readString(p.Children[0]),
		Attributes: attrs,
	}, nil
}

func decodeSearchResultReference(p *ber.Packet) (*SearchResultReference, error) {
	ref := &SearchResultReference{}
	for _, child := range p.Children {
		ref.URIs = append(ref.URIs, readString(child))
	}

	return ref, nil
}

func decodeAddRequest(p *ber.Packet) (*AddRequest, error) {
	if err := expectChildren(p, 2); err != nil {
		return nil, err
	}

	attrs, err := decodeAttributeList(p.Children[1])
	if err != nil {
		return nil, err
	}

	return &AddRequest{
		DN:         readString(p.Children[0]),
		Attributes: attrs,
	}, nil
}

func decodeModifyDNRequest(p *ber.Packet) (*ModifyDNRequest, error) {
	if err := expectChildren(p, 3); err != nil {
		return nil, err
	}

	req := &ModifyDNRequest{
		DN:           readString(p.Children[0]),
		NewRDN:       readString(p.Children[1]),
		DeleteOldRDN: readBool(p.Children[2]),
	}

	if len(p.Children) > 3 {
		superior := readString(p.Children[3])
		req.NewSuperior = &superior
	}

	return req, nil
}

// decodeResult decodes the LDAPResult components of a response op.
func decodeResult(p *ber.Packet) (Result, error) {
	if err := expectChildren(p, 3); err != nil {
		return Result{}, err
	}

	code, err := readInt(p.Children[0])
	if err != nil {
		return Result{}, err
	}

	if code < 0 || code > math.MaxUint16 {
		return Result{}, fmt.Errorf("Result code %d: %w", code, ErrMalformedMessage)
	}

	result := Result{
		Code:              ResultCode(code),
		MatchedDN:         readString(p.Children[1]),
		DiagnosticMessage: readString(p.Children[2]),
	}

	for _, child := range p.Children[3:] {
		if child.ClassType == ber.ClassContext && child.Tag == 3 {
			for _, uri := range child.Children {
				result.Referral = append(result.Referral, readString(uri))
			}
		}
	}

	return result, nil
}

func decodeAttributeList(p *ber.Packet) ([]Attribute, error) {
	attrs := make([]Attribute, 0, len(p.Children))

	for _, child := range p.Children {
		if err := expectChildren(child, 2); err != nil {
			return nil, err
		}

		attr := Attribute{Name: readString(child.Children[0])}
		for _, value := range child.Children[1].Children {
			attr.Values = append(attr.Values, readString(value))
		}

		attrs = append(attrs, attr)
	}

	return attrs, nil
}

func decodeControls(p *ber.Packet) ([]Control, error) {
	controls := make([]Control, 0, len(p.Children))

	for _, child := range p.Children {
		if err := expectChildren(child, 1); err != nil {
			return nil, err
		}

		control := Control{Type: readString(child.Children[0])}
		for _, field := range child.Children[1:] {
			switch field.Tag {
			case ber.TagBoolean:
				control.Criticality = readBool(field)
			case ber.TagOctetString:
				control.Value = readBytes(field)
			}
		}

		controls = append(controls, control)
	}

	return controls, nil
}

func expectChildren(p *ber.Packet, n int) error {
	if len(p.Children) < n {
		return fmt.Errorf("expected at least %d elements, got %d: %w", n, len(p.Children), ErrMalformedMessage)
	}

	return nil
}

func readBytes(p *ber.Packet) []byte {
	if p.Data == nil {
		return nil
	}

	b := make([]byte, p.Data.Len())
	copy(b, p.Data.Bytes())
	return b
}

func readString(p *ber.Packet) string {
	if p.Data == nil {
		return ""
	}

	return p.Data.String()
}

func readInt(p *ber.Packet) (int64, error) {
	if p.Data == nil {
		return 0, ErrMalformedMessage
	}

	v, err := ber.ParseInt64(p.Data.Bytes())
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrMalformedMessage)
	}

	return v, nil
}

func readBool(p *ber.Packet) bool {
	if p.Data == nil {
		return false
	}

	for _, b := range p.Data.Bytes() {
		if b != 0 {
			return true
		}
	}

	return false
}
