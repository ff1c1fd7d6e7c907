package protocol

import (
	"errors"
	"io"

	ber "github.com/go-asn1-ber/asn1-ber"
)

var ErrMissingOp = errors.New("Message has no protocolOp")

// Packet encodes the message as an LDAPMessage envelope.
func (m *Message) Packet() (*ber.Packet, error) {
	if m.Op == nil {
		return nil, ErrMissingOp
	}

	op := m.Op.packet()
	if op == nil {
		return nil, ErrMissingOp
	}

	p := ber.NewSequence("LDAP Message")
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, m.ID, "Message ID"))
	p.AppendChild(op)

	if len(m.Controls) > 0 {
		p.AppendChild(controlsPacket(m.Controls))
	}

	return p, nil
}

// WriteMessage encodes a single message and writes it to w in one Write call.
func WriteMessage(w io.Writer, m *Message) error {
	p, err := m.Packet()
	if err != nil {
		return err
	}

	_, err = w.Write(p.Bytes())
	return err
}

func controlsPacket(controls []Control) *ber.Packet {
	p := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "Controls")
	for _, control := range controls {
		c := ber.NewSequence("Control")
		c.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, control.Type, "Control Type"))
		if control.Criticality {
			c.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, true, "Criticality"))
		}
		if control.Value != nil {
			c.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, string(control.Value), "Control Value"))
		}
		p.AppendChild(c)
	}

	return p
}
