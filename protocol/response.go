package protocol

import (
	ber "github.com/go-asn1-ber/asn1-ber"
)

type BindResponse struct {
	Result
	ServerSASLCreds []byte
}

func (*BindResponse) Kind() OpKind { return KindBindResponse }

func (r *BindResponse) packet() *ber.Packet {
	p := resultPacket(KindBindResponse, r.Result, "Bind Response")
	if r.ServerSASLCreds != nil {
		creds := ber.Encode(ber.ClassContext, ber.TypePrimitive, 7, nil, "serverSaslCreds")
		creds.Data.Write(r.ServerSASLCreds)
		p.AppendChild(creds)
	}
	return p
}

type SearchResultEntry struct {
	DN         string
	Attributes []Attribute
}

func (*SearchResultEntry) Kind() OpKind { return KindSearchResultEntry }

func (r *SearchResultEntry) packet() *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(KindSearchResultEntry), nil, "Search Result Entry")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.DN, "Object Name"))
	p.AppendChild(attributeListPacket(r.Attributes, "Attributes"))
	return p
}

// GetAttributeValues returns the values of the named attribute, or nil.
func (r *SearchResultEntry) GetAttributeValues(name string) []string {
	for _, attr := range r.Attributes {
		if attr.Name == name {
			return attr.Values
		}
	}

	return nil
}

type SearchResultReference struct {
	URIs []string
}

func (*SearchResultReference) Kind() OpKind { return KindSearchResultReference }

func (r *SearchResultReference) packet() *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(KindSearchResultReference), nil, "Search Result Reference")
	for _, uri := range r.URIs {
		p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, uri, "URI"))
	}
	return p
}

type SearchResultDone struct {
	Result
}

func (*SearchResultDone) Kind() OpKind { return KindSearchResultDone }

func (r *SearchResultDone) packet() *ber.Packet {
	return resultPacket(KindSearchResultDone, r.Result, "Search Result Done")
}

type AddResponse struct {
	Result
}

func (*AddResponse) Kind() OpKind { return KindAddResponse }

func (r *AddResponse) packet() *ber.Packet {
	return resultPacket(KindAddResponse, r.Result, "Add Response")
}

type DeleteResponse struct {
	Result
}

func (*DeleteResponse) Kind() OpKind { return KindDeleteResponse }

func (r *DeleteResponse) packet() *ber.Packet {
	return resultPacket(KindDeleteResponse, r.Result, "Del Response")
}

type ModifyDNResponse struct {
	Result
}

func (*ModifyDNResponse) Kind() OpKind { return KindModifyDNResponse }

func (r *ModifyDNResponse) packet() *ber.Packet {
	return resultPacket(KindModifyDNResponse, r.Result, "Modify DN Response")
}

// UnknownOp is any protocolOp this package does not model, e.g. an
// ExtendedResponse carrying a Notice of Disconnection. The raw element is kept
// so it can be logged or re-encoded.
type UnknownOp struct {
	Tag    OpKind
	Packet *ber.Packet
}

func (u *UnknownOp) Kind() OpKind { return u.Tag }

func (u *UnknownOp) packet() *ber.Packet {
	return u.Packet
}

func resultPacket(kind OpKind, r Result, description string) *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(kind), nil, description)
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(r.Code), "Result Code"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.MatchedDN, "Matched DN"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.DiagnosticMessage, "Diagnostic Message"))

	if len(r.Referral) > 0 {
		referral := ber.Encode(ber.ClassContext, ber.TypeConstructed, 3, nil, "Referral")
		for _, uri := range r.Referral {
			referral.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, uri, "URI"))
		}
		p.AppendChild(referral)
	}

	return p
}

var _ Op = (*BindResponse)(nil)
var _ Op = (*SearchResultEntry)(nil)
var _ Op = (*SearchResultReference)(nil)
var _ Op = (*SearchResultDone)(nil)
var _ Op = (*AddResponse)(nil)
var _ Op = (*DeleteResponse)(nil)
var _ Op = (*ModifyDNResponse)(nil)
var _ Op = (*UnknownOp)(nil)
