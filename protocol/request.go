package protocol

import (
	ber "github.com/go-asn1-ber/asn1-ber"
)

// Version3 is the only protocol version ldapws speaks.
const Version3 = 3

// Scope is the searchRequest scope.
type Scope int

const (
	ScopeBaseObject   Scope = 0
	ScopeSingleLevel  Scope = 1
	ScopeWholeSubtree Scope = 2

	// ScopeSubordinateSubtree is the "children" scope from RFC 4530.
	ScopeSubordinateSubtree Scope = 3
)

func (s Scope) String() string {
	switch s {
	case ScopeBaseObject:
		return "BaseObject"
	case ScopeSingleLevel:
		return "SingleLevel"
	case ScopeWholeSubtree:
		return "WholeSubtree"
	case ScopeSubordinateSubtree:
		return "SubordinateSubtree"
	default:
		return "Unknown"
	}
}

type DerefAliases int

const (
	NeverDerefAliases   DerefAliases = 0
	DerefInSearching    DerefAliases = 1
	DerefFindingBaseObj DerefAliases = 2
	DerefAlways         DerefAliases = 3
)

// BindRequest is a simple (password) bind. SASL is not supported.
type BindRequest struct {
	Version  int
	DN       string
	Password string
}

func (*BindRequest) Kind() OpKind { return KindBindRequest }
func (*BindRequest) isRequest()   {}

func (r *BindRequest) packet() *ber.Packet {
	version := r.Version
	if version == 0 {
		version = Version3
	}

	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(KindBindRequest), nil, "Bind Request")
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(version), "Version"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.DN, "User Name"))
	p.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, r.Password, "Password"))
	return p
}

type UnbindRequest struct{}

func (*UnbindRequest) Kind() OpKind { return KindUnbindRequest }
func (*UnbindRequest) isRequest()   {}

func (*UnbindRequest) packet() *ber.Packet {
	return ber.Encode(ber.ClassApplication, ber.TypePrimitive, ber.Tag(KindUnbindRequest), nil, "Unbind Request")
}

type SearchRequest struct {
	BaseDN       string
	Scope        Scope
	DerefAliases DerefAliases
	SizeLimit    int
	TimeLimit    int
	TypesOnly    bool

	// Filter is an encoded Filter CHOICE, as produced by the filter package.
	Filter *ber.Packet

	// Attributes lists the attributes to return. Empty means all user
	// attributes.
	Attributes []string
}

func (*SearchRequest) Kind() OpKind { return KindSearchRequest }
func (*SearchRequest) isRequest()   {}

func (r *SearchRequest) packet() *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(KindSearchRequest), nil, "Search Request")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.BaseDN, "Base DN"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(r.Scope), "Scope"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(r.DerefAliases), "Deref Aliases"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(r.SizeLimit), "Size Limit"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(r.TimeLimit), "Time Limit"))
	p.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, r.TypesOnly, "Types Only"))

	if r.Filter != nil {
		p.AppendChild(r.Filter)
	} else {
		// (objectClass=*)
		p.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 7, "objectClass", "Present"))
	}

	attrs := ber.NewSequence("Attributes")
	for _, attr := range r.Attributes {
		attrs.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attr, "Attribute"))
	}
	p.AppendChild(attrs)

	return p
}

type AddRequest struct {
	DN         string
	Attributes []Attribute
}

func (*AddRequest) Kind() OpKind { return KindAddRequest }
func (*AddRequest) isRequest()   {}

func (r *AddRequest) packet() *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(KindAddRequest), nil, "Add Request")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.DN, "DN"))
	p.AppendChild(attributeListPacket(r.Attributes, "Attributes"))
	return p
}

type DeleteRequest struct {
	DN string
}

func (*DeleteRequest) Kind() OpKind { return KindDeleteRequest }
func (*DeleteRequest) isRequest()   {}

func (r *DeleteRequest) packet() *ber.Packet {
	return ber.NewString(ber.ClassApplication, ber.TypePrimitive, ber.Tag(KindDeleteRequest), r.DN, "Del Request")
}

type ModifyDNRequest struct {
	DN           string
	NewRDN       string
	DeleteOldRDN bool

	// NewSuperior moves the entry under a new parent when set.
	NewSuperior *string
}

func (*ModifyDNRequest) Kind() OpKind { return KindModifyDNRequest }
func (*ModifyDNRequest) isRequest()   {}

func (r *ModifyDNRequest) packet() *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(KindModifyDNRequest), nil, "Modify DN Request")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.DN, "DN"))
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.NewRDN, "New RDN"))
	p.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, r.DeleteOldRDN, "Delete old RDN"))
	if r.NewSuperior != nil {
		p.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, *r.NewSuperior, "New Superior"))
	}
	return p
}

type AbandonRequest struct {
	MessageID int64
}

func (*AbandonRequest) Kind() OpKind { return KindAbandonRequest }
func (*AbandonRequest) isRequest()   {}

func (r *AbandonRequest) packet() *ber.Packet {
	return ber.NewInteger(ber.ClassApplication, ber.TypePrimitive, ber.Tag(KindAbandonRequest), r.MessageID, "Abandon Request")
}

func attributeListPacket(attrs []Attribute, description string) *ber.Packet {
	list := ber.NewSequence(description)
	for _, attr := range attrs {
		seq := ber.NewSequence("Attribute")
		seq.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attr.Name, "Type"))

		values := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "Values")
		for _, value := range attr.Values {
			values.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, value, "Value"))
		}
		seq.AppendChild(values)

		list.AppendChild(seq)
	}

	return list
}

var _ Request = (*BindRequest)(nil)
var _ Request = (*UnbindRequest)(nil)
var _ Request = (*SearchRequest)(nil)
var _ Request = (*AddRequest)(nil)
var _ Request = (*DeleteRequest)(nil)
var _ Request = (*ModifyDNRequest)(nil)
var _ Request = (*AbandonRequest)(nil)
