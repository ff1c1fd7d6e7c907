package protocol

import (
	"sort"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// MaxMessageID is the largest message ID permitted by RFC 4511.
const MaxMessageID = 1<<31 - 1

// Op is a single protocolOp. The set of implementations is closed to this
// package.
type Op interface {
	Kind() OpKind

	// packet encodes the op as its [APPLICATION n] element.
	packet() *ber.Packet
}

// Request is an op a client sends to a server.
type Request interface {
	Op
	isRequest()
}

type Message struct {
	ID       int64
	Op       Op
	Controls []Control
}

// Control is a raw LDAP control. ldapws never sends any, but servers may
// attach them to responses.
type Control struct {
	Type        string
	Criticality bool
	Value       []byte
}

type Attribute struct {
	Name   string
	Values []string
}

// AttributesFromMap converts an attribute map into an attribute list ordered
// by name, so that the same map always encodes to the same bytes.
func AttributesFromMap(m map[string][]string) []Attribute {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]Attribute, 0, len(m))
	for _, name := range names {
		attrs = append(attrs, Attribute{Name: name, Values: m[name]})
	}

	return attrs
}

// AttributeMap is the inverse of AttributesFromMap. Values of repeated
// attribute names are concatenated.
func AttributeMap(attrs []Attribute) map[string][]string {
	m := make(map[string][]string, len(attrs))
	for _, attr := range attrs {
		m[attr.Name] = append(m[attr.Name], attr.Values...)
	}

	return m
}
