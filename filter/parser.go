// Package filter turns textual LDAP search filters (RFC 4515) into the BER
// Filter trees carried by search requests, and evaluates such trees against
// attribute maps.
package filter

import (
	"errors"
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

var ErrSyntax = errors.New("Filter is malformed")

// Parser compiles filter text with go-ldap's RFC 4515 compiler.
type Parser struct{}

// Parse compiles text such as "(&(objectClass=person)(uid=j*))". Errors wrap
// ErrSyntax.
func (Parser) Parse(text string) (*ber.Packet, error) {
	packet, err := ldap.CompileFilter(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	return packet, nil
}

// String renders a filter tree back to its textual form.
func String(packet *ber.Packet) (string, error) {
	return ldap.DecompileFilter(packet)
}
