package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// Filter CHOICE context tags, RFC 4511 Section 4.5.1.
const (
	tagAnd             = 0
	tagOr              = 1
	tagNot             = 2
	tagEquality        = 3
	tagSubstrings      = 4
	tagGreaterOrEqual  = 5
	tagLessOrEqual     = 6
	tagPresent         = 7
	tagApproxMatch     = 8
	tagExtensibleMatch = 9
)

// Substring choice tags.
const (
	substringInitial = 0
	substringAny     = 1
	substringFinal   = 2
)

var ErrUnsupportedFilter = errors.New("Filter type is not supported")

// Match reports whether an entry with the given attributes satisfies the
// filter. A nil filter matches everything. Attribute names match
// case-insensitively, values use case-ignore matching. Extensible matches are
// not supported.
func Match(packet *ber.Packet, attrs map[string][]string) (bool, error) {
	if packet == nil {
		return true, nil
	}

	if packet.ClassType != ber.ClassContext {
		return false, fmt.Errorf("filter element is not context tagged: %w", ErrSyntax)
	}

	switch packet.Tag {
	case tagAnd:
		for _, child := range packet.Children {
			ok, err := Match(child, attrs)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case tagOr:
		for _, child := range packet.Children {
			ok, err := Match(child, attrs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case tagNot:
		if len(packet.Children) != 1 {
			return false, fmt.Errorf("not filter has %d elements: %w", len(packet.Children), ErrSyntax)
		}
		ok, err := Match(packet.Children[0], attrs)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case tagPresent:
		return len(values(attrs, data(packet))) > 0, nil

	case tagEquality, tagGreaterOrEqual, tagLessOrEqual, tagApproxMatch:
		if len(packet.Children) != 2 {
			return false, fmt.Errorf("assertion has %d elements: %w", len(packet.Children), ErrSyntax)
		}

		attr, assertion := data(packet.Children[0]), data(packet.Children[1])
		for _, value := range values(attrs, attr) {
			if compare(packet.Tag, value, assertion) {
				return true, nil
			}
		}
		return false, nil

	case tagSubstrings:
		if len(packet.Children) != 2 {
			return false, fmt.Errorf("substring filter has %d elements: %w", len(packet.Children), ErrSyntax)
		}

		var (
			initial, final string
			middle         []string
		)

		for _, sub := range packet.Children[1].Children {
			switch sub.Tag {
			case substringInitial:
				initial = data(sub)
			case substringAny:
				middle = append(middle, data(sub))
			case substringFinal:
				final = data(sub)
			}
		}

		for _, value := range values(attrs, data(packet.Children[0])) {
			if matchSubstring(value, initial, middle, final) {
				return true, nil
			}
		}
		return false, nil

	case tagExtensibleMatch:
		return false, ErrUnsupportedFilter

	default:
		return false, fmt.Errorf("unknown filter tag %d: %w", packet.Tag, ErrSyntax)
	}
}

func compare(tag ber.Tag, value, assertion string) bool {
	switch tag {
	case tagEquality, tagApproxMatch:
		return strings.EqualFold(value, assertion)

	case tagGreaterOrEqual, tagLessOrEqual:
		cmp := ordering(value, assertion)
		if tag == tagGreaterOrEqual {
			return cmp >= 0
		}
		return cmp <= 0
	}

	return false
}

// ordering compares integers numerically and everything else by case-folded
// bytes.
func ordering(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func matchSubstring(value, initial string, middle []string, final string) bool {
	value = strings.ToLower(value)
	pos := 0

	if initial != "" {
		if !strings.HasPrefix(value, strings.ToLower(initial)) {
			return false
		}
		pos = len(initial)
	}

	for _, sub := range middle {
		if sub == "" {
			continue
		}
		idx := strings.Index(value[pos:], strings.ToLower(sub))
		if idx < 0 {
			return false
		}
		pos += idx + len(sub)
	}

	if final != "" {
		return strings.HasSuffix(value[pos:], strings.ToLower(final))
	}

	return true
}

func values(attrs map[string][]string, name string) []string {
	for key, vals := range attrs {
		if strings.EqualFold(key, name) {
			return vals
		}
	}

	return nil
}

func data(p *ber.Packet) string {
	if p.Data == nil {
		return ""
	}

	return p.Data.String()
}
