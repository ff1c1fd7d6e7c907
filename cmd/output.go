package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/tidwall/sjson"

	"github.com/luma/ldapws/protocol"
	"github.com/luma/ldapws/session"
)

// printResult prints a successful result, or returns the result as an error.
func printResult(w io.Writer, op string, result protocol.Result) error {
	if err := result.Err(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%s: %s\n", op, result.Code)
	return err
}

func printLDIF(w io.Writer, result *session.SearchResult) error {
	for _, entry := range result.Entries {
		if _, err := fmt.Fprintf(w, "dn: %s\n", entry.DN); err != nil {
			return err
		}

		for _, attr := range entry.Attributes {
			for _, value := range attr.Values {
				if _, err := fmt.Fprintf(w, "%s: %s\n", attr.Name, value); err != nil {
					return err
				}
			}
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	for _, ref := range result.Referrals {
		for _, uri := range ref.URIs {
			if _, err := fmt.Fprintf(w, "# refldap: %s\n", uri); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "# %d entries, %d referrals, %d messages\n",
		len(result.Entries), len(result.Referrals), len(result.Messages))
	return err
}

// searchJSON renders a search result as
//
//   {"entries": [{"dn": "...", "attributes": {"cn": ["..."]}}], "referrals": [...], "result": "Success"}
func searchJSON(result *session.SearchResult) ([]byte, error) {
	out := []byte(`{"entries":[],"referrals":[]}`)

	var err error
	for i, entry := range result.Entries {
		path := "entries." + strconv.Itoa(i)

		out, err = sjson.SetBytes(out, path+".dn", entry.DN)
		if err != nil {
			return nil, err
		}

		out, err = sjson.SetRawBytes(out, path+".attributes", []byte("{}"))
		if err != nil {
			return nil, err
		}

		for _, attr := range entry.Attributes {
			out, err = sjson.SetBytes(out, path+".attributes."+escapePath(attr.Name), attr.Values)
			if err != nil {
				return nil, err
			}
		}
	}

	for _, ref := range result.Referrals {
		for _, uri := range ref.URIs {
			out, err = sjson.SetBytes(out, "referrals.-1", uri)
			if err != nil {
				return nil, err
			}
		}
	}

	if result.Done != nil {
		out, err = sjson.SetBytes(out, "result", result.Done.Code.String())
		if err != nil {
			return nil, err
		}
	}

	return append(out, '\n'), nil
}

// escapePath escapes characters that are special in sjson paths. Attribute
// descriptions may carry options, e.g. "userCertificate;binary".
func escapePath(name string) string {
	escaped := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, name[i])
	}

	return string(escaped)
}
