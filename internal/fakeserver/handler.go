package fakeserver

import (
	"context"
	"errors"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/luma/ldapws/filter"
	"github.com/luma/ldapws/protocol"
	"github.com/luma/ldapws/storage"
)

const passwordAttribute = "userPassword"

// handle answers a single request. It returns false when the connection
// should be closed.
func (s *Server) handle(ctx context.Context, c *conn, msg *protocol.Message) bool {
	id := msg.ID + s.shiftIDs

	switch req := msg.Op.(type) {
	case *protocol.BindRequest:
		c.send(id, &protocol.BindResponse{Result: s.bind(ctx, req)})

	case *protocol.SearchRequest:
		return s.search(ctx, c, id, req)

	case *protocol.AddRequest:
		c.send(id, &protocol.AddResponse{Result: s.add(ctx, req)})

	case *protocol.DeleteRequest:
		c.send(id, &protocol.DeleteResponse{Result: s.delete(ctx, req)})

	case *protocol.ModifyDNRequest:
		c.send(id, &protocol.ModifyDNResponse{Result: s.modifyDN(ctx, req)})

	case *protocol.AbandonRequest:
		// Every request is answered before the next one is read, so there
		// is never anything left to abandon.

	case *protocol.UnbindRequest:
		c.log.Debug("Client unbound")
		return false

	default:
		c.log.Warn("Unsupported operation, closing connection", zap.Stringer("op", msg.Op.Kind()))
		return false
	}

	return true
}

func (s *Server) bind(ctx context.Context, req *protocol.BindRequest) protocol.Result {
	if req.Version != protocol.Version3 {
		return protocol.Result{
			Code:              protocol.ResultProtocolError,
			DiagnosticMessage: "only LDAPv3 is supported",
		}
	}

	// Anonymous
	if req.DN == "" && req.Password == "" {
		return protocol.Result{Code: protocol.ResultSuccess}
	}

	if req.Password == "" {
		return protocol.Result{
			Code:              protocol.ResultUnwillingToPerform,
			DiagnosticMessage: "unauthenticated binds are not allowed",
		}
	}

	if password, ok := s.credentials[storage.NormalizeDN(req.DN)]; ok && password == req.Password {
		return protocol.Result{Code: protocol.ResultSuccess}
	}

	entry, err := s.store.Get(ctx, req.DN)
	if err == nil {
		for _, attr := range protocol.AttributesFromMap(entry.Attributes) {
			if !strings.EqualFold(attr.Name, passwordAttribute) {
				continue
			}

			for _, value := range attr.Values {
				if value == req.Password {
					return protocol.Result{Code: protocol.ResultSuccess}
				}
			}
		}
	}

	return protocol.Result{Code: protocol.ResultInvalidCredentials}
}

func (s *Server) search(ctx context.Context, c *conn, id int64, req *protocol.SearchRequest) bool {
	done := func(result protocol.Result) bool {
		c.send(id, &protocol.SearchResultDone{Result: result})
		return true
	}

	base, err := parseDN(req.BaseDN)
	if err != nil {
		return done(protocol.Result{Code: protocol.ResultInvalidDNSyntax, DiagnosticMessage: err.Error()})
	}

	if req.BaseDN != "" {
		if _, err := s.store.Get(ctx, req.BaseDN); errors.Is(err, storage.ErrNoSuchEntry) {
			return done(protocol.Result{Code: protocol.ResultNoSuchObject, MatchedDN: ""})
		}
	}

	entries, err := s.store.Entries(ctx)
	if err != nil {
		return done(protocol.Result{Code: protocol.ResultOther, DiagnosticMessage: err.Error()})
	}

	sent := 0
	for _, entry := range entries {
		dn, err := parseDN(entry.DN)
		if err != nil || !inScope(base, dn, req.Scope) {
			continue
		}

		ok, err := filter.Match(req.Filter, entry.Attributes)
		if err != nil {
			if errors.Is(err, filter.ErrUnsupportedFilter) {
				return done(protocol.Result{Code: protocol.ResultUnwillingToPerform, DiagnosticMessage: err.Error()})
			}
			return done(protocol.Result{Code: protocol.ResultProtocolError, DiagnosticMessage: err.Error()})
		}

		if !ok {
			continue
		}

		if req.SizeLimit > 0 && sent == req.SizeLimit {
			return done(protocol.Result{Code: protocol.ResultSizeLimitExceeded})
		}

		c.send(id, &protocol.SearchResultEntry{
			DN:         entry.DN,
			Attributes: selectAttributes(entry.Attributes, req.Attributes, req.TypesOnly),
		})
		sent++
	}

	if len(s.referrals) > 0 && req.Scope != protocol.ScopeBaseObject {
		c.send(id, &protocol.SearchResultReference{URIs: s.referrals})
	}

	if s.truncateSearches {
		c.log.Debug("Dropping connection before search done")
		return false
	}

	return done(protocol.Result{Code: protocol.ResultSuccess})
}

func (s *Server) add(ctx context.Context, req *protocol.AddRequest) protocol.Result {
	if _, err := parseDN(req.DN); err != nil || req.DN == "" {
		return protocol.Result{Code: protocol.ResultInvalidDNSyntax}
	}

	err := s.store.Add(ctx, &storage.Entry{
		DN:         req.DN,
		Attributes: protocol.AttributeMap(req.Attributes),
	})

	switch {
	case errors.Is(err, storage.ErrEntryExists):
		return protocol.Result{Code: protocol.ResultEntryAlreadyExists}
	case err != nil:
		return protocol.Result{Code: protocol.ResultOther, DiagnosticMessage: err.Error()}
	}

	return protocol.Result{Code: protocol.ResultSuccess}
}

func (s *Server) delete(ctx context.Context, req *protocol.DeleteRequest) protocol.Result {
	hasChildren, err := s.hasChildren(ctx, req.DN)
	if err != nil {
		return protocol.Result{Code: protocol.ResultInvalidDNSyntax, DiagnosticMessage: err.Error()}
	}

	if hasChildren {
		return protocol.Result{Code: protocol.ResultNotAllowedOnNonLeaf}
	}

	err = s.store.Delete(ctx, req.DN)
	switch {
	case errors.Is(err, storage.ErrNoSuchEntry):
		return protocol.Result{Code: protocol.ResultNoSuchObject}
	case err != nil:
		return protocol.Result{Code: protocol.ResultOther, DiagnosticMessage: err.Error()}
	}

	return protocol.Result{Code: protocol.ResultSuccess}
}

// modifyDN renames leaf entries only.
func (s *Server) modifyDN(ctx context.Context, req *protocol.ModifyDNRequest) protocol.Result {
	entry, err := s.store.Get(ctx, req.DN)
	if errors.Is(err, storage.ErrNoSuchEntry) {
		return protocol.Result{Code: protocol.ResultNoSuchObject}
	} else if err != nil {
		return protocol.Result{Code: protocol.ResultOther, DiagnosticMessage: err.Error()}
	}

	hasChildren, err := s.hasChildren(ctx, req.DN)
	if err != nil {
		return protocol.Result{Code: protocol.ResultInvalidDNSyntax, DiagnosticMessage: err.Error()}
	}
	if hasChildren {
		return protocol.Result{Code: protocol.ResultNotAllowedOnNonLeaf}
	}

	newRDN, err := parseDN(req.NewRDN)
	if err != nil || len(newRDN.RDNs) != 1 {
		return protocol.Result{Code: protocol.ResultInvalidDNSyntax, DiagnosticMessage: "new RDN must be a single RDN"}
	}

	oldRDNText, parent := splitRDN(entry.DN)
	if req.NewSuperior != nil {
		parent = *req.NewSuperior
	}

	newDN := req.NewRDN
	if parent != "" {
		newDN += "," + parent
	}

	attrs := entry.Attributes
	if req.DeleteOldRDN {
		if oldRDN, err := parseDN(oldRDNText); err == nil && len(oldRDN.RDNs) == 1 {
			for _, ava := range oldRDN.RDNs[0].Attributes {
				removeValue(attrs, ava.Type, ava.Value)
			}
		}
	}
	for _, ava := range newRDN.RDNs[0].Attributes {
		addValue(attrs, ava.Type, ava.Value)
	}

	if err := s.store.Add(ctx, &storage.Entry{DN: newDN, Attributes: attrs}); err != nil {
		if errors.Is(err, storage.ErrEntryExists) {
			return protocol.Result{Code: protocol.ResultEntryAlreadyExists}
		}
		return protocol.Result{Code: protocol.ResultOther, DiagnosticMessage: err.Error()}
	}

	if err := s.store.Delete(ctx, req.DN); err != nil {
		return protocol.Result{Code: protocol.ResultOther, DiagnosticMessage: err.Error()}
	}

	return protocol.Result{Code: protocol.ResultSuccess}
}

func (s *Server) hasChildren(ctx context.Context, dn string) (bool, error) {
	parent, err := parseDN(dn)
	if err != nil {
		return false, err
	}

	entries, err := s.store.Entries(ctx)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		child, err := parseDN(entry.DN)
		if err == nil && parent.AncestorOf(child) {
			return true, nil
		}
	}

	return false, nil
}

// parseDN parses the normalised form of dn so that comparisons ignore case.
func parseDN(dn string) (*ldap.DN, error) {
	return ldap.ParseDN(storage.NormalizeDN(dn))
}

func inScope(base, dn *ldap.DN, scope protocol.Scope) bool {
	switch scope {
	case protocol.ScopeBaseObject:
		return base.Equal(dn)
	case protocol.ScopeSingleLevel:
		return base.AncestorOf(dn) && len(dn.RDNs) == len(base.RDNs)+1
	case protocol.ScopeWholeSubtree:
		return base.Equal(dn) || base.AncestorOf(dn)
	case protocol.ScopeSubordinateSubtree:
		return base.AncestorOf(dn)
	default:
		return false
	}
}

// splitRDN splits a DN at its first unescaped comma.
func splitRDN(dn string) (string, string) {
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++
		case ',':
			return dn[:i], strings.TrimSpace(dn[i+1:])
		}
	}

	return dn, ""
}

func selectAttributes(attrs map[string][]string, selected []string, typesOnly bool) []protocol.Attribute {
	all := len(selected) == 0
	want := make(map[string]bool, len(selected))
	for _, name := range selected {
		if name == "*" {
			all = true
		}
		want[strings.ToLower(name)] = true
	}

	result := make([]protocol.Attribute, 0, len(attrs))
	for _, attr := range protocol.AttributesFromMap(attrs) {
		if strings.EqualFold(attr.Name, passwordAttribute) {
			continue
		}

		if !all && !want[strings.ToLower(attr.Name)] {
			continue
		}

		if typesOnly {
			attr.Values = nil
		}
		result = append(result, attr)
	}

	return result
}

func addValue(attrs map[string][]string, name, value string) {
	for existing, values := range attrs {
		if !strings.EqualFold(existing, name) {
			continue
		}

		for _, v := range values {
			if strings.EqualFold(v, value) {
				return
			}
		}
		attrs[existing] = append(values, value)
		return
	}

	attrs[name] = []string{value}
}

func removeValue(attrs map[string][]string, name, value string) {
	for existing, values := range attrs {
		if !strings.EqualFold(existing, name) {
			continue
		}

		kept := values[:0]
		for _, v := range values {
			if !strings.EqualFold(v, value) {
				kept = append(kept, v)
			}
		}

		if len(kept) == 0 {
			delete(attrs, existing)
		} else {
			attrs[existing] = kept
		}
	}
}
