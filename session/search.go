package session

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/luma/ldapws/protocol"
)

const (
	DefaultSizeLimit = 100
	DefaultTimeLimit = 10
)

// Scope is how far below the base DN a search reaches.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOneLevel
	ScopeSubtree
	ScopeChildren
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	case ScopeChildren:
		return "children"
	default:
		return "unknown"
	}
}

// ParseScope accepts the names used by ldapsearch -s.
func ParseScope(name string) (Scope, error) {
	switch name {
	case "base":
		return ScopeBase, nil
	case "one", "onelevel":
		return ScopeOneLevel, nil
	case "sub", "subtree":
		return ScopeSubtree, nil
	case "children", "subordinate":
		return ScopeChildren, nil
	default:
		return 0, ErrInvalidScope
	}
}

func (s Scope) protocol() (protocol.Scope, error) {
	switch s {
	case ScopeBase:
		return protocol.ScopeBaseObject, nil
	case ScopeOneLevel:
		return protocol.ScopeSingleLevel, nil
	case ScopeSubtree:
		return protocol.ScopeWholeSubtree, nil
	case ScopeChildren:
		return protocol.ScopeSubordinateSubtree, nil
	default:
		return 0, ErrInvalidScope
	}
}

type SearchParams struct {
	BaseDN string
	Filter string
	Scope  Scope

	// SizeLimit and TimeLimit default to DefaultSizeLimit and
	// DefaultTimeLimit when nil. They are sent to the server, never enforced
	// locally.
	SizeLimit *int
	TimeLimit *int
}

// SearchResult is everything the server sent for one search, in arrival
// order.
type SearchResult struct {
	Entries   []*protocol.SearchResultEntry
	Referrals []*protocol.SearchResultReference

	// Messages holds every message in arrival order. When the search
	// completed the last one is the SearchResultDone.
	Messages []*protocol.Message

	// Done is nil for a truncated search.
	Done *protocol.SearchResultDone
}

// SearchDefaults searches with the default size and time limits.
func (s *Session) SearchDefaults(ctx context.Context, baseDN, filter string, scope Scope) (*SearchResult, error) {
	return s.Search(ctx, SearchParams{BaseDN: baseDN, Filter: filter, Scope: scope})
}

// Search sends one search request and collects entries and references until
// the server sends SearchResultDone. A non-success result code in the done
// message is returned as data, see SearchResult.Done.
//
// A filter that does not parse fails with a *FilterSyntaxError before anything
// is sent.
func (s *Session) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return nil, err
	}

	req, err := s.searchRequest(params)
	if err != nil {
		return nil, err
	}

	id, err := s.send(ctx, req)
	if err != nil {
		return nil, err
	}

	log := s.log.With(zap.Int64("messageID", id))
	result := &SearchResult{}

	for {
		msg, err := s.ch.Receive(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil, s.fail(&ProtocolError{Kind: TruncatedSearch, MessageID: id, Partial: result})

		case err != nil:
			return nil, s.fail(&TransportError{Op: "receive", Err: err})
		}

		if err := s.checkID(id, msg); err != nil {
			return nil, err
		}

		switch op := msg.Op.(type) {
		case *protocol.SearchResultEntry:
			result.Entries = append(result.Entries, op)
			result.Messages = append(result.Messages, msg)

		case *protocol.SearchResultReference:
			// Recorded, never chased
			result.Referrals = append(result.Referrals, op)
			result.Messages = append(result.Messages, msg)

		case *protocol.SearchResultDone:
			result.Done = op
			result.Messages = append(result.Messages, msg)

			log.Debug("Search done",
				zap.Int("entries", len(result.Entries)),
				zap.Int("referrals", len(result.Referrals)),
				zap.Stringer("resultCode", op.Code))

			return result, nil

		default:
			return nil, s.fail(&ProtocolError{Kind: UnexpectedMessage, MessageID: id, Got: msg})
		}
	}
}

func (s *Session) searchRequest(params SearchParams) (*protocol.SearchRequest, error) {
	scope, err := params.Scope.protocol()
	if err != nil {
		return nil, err
	}

	if s.filters == nil {
		return nil, ErrNoFilterParser
	}

	compiled, err := s.filters.Parse(params.Filter)
	if err != nil {
		return nil, &FilterSyntaxError{Filter: params.Filter, Err: err}
	}

	sizeLimit := DefaultSizeLimit
	if params.SizeLimit != nil {
		sizeLimit = *params.SizeLimit
	}

	timeLimit := DefaultTimeLimit
	if params.TimeLimit != nil {
		timeLimit = *params.TimeLimit
	}

	return &protocol.SearchRequest{
		BaseDN:       params.BaseDN,
		Scope:        scope,
		DerefAliases: protocol.NeverDerefAliases,
		SizeLimit:    sizeLimit,
		TimeLimit:    timeLimit,
		TypesOnly:    false,
		Filter:       compiled,
		Attributes:   []string{},
	}, nil
}
