package storage

import (
	"context"
	"errors"
)

var (
	ErrEntryExists = errors.New("Entry already exists")
	ErrNoSuchEntry = errors.New("No such entry")
)

// Entry is a directory entry as stored: its DN as given when it was added and
// its attributes.
type Entry struct {
	DN         string              `json:"dn"`
	Attributes map[string][]string `json:"attributes"`
}

// Update is sent to listeners whenever an entry is added, replaced or
// removed. Value is the entry as JSON, or nil for a removal.
type Update struct {
	Key   []byte
	Value []byte
}

// Store holds directory entries keyed by DN. DNs are compared after
// normalisation (see NormalizeDN).
type Store interface {
	Add(ctx context.Context, entry *Entry) error
	Put(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, dn string) (*Entry, error)
	Delete(ctx context.Context, dn string) error
	Entries(ctx context.Context) ([]*Entry, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
