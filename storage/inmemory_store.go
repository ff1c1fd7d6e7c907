package storage

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrInvalidBackup = errors.New("Backup is not a valid JSON object")

// InmemoryStore keeps every entry in a single JSON document:
//
//   {"<key>": {"dn": "cn=a,dc=example,dc=com", "attributes": {"cn": ["a"]}}, ...}
//
// Keys are name-based UUIDs of the normalised DN, which keeps them free of
// characters that are special in gjson paths.
type InmemoryStore struct {
	valuesMu sync.RWMutex
	values   []byte

	mu          sync.Mutex
	updateChans []chan *Update

	// stop willl be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      []byte(""),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
	}
}

// NormalizeDN lower-cases attribute types and values and strips insignificant
// spaces, so that "CN=Admin, DC=Example,DC=com" and "cn=admin,dc=example,dc=com"
// name the same entry. DNs that do not parse are only trimmed and lower-cased.
func NormalizeDN(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(dn))
	}

	rdns := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		avas := make([]string, 0, len(rdn.Attributes))
		for _, ava := range rdn.Attributes {
			avas = append(avas, strings.ToLower(ava.Type)+"="+strings.ToLower(ava.Value))
		}
		rdns = append(rdns, strings.Join(avas, "+"))
	}

	return strings.Join(rdns, ",")
}

func key(dn string) string {
	return uuid.NewSHA1(uuid.NameSpaceX500, []byte(NormalizeDN(dn))).String()
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return nil
	}

	close(i.stop)

	for _, updateChan := range i.updateChans {
		close(updateChan)
	}

	return nil
}

// Add stores a new entry, failing with ErrEntryExists if the DN is taken.
func (i *InmemoryStore) Add(ctx context.Context, entry *Entry) error {
	i.valuesMu.Lock()
	defer i.valuesMu.Unlock()

	k := key(entry.DN)
	if gjson.GetBytes(i.values, k).Exists() {
		return ErrEntryExists
	}

	return i.set(k, entry)
}

// Put stores an entry, replacing any entry with the same DN.
func (i *InmemoryStore) Put(ctx context.Context, entry *Entry) error {
	i.valuesMu.Lock()
	defer i.valuesMu.Unlock()

	return i.set(key(entry.DN), entry)
}

func (i *InmemoryStore) Get(ctx context.Context, dn string) (*Entry, error) {
	i.valuesMu.RLock()
	defer i.valuesMu.RUnlock()

	result := gjson.GetBytes(i.values, key(dn))
	if !result.Exists() {
		return nil, ErrNoSuchEntry
	}

	return entryFromJSON(result), nil
}

func (i *InmemoryStore) Delete(ctx context.Context, dn string) error {
	i.valuesMu.Lock()
	defer i.valuesMu.Unlock()

	k := key(dn)
	if !gjson.GetBytes(i.values, k).Exists() {
		return ErrNoSuchEntry
	}

	values, err := sjson.DeleteBytes(i.values, k)
	if err != nil {
		return err
	}
	i.values = values

	i.notify(&Update{Key: []byte(dn)})

	return nil
}

// Entries returns every entry in the order they were first stored.
func (i *InmemoryStore) Entries(ctx context.Context) ([]*Entry, error) {
	i.valuesMu.RLock()
	defer i.valuesMu.RUnlock()

	entries := make([]*Entry, 0)

	gjson.ParseBytes(i.values).ForEach(func(_, value gjson.Result) bool {
		entries = append(entries, entryFromJSON(value))
		return true
	})

	return entries, nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, 255)
	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

// Restore replaces the contents of the store with a document produced by
// Backup.
func (i *InmemoryStore) Restore(values []byte) error {
	if len(values) > 0 && (!gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject()) {
		return ErrInvalidBackup
	}

	i.valuesMu.Lock()
	defer i.valuesMu.Unlock()

	i.values = values
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.valuesMu.RLock()
	defer i.valuesMu.RUnlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	backup := make([]byte, len(i.values))
	copy(backup, i.values)
	return backup, nil
}

// set must be called with valuesMu held.
func (i *InmemoryStore) set(k string, entry *Entry) error {
	values, err := sjson.SetBytes(i.values, k, entry)
	if err != nil {
		return err
	}
	i.values = values

	i.notify(&Update{
		Key:   []byte(entry.DN),
		Value: []byte(gjson.GetBytes(i.values, k).Raw),
	})

	return nil
}

func (i *InmemoryStore) notify(update *Update) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return
	}

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		default:
			// Slow listeners miss updates
		}
	}
}

func entryFromJSON(result gjson.Result) *Entry {
	entry := &Entry{
		DN:         result.Get("dn").String(),
		Attributes: make(map[string][]string),
	}

	result.Get("attributes").ForEach(func(name, values gjson.Result) bool {
		for _, value := range values.Array() {
			entry.Attributes[name.String()] = append(entry.Attributes[name.String()], value.String())
		}
		return true
	})

	return entry
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)
