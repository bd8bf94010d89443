// Package localstore is a multi-collection record store over a string key/value substrate.
//
// Each collection is one JSON array stored under <prefix><collection name>.
// Every mutation is a full read-modify-write of that array, done atomically
// through core.KeyValueStore.Update.
package localstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
)

// DefaultKeyPrefix namespaces the collections in the substrate.
const DefaultKeyPrefix = "collegium_"

// Collections
const (
	Resources         = "resources"
	Messages          = "messages"
	Conversations     = "conversations"
	Events            = "events"
	EventParticipants = "eventParticipants"
	ForumTopics       = "forumTopics"
	ForumComments     = "forumComments"
)

// AllCollections lists the collections the app knows about.
var AllCollections = []string{Resources, Messages, Conversations, Events, EventParticipants, ForumTopics, ForumComments}

var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("collection was modified concurrently")
	ErrCorrupt       = errors.New("stored collection is corrupt")
	ErrInvalidRecord = errors.New("record must have a non-empty string id")
	ErrInvalidName   = errors.New("invalid collection name")
	ErrNoChange      = errors.New("nothing to write")
)

// Revision identifies the stored state of a collection. The zero Revision is an absent collection.
type Revision uint64

func revisionOf(blob string, exists bool) Revision {
	if !exists {
		return 0
	}
	return Revision(xxhash.Sum64String(blob))
}

type (
	Store struct {
		kv      core.KeyValueStore
		prefix  string
		logger  core.Logger
		newID   func() string
		metrics Observer
	}

	Option func(*Store)

	// Observer is notified of every store operation. outcome is "ok", "not_found" or "error".
	Observer interface {
		ObserveStoreOp(collection, op, outcome string)
	}
)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func WithLogger(logger core.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithIDGenerator replaces the ULID generator used by NewID.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.metrics = o }
}

// New returns a Store over kv.
func New(kv core.KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		prefix: DefaultKeyPrefix,
		logger: nopLogger{},
		newID:  GenerateID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func (s *Store) observe(name, op string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Cause(err) == ErrNotFound:
		outcome = "not_found"
	default:
		outcome = "error"
	}
	s.metrics.ObserveStoreOp(name, op, outcome)
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	return nil
}

func decode(blob string) ([]Record, error) {
	records := make([]Record, 0)
	if err := json.Unmarshal([]byte(blob), &records); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	// `null` decodes into a nil slice
	if records == nil {
		records = make([]Record, 0)
	}
	return records, nil
}

func encode(records []Record) (string, error) {
	if records == nil {
		records = make([]Record, 0)
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return "", errors.Wrap(err, "encoding collection")
	}
	return string(blob), nil
}

// NewID returns a new record identifier.
func (s *Store) NewID() string {
	return s.newID()
}

// Collection returns the records of collection `name`.
// An absent or unreadable collection is returned as an empty slice; the failure is logged, not returned.
func (s *Store) Collection(name string) []Record {
	records, _, err := s.Snapshot(name)
	if err != nil {
		s.logger.Error(fmt.Sprintf("Error retrieving %s from storage", name), err)
		return make([]Record, 0)
	}
	return records
}

// Snapshot returns the records of collection `name` with the revision they were read at.
func (s *Store) Snapshot(name string) (records []Record, rev Revision, err error) {
	defer func() { s.observe(name, "read", err) }()

	if err = checkName(name); err != nil {
		return nil, 0, err
	}
	blob, err := s.kv.Get(s.key(name))
	if err != nil {
		if errors.Cause(err) == core.ErrKeyNotFound {
			return make([]Record, 0), 0, nil
		}
		return nil, 0, errors.Wrap(err, fmt.Sprintf("reading %s", name))
	}
	records, err = decode(blob)
	if err != nil {
		return nil, 0, err
	}
	return records, revisionOf(blob, true), nil
}

// Revision returns the current revision of collection `name`.
func (s *Store) Revision(name string) (Revision, error) {
	_, rev, err := s.Snapshot(name)
	return rev, err
}

// SaveCollection replaces collection `name` with records.
func (s *Store) SaveCollection(name string, records []Record) (err error) {
	defer func() { s.observe(name, "write", err) }()

	if err = checkName(name); err != nil {
		return err
	}
	blob, err := encode(records)
	if err != nil {
		return err
	}
	if err = s.kv.Set(s.key(name), blob); err != nil {
		s.logger.Error(fmt.Sprintf("Error saving %s to storage", name), err)
		return errors.Wrap(err, fmt.Sprintf("saving %s", name))
	}
	return nil
}

// SaveCollectionIf replaces collection `name` with records only if it is still at revision `rev`.
// It returns ErrConflict when the collection changed since `rev` was read.
func (s *Store) SaveCollectionIf(name string, records []Record, rev Revision) (err error) {
	defer func() { s.observe(name, "write", err) }()

	if err = checkName(name); err != nil {
		return err
	}
	blob, err := encode(records)
	if err != nil {
		return err
	}
	err = s.kv.Update(s.key(name), func(current string, exists bool) (string, error) {
		if revisionOf(current, exists) != rev {
			return "", ErrConflict
		}
		return blob, nil
	})
	if err != nil && err != ErrConflict {
		s.logger.Error(fmt.Sprintf("Error saving %s to storage", name), err)
		return errors.Wrap(err, fmt.Sprintf("saving %s", name))
	}
	return err
}

// mutate applies fn to the records of collection `name` inside one atomic update.
// fn returns ErrNoChange to skip the write. Errors returned by fn are passed through as is.
func (s *Store) mutate(name string, fn func([]Record) ([]Record, error)) error {
	if err := checkName(name); err != nil {
		return err
	}
	var fnErr error
	err := s.kv.Update(s.key(name), func(current string, exists bool) (string, error) {
		records := make([]Record, 0)
		if exists {
			var err error
			if records, err = decode(current); err != nil {
				return "", err
			}
		}
		if records, fnErr = fn(records); fnErr != nil {
			return "", fnErr
		}
		return encode(records)
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil && err == fnErr:
		return err
	case errors.Cause(err) == ErrCorrupt:
		s.logger.Error(fmt.Sprintf("Refusing to overwrite corrupt %s collection", name), err)
		return err
	default:
		s.logger.Error(fmt.Sprintf("Error saving %s to storage", name), err)
		return errors.Wrap(err, fmt.Sprintf("saving %s", name))
	}
}

// Add appends rec to collection `name` and returns it unchanged.
// Identifier uniqueness is not checked.
func (s *Store) Add(name string, rec Record) (_ Record, err error) {
	defer func() { s.observe(name, "add", err) }()

	if rec.ID() == "" {
		return nil, ErrInvalidRecord
	}
	err = s.mutate(name, func(records []Record) ([]Record, error) {
		return append(records, rec.Clone()), nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update shallow-merges partial over the first record of collection `name` with the given id.
// It returns the merged record, or ErrNotFound leaving the collection untouched.
// The id of the record cannot be changed.
func (s *Store) Update(name, id string, partial Record) (_ Record, err error) {
	defer func() { s.observe(name, "update", err) }()

	var merged Record
	err = s.mutate(name, func(records []Record) ([]Record, error) {
		for i, rec := range records {
			if rec.ID() == id {
				merged = rec.Merge(partial)
				merged[IDField] = id
				records[i] = merged
				return records, nil
			}
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return merged.Clone(), nil
}

// Delete removes the records with the given id from collection `name`.
// It reports whether any record was removed; the collection is only rewritten if so.
func (s *Store) Delete(name, id string) (_ bool, err error) {
	defer func() { s.observe(name, "delete", err) }()

	err = s.mutate(name, func(records []Record) ([]Record, error) {
		kept := records[:0]
		for _, rec := range records {
			if rec.ID() != id {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(records) {
			return nil, ErrNoChange
		}
		return kept, nil
	})
	if err == ErrNoChange {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the first record of collection `name` with the given id, or ErrNotFound.
func (s *Store) Get(name, id string) (Record, error) {
	records, _, err := s.Snapshot(name)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// Clear removes collection `name` from the substrate.
func (s *Store) Clear(name string) (err error) {
	defer func() { s.observe(name, "clear", err) }()

	if err = checkName(name); err != nil {
		return err
	}
	return errors.Wrap(s.kv.Delete(s.key(name)), fmt.Sprintf("clearing %s", name))
}

// Collections lists the names of the collections present in the substrate.
func (s *Store) Collections() ([]string, error) {
	keys, err := s.kv.Keys(s.prefix)
	if err != nil {
		return nil, errors.Wrap(err, "listing collections")
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, s.prefix))
	}
	sort.Strings(names)
	return names, nil
}

// IsKnownCollection reports whether name is one of AllCollections.
func IsKnownCollection(name string) bool {
	for _, c := range AllCollections {
		if c == name {
			return true
		}
	}
	return false
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
