package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	appLog "studycal/internal/log"
	"studycal/internal/model"
)

// Storage keys. The names match the original widget's localStorage keys
// so an exported collection stays recognizable.
const (
	eventsKey = "studyEvents"
	themeKey  = "calendarTheme"
	accentKey = "calendarAccent"
)

var bucketName = []byte("studycal")

// KV is the key-value boundary the store persists through. Get returns
// (nil, nil) for an absent key.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// Store owns the in-memory event collection and mirrors every accepted
// mutation to the underlying KV as one serialized blob under a single key.
type Store struct {
	mu     sync.RWMutex
	kv     KV
	closer func() error
	events []model.Event
}

// New loads the collection from kv and returns a ready store. A missing
// key or malformed blob degrades to an empty collection; startup never
// fails on bad stored data.
func New(kv KV) *Store {
	s := &Store{kv: kv}
	s.events = loadEvents(kv)
	return s
}

// Open opens (or creates) a bbolt database at path and returns a store
// backed by it.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	s := New(boltKV{db: db})
	s.closer = db.Close
	return s, nil
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func loadEvents(kv KV) []model.Event {
	data, err := kv.Get(eventsKey)
	if err != nil {
		appLog.Error("store: read failed; starting with empty collection", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		appLog.Error("store: malformed collection; starting empty", err)
		return nil
	}
	return events
}

// Events returns a copy of the collection in insertion order. Consumers
// must sort/filter themselves; the collection is never kept date-sorted.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Append validates ev, assigns an ID if absent, appends it to the
// collection and persists the whole collection. On validation or persist
// failure neither memory nor the KV is mutated.
func (s *Store) Append(ev model.Event) (model.Event, error) {
	if err := model.Validate(ev); err != nil {
		return model.Event{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(append([]model.Event{}, s.events...), ev)
	if err := s.persist(next); err != nil {
		return model.Event{}, err
	}
	s.events = next
	return ev, nil
}

// AppendBatch appends a pre-validated batch (e.g. an ICS import) with a
// single persist. Invalid entries fail the whole batch; callers that want
// per-item skipping validate before calling.
func (s *Store) AppendBatch(evs []model.Event) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}
	for i := range evs {
		if err := model.Validate(evs[i]); err != nil {
			return 0, err
		}
		if evs[i].ID == "" {
			evs[i].ID = uuid.NewString()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(append([]model.Event{}, s.events...), evs...)
	if err := s.persist(next); err != nil {
		return 0, err
	}
	s.events = next
	return len(evs), nil
}

// persist writes the full collection under the single events key. The
// caller holds s.mu.
func (s *Store) persist(events []model.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("store: marshal collection: %w", err)
	}
	if err := s.kv.Put(eventsKey, data); err != nil {
		return fmt.Errorf("store: persist collection: %w", err)
	}
	return nil
}

// Theme returns the persisted theme and accent color, empty when unset.
func (s *Store) Theme() (theme, accent string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, err := s.kv.Get(themeKey); err == nil {
		theme = string(data)
	}
	if data, err := s.kv.Get(accentKey); err == nil {
		accent = string(data)
	}
	return theme, accent
}

// SetTheme persists the theme and accent color.
func (s *Store) SetTheme(theme, accent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Put(themeKey, []byte(theme)); err != nil {
		return err
	}
	return s.kv.Put(accentKey, []byte(accent))
}

// boltKV adapts a bbolt database to the KV boundary. Every Put is a
// single transaction, so the collection overwrite is atomic.
type boltKV struct {
	db *bbolt.DB
}

func (b boltKV) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, err
}

func (b boltKV) Put(key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
}
