// Package store persists the bot's message archive and per-unit key-value
// data in a local leveldb database. It backs the storage collaborator exposed
// to handler units.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/util"
)

// Message is a single archived chat message.
type Message struct {
	ID      string    `json:"id"`
	RoomID  string    `json:"room_id"`
	Sender  string    `json:"sender"`
	Kind    string    `json:"kind"`
	Body    string    `json:"body"`
	Time    time.Time `json:"time"`
	FromBot bool      `json:"from_bot,omitempty"`
}

// Stats summarises the store contents.
type Stats struct {
	Messages  uint64
	Keys      uint64
	SizeBytes int64
	UpdatedAt time.Time
}

// Store is a leveldb-backed record store. Keys are namespaced: "m/" holds
// archived messages, "u/<unit>/" holds per-unit key-value data and "s/" holds
// internal counters.
type Store struct {
	db  *leveldb.DB
	log *slog.Logger

	mu     sync.Mutex
	closed bool
}

const (
	messagePrefix = "m/"
	unitPrefix    = "u/"
	statePrefix   = "s/"
)

// Open opens or creates the store in the provided directory.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return &Store{db: db, log: log.With("subsystem", "store")}, nil
}

// PutMessage archives a message. The key orders messages by room and time so
// per-room scans stay cheap.
func (s *Store) PutMessage(_ context.Context, m Message) error {
	if err := s.ok(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	key := fmt.Sprintf("%s%s/%020d/%s", messagePrefix, m.RoomID, m.Time.UnixNano(), m.ID)
	if err := s.db.Put([]byte(key), payload, nil); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	s.bump("s/messages")
	return nil
}

// Messages returns up to limit archived messages for a room, oldest first.
func (s *Store) Messages(_ context.Context, roomID string, limit int) ([]Message, error) {
	if err := s.ok(); err != nil {
		return nil, err
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(messagePrefix+roomID+"/")), nil)
	defer iter.Release()

	var out []Message
	for iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var m Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			s.log.Warn("Skip undecodable archived message.", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// Stats summarises the store contents.
func (s *Store) Stats(_ context.Context) (Stats, error) {
	if err := s.ok(); err != nil {
		return Stats{}, err
	}
	stats := Stats{Messages: s.counter("s/messages"), UpdatedAt: time.Now()}

	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		stats.Keys++
		stats.SizeBytes += int64(len(iter.Key()) + len(iter.Value()))
	}
	return stats, iter.Error()
}

// Healthy performs a write/read round-trip and reports an error if the store
// is unavailable.
func (s *Store) Healthy(_ context.Context) error {
	if err := s.ok(); err != nil {
		return err
	}
	probe := []byte(statePrefix + "health")
	stamp := []byte(time.Now().Format(time.RFC3339Nano))
	if err := s.db.Put(probe, stamp, nil); err != nil {
		return fmt.Errorf("health probe write: %w", err)
	}
	got, err := s.db.Get(probe, nil)
	if err != nil {
		return fmt.Errorf("health probe read: %w", err)
	}
	if string(got) != string(stamp) {
		return errors.New("health probe mismatch")
	}
	return nil
}

// Bucket returns a key-value view scoped to the named unit's own keyspace.
func (s *Store) Bucket(unit string) *Bucket {
	return &Bucket{store: s, prefix: unitPrefix + unit + "/"}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) ok() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("record store closed")
	}
	return nil
}

func (s *Store) bump(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	n := uint64(0)
	if raw, err := s.db.Get([]byte(key), nil); err == nil && len(raw) == 8 {
		n = binary.BigEndian.Uint64(raw)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n+1)
	if err := s.db.Put([]byte(key), buf, nil); err != nil {
		s.log.Warn("Update counter.", "key", key, "error", err)
	}
}

func (s *Store) counter(key string) uint64 {
	raw, err := s.db.Get([]byte(key), nil)
	if err != nil || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// Bucket is a unit-scoped key-value view over the store.
type Bucket struct {
	store  *Store
	prefix string
}

// Put stores value under key inside the bucket.
func (b *Bucket) Put(_ context.Context, key string, value []byte) error {
	if err := b.store.ok(); err != nil {
		return err
	}
	return b.store.db.Put([]byte(b.prefix+key), value, nil)
}

// Get returns the value stored under key. The bool reports presence.
func (b *Bucket) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := b.store.ok(); err != nil {
		return nil, false, err
	}
	value, err := b.store.db.Get([]byte(b.prefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes the value stored under key, if any.
func (b *Bucket) Delete(_ context.Context, key string) error {
	if err := b.store.ok(); err != nil {
		return err
	}
	return b.store.db.Delete([]byte(b.prefix+key), nil)
}
