package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"productchain/storage"
)

// Manager is the shared persistence layer for the native commerce modules. It
// stages all writes in an overlay on top of the backing key-value store so a
// multi-step operation can be reverted wholesale, and commits the overlay in
// one pass. Values are codec'd as JSON.
type Manager struct {
	db      storage.Database
	overlay map[string]overlayEntry
	journal []journalRecord
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

type journalRecord struct {
	key  string
	prev overlayEntry
	had  bool
}

var errNilDatabase = errors.New("state: database not configured")

// NewManager wraps the provided database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string]overlayEntry),
	}
}

// KVGet loads the value stored under key into out. The boolean reports whether
// the key exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	if entry, ok := m.overlay[string(key)]; ok {
		if entry.deleted {
			return false, nil
		}
		if out != nil {
			if err := json.Unmarshal(entry.value, out); err != nil {
				return false, fmt.Errorf("state: decode %q: %w", key, err)
			}
		}
		return true, nil
	}
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("state: decode %q: %w", key, err)
		}
	}
	return true, nil
}

// KVPut stores value under key in the overlay.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	m.record(string(key))
	m.overlay[string(key)] = overlayEntry{value: raw}
	return nil
}

// KVDelete removes key in the overlay.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.record(string(key))
	m.overlay[string(key)] = overlayEntry{deleted: true}
	return nil
}

func (m *Manager) record(key string) {
	prev, had := m.overlay[key]
	m.journal = append(m.journal, journalRecord{key: key, prev: prev, had: had})
}

// Snapshot marks the current overlay position. The returned id is only valid
// until the next Commit.
func (m *Manager) Snapshot() int {
	if m == nil {
		return 0
	}
	return len(m.journal)
}

// RevertToSnapshot unwinds every overlay write made after the snapshot was
// taken, leaving earlier staged writes intact.
func (m *Manager) RevertToSnapshot(id int) {
	if m == nil || id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		rec := m.journal[i]
		if rec.had {
			m.overlay[rec.key] = rec.prev
		} else {
			delete(m.overlay, rec.key)
		}
	}
	m.journal = m.journal[:id]
}

// Commit flushes the overlay to the backing database and clears the journal.
func (m *Manager) Commit() error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	for key, entry := range m.overlay {
		if entry.deleted {
			if err := m.db.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := m.db.Put([]byte(key), entry.value); err != nil {
			return err
		}
	}
	m.overlay = make(map[string]overlayEntry)
	m.journal = nil
	return nil
}
