// Package cooldown implements the persistent, JSON-backed cooldown store: a
// time-bounded block on re-entering a symbol/direction after a stop-out.
// Cooldowns must survive process restarts.
package cooldown

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one active cooldown.
type Entry struct {
	ExpiresAt time.Time `json:"expires_at"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
}

type fileSchema map[string]map[string]Entry // symbol -> direction -> entry

// Store is the locked, JSON-persisted cooldown map.
type Store struct {
	mu       sync.Mutex
	path     string
	entries  map[string]map[string]Entry
}

// Open loads cooldowns from path, retaining only future-expiring entries. A
// missing file is not an error — it starts empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]map[string]Entry)}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var raw fileSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("cooldown: failed to parse store, starting empty")
		return
	}
	now := time.Now()
	loaded := make(map[string]map[string]Entry)
	var count int
	for symbol, dirs := range raw {
		for dir, e := range dirs {
			if e.ExpiresAt.After(now) {
				if loaded[symbol] == nil {
					loaded[symbol] = make(map[string]Entry)
				}
				loaded[symbol][dir] = e
				count++
			}
		}
	}
	s.entries = loaded
	log.Info().Int("count", count).Str("path", s.path).Msg("cooldown: loaded active cooldowns")
}

// saveLocked writes only future-expiring entries, synchronously.
func (s *Store) saveLocked() error {
	now := time.Now()
	out := make(fileSchema)
	for symbol, dirs := range s.entries {
		for dir, e := range dirs {
			if e.ExpiresAt.After(now) {
				if out[symbol] == nil {
					out[symbol] = make(map[string]Entry)
				}
				out[symbol][dir] = e
			}
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Add records a cooldown and persists immediately.
func (s *Store) Add(symbol, direction string, price float64, reason string, hours float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[symbol] == nil {
		s.entries[symbol] = make(map[string]Entry)
	}
	s.entries[symbol][direction] = Entry{
		ExpiresAt: time.Now().Add(time.Duration(hours * float64(time.Hour))),
		Price:     price,
		Reason:    reason,
	}
	return s.saveLocked()
}

// IsActive returns the entry if it has not expired. An expired entry is
// lazily deleted on read, but the write is not forced — the next Add/Clear
// will persist the cleanup.
func (s *Store) IsActive(symbol, direction string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirs, ok := s.entries[symbol]
	if !ok {
		return Entry{}, false
	}
	e, ok := dirs[direction]
	if !ok {
		return Entry{}, false
	}
	if !e.ExpiresAt.After(time.Now()) {
		delete(dirs, direction)
		return Entry{}, false
	}
	return e, true
}

// Clear removes a cooldown and persists immediately.
func (s *Store) Clear(symbol, direction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dirs, ok := s.entries[symbol]; ok {
		delete(dirs, direction)
	}
	return s.saveLocked()
}
