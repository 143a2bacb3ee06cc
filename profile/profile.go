// Package profile persists per-user preferences and memories in a single
// JSON document. The document is the unit of durability: every mutation
// rewrites the whole file before returning.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotLoaded is returned by mutating calls before Load has succeeded.
// Read paths never return it; they degrade to the default profile instead.
var ErrNotLoaded = errors.New("profile store not loaded")

// Profile holds one user's preferences and memories.
// ManualMemory holds facts the user taught explicitly; AutoMemory holds
// facts extracted in the background. On key collision manual wins, both
// at write time (SetMemory refuses auto overwrites) and at read time
// (MergedMemory).
type Profile struct {
	Tone          string            `json:"tone,omitempty"`
	Persona       string            `json:"persona,omitempty"`
	MemoryEnabled bool              `json:"memory_enabled"`
	ManualMemory  map[string]string `json:"manual_memory"`
	AutoMemory    map[string]string `json:"auto_memory"`
}

// Fields is a partial profile update. Nil fields are left unchanged.
type Fields struct {
	Tone          *string
	Persona       *string
	MemoryEnabled *bool
}

// MergedMemory returns the union of both memory maps with manual entries
// overriding automatic ones on key collision.
func (p Profile) MergedMemory() map[string]string {
	merged := make(map[string]string, len(p.ManualMemory)+len(p.AutoMemory))
	for k, v := range p.AutoMemory {
		merged[k] = v
	}
	for k, v := range p.ManualMemory {
		merged[k] = v
	}
	return merged
}

func defaultProfile() Profile {
	return Profile{
		MemoryEnabled: true,
		ManualMemory:  make(map[string]string),
		AutoMemory:    make(map[string]string),
	}
}

// Store is a write-through JSON-backed table of user profiles.
// Safe for concurrent use; writes to different users still serialize on
// the document write, which is the documented durability granularity.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	users  map[string]*Profile
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

// New creates a Store for the given document path. No I/O happens until Load.
func New(path string) *Store {
	return &Store{
		path:  expandPath(path),
		users: make(map[string]*Profile),
	}
}

// Load reads the document from disk. Idempotent: a second call is a no-op.
// A missing file is not an error; the store starts empty and creates the
// file on the first write.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read profile document: %w", err)
	}

	users := make(map[string]*Profile)
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("decode profile document: %w", err)
	}
	for _, p := range users {
		if p.ManualMemory == nil {
			p.ManualMemory = make(map[string]string)
		}
		if p.AutoMemory == nil {
			p.AutoMemory = make(map[string]string)
		}
	}
	s.users = users
	s.loaded = true
	return nil
}

// Get returns the user's profile with defaults applied. Unseen users get
// a fresh default profile without anything being written to storage; an
// unloaded store returns the same default, so readers never fail.
func (s *Store) Get(userID string) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return defaultProfile()
	}
	p, ok := s.users[userID]
	if !ok {
		return defaultProfile()
	}
	return clone(p)
}

// SetFields applies a partial update and persists the document.
func (s *Store) SetFields(userID string, f Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		slog.Error("profile store not loaded, dropping field update", "user_id", userID)
		return ErrNotLoaded
	}

	p := s.ensureLocked(userID)
	if f.Tone != nil {
		p.Tone = *f.Tone
	}
	if f.Persona != nil {
		p.Persona = *f.Persona
	}
	if f.MemoryEnabled != nil {
		p.MemoryEnabled = *f.MemoryEnabled
	}
	return s.persistLocked()
}

// SetMemory stores one key/value fact. Automatic writes (manual=false)
// never overwrite an existing manual entry for the same key; such a call
// reports wrote=false and leaves the document untouched.
func (s *Store) SetMemory(userID, key, value string, manual bool) (wrote bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		slog.Error("profile store not loaded, dropping memory write", "user_id", userID, "key", key)
		return false, ErrNotLoaded
	}

	p := s.ensureLocked(userID)
	if manual {
		p.ManualMemory[key] = value
	} else {
		if _, exists := p.ManualMemory[key]; exists {
			return false, nil
		}
		p.AutoMemory[key] = value
	}
	if err := s.persistLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveMemory deletes the key from the manual map first, then the
// automatic map. Returns whether a deletion occurred.
func (s *Store) RemoveMemory(userID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		slog.Error("profile store not loaded, dropping memory removal", "user_id", userID, "key", key)
		return false, ErrNotLoaded
	}

	p, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	if _, exists := p.ManualMemory[key]; exists {
		delete(p.ManualMemory, key)
		return true, s.persistLocked()
	}
	if _, exists := p.AutoMemory[key]; exists {
		delete(p.AutoMemory, key)
		return true, s.persistLocked()
	}
	return false, nil
}

// ClearAll resets the user to a fresh default profile.
func (s *Store) ClearAll(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		slog.Error("profile store not loaded, dropping profile reset", "user_id", userID)
		return ErrNotLoaded
	}

	if _, ok := s.users[userID]; !ok {
		return nil
	}
	delete(s.users, userID)
	return s.persistLocked()
}

// All returns a snapshot of every stored profile, keyed by user ID.
// Used by the web dashboard; an unloaded store yields an empty map.
func (s *Store) All() map[string]Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Profile, len(s.users))
	if !s.loaded {
		return out
	}
	for id, p := range s.users {
		out[id] = clone(p)
	}
	return out
}

// ensureLocked returns the stored profile for userID, creating a default
// one on first interaction. Caller holds s.mu.
func (s *Store) ensureLocked(userID string) *Profile {
	if p, ok := s.users[userID]; ok {
		return p
	}
	p := defaultProfile()
	s.users[userID] = &p
	return &p
}

// persistLocked writes the whole document synchronously via a temp file
// and rename, so a crash mid-write leaves the previous document intact.
// Caller holds s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write profile document: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace profile document: %w", err)
	}
	return nil
}

func clone(p *Profile) Profile {
	out := Profile{
		Tone:          p.Tone,
		Persona:       p.Persona,
		MemoryEnabled: p.MemoryEnabled,
		ManualMemory:  make(map[string]string, len(p.ManualMemory)),
		AutoMemory:    make(map[string]string, len(p.AutoMemory)),
	}
	for k, v := range p.ManualMemory {
		out.ManualMemory[k] = v
	}
	for k, v := range p.AutoMemory {
		out.AutoMemory[k] = v
	}
	return out
}
