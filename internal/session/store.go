package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/carvik/geodex/internal/identity"
)

const sessionFileName = "session.json"

// Store persists the current identity in the user's config directory.
// One record under one well-known path, overwritten wholesale on save
// and removed entirely on clear.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore creates a store rooted at the default config location.
func NewStore() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config dir: %w", err)
	}
	return NewStoreAt(filepath.Join(dir, "geodex", sessionFileName)), nil
}

// NewStoreAt creates a store backed by an explicit file path.
func NewStoreAt(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Save writes the identity, replacing any previous session. The write
// is atomic (temp file + rename) so a crash never leaves a torn record.
func (s *Store) Save(id *identity.Identity) error {
	if id == nil {
		return errors.New("cannot save nil identity")
	}
	if id.ID == "" || id.Email == "" {
		return errors.New("refusing to save identity without id and email")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Load returns the stored identity, or nil if no valid session exists.
// An expired or unparseable record is cleared as a side effect so a
// stale identity is never handed back to the caller.
func (s *Store) Load() (*identity.Identity, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var id identity.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		log.Println("Session: stored record is malformed, clearing")
		if err := s.Clear(); err != nil {
			log.Printf("Session: %v", err)
		}
		return nil, nil
	}

	if !s.IsValid(&id) {
		log.Println("Session: stored identity expired, clearing")
		if err := s.Clear(); err != nil {
			log.Printf("Session: %v", err)
		}
		return nil, nil
	}

	return &id, nil
}

// Clear removes the stored session. Missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// IsValid reports whether the identity is usable: identities without
// an expiry never expire.
func (s *Store) IsValid(id *identity.Identity) bool {
	if id == nil {
		return false
	}
	return !id.Expired(s.now())
}
