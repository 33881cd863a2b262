// Package credstore persists the bearer token and the cached user profile
// across client restarts. It is the local analogue of browser storage: two
// string-keyed entries in one file, always written and cleared together.
package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/quantboard/dashboard-client/internal/logging"
)

// fileFormat is the on-disk layout. Token and user travel in one document
// so they cannot be persisted independently.
type fileFormat struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

// Store is a mutex-guarded credential store backed by a single file.
type Store struct {
	mu    sync.Mutex
	path  string
	token string
	user  json.RawMessage
	log   *logging.Logger
}

// Open loads the store at path. A missing or corrupt file degrades to an
// empty store; corruption is logged, not surfaced, since the recovery in
// either case is a fresh sign-in.
func Open(path string, log *logging.Logger) *Store {
	if log == nil {
		log = logging.NewDefault("credstore")
	}
	s := &Store{path: path, log: log}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("credential file unreadable, starting empty")
		}
		return s
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		log.WithError(err).Warn("credential file corrupt, starting empty")
		return s
	}

	s.token = f.Token
	s.user = f.User
	return s
}

// Save persists the token and user profile together. Both the in-memory
// state and the file are updated before Save returns.
func (s *Store) Save(token string, user json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(fileFormat{Token: token, User: user})
	if err != nil {
		return err
	}
	if err := s.writeFile(data); err != nil {
		return err
	}

	s.token = token
	s.user = user
	return nil
}

// writeFile writes via a temp file and rename so a crash mid-write never
// leaves a half-written credential file. Caller holds the lock.
func (s *Store) writeFile(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Token returns the stored bearer token, or "".
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the cached user profile JSON, or nil.
func (s *Store) User() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Snapshot returns token and user as one consistent read.
func (s *Store) Snapshot() (string, json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.user
}

// HasToken reports whether a token is stored.
func (s *Store) HasToken() bool {
	return s.Token() != ""
}

// Clear removes all credentials. Idempotent: clearing an empty store
// succeeds.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.user = nil

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DefaultPath returns the credential file location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "quantboard", "credentials.json"), nil
}
