// Package credstore persists model credentials issued at enrollment.
//
// The store is a single JSON object on disk mapping
// "{email}.{model_name}" to a credential pair. Sessions load
// credentials from it; only enrollment writes to it.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const storeFile = "sybl.json"

var (
	// ErrNotRegistered means the store is readable but has no entry
	// for the requested identity: the model was never enrolled.
	ErrNotRegistered = errors.New("credstore: model not registered")

	// ErrStoreInvalid means the store exists but cannot be decoded,
	// which signals misconfiguration rather than non-enrollment.
	ErrStoreInvalid = errors.New("credstore: store unreadable")
)

// Credential is one issued (model id, access token) pair.
type Credential struct {
	ModelID     string `json:"model_id"`
	AccessToken string `json:"access_token"`
}

// Store reads and writes the on-disk credential file.
type Store struct {
	path string
}

// DefaultPath places the store under the XDG data home.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, storeFile)
}

func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Key is the store key for an enrollment identity.
func Key(email, modelName string) string {
	return fmt.Sprintf("%s.%s", email, modelName)
}

// Load returns the credential for the identity, or ErrNotRegistered if
// the store (or the entry) does not exist.
func (s *Store) Load(email, modelName string) (Credential, error) {
	entries, err := s.read()
	if err != nil {
		return Credential{}, err
	}
	cred, ok := entries[Key(email, modelName)]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotRegistered, Key(email, modelName))
	}
	return cred, nil
}

// Save merges the credential into the store, creating the parent
// directory and file if missing. Existing entries for other identities
// are preserved.
func (s *Store) Save(email, modelName string, cred Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("credstore: create data dir: %w", err)
	}

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[Key(email, modelName)] = cred

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("credstore: encode store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("credstore: write store: %w", err)
	}
	return nil
}

// read loads the full store, treating an absent or empty file as {}.
func (s *Store) read() (map[string]Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Credential{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreInvalid, err)
	}
	if len(data) == 0 {
		return map[string]Credential{}, nil
	}

	var entries map[string]Credential
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreInvalid, err)
	}
	return entries, nil
}
