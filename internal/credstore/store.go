// Package credstore keeps the last validated credentials in a small local
// file so they need not be pasted again. The file is a convenience cache
// and is safe to delete.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"promptforge/internal/keypool"
	"promptforge/internal/utils"
)

const fileVersion = 1

var (
	ErrNotFound           = errors.New("no saved credentials")
	ErrPassphraseRequired = errors.New("saved credentials are encrypted, passphrase required")
	ErrWrongPassphrase    = errors.New("cannot decrypt saved credentials, wrong passphrase")
	ErrCorrupt            = errors.New("saved credentials file is corrupt")
)

// SavedCredential is what is kept per key.
type SavedCredential struct {
	Key      string    `json:"key"`
	Status   string    `json:"status"`
	Model    string    `json:"model,omitempty"`
	LastUsed time.Time `json:"last_used,omitempty"`
}

// Snapshot is the content of the credential file.
type Snapshot struct {
	SavedAt     time.Time         `json:"saved_at"`
	Credentials []SavedCredential `json:"credentials"`
}

// Keys returns the saved keys in order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Credentials))
	for _, c := range s.Credentials {
		keys = append(keys, c.Key)
	}
	return keys
}

type fileFormat struct {
	Version   int             `json:"version"`
	Encrypted bool            `json:"encrypted"`
	KDF       *kdfParams      `json:"kdf,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Sealed    string          `json:"sealed,omitempty"`
}

// Store reads and writes the credential file at path. An empty passphrase
// stores the file in clear text with owner-only permissions.
type Store struct {
	path       string
	passphrase string
	now        func() time.Time
	logger     *utils.Logger
}

func New(path, passphrase string) *Store {
	return &Store{
		path:       path,
		passphrase: passphrase,
		now:        time.Now,
		logger:     utils.NewLogger("credstore"),
	}
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Save replaces the file with creds. Invalid credentials are not kept.
func (s *Store) Save(creds []keypool.Credential) (*Snapshot, error) {
	snap := &Snapshot{SavedAt: s.now().UTC()}
	for _, c := range creds {
		if !c.Usable() {
			continue
		}
		snap.Credentials = append(snap.Credentials, SavedCredential{
			Key:      c.Key,
			Status:   c.Status.String(),
			Model:    c.Model,
			LastUsed: c.LastUsed,
		})
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	file := fileFormat{Version: fileVersion}
	if s.passphrase == "" {
		file.Payload = payload
	} else {
		params, err := newKDFParams()
		if err != nil {
			return nil, err
		}
		enc, err := s.encryption(params)
		if err != nil {
			return nil, err
		}
		sealed, err := enc.Encrypt(payload)
		if err != nil {
			return nil, err
		}
		file.Encrypted = true
		file.KDF = &params
		file.Sealed = sealed
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return nil, err
	}

	s.logger.Info("credentials saved", "path", s.path, "count", len(snap.Credentials), "encrypted", file.Encrypted)
	return snap, nil
}

// Load reads the file. A missing file yields ErrNotFound.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if file.Version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, file.Version)
	}

	payload := []byte(file.Payload)
	if file.Encrypted {
		if s.passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		if file.KDF == nil {
			return nil, fmt.Errorf("%w: missing key derivation parameters", ErrCorrupt)
		}
		enc, err := s.encryption(*file.KDF)
		if err != nil {
			return nil, err
		}
		payload, err = enc.Decrypt(file.Sealed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &snap, nil
}

// Clear deletes the file. Deleting a missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) encryption(params kdfParams) (*Encryption, error) {
	key, err := params.derive(s.passphrase)
	if err != nil {
		return nil, err
	}
	return NewEncryption(key)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
