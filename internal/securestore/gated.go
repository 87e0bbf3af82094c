package securestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("securestore entry not found")
	ErrPresenceVerification = errors.New("user presence verification failed")
	ErrEmptyKeyMaterial     = errors.New("key material is empty")
)

// PresenceVerifier performs a local user-presence check (device passcode,
// biometric prompt, terminal confirmation) before a gated secret is read.
type PresenceVerifier interface {
	Verify(ctx context.Context, reason string) error
}

// NamedKey is user-supplied secret material, such as a remote-login
// private key, stored independently of the session credential set.
type NamedKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyRef is the browsable index entry for a NamedKey. It carries no
// secret material and reading the index requires no presence check.
type KeyRef struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

const namedKeyIndexName = "named_keys_index"

func namedKeyEntryName(id string) string {
	return "named_key_" + id
}

// SaveNamedKey stores new gated key material and records it in the index.
// Write-time requires no presence check; only reads are gated.
func (s *Store) SaveNamedKey(name, secret string) (KeyRef, error) {
	if secret == "" {
		return KeyRef{}, ErrEmptyKeyMaterial
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := KeyRef{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	entry := NamedKey{ID: ref.ID, Name: ref.Name, Secret: secret, CreatedAt: ref.CreatedAt}
	raw, err := json.Marshal(entry)
	if err != nil {
		return KeyRef{}, fmt.Errorf("securestore named key: %w", err)
	}
	if err := s.writeLocked(namedKeyEntryName(ref.ID), raw); err != nil {
		return KeyRef{}, err
	}

	index, err := s.readIndexLocked()
	if err != nil {
		// The entry must not outlive a writable index.
		_ = s.removeLocked(namedKeyEntryName(ref.ID))
		return KeyRef{}, err
	}
	index = append(index, ref)
	if err := s.writeIndexLocked(index); err != nil {
		_ = s.removeLocked(namedKeyEntryName(ref.ID))
		return KeyRef{}, err
	}
	return ref, nil
}

// ListNamedKeys returns the index, newest first, without a presence check.
func (s *Store) ListNamedKeys() ([]KeyRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.readIndexLocked()
	if err != nil {
		return nil, err
	}
	sort.Slice(index, func(i, j int) bool {
		return index[i].CreatedAt.After(index[j].CreatedAt)
	})
	return index, nil
}

// GetNamedKey verifies user presence, then returns the gated entry.
func (s *Store) GetNamedKey(ctx context.Context, id string) (NamedKey, error) {
	s.mu.Lock()
	verifier := s.verifier
	s.mu.Unlock()
	if verifier == nil {
		return NamedKey{}, fmt.Errorf("%w: no verifier configured", ErrPresenceVerification)
	}
	if err := verifier.Verify(ctx, "unlock saved key"); err != nil {
		return NamedKey{}, fmt.Errorf("%w: %v", ErrPresenceVerification, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.readLocked(namedKeyEntryName(id))
	if err != nil {
		if isCorruption(err) {
			// Unreadable entries are dropped from both stores so the
			// index never points at material that cannot decode.
			_ = s.removeLocked(namedKeyEntryName(id))
			s.pruneIndexLocked(id)
			return NamedKey{}, ErrNotFound
		}
		return NamedKey{}, err
	}
	if len(raw) == 0 {
		s.pruneIndexLocked(id)
		return NamedKey{}, ErrNotFound
	}
	var entry NamedKey
	if err := json.Unmarshal(raw, &entry); err != nil {
		return NamedKey{}, fmt.Errorf("securestore named key: %w", err)
	}
	return entry, nil
}

// DeleteNamedKey removes the entry and its index row together.
func (s *Store) DeleteNamedKey(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.removeLocked(namedKeyEntryName(id)); err != nil {
		return err
	}
	return s.pruneIndexLocked(id)
}

func (s *Store) pruneIndexLocked(id string) error {
	index, err := s.readIndexLocked()
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, ref := range index {
		if ref.ID != id {
			kept = append(kept, ref)
		}
	}
	return s.writeIndexLocked(kept)
}

func (s *Store) readIndexLocked() ([]KeyRef, error) {
	raw, err := s.readLocked(namedKeyIndexName)
	if err != nil {
		if isCorruption(err) {
			s.logger.Warn("securestore named key index unreadable, resetting")
			_ = s.removeLocked(namedKeyIndexName)
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var index []KeyRef
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("securestore named key index: %w", err)
	}
	return index, nil
}

func (s *Store) writeIndexLocked(index []KeyRef) error {
	raw, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("securestore named key index: %w", err)
	}
	return s.writeLocked(namedKeyIndexName, raw)
}
