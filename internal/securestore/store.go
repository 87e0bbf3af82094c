package securestore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Slot names one of the session credential secrets.
type Slot string

const (
	SlotPrivateKey      Slot = "client_private_key"
	SlotServerPublicKey Slot = "server_public_key"
	SlotBearerToken     Slot = "bearer_token"
)

// sessionSlots is the credential set cleared as a unit on logout.
var sessionSlots = []Slot{SlotPrivateKey, SlotServerPublicKey, SlotBearerToken}

var ErrNotConfigured = errors.New("securestore is not configured")

// Store persists secrets as individually encrypted files under a private
// directory. Session slots form an atomic credential set; gated entries
// additionally require user-presence verification to read.
type Store struct {
	mu       sync.Mutex
	dir      string
	secret   string
	verifier PresenceVerifier
	logger   *slog.Logger
}

type Option func(*Store)

func WithPresenceVerifier(v PresenceVerifier) Option {
	return func(s *Store) { s.verifier = v }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func Open(dir, secret string, opts ...Option) (*Store, error) {
	dir = strings.TrimSpace(dir)
	secret = strings.TrimSpace(secret)
	if dir == "" || secret == "" {
		return nil, ErrNotConfigured
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("securestore: %w", err)
	}
	s := &Store{dir: dir, secret: secret, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Put(slot Slot, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(string(slot), []byte(value))
}

// Get returns the stored value, or "" when the slot is empty. A read that
// hits undecodable material clears the whole session credential set and
// reports a miss: a corrupt key deterministically fails every subsequent
// call, so it must never be handed back out.
func (s *Store) Get(slot Slot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := s.readLocked(string(slot))
	if err == nil {
		return string(value), nil
	}
	if isCorruption(err) {
		s.logger.Warn("securestore slot unreadable, clearing session credentials",
			"slot", string(slot))
		s.clearSessionLocked()
		return "", nil
	}
	return "", err
}

func (s *Store) Clear(slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(string(slot))
}

// ClearAll wipes the session credential set. Per-slot failures are logged
// and swallowed; a partially corrupt store must still reset fully.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSessionLocked()
}

func (s *Store) HasCompleteSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range sessionSlots {
		value, err := s.readLocked(string(slot))
		if err != nil || len(value) == 0 {
			return false
		}
	}
	return true
}

func (s *Store) clearSessionLocked() {
	for _, slot := range sessionSlots {
		if err := s.removeLocked(string(slot)); err != nil {
			s.logger.Warn("securestore clear failed", "slot", string(slot), "error", err)
		}
	}
}

func (s *Store) writeLocked(name string, plaintext []byte) error {
	sealed, err := sealValue(s.secret, plaintext)
	if err != nil {
		return fmt.Errorf("securestore write %s: %w", name, err)
	}
	if err := os.WriteFile(s.path(name), sealed, 0o600); err != nil {
		return fmt.Errorf("securestore write %s: %w", name, err)
	}
	return nil
}

func (s *Store) readLocked(name string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("securestore read %s: %w", name, err)
	}
	value, err := openValue(s.secret, raw)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) removeLocked(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("securestore clear %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".sec")
}
