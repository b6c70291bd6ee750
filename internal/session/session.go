// Package session holds the unlocked wallet password for the lifetime of
// the router process.
//
// On Linux the password is kept in an anonymous mmap region outside the Go
// heap, locked against swap where the kernel allows it and excluded from
// core dumps. Other platforms use a heap buffer. Lock zeroes and releases
// it. Nothing here ever touches disk; only
// the keystore.UnlockSecret verifier is persisted.
package session

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/keystore"
	"github.com/GriffinCanCode/walletbridge/internal/shared/id"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrWrongPassword    = errors.New("wrong password")
	ErrEmptyPassword    = errors.New("password cannot be empty")
)

// SecretStore persists the unlock verifier
type SecretStore interface {
	Load() (*keystore.UnlockSecret, error)
	Save(*keystore.UnlockSecret) error
}

// FileStore keeps the verifier in a single JSON file
type FileStore struct {
	Path string
}

// Load implements SecretStore
func (f FileStore) Load() (*keystore.UnlockSecret, error) {
	return keystore.LoadUnlockSecret(f.Path)
}

// Save implements SecretStore
func (f FileStore) Save(s *keystore.UnlockSecret) error {
	return keystore.SaveUnlockSecret(f.Path, s)
}

// Session is the volatile password cache
type Session struct {
	store    SecretStore
	strength keystore.Strength
	logger   *zap.Logger

	// serializes Unlock so the first verifier is created exactly once
	unlockMu sync.Mutex

	mu     sync.Mutex
	id     id.SessionID
	buffer []byte
	length int
}

// New creates a locked session
func New(store SecretStore, strength keystore.Strength, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		store:    store,
		strength: strength,
		logger:   logger.Named("session"),
	}
}

// Unlock verifies password against the stored verifier and caches it.
// The first unlock on a fresh install creates the verifier. The caller's
// slice is zeroed in every case.
func (s *Session) Unlock(password []byte) (id.SessionID, error) {
	defer clear(password)

	if len(password) == 0 {
		return "", ErrEmptyPassword
	}

	s.unlockMu.Lock()
	defer s.unlockMu.Unlock()

	secret, err := s.store.Load()
	switch {
	case errors.Is(err, os.ErrNotExist):
		secret, err = keystore.NewUnlockSecret(password, s.strength)
		if err != nil {
			return "", fmt.Errorf("failed to derive unlock secret: %w", err)
		}
		if err := s.store.Save(secret); err != nil {
			return "", fmt.Errorf("failed to persist unlock secret: %w", err)
		}
		s.logger.Info("Created unlock secret")
	case err != nil:
		return "", fmt.Errorf("failed to load unlock secret: %w", err)
	default:
		ok, err := secret.Verify(password)
		if err != nil {
			return "", fmt.Errorf("failed to verify password: %w", err)
		}
		if !ok {
			return "", ErrWrongPassword
		}
	}

	return s.cache(password)
}

// Password returns a heap copy of the cached password.
// Caller must zero the returned slice after use for security.
func (s *Session) Password() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer == nil {
		return nil, ErrNotAuthenticated
	}
	out := make([]byte, s.length)
	copy(out, s.buffer[:s.length])
	return out, nil
}

// Authenticated reports whether a password is cached
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer != nil
}

// ID returns the current session id, empty while locked
func (s *Session) ID() id.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Lock zeroes and releases the cached password. Safe to call repeatedly.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Session) cache(password []byte) (id.SessionID, error) {
	region, err := allocSecret(len(password), s.logger)
	if err != nil {
		return "", fmt.Errorf("session: secure alloc failed: %w", err)
	}
	copy(region, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.buffer = region
	s.length = len(password)
	s.id = id.NewSessionID()
	s.logger.Info("Session unlocked", zap.String("session_id", s.id.String()))
	return s.id, nil
}

func (s *Session) releaseLocked() {
	if s.buffer == nil {
		return
	}
	freeSecret(s.buffer, s.logger)
	s.logger.Info("Session locked", zap.String("session_id", s.id.String()))
	s.buffer = nil
	s.length = 0
	s.id = ""
}
