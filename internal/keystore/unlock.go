package keystore

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// UnlockSecret is the persisted verifier for the app-unlock password.
// The password itself is never stored.
type UnlockSecret struct {
	Hash []byte
	KDF  ScryptParams
}

type unlockWire struct {
	Hash      string     `json:"hash"`
	Salt      string     `json:"salt"`
	KDFParams scryptWire `json:"kdfParams"`
}

// NewUnlockSecret derives a verifier for password with a fresh salt
func NewUnlockSecret(password []byte, strength Strength) (*UnlockSecret, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	params := ScryptParams{
		N:     strength.ScryptN(),
		R:     scryptR,
		P:     scryptP,
		DKLen: derivedKeyLen,
		Salt:  salt,
	}
	hash, err := params.deriveKey(password)
	if err != nil {
		return nil, err
	}
	return &UnlockSecret{Hash: hash, KDF: params}, nil
}

// Verify re-derives the hash and compares it byte-for-byte
func (s *UnlockSecret) Verify(password []byte) (bool, error) {
	if err := s.KDF.validate(); err != nil {
		return false, err
	}
	hash, err := s.KDF.deriveKey(password)
	if err != nil {
		return false, err
	}
	defer clear(hash)
	return subtle.ConstantTimeCompare(hash, s.Hash) == 1, nil
}

// MarshalJSON implements json.Marshaler
func (s *UnlockSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(unlockWire{
		Hash: hex.EncodeToString(s.Hash),
		Salt: hex.EncodeToString(s.KDF.Salt),
		KDFParams: scryptWire{
			N:     s.KDF.N,
			R:     s.KDF.R,
			P:     s.KDF.P,
			DKLen: s.KDF.DKLen,
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (s *UnlockSecret) UnmarshalJSON(data []byte) error {
	var w unlockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("failed to unmarshal unlock secret: %w", err)
	}
	hash, err := decodeHex("hash", w.Hash)
	if err != nil {
		return err
	}
	salt, err := decodeHex("salt", w.Salt)
	if err != nil {
		return err
	}
	s.Hash = hash
	s.KDF = ScryptParams{
		N:     w.KDFParams.N,
		R:     w.KDFParams.R,
		P:     w.KDFParams.P,
		DKLen: w.KDFParams.DKLen,
		Salt:  salt,
	}
	return s.KDF.validate()
}

// SaveUnlockSecret writes the secret atomically with owner-only permissions
func SaveUnlockSecret(path string, s *UnlockSecret) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal unlock secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create secret directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".unlock-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write unlock secret: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install unlock secret: %w", err)
	}
	return nil
}

// LoadUnlockSecret reads a secret written by SaveUnlockSecret. A missing
// file is reported with an error satisfying errors.Is(err, os.ErrNotExist).
func LoadUnlockSecret(path string) (*UnlockSecret, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s UnlockSecret
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
