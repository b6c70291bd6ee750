package session

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/keystore"
)

func newTestSession(t *testing.T) (*Session, FileStore) {
	t.Helper()
	store := FileStore{Path: filepath.Join(t.TempDir(), "unlock.json")}
	return New(store, keystore.StrengthLight, zap.NewNop()), store
}

func TestLockedSessionHasNoPassword(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.Password()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.ID())
}

func TestFirstUnlockCreatesVerifier(t *testing.T) {
	s, store := newTestSession(t)

	input := []byte("hunter2")
	sid, err := s.Unlock(input)
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	assert.Equal(t, make([]byte, len("hunter2")), input, "caller slice must be zeroed")

	pw, err := s.Password()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(pw))

	secret, err := store.Load()
	require.NoError(t, err)
	ok, err := secret.Verify([]byte("hunter2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockVerifiesAgainstStoredSecret(t *testing.T) {
	s, store := newTestSession(t)
	_, err := s.Unlock([]byte("first"))
	require.NoError(t, err)
	s.Lock()

	restarted := New(store, keystore.StrengthLight, nil)
	_, err = restarted.Unlock([]byte("second"))
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.False(t, restarted.Authenticated())

	_, err = restarted.Unlock([]byte("first"))
	require.NoError(t, err)
	assert.True(t, restarted.Authenticated())
}

func TestLockClearsPassword(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Unlock([]byte("pw"))
	require.NoError(t, err)

	s.Lock()
	s.Lock()

	_, err = s.Password()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, s.ID())
}

func TestEmptyPasswordRejected(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Unlock(nil)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestPasswordReturnsIndependentCopy(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Unlock([]byte("abc"))
	require.NoError(t, err)

	pw, err := s.Password()
	require.NoError(t, err)
	clear(pw)

	again, err := s.Password()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

// countingStore records how many verifiers were persisted
type countingStore struct {
	FileStore
	mu    sync.Mutex
	saves int
}

func (c *countingStore) Save(secret *keystore.UnlockSecret) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.FileStore.Save(secret)
}

func TestConcurrentFirstUnlocksAgreeOnVerifier(t *testing.T) {
	store := &countingStore{FileStore: FileStore{Path: filepath.Join(t.TempDir(), "unlock.json")}}
	s := New(store, keystore.StrengthLight, zap.NewNop())

	const contenders = 6
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Unlock([]byte(fmt.Sprintf("password-%d", i)))
		}(i)
	}
	wg.Wait()

	unlocked := 0
	for _, err := range errs {
		if err == nil {
			unlocked++
			continue
		}
		assert.ErrorIs(t, err, ErrWrongPassword)
	}
	assert.Equal(t, 1, unlocked)
	assert.Equal(t, 1, store.saves)

	pw, err := s.Password()
	require.NoError(t, err)
	secret, err := store.Load()
	require.NoError(t, err)
	ok, err := secret.Verify(pw)
	require.NoError(t, err)
	assert.True(t, ok, "cached password must match the persisted verifier")
}
