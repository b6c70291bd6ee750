package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// testLoop queues posted work until the test goroutine drains it
type testLoop struct {
	queue chan func()
}

func newTestLoop() *testLoop {
	return &testLoop{queue: make(chan func(), 64)}
}

func (l *testLoop) Post(fn func()) bool {
	l.queue <- fn
	return true
}

// runUntil executes posted work until cond holds or the deadline passes
func (l *testLoop) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case fn := <-l.queue:
			fn()
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
}

// writeApp lays out files under a fresh app directory
func writeApp(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}
	return dir
}

func testManifest(mainPage string, pages ...string) *types.Manifest {
	return &types.Manifest{
		AppID:    "solana",
		Name:     "Solana",
		Version:  "1.0.0",
		Type:     types.AppTypeBlockchain,
		MainPage: mainPage,
		Pages:    pages,
	}
}
