package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStaysInsideAppDir(t *testing.T) {
	root := t.TempDir()
	appDir := filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(appDir, "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "js", "main.js"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("key"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "secret.txt"), filepath.Join(appDir, "leak.txt")))

	assets, err := NewAssets(appDir)
	require.NoError(t, err)

	tests := []struct {
		name  string
		asset string
		ok    bool
	}{
		{"plain file", "index.html", true},
		{"leading slash", "/index.html", true},
		{"nested", "js/main.js", true},
		{"dot segments inside", "js/../index.html", true},
		{"parent traversal", "../secret.txt", false},
		{"deep traversal", "../../etc/passwd", false},
		{"symlink escape", "leak.txt", false},
		{"directory", "js", false},
		{"missing", "nope.js", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assets.Resolve(tt.asset)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrAssetNotFound)
			}
		})
	}
}

func TestOpenDetectsContentType(t *testing.T) {
	dir := writeApp(t, map[string]string{
		"index.html": "<html><body></body></html>",
		"app.js":     "console.log(1)",
		"data.bin":   "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
	})
	assets, err := NewAssets(dir)
	require.NoError(t, err)

	html, err := assets.Open("index.html")
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", html.ContentType)
	assert.Equal(t, "index.html", html.Name)

	js, err := assets.Open("app.js")
	require.NoError(t, err)
	assert.Equal(t, "text/javascript; charset=utf-8", js.ContentType)

	png, err := assets.Open("data.bin")
	require.NoError(t, err)
	assert.Equal(t, "image/png", png.ContentType)
}

func TestOpenLimitChecksSizeBeforeReading(t *testing.T) {
	dir := writeApp(t, map[string]string{"blob.bin": "0123456789"})
	assets, err := NewAssets(dir)
	require.NoError(t, err)

	_, err = assets.OpenLimit("blob.bin", 9)
	assert.ErrorIs(t, err, ErrAssetTooLarge)

	asset, err := assets.OpenLimit("blob.bin", 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(asset.Data))
}

func TestNewAssetsRequiresDirectory(t *testing.T) {
	_, err := NewAssets(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://solana.miniapp.local", Origin("solana"))

	appID, ok := AppIDFromOrigin("https://solana.miniapp.local/index.html")
	assert.True(t, ok)
	assert.Equal(t, "solana", appID)

	_, ok = AppIDFromOrigin("http://solana.miniapp.local")
	assert.False(t, ok)
	_, ok = AppIDFromOrigin("https://evil.example.com")
	assert.False(t, ok)
}
