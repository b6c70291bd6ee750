package sandbox

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

// webTypes covers text assets that content sniffing reports as text/plain
var webTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".mjs":  "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".wasm": "application/wasm",
}

// Asset is a resolved file under an app's install directory
type Asset struct {
	Path        string // canonical absolute path
	Name        string // slash-separated path relative to the app dir
	ContentType string
	Data        []byte
}

// Assets serves files from one app's install directory
type Assets struct {
	base string
}

// NewAssets roots an asset resolver at dir. The directory must exist.
func NewAssets(dir string) (*Assets, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve app dir: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve app dir: %w", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("stat app dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("app dir %s is not a directory", dir)
	}
	return &Assets{base: real}, nil
}

// Base returns the canonical install directory
func (a *Assets) Base() string {
	return a.base
}

// Resolve maps a relative asset name to its canonical path. Any name whose
// canonical form leaves the base directory, symlinks included, is reported
// as ErrAssetNotFound.
func (a *Assets) Resolve(name string) (string, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	if name == "" || strings.ContainsRune(name, 0) {
		return "", ErrAssetNotFound
	}

	joined := filepath.Join(a.base, filepath.FromSlash(name))
	if !within(a.base, joined) {
		return "", fmt.Errorf("%w: %s escapes app dir", ErrAssetNotFound, name)
	}

	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	if !within(a.base, real) {
		return "", fmt.Errorf("%w: %s escapes app dir", ErrAssetNotFound, name)
	}

	info, err := os.Stat(real)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	return real, nil
}

// Open resolves and reads an asset of at most utils.MaxAssetSize bytes
func (a *Assets) Open(name string) (*Asset, error) {
	return a.OpenLimit(name, utils.MaxAssetSize)
}

// OpenLimit resolves and reads an asset, rejecting files above limit
// bytes with ErrAssetTooLarge before reading them.
func (a *Assets) OpenLimit(name string, limit int64) (*Asset, error) {
	real, err := a.Resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrAssetTooLarge, name, info.Size())
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}

	rel, _ := filepath.Rel(a.base, real)
	return &Asset{
		Path:        real,
		Name:        filepath.ToSlash(rel),
		ContentType: contentType(real, data),
		Data:        data,
	}, nil
}

// Sibling resolves ref relative to the directory of the asset named from
func (a *Assets) Sibling(from, ref string) string {
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(ref, "/")
	}
	return path.Join(path.Dir(from), ref)
}

func contentType(file string, data []byte) string {
	if ct, ok := webTypes[strings.ToLower(filepath.Ext(file))]; ok {
		return ct
	}
	return mimetype.Detect(data).String()
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
