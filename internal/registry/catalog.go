package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/shared/paths"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// Catalog caches the manifests of installed mini-apps
type Catalog struct {
	root   string
	logger *zap.Logger

	mu   sync.RWMutex
	apps map[string]*types.Manifest
}

// NewCatalog creates an empty catalog over root. Call Refresh to scan.
func NewCatalog(root string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		root:   root,
		logger: logger.Named("registry"),
		apps:   make(map[string]*types.Manifest),
	}
}

// Root returns the apps root directory
func (c *Catalog) Root() string { return c.root }

// Refresh rescans the apps root and replaces the cached manifests. Apps
// with unreadable manifests are logged and skipped. Returns how many apps
// were loaded.
func (c *Catalog) Refresh(ctx context.Context) (int, error) {
	if _, err := os.Stat(c.root); os.IsNotExist(err) {
		c.logger.Warn("Apps directory not found", zap.String("dir", c.root))
		c.replace(map[string]*types.Manifest{})
		return 0, nil
	}

	var mu sync.Mutex
	candidates := make(map[string]struct{})
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, c.root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(c.root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			// App directories sit directly under the root
			if filepath.Dir(rel) != "." {
				return filepath.SkipDir
			}
			return nil
		}

		switch d.Name() {
		case paths.ManifestJSON, paths.ManifestYAML, paths.ManifestTOML:
			if appID := filepath.Dir(rel); appID != "." {
				mu.Lock()
				candidates[appID] = struct{}{}
				mu.Unlock()
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", c.root, err)
	}

	apps := make(map[string]*types.Manifest, len(candidates))
	var failed int
	for appID := range candidates {
		m, err := LoadManifest(paths.AppPath(c.root, appID))
		if err != nil {
			failed++
			c.logger.Warn("Skipping app", zap.String("app_id", appID), zap.Error(err))
			continue
		}
		apps[appID] = m
	}
	c.replace(apps)

	c.logger.Info("Catalog refreshed",
		zap.Int("loaded", len(apps)),
		zap.Int("failed", failed))
	return len(apps), nil
}

// Get returns the manifest for appID
func (c *Catalog) Get(appID string) (*types.Manifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.apps[appID]
	return m, ok
}

// Has reports whether appID is installed
func (c *Catalog) Has(appID string) bool {
	_, ok := c.Get(appID)
	return ok
}

// List returns installed apps sorted by id, filtered by type when
// appType is non-empty.
func (c *Catalog) List(appType types.AppType) []*types.Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*types.Manifest, 0, len(c.apps))
	for _, m := range c.apps {
		if appType == "" || m.Type == appType {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}

// Dir returns the install directory of appID
func (c *Catalog) Dir(appID string) string {
	return paths.AppPath(c.root, appID).Dir()
}

func (c *Catalog) replace(apps map[string]*types.Manifest) {
	c.mu.Lock()
	c.apps = apps
	c.mu.Unlock()
}
