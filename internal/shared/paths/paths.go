// Package paths provides the on-disk layout for installed mini-apps.
//
// Every mini-app lives in its own private directory directly under the
// apps root; nothing outside that directory is reachable from its scripts.
package paths

import (
	"fmt"
	"path/filepath"

	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

// Well-known file names inside an app directory
const (
	ManifestJSON = "manifest.json"
	ManifestYAML = "manifest.yaml"
	ManifestTOML = "manifest.toml"

	// DefaultEntryPage is loaded when the manifest cannot be read
	DefaultEntryPage = "index.html"
)

// App returns application-specific paths
type App struct {
	Root string
	ID   string
}

// AppPath returns paths for a specific application
func AppPath(root, appID string) App {
	return App{Root: root, ID: appID}
}

// Dir returns the app's private install directory
func (a App) Dir() string {
	return filepath.Join(a.Root, a.ID)
}

// Manifest returns the candidate manifest paths in lookup order
func (a App) Manifest() []string {
	return []string{
		filepath.Join(a.Dir(), ManifestJSON),
		filepath.Join(a.Dir(), ManifestYAML),
		filepath.Join(a.Dir(), ManifestTOML),
	}
}

// ValidateAppID rejects ids that cannot safely name a directory
func ValidateAppID(appID string) error {
	if err := utils.ValidateID(appID, "app id", true); err != nil {
		return fmt.Errorf("invalid app ID: %w", err)
	}
	return nil
}
