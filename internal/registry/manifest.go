package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/walletbridge/internal/shared/paths"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

var (
	ErrNoManifest      = errors.New("manifest not found")
	ErrInvalidManifest = errors.New("invalid manifest")
)

// LoadManifest reads the first manifest found for app, in the order JSON,
// YAML, TOML.
func LoadManifest(app paths.App) (*types.Manifest, error) {
	for _, candidate := range app.Manifest() {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(candidate), err)
		}
		m, err := ParseManifest(filepath.Base(candidate), data)
		if err != nil {
			return nil, err
		}
		if m.AppID != app.ID {
			return nil, fmt.Errorf("%w: app_id %q does not match directory %q", ErrInvalidManifest, m.AppID, app.ID)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNoManifest, app.Dir())
}

// ParseManifest decodes a manifest by file name and fills defaults
func ParseManifest(name string, data []byte) (*types.Manifest, error) {
	if len(data) > utils.MaxManifestSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidManifest, name, utils.MaxManifestSize)
	}

	var m types.Manifest
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		err = sonic.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidManifest, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, name, err)
	}

	if err := validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Fallback is the manifest used when an app's own cannot be read
func Fallback(appID string) *types.Manifest {
	return &types.Manifest{
		AppID:    appID,
		Name:     appID,
		Type:     types.AppTypeBlockchain,
		MainPage: paths.DefaultEntryPage,
	}
}

func validate(m *types.Manifest) error {
	if err := paths.ValidateAppID(m.AppID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Name == "" {
		m.Name = m.AppID
	}
	if m.Type == "" {
		m.Type = types.AppTypeBlockchain
	}
	if m.Type != types.AppTypeBlockchain && m.Type != types.AppTypeWebApp {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidManifest, m.Type)
	}
	if m.MainPage == "" {
		m.MainPage = paths.DefaultEntryPage
	}
	return nil
}
