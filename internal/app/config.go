package app

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ConfigDir returns ~/.config/asanasense/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "asanasense"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	return ensureConfigDir(fs())
}

func ensureConfigDir(fsys afero.Fs) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	exists, err := afero.Exists(fsys, configFile)
	if err != nil {
		return err
	}
	if !exists {
		return afero.WriteFile(fsys, configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# asanasense configuration
# Run: asanasense --help

# Required. Personal access token; ASANASENSE_ACCESS_TOKEN overrides it.
# access_token: ""

# Required. Workspace gid; ASANASENSE_WORKSPACE overrides it.
# workspace: ""

# <counter|list>_<past|future>_<N>day, or ..._allday for no date limit.
# The first valid entry becomes the sensor state.
monitored_variables: []

# name: asana
# api_base: https://app.asana.com/api/1.0
# scan_interval: 30s
# max_pages: 100

# Optional SQLite journal of update cycles. Empty disables it.
# history_db: ~/.config/asanasense/history.db
`
