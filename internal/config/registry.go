package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/muurk/castscan/internal/device"
)

const (
	appName    = "castscan"
	configFile = "config.yaml"
	sqliteFile = "devices.db"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/castscan or $HOME/.config/castscan
//   - macOS: $HOME/.config/castscan (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\castscan
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Load loads the registry from the default configuration path.
func Load() (*Registry, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the registry from path.
// If the file doesn't exist, returns a new default registry bound to path.
func LoadFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		r := NewRegistry()
		r.path = path
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if registry.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", registry.Version)
	}

	if registry.Devices == nil {
		registry.Devices = make(map[string]*device.Record)
	}
	for id, rec := range registry.Devices {
		if rec == nil {
			delete(registry.Devices, id)
			continue
		}
		rec.ID = id
	}
	registry.Preferences = withDefaults(registry.Preferences)
	if err := registry.Preferences.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preferences in %s: %w", path, err)
	}

	registry.path = path
	return &registry, nil
}

// withDefaults fills unset preferences from DefaultPreferences.
func withDefaults(p *Preferences) *Preferences {
	def := DefaultPreferences()
	if p == nil {
		return def
	}
	if p.RescanInterval == 0 {
		p.RescanInterval = def.RescanInterval
	}
	if p.PairingLevel == "" {
		p.PairingLevel = def.PairingLevel
	}
	if p.ListenAddr == "" {
		p.ListenAddr = def.ListenAddr
	}
	if p.Store == "" {
		p.Store = def.Store
	}
	return p
}

// Path returns the file the registry was loaded from.
func (r *Registry) Path() string {
	return r.path
}

// SQLitePath returns the configured SQLite database path, defaulting to
// devices.db next to the configuration file.
func (r *Registry) SQLitePath() string {
	if r.Preferences != nil && r.Preferences.SQLitePath != "" {
		return r.Preferences.SQLitePath
	}
	return filepath.Join(filepath.Dir(r.path), sqliteFile)
}

// Save saves the registry to the file it was loaded from.
func (r *Registry) Save() error {
	if r.path == "" {
		configPath, err := GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		r.path = configPath
	}
	return r.SaveTo(r.path)
}

// SaveTo saves the registry to path.
// Performs an atomic write to prevent corruption on crash.
func (r *Registry) SaveTo(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	// Create directory with user-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# castscan configuration file
# Discovery preferences and the devices remembered between runs.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
