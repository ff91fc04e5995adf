package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "axectl"
	configFile = "config.yaml"

	// CurrentVersion is the config file schema version.
	CurrentVersion = 1
)

// fileMutex serializes config file writes.
var fileMutex sync.Mutex

// Preferences is the persisted user configuration. Everything has a working
// default; a missing file is not an error.
type Preferences struct {
	Version int `yaml:"version"`

	// Network is the default CIDR for discovery sweeps. Empty means
	// auto-detect from local interfaces.
	Network string `yaml:"network,omitempty"`

	// CacheDir overrides where the device cache lives.
	CacheDir string `yaml:"cache_dir,omitempty"`

	Discovery DiscoveryPrefs `yaml:"discovery"`
	Monitor   MonitorPrefs   `yaml:"monitor"`
	Pool      PoolPrefs      `yaml:"pool,omitempty"`
	Server    ServerPrefs    `yaml:"server"`
}

// DiscoveryPrefs tunes the discovery sweep.
type DiscoveryPrefs struct {
	// TimeoutMS is the per-host probe timeout in milliseconds.
	TimeoutMS int `yaml:"timeout_ms"`
	// Parallel caps concurrent probes.
	Parallel int `yaml:"parallel"`
	// DisableMDNS skips the multicast browse phase.
	DisableMDNS bool `yaml:"disable_mdns,omitempty"`
}

// MonitorPrefs tunes the monitoring loop.
type MonitorPrefs struct {
	// IntervalSeconds is the poll cadence.
	IntervalSeconds int `yaml:"interval_seconds"`
	// TempThresholdC fires the overheating alert.
	TempThresholdC float64 `yaml:"temp_threshold_c"`
	// HashrateDropPct fires the hashrate alert relative to baseline.
	HashrateDropPct float64 `yaml:"hashrate_drop_pct"`
}

// PoolPrefs carries default mining pool settings for bulk pool changes.
// The user is the base identity; devices get a per-device suffix.
type PoolPrefs struct {
	URL  string `yaml:"url,omitempty"`
	Port int    `yaml:"port,omitempty"`
	User string `yaml:"user,omitempty"`
}

// ServerPrefs configures the embedded API server.
type ServerPrefs struct {
	Listen string `yaml:"listen"`
}

// Default returns preferences with every field at its working default.
func Default() *Preferences {
	return &Preferences{
		Version: CurrentVersion,
		Discovery: DiscoveryPrefs{
			TimeoutMS: 500,
			Parallel:  50,
		},
		Monitor: MonitorPrefs{
			IntervalSeconds: 30,
			TempThresholdC:  70,
			HashrateDropPct: 25,
		},
		Server: ServerPrefs{
			Listen: "127.0.0.1:8720",
		},
	}
}

// DiscoveryTimeout returns the probe timeout as a duration.
func (p *Preferences) DiscoveryTimeout() time.Duration {
	return time.Duration(p.Discovery.TimeoutMS) * time.Millisecond
}

// MonitorInterval returns the monitor cadence as a duration.
func (p *Preferences) MonitorInterval() time.Duration {
	return time.Duration(p.Monitor.IntervalSeconds) * time.Second
}

// GetConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/axectl or $HOME/.config/axectl
//   - macOS: $HOME/.config/axectl
//   - Windows: %LOCALAPPDATA%\axectl
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

// Load reads preferences from the default location. A missing file yields
// defaults.
func Load() (*Preferences, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads preferences from an explicit path.
func LoadFrom(path string) (*Preferences, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	prefs := Default()
	if err := yaml.Unmarshal(data, prefs); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if prefs.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", prefs.Version, CurrentVersion)
	}
	return prefs, nil
}

// Save writes preferences to the default location atomically.
func (p *Preferences) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return p.SaveTo(path)
}

// SaveTo writes preferences to an explicit path with a temp-file rename so
// a crash never leaves a half-written config behind.
func (p *Preferences) SaveTo(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# axectl configuration file\n# Location: " + path + "\n\n")
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
