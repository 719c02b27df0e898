package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the profile config file inside a profile directory.
const FileName = "config.toml"

// Duration is a time.Duration written as a string such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IDEConfig describes the identity the daemon reports in DISCOVER_RESPONSE.
type IDEConfig struct {
	Identity  string `toml:"identity"`
	Version   string `toml:"version"`
	Workspace string `toml:"workspace"`
	Solution  string `toml:"solution"`
}

// IPCConfig defines the loopback port range and timeouts.
type IPCConfig struct {
	Host           string   `toml:"host"`
	BasePort       int      `toml:"basePort"`
	PortCount      int      `toml:"portCount"`
	ConnectTimeout Duration `toml:"connectTimeout"`
	ReadTimeout    Duration `toml:"readTimeout"`
	RequestTimeout Duration `toml:"requestTimeout"`
}

// StorageConfig locates the open journal database.
type StorageConfig struct {
	DBPath string `toml:"dbPath"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
}

// LaunchConfig holds optional commands the daemon runs for served requests. Arguments may use the
// placeholders {file}, {line} and {column}.
type LaunchConfig struct {
	OpenCommand  []string `toml:"openCommand"`
	GotoCommand  []string `toml:"gotoCommand"`
	FocusCommand []string `toml:"focusCommand"`
}

// ProfileConfig aggregates configuration for a profile.
type ProfileConfig struct {
	ProfileName string        `toml:"profileName"`
	IDE         IDEConfig     `toml:"ide"`
	IPC         IPCConfig     `toml:"ipc"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Launch      LaunchConfig  `toml:"launch"`
}

// DefaultProfile returns a profile with every default filled in.
func DefaultProfile(name string) *ProfileConfig {
	cfg := &ProfileConfig{
		ProfileName: name,
		IDE: IDEConfig{
			Identity: "idelink",
			Version:  "0.1.0",
		},
		Storage: StorageConfig{DBPath: "journal.db"},
		Logging: LoggingConfig{Level: "info", FileMaxSize: 10},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads config.toml from the provided path.
func Load(path string) (*ProfileConfig, error) {
	var cfg ProfileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadProfile reads config.toml from a profile directory.
func LoadProfile(dir string) (*ProfileConfig, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *ProfileConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ResolvePath returns p unchanged when absolute, otherwise joined to the profile directory.
func ResolvePath(profileDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(profileDir, p)
}

func (cfg *ProfileConfig) applyDefaults() {
	if cfg.IPC.Host == "" {
		cfg.IPC.Host = "127.0.0.1"
	}
	if cfg.IPC.BasePort == 0 {
		cfg.IPC.BasePort = 52342
	}
	if cfg.IPC.PortCount == 0 {
		cfg.IPC.PortCount = 100
	}
	if cfg.IPC.ConnectTimeout.Duration == 0 {
		cfg.IPC.ConnectTimeout.Duration = time.Second
	}
	if cfg.IPC.ReadTimeout.Duration == 0 {
		cfg.IPC.ReadTimeout.Duration = time.Second
	}
	if cfg.IPC.RequestTimeout.Duration == 0 {
		cfg.IPC.RequestTimeout.Duration = 5 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (cfg *ProfileConfig) validate() error {
	if cfg.ProfileName == "" {
		return fmt.Errorf("profileName required")
	}
	cfg.applyDefaults()
	if cfg.IDE.Identity == "" {
		return fmt.Errorf("ide.identity required")
	}
	if cfg.IPC.BasePort < 1 || cfg.IPC.PortCount < 1 || cfg.IPC.BasePort+cfg.IPC.PortCount-1 > 65535 {
		return fmt.Errorf("ipc port range %d+%d out of bounds", cfg.IPC.BasePort, cfg.IPC.PortCount)
	}
	if cfg.IPC.ConnectTimeout.Duration < 0 || cfg.IPC.ReadTimeout.Duration < 0 || cfg.IPC.RequestTimeout.Duration < 0 {
		return fmt.Errorf("ipc timeouts must not be negative")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("logging.level %q unknown", cfg.Logging.Level)
	}
	return nil
}
