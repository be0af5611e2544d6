package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for pushback.
type Config struct {
	Options OptionsConfig  `toml:"options"`
	Remotes []RemoteConfig `toml:"remote"`
}

// OptionsConfig holds settings shared by every target.
type OptionsConfig struct {
	LargeFileMB         int    `toml:"large_file_mb"`
	DeleteRemote        bool   `toml:"delete_remote"`
	GlobalIgnore        string `toml:"global_ignore"`
	SnapshotMode        string `toml:"snapshot_mode"` // none, yearly, monthly, weekly, daily, hourly, custom
	SnapshotCustomHours int    `toml:"snapshot_custom_hours"`
	LogDir              string `toml:"log_dir"`
	HistoryDB           string `toml:"history_db"` // file path, "memory" or "off"
}

// RemoteConfig represents one backup target.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Name    string `toml:"name"`
	Type    string `toml:"type"` // "ssh" (default), "local" or "s3"
	Default bool   `toml:"default"`
	Base    string `toml:"base"` // directory on the remote, or key prefix for s3

	// SSH-specific fields (only used when Type == "ssh")
	Transport    string `toml:"transport,omitempty"` // "exec" (default) or "native"
	User         string `toml:"user,omitempty"`
	Host         string `toml:"host,omitempty"`
	Port         int    `toml:"port,omitempty"`
	IdentityFile string `toml:"identity_file,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	Bucket   string `toml:"bucket,omitempty"`
	Region   string `toml:"region,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"`
}

// Remote types and ssh transports.
const (
	RemoteSSH   = "ssh"
	RemoteLocal = "local"
	RemoteS3    = "s3"

	TransportExec   = "exec"
	TransportNative = "native"
)

const (
	defaultLargeFileMB = 200
	defaultCustomHours = 24
	defaultPort        = 22
	defaultBase        = "~/pushback"
)

// ConfigError reports an invalid or incomplete configuration. The CLI maps
// it to its own exit status.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// NewConfig creates a Config holding the built-in defaults. baseDir holds
// logs and history; configDir holds the global ignore file.
func NewConfig(baseDir, configDir string) *Config {
	return &Config{
		Options: OptionsConfig{
			LargeFileMB:         defaultLargeFileMB,
			GlobalIgnore:        filepath.Join(configDir, "global-ignore.txt"),
			SnapshotMode:        "none",
			SnapshotCustomHours: defaultCustomHours,
			LogDir:              filepath.Join(baseDir, "log"),
			HistoryDB:           filepath.Join(baseDir, "history.db"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader on top of the values already
// in cfg. It returns the keys that were present but not understood.
func (m *Manager) Read(r io.Reader, cfg *Config) ([]string, error) {
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads the config at path over defaults. A missing file is a
// ConfigError pointing at `pushback config init`.
func ReadFromFile(path string, defaults *Config) (*Config, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, configErrorf("config file not found: %s (run `pushback config init` to create one)", path)
		}
		return nil, nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg := *defaults
	cfg.Remotes = nil

	m := &Manager{}
	unknown, err := m.Read(f, &cfg)
	if err != nil {
		return nil, nil, &ConfigError{Msg: fmt.Sprintf("reading config from %s: %v", path, err)}
	}
	return &cfg, unknown, nil
}

// Load reads path over defaults, applies PUSHBACK_* environment overrides
// from getenv and validates the result.
func Load(path string, defaults *Config, getenv func(string) string) (*Config, []string, error) {
	cfg, unknown, err := ReadFromFile(path, defaults)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, nil, err
	}
	cfg.applyRemoteDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, unknown, nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PUSHBACK_"

// ApplyEnv overlays PUSHBACK_* variables. Remote overrides (REMOTE_USER,
// REMOTE_HOST, REMOTE_PORT, REMOTE_BASE) apply to every remote.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	lookup := func(key string) (string, bool) {
		v := getenv(EnvPrefix + key)
		return v, v != ""
	}

	if v, ok := lookup("LARGE_FILE_MB"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return configErrorf("%sLARGE_FILE_MB must be a valid integer, got %q", EnvPrefix, v)
		}
		c.Options.LargeFileMB = n
	}
	if v, ok := lookup("DELETE_REMOTE"); ok {
		c.Options.DeleteRemote = ParseBool(v)
	}
	if v, ok := lookup("GLOBAL_IGNORE"); ok {
		c.Options.GlobalIgnore = v
	}
	if v, ok := lookup("SNAPSHOT_MODE"); ok {
		c.Options.SnapshotMode = v
	}
	if v, ok := lookup("SNAPSHOT_CUSTOM_HOURS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return configErrorf("%sSNAPSHOT_CUSTOM_HOURS must be a valid integer, got %q", EnvPrefix, v)
		}
		c.Options.SnapshotCustomHours = n
	}
	if v, ok := lookup("LOG_DIR"); ok {
		c.Options.LogDir = v
	}
	if v, ok := lookup("HISTORY_DB"); ok {
		c.Options.HistoryDB = v
	}

	var port int
	if v, ok := lookup("REMOTE_PORT"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return configErrorf("%sREMOTE_PORT must be a valid integer, got %q", EnvPrefix, v)
		}
		port = n
	}
	user, _ := lookup("REMOTE_USER")
	host, _ := lookup("REMOTE_HOST")
	base, _ := lookup("REMOTE_BASE")
	for i := range c.Remotes {
		r := &c.Remotes[i]
		if user != "" {
			r.User = user
		}
		if host != "" {
			r.Host = host
		}
		if port != 0 {
			r.Port = port
		}
		if base != "" {
			r.Base = base
		}
	}
	return nil
}

func (c *Config) applyRemoteDefaults() {
	for i := range c.Remotes {
		r := &c.Remotes[i]
		if r.Type == "" {
			r.Type = RemoteSSH
		}
		if r.Type == RemoteSSH {
			if r.Transport == "" {
				r.Transport = TransportExec
			}
			if r.Port == 0 {
				r.Port = defaultPort
			}
			if r.Base == "" {
				r.Base = defaultBase
			}
		}
	}
}

// ParseBool accepts 1/true/yes/on (any case) as true; anything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Validate checks the whole configuration once, before any remote is touched.
func (c *Config) Validate() error {
	if c.Options.LargeFileMB < 0 {
		return configErrorf("large_file_mb must not be negative, got %d", c.Options.LargeFileMB)
	}
	if c.Options.SnapshotCustomHours <= 0 {
		return configErrorf("snapshot_custom_hours must be a positive integer, got %d", c.Options.SnapshotCustomHours)
	}
	if len(c.Remotes) == 0 {
		return configErrorf("no remote servers configured")
	}

	seen := make(map[string]bool)
	for _, r := range c.Remotes {
		if r.Name == "" {
			return configErrorf("every [[remote]] needs a name")
		}
		if seen[r.Name] {
			return configErrorf("duplicate remote name %q", r.Name)
		}
		seen[r.Name] = true

		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the fields the remote's type requires.
func (r RemoteConfig) Validate() error {
	switch r.Type {
	case RemoteSSH:
		if r.User == "" {
			return configErrorf("remote %q missing required 'user'", r.Name)
		}
		if r.Host == "" {
			return configErrorf("remote %q missing required 'host'", r.Name)
		}
		if r.Port <= 0 || r.Port > 65535 {
			return configErrorf("remote %q has invalid port %d", r.Name, r.Port)
		}
		if r.Transport != TransportExec && r.Transport != TransportNative {
			return configErrorf("remote %q has unknown transport %q (want exec or native)", r.Name, r.Transport)
		}
	case RemoteLocal:
		if r.Base == "" {
			return configErrorf("remote %q missing required 'base'", r.Name)
		}
	case RemoteS3:
		if r.Bucket == "" {
			return configErrorf("remote %q missing required 'bucket'", r.Name)
		}
	default:
		return configErrorf("remote %q has unknown type %q", r.Name, r.Type)
	}
	return nil
}

// SelectRemotes returns the remotes named in the comma separated list, in
// the order given, or every default remote when the list is empty.
func (c *Config) SelectRemotes(list string) ([]RemoteConfig, error) {
	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	if len(names) == 0 {
		var selected []RemoteConfig
		for _, r := range c.Remotes {
			if r.Default {
				selected = append(selected, r)
			}
		}
		if len(selected) == 0 {
			return nil, configErrorf("no default servers configured (set 'default = true' on a [[remote]])")
		}
		return selected, nil
	}

	selected := make([]RemoteConfig, 0, len(names))
	picked := make(map[string]bool)
	for _, name := range names {
		r, ok := c.Remote(name)
		if !ok {
			return nil, configErrorf("server %q not found in config (known: %s)", name, strings.Join(c.RemoteNames(), ", "))
		}
		if picked[name] {
			continue
		}
		picked[name] = true
		selected = append(selected, r)
	}
	return selected, nil
}

// Remote returns the remote with the given name.
func (c *Config) Remote(name string) (RemoteConfig, bool) {
	for _, r := range c.Remotes {
		if r.Name == name {
			return r, true
		}
	}
	return RemoteConfig{}, false
}

// RemoteNames returns the configured remote names, sorted.
func (c *Config) RemoteNames() []string {
	names := make([]string, len(c.Remotes))
	for i, r := range c.Remotes {
		names[i] = r.Name
	}
	sort.Strings(names)
	return names
}

// writeFile writes content to path, creating the parent directory.
func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
