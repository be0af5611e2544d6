package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PUSHBACK_CONFIG_PATH: config file location
//     (default: $XDG_CONFIG_HOME/pushback/config.toml or ~/.config/pushback/config.toml)
//   - PUSHBACK_HOME: base directory for logs and history (default: ~/.local/share/pushback)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"config_dir":  filepath.Dir(configPath),
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking PUSHBACK_CONFIG_PATH
// then XDG_CONFIG_HOME, falling back to ~/.config/pushback/config.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("PUSHBACK_CONFIG_PATH"); path != "" {
		return path, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pushback", "config.toml"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pushback", "config.toml"), nil
}

// getBaseDir returns the base directory for pushback data, checking PUSHBACK_HOME
// first, then falling back to the XDG default ~/.local/share/pushback.
func getBaseDir() (string, error) {
	if path := os.Getenv("PUSHBACK_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "pushback"), nil
}
