package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults resolves where tourist keeps its config file, data and logs.
//
// TOURIST_CONFIG_PATH overrides the config file (~/.config/tourist.toml) and
// TOURIST_HOME overrides the data directory (~/.local/share/tourist). Logs
// always live in the "log" subdirectory of the data directory.
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("TOURIST_CONFIG_PATH", ".config", "tourist.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome("TOURIST_HOME", ".local", "share", "tourist")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns $key, or the home-relative path when it is unset or empty.
func envOrHome(key string, elem ...string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving %s: no home directory: %w", key, err)
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}
