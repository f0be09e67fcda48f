package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - RICHPRES_CONFIG_PATH: config file location (default: ~/.config/richpres.toml)
//   - RICHPRES_HOME: base directory for journal, keys and logs (default: ~/.local/share/richpres)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome("RICHPRES_CONFIG_PATH", ".config", "richpres.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome("RICHPRES_HOME", ".local", "share", "richpres")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env, or the path below the home
// directory when the variable is unset.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
