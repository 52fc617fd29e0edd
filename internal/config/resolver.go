package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// expandEnvVar replaces $VAR and ${VAR} references anywhere in value,
// so both "$ADVCHAT_TOKEN" and "https://${HOOK_HOST}/chat" work. Unset
// variables expand to the empty string.
func expandEnvVar(value string) string {
	if !strings.Contains(value, "$") {
		return value
	}
	return os.Expand(value, os.Getenv)
}

// ResolvePath converts a relative path to absolute path if needed, using
// the directory of the config file in use as base.
func ResolvePath(path string) (string, error) {
	return resolvePath(configDir(viper.GetViper()), path)
}

func resolvePath(base, path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "error getting user home directory")
		}
		return filepath.Join(home, path[2:]), nil
	}

	if filepath.IsAbs(path) {
		return path, nil
	}

	// If no config file is used, fall back to current working directory
	if base == "" {
		base = "."
	}

	if !filepath.IsAbs(base) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "error getting current working directory")
		}
		base = filepath.Join(cwd, base)
	}

	return filepath.Join(base, path), nil
}

// DefaultDir returns $HOME/.config/advchat
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(home, ".config", "advchat"), nil
}
