// Package paths resolves where the clusterstore CLI keeps its configuration
// and its SQLite data.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user configuration and data directories.
const AppName = "clusterstore"

// Environment variables overriding the directories.
const (
	EnvConfigDir = "CLUSTERSTORE_CONFIG_DIR"
	EnvDataDir   = "CLUSTERSTORE_DATA_DIR"
)

// platformDir can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the per-user configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/clusterstore (fallback ~/.config/clusterstore)
// macOS:   ~/Library/Application Support/clusterstore
// Windows: %APPDATA%/clusterstore
func DefaultConfigDir() (string, error) {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the per-user data directory.
//
// Linux:   $XDG_DATA_HOME/clusterstore (fallback ~/.local/share/clusterstore)
// macOS and Windows: same as DefaultConfigDir
func DefaultDataDir() (string, error) {
	return userDir("XDG_DATA_HOME", ".local", "share")
}

func userDir(xdgEnv string, linuxFallback ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(xdgEnv); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, linuxFallback...), AppName)...), nil
}

// ResolveConfigDir returns the first of flag, $CLUSTERSTORE_CONFIG_DIR and
// DefaultConfigDir that is set, as an absolute path.
func ResolveConfigDir(flag string) (string, error) {
	if dir := firstSet(flag, os.Getenv(EnvConfigDir)); dir != "" {
		return filepath.Abs(dir)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the first of flag, the config file value,
// $CLUSTERSTORE_DATA_DIR and DefaultDataDir that is set, as an absolute
// path.
func ResolveDataDir(flag, configValue string) (string, error) {
	if dir := firstSet(flag, configValue, os.Getenv(EnvDataDir)); dir != "" {
		return filepath.Abs(dir)
	}
	return DefaultDataDir()
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
