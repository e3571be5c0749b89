// Package config loads briefship settings: the global config directory and
// the per-project briefship.yaml deploy target.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Dir returns the briefship global configuration directory.
//
// Resolution:
//   - $BRIEFSHIP_CONFIG_HOME if set
//   - $XDG_CONFIG_HOME/briefship if set
//   - %AppData%/briefship on Windows
//   - ~/.config/briefship elsewhere
func Dir() string {
	if dir := os.Getenv("BRIEFSHIP_CONFIG_HOME"); dir != "" {
		return dir
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "briefship")
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "briefship")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "briefship")
}
