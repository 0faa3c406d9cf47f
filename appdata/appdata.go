// Package appdata locates the per-user data directory for an application
// following the XDG base directory conventions (and their macOS and Windows
// equivalents).
package appdata

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/adrg/xdg"
)

// Dir returns the data directory for the named application. A leading dot is
// dropped and the name is lower-cased, so "Arbor" and ".arbor" resolve to the
// same place.
func Dir(appName string) string {
	appName = strings.TrimPrefix(appName, ".")
	if appName == "" {
		return "."
	}
	return filepath.Join(xdg.DataHome, normalize(appName))
}

// ConfigDir returns the configuration directory for the named application.
func ConfigDir(appName string) string {
	appName = strings.TrimPrefix(appName, ".")
	if appName == "" {
		return "."
	}
	return filepath.Join(xdg.ConfigHome, normalize(appName))
}

func normalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
