package config

import (
	"os"
	"path/filepath"
	"strings"
)

// RuntimeBaseDir is the directory relative runtime paths are resolved
// against: $QRDINE_HOME when set, else the executable's directory, else the
// working directory.
func RuntimeBaseDir() string {
	if home := strings.TrimSpace(os.Getenv(envHome)); home != "" {
		return filepath.Clean(home)
	}
	if exe, err := os.Executable(); err == nil && exe != "" {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// ResolveRuntimePath returns raw as an absolute path, using fallback when raw
// is blank. Relative paths are joined to RuntimeBaseDir.
func ResolveRuntimePath(raw, fallback string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = strings.TrimSpace(fallback)
	}
	if target == "" {
		return RuntimeBaseDir()
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(RuntimeBaseDir(), target)
}
