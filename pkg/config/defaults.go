package config

import (
	"os"
	"path/filepath"
)

// defaultEventLogDirs returns the default event log directories.
//
// Searches in order:
// 1. ~/.config/claude/projects/ (new default)
// 2. ~/.claude/projects/ (legacy)
//
// Returns all directories that exist on the filesystem.
func defaultEventLogDirs() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir not available
		return []string{"."}
	}

	candidates := []string{
		filepath.Join(homeDir, ".config", "claude", "projects"),
		filepath.Join(homeDir, ".claude", "projects"),
	}

	var dirs []string
	for _, dir := range candidates {
		if _, err := os.Stat(dir); err == nil {
			dirs = append(dirs, dir)
		}
	}

	// If no directories found, return the new default path
	// (will be created by Claude Code when sessions exist)
	if len(dirs) == 0 {
		return []string{filepath.Join(homeDir, ".config", "claude", "projects")}
	}

	return dirs
}

// defaultDataDir returns the default daemon state directory.
//
// Returns: ~/.config/quota-monitor.
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(homeDir, ".config", "quota-monitor")
}

// defaultDBPath returns the default summary database path.
func defaultDBPath() string {
	return filepath.Join(defaultDataDir(), "quota.db")
}

// defaultSnapshotLogPath returns the default snapshot log path.
func defaultSnapshotLogPath() string {
	return filepath.Join(defaultDataDir(), "snapshots.jsonl")
}

// defaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/quota-monitor/config.yaml.
func defaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}
