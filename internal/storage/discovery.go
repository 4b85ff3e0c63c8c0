package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DataDir is the directory searched for an existing SQLite database
const DataDir = ".matching"

// DiscoverDatabase returns the SQLite database path to use.
//
// MATCHING_STORAGE_PATH wins when set (it may be ":memory:"). Otherwise the first
// .matching/*.db in the current directory is used, and DefaultPath when there
// is none. Parent directories are never searched.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("MATCHING_STORAGE_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	path, found, err := discoverDatabaseInDir(dir)
	if err != nil {
		return "", err
	}
	if !found {
		return DefaultPath, nil
	}
	return path, nil
}

// discoverDatabaseInDir checks for .matching/*.db in dir only
func discoverDatabaseInDir(dir string) (string, bool, error) {
	dataDir := filepath.Join(dir, DataDir)

	info, err := os.Stat(dataDir)
	if err != nil || !info.IsDir() {
		return "", false, nil
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", dataDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		absPath, err := filepath.Abs(filepath.Join(dataDir, entry.Name()))
		if err != nil {
			return "", false, fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, true, nil
	}
	return "", false, nil
}
