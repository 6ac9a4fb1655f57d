package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HistoryPath resolves the cycle journal path from effective settings.
// Returns "" when the journal is disabled. ":memory:" and file: DSNs pass
// through untouched; plain paths get their parent directory created.
func HistoryPath(s Settings) (string, error) {
	switch {
	case s.HistoryDB == "":
		return "", nil
	case s.HistoryDB == ":memory:", strings.HasPrefix(s.HistoryDB, "file:"):
		return s.HistoryDB, nil
	}
	return EnsureDBDir(s.HistoryDB)
}

// EnsureDBDir creates the parent directory of dbPath and returns dbPath.
func EnsureDBDir(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}
