package lookup

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Persisted cache file names. Their layouts are part of the upgrade
// contract: a new build must be able to read the previous build's files.
const (
	paginatedCacheFile = "cache_paginated.json"
	snapshotCacheFile  = "cache_stopice.json"
)

// saveCache writes v as JSON to dir/name atomically (temp + rename). A
// missing dir disables persistence silently.
func saveCache(dir, name string, v any) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadCache reads dir/name into v. Returns false on any failure: a missing
// or unreadable cache file is a cold start, never an error.
func loadCache(dir, name string, v any) bool {
	if dir == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
