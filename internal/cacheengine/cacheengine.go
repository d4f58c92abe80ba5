package cacheengine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// CacheEntry is the on-disk manifest sitting alongside a hash's archive,
// spec.md §4.8: the hash it was produced for, the output files it
// contains, captured logs, and when it was written.
type CacheEntry struct {
	Hash       string    `json:"hash"`
	Outputs    []string  `json:"outputs"`
	LogPath    string    `json:"log_path"`
	DurationMS int64     `json:"duration_ms"`
	WrittenAt  time.Time `json:"written_at"`
}

// TaskRunCacheState tracks one task run's cache interaction for the
// duration of the run: whether it hit, and (on a miss) what it is
// expected to produce so TaskRunner knows what to archive afterward.
type TaskRunCacheState struct {
	Hash         string
	Hit          bool
	RestoredFrom string // "local", "remote", or "" on a miss
	Entry        *CacheEntry
}

// Engine is the filesystem cache store rooted at cacheRoot
// ("<workspace>/.moon/cache" per SPEC_FULL.md), one subdirectory per hash.
type Engine struct {
	CacheRoot string
}

// NewEngine constructs an Engine rooted at cacheRoot.
func NewEngine(cacheRoot string) *Engine {
	return &Engine{CacheRoot: cacheRoot}
}

func (e *Engine) entryDir(hash string) string {
	return filepath.Join(e.CacheRoot, "entries", hash)
}

func (e *Engine) manifestPath(hash string) string {
	return filepath.Join(e.entryDir(hash), "manifest.json")
}

func (e *Engine) archivePath(hash string) string {
	return filepath.Join(e.entryDir(hash), "archive.tar.zst")
}

// Has reports whether a local cache entry exists for hash.
func (e *Engine) Has(hash string) bool {
	_, err := os.Stat(e.manifestPath(hash))
	return err == nil
}

// Put archives files (project-root-relative) from projectRoot under hash,
// serializing duration as milliseconds, and writes the manifest.
// Acquires a HashLock for the duration of the write.
func (e *Engine) Put(hash string, projectRoot string, files []string, duration time.Duration, logPath string) (*CacheEntry, error) {
	lock, err := AcquireHashLock(e.CacheRoot, hash)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if err := os.MkdirAll(e.entryDir(hash), 0o755); err != nil {
		return nil, err
	}
	if err := WriteArchive(e.archivePath(hash), projectRoot, files); err != nil {
		return nil, errors.Wrapf(err, "writing archive for hash %v", hash)
	}

	entry := &CacheEntry{
		Hash:       hash,
		Outputs:    files,
		LogPath:    logPath,
		DurationMS: duration.Milliseconds(),
		WrittenAt:  time.Now(),
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(e.manifestPath(hash), data, 0o644); err != nil {
		return nil, err
	}
	return entry, nil
}

// Fetch restores hash's archive into projectRoot, returning the manifest
// and the list of paths actually restored.
func (e *Engine) Fetch(hash string, projectRoot string) (*CacheEntry, []string, error) {
	data, err := os.ReadFile(e.manifestPath(hash))
	if err != nil {
		return nil, nil, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, nil, err
	}
	restored, err := RestoreArchive(e.archivePath(hash), projectRoot)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "restoring archive for hash %v", hash)
	}
	return &entry, restored, nil
}

// Clean removes a single hash's cache entry.
func (e *Engine) Clean(hash string) error {
	return os.RemoveAll(e.entryDir(hash))
}

// CleanAll removes every cache entry under the cache root.
func (e *Engine) CleanAll() error {
	return os.RemoveAll(filepath.Join(e.CacheRoot, "entries"))
}
