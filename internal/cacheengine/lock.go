package cacheengine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"
)

// HashLock is an advisory per-hash lock preventing two concurrent runs from
// writing the same cache entry at once, spec.md §4.8's "cache writes for a
// given hash are serialized." Adapted from the teacher's daemon/connector
// use of github.com/nightlyone/lockfile for its pidfile, repurposed here to
// guard one hash's cache entry directory instead of one daemon process.
type HashLock struct {
	lf lockfile.Lockfile
}

// AcquireHashLock creates (if needed) and locks a `<hash>.lock` file under
// cacheRoot. Non-blocking: returns an error immediately if another process
// currently holds it.
func AcquireHashLock(cacheRoot, hash string) (*HashLock, error) {
	dir := filepath.Join(cacheRoot, "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating lock dir for hash %v", hash)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.lock", hash))
	lf, err := lockfile.New(path)
	if err != nil {
		return nil, errors.Wrapf(err, "constructing lock for hash %v", hash)
	}
	if err := lf.TryLock(); err != nil {
		return nil, errors.Wrapf(err, "acquiring lock for hash %v", hash)
	}
	return &HashLock{lf: lf}, nil
}

// Release unlocks the hash lock.
func (h *HashLock) Release() error {
	return h.lf.Unlock()
}
