// Package cacheengine implements spec.md §4.8's CacheEngine: writing and
// restoring CacheEntry archives under the cache root, keyed by TaskHash,
// and the TaskRunCacheState bookkeeping (outputs actually produced, logs).
//
// Archive format adapted from the teacher's internal/cacheitem: a tar
// stream, always wrapped in a zstd writer/reader
// (github.com/DataDog/zstd), one entry per output file restored relative
// to the project root.
package cacheengine

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	"github.com/DataDog/zstd"
	"github.com/pkg/errors"
)

// WriteArchive tars every path in files (project-root-relative) rooted at
// projectRoot, zstd-compressing the stream, and writes it to archivePath.
func WriteArchive(archivePath string, projectRoot string, files []string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zstd.NewWriter(out)
	tw := tar.NewWriter(zw)

	for _, rel := range files {
		if err := addFile(tw, projectRoot, rel); err != nil {
			return errors.Wrapf(err, "archiving %v", rel)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

func addFile(tw *tar.Writer, root, rel string) error {
	full := filepath.Join(root, rel)
	info, err := os.Lstat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		link, err = os.Readlink(full)
		if err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(full)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
	}
	return nil
}

// RestoreArchive extracts archivePath into projectRoot, returning the list
// of project-root-relative paths it restored.
func RestoreArchive(archivePath string, projectRoot string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr := zstd.NewReader(f)
	defer zr.Close()
	tr := tar.NewReader(zr)

	var restored []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		dest := filepath.Join(projectRoot, filepath.FromSlash(header.Name))
		if err := restoreEntry(tr, header, dest); err != nil {
			return nil, errors.Wrapf(err, "restoring %v", header.Name)
		}
		restored = append(restored, header.Name)
	}
	return restored, nil
}

func restoreEntry(tr *tar.Reader, header *tar.Header, dest string) error {
	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, 0o755)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		_ = os.Remove(dest)
		return os.Symlink(header.Linkname, dest)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode))
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, tr)
		return err
	default:
		return nil
	}
}
