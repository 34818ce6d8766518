// Package natives unpacks platform native libraries from their archives.
package natives

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath is returned for archive entries that would land outside
// the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Extract unpacks archive into dest, skipping directory entries and
// entries whose names start with one of the exclude prefixes. Files already
// present with the same size are left alone. It returns the number of files
// written.
func Extract(archive, dest string, exclude []string) (int, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", filepath.Base(archive), err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}

	written := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() || excluded(f.Name, exclude) {
			continue
		}

		rel := filepath.FromSlash(f.Name) // zip uses forward slash
		if !filepath.IsLocal(rel) {
			return written, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
		}
		target := filepath.Join(dest, rel)

		if info, err := os.Stat(target); err == nil && uint64(info.Size()) == f.UncompressedSize64 {
			continue
		}

		if err := extractFile(f, target); err != nil {
			return written, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		written++
	}
	return written, nil
}

func excluded(name string, exclude []string) bool {
	for _, prefix := range exclude {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if mode := f.Mode().Perm(); mode != 0 {
		if err := os.Chmod(tmp.Name(), mode); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), target)
}
