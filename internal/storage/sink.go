// Package storage writes generated dataset files to their destination: a
// local directory tree or an S3 bucket.
//
// Callers hand a Sink fully encoded bytes and a slash-separated key relative
// to the output root, so a failed encode never leaves a partial file behind.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Sink stores encoded output files.
type Sink interface {
	// Put stores data under key, creating intermediate directories as needed.
	Put(ctx context.Context, key string, data []byte) error

	// Location returns a human-readable location for key, used in logs and
	// tool results.
	Location(key string) string
}

// CleanKey normalizes a key to a slash-separated relative path and rejects
// keys that escape the output root.
func CleanKey(key string) (string, error) {
	k := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "." || k == "" {
		return "", fmt.Errorf("empty storage key")
	}
	if k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("storage key escapes output root: %s", key)
	}
	return k, nil
}

// LocalSink writes files below Root.
type LocalSink struct {
	Root string
}

// NewLocalSink creates a sink rooted at dir. The directory is created on the
// first Put.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{Root: dir}
}

// Put writes data to Root/key through a temporary file and a rename.
func (s *LocalSink) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.Root, filepath.FromSlash(k))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

// Location returns the filesystem path for key.
func (s *LocalSink) Location(key string) string {
	k, err := CleanKey(key)
	if err != nil {
		return filepath.Join(s.Root, key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(k))
}
