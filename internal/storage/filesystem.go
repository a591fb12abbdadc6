package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStorage stages transient files under a base directory
type FilesystemStorage struct {
	baseDir string
}

// NewFilesystemStorage creates a new filesystem storage rooted at baseDir
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStorage{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the directory files are staged in
func (fs *FilesystemStorage) BaseDir() string {
	return fs.baseDir
}

// resolve maps key to a path inside the base directory
func (fs *FilesystemStorage) resolve(key string) (string, error) {
	base := filepath.Clean(fs.baseDir)
	path := filepath.Clean(filepath.Join(base, key))

	// Security: prevent directory traversal
	if key == "" || !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q: path traversal detected", key)
	}
	return path, nil
}

// Put writes r to the file at the given key, replacing any existing file,
// and returns the number of bytes written
func (fs *FilesystemStorage) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return 0, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		return n, fmt.Errorf("failed to close file: %w", err)
	}
	return n, nil
}

// GetReader returns a reader for the file at the given key
func (fs *FilesystemStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Exists checks if a file exists at the given key
func (fs *FilesystemStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

// Remove deletes the file at the given key. A file that does not exist is
// not an error.
func (fs *FilesystemStorage) Remove(ctx context.Context, key string) error {
	path, err := fs.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}
