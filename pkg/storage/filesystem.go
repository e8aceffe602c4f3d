package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageStore persists uploaded images on disk under a base directory. Files
// are stored under generated names so callers only ever hold opaque handles.
type ImageStore struct {
	baseDir     string
	maxSize     int64
	allowedExts map[string]struct{}
}

// NewImageStore ensures the base directory exists and returns a handle.
func NewImageStore(baseDir string, maxSize int64, allowedExts []string) (*ImageStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if maxSize <= 0 {
		maxSize = 3 * 1024 * 1024
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	exts := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &ImageStore{baseDir: baseDir, maxSize: maxSize, allowedExts: exts}, nil
}

// ErrFileTooLarge signals the upload exceeded the configured size limit.
var ErrFileTooLarge = fmt.Errorf("file exceeds maximum allowed size")

// ErrExtensionNotAllowed signals an upload with a disallowed file extension.
var ErrExtensionNotAllowed = fmt.Errorf("file extension not allowed")

// Allowed reports whether the extension of the given original file name is
// accepted.
func (s *ImageStore) Allowed(originalName string) bool {
	if len(s.allowedExts) == 0 {
		return true
	}
	_, ok := s.allowedExts[strings.ToLower(filepath.Ext(originalName))]
	return ok
}

// MaxSize returns the configured size limit in bytes.
func (s *ImageStore) MaxSize() int64 {
	return s.maxSize
}

// Save streams the upload to disk under a generated unique name and returns
// that name as the stored handle. The reader is capped at the size limit.
func (s *ImageStore) Save(r io.Reader, originalName string, declaredSize int64) (string, error) {
	if !s.Allowed(originalName) {
		return "", ErrExtensionNotAllowed
	}
	if declaredSize > s.maxSize {
		return "", ErrFileTooLarge
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.baseDir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	written, err := io.Copy(file, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if written > s.maxSize {
		_ = os.Remove(path)
		return "", ErrFileTooLarge
	}

	return name, nil
}

// Open returns a read-only handle for a stored file.
func (s *ImageStore) Open(name string) (*os.File, error) {
	file, err := os.Open(s.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *ImageStore) Delete(name string) error {
	if name == "" {
		return nil
	}
	if err := os.Remove(s.resolve(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

// Path exposes the absolute path of a stored file.
func (s *ImageStore) Path(name string) string {
	return s.resolve(name)
}

func (s *ImageStore) resolve(name string) string {
	// Strip any path components so handles cannot escape the base dir.
	return filepath.Join(s.baseDir, filepath.Base(name))
}
