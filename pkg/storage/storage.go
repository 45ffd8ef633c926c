// Package storage keeps uploaded files such as call recordings.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const maxNameAttempts = 1000

// ErrInvalidPath is returned for references that escape the storage root
var ErrInvalidPath = errors.New("invalid storage path")

// Storage saves named byte streams and hands back a reference to them.
// Save never replaces an existing file; the returned reference may differ
// from the requested one.
type Storage interface {
	Save(ctx context.Context, ref string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}

// Local stores files below a root directory on disk
type Local struct {
	Root string
}

// NewLocal creates the root directory if needed
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Local{Root: root}, nil
}

func (l *Local) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(l.Root, clean), nil
}

// Save writes r to ref and returns the reference it was stored under. When
// ref is taken, a "_<n>" suffix is added before the extension so an existing
// file is never replaced.
func (l *Local) Save(ctx context.Context, ref string, r io.Reader) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(ref)))
	full, err := l.resolve(clean)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	f, stored, err := l.createAvailable(clean)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return stored, nil
}

// createAvailable creates the first free name of ref, ref_1, ref_2 ...
func (l *Local) createAvailable(ref string) (*os.File, string, error) {
	ext := path.Ext(ref)
	stem := strings.TrimSuffix(ref, ext)
	for n := 0; n <= maxNameAttempts; n++ {
		candidate := ref
		if n > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		full, err := l.resolve(candidate)
		if err != nil {
			return nil, "", err
		}
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("no free name for %q", ref)
}

// Open returns the content stored under ref
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	full, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Remove deletes ref. A missing file is not an error.
func (l *Local) Remove(ctx context.Context, ref string) error {
	full, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
