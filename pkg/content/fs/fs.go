// Package fs implements a ContentStore that serves files from a directory
// tree through an afero filesystem.
//
// Production uses afero.NewOsFs(); tests swap in afero.NewMemMapFs() so the
// handler can be exercised without touching the disk.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path/filepath"
	"syscall"

	"github.com/marmos91/dittoserve/pkg/content"
	"github.com/spf13/afero"
)

// FSContentStore serves content directly from a filesystem.
//
// The ContentID is used verbatim as the file path. The handler builds it as
// root + request path without any normalization, so a request for "/../x"
// resolves outside the root exactly like the plain path concatenation would.
//
// Thread Safety:
// Safe for concurrent use. Each ReadContent call opens its own file handle.
type FSContentStore struct {
	fs afero.Fs
}

// NewFSContentStore creates a store on top of an arbitrary afero filesystem.
func NewFSContentStore(fs afero.Fs) *FSContentStore {
	return &FSContentStore{fs: fs}
}

// NewOSContentStore creates a store backed by the host filesystem.
//
// root is checked once so that a typo in the served directory is reported at
// startup instead of turning every request into a 404.
func NewOSContentStore(ctx context.Context, root string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	osfs := afero.NewOsFs()
	info, err := osfs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat content root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content root %q is not a directory", root)
	}

	return NewFSContentStore(osfs), nil
}

// ReadContent opens the file named by id.
func (s *FSContentStore) ReadContent(ctx context.Context, id content.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.stat(id); err != nil {
		return nil, err
	}

	file, err := s.fs.Open(string(id))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}

	return file, nil
}

// GetContentSize stats the file named by id. Directories are reported as
// ErrContentNotFound.
func (s *FSContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := s.stat(id)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// ContentExists reports whether id names a regular file.
func (s *FSContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.stat(id)
	if errors.Is(err, content.ErrContentNotFound) {
		return false, nil
	}
	return err == nil, err
}

// WriteContent creates or replaces the file named by id. Parent directories
// are created as needed.
func (s *FSContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := string(id)
	if path == "" {
		return content.ErrInvalidContentID
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Close is a no-op; the filesystem has no long-lived handles.
func (s *FSContentStore) Close() error {
	return nil
}

func (s *FSContentStore) stat(id content.ContentID) (iofs.FileInfo, error) {
	if id == "" {
		return nil, fmt.Errorf("content %q: %w", id, content.ErrContentNotFound)
	}

	info, err := s.fs.Stat(string(id))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to stat content: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("content %s is not a regular file: %w", id, content.ErrContentNotFound)
	}
	return info, nil
}
