// Package filestore keeps snapshot records as JSON files in a local directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

const defaultRoot = "./snapshots"

// Store implements metamodel.SnapshotStore on the local filesystem.
// Keys map to relative file paths under the root. Saves overwrite in place and are not atomic.
type Store struct {
	root     string
	fileMode fs.FileMode
	dirMode  fs.FileMode
}

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithFileMode sets the permissions of written snapshot files.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *Store) error {
		if mode&0o200 == 0 {
			return fmt.Errorf("file mode %v is not writable by the owner", mode)
		}

		s.fileMode = mode

		return nil
	}
}

// New returns a filesystem-backed snapshot store rooted at root, creating the directory if needed.
// An empty root means "./snapshots".
func New(root string, options ...Option) (*Store, error) {
	if root == "" {
		root = defaultRoot
	}

	s := &Store{root: root, fileMode: 0o644, dirMode: 0o755}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(root, s.dirMode); err != nil {
		return nil, err
	}

	return s, nil
}

// Root returns the directory snapshots are written to.
func (s *Store) Root() string {
	return s.root
}

// Save implements metamodel.SnapshotStore.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return errors.Join(metamodel.ErrSavingSnapshotFailed, err)
	}

	if err := os.WriteFile(path, data, s.fileMode); err != nil {
		return errors.Join(metamodel.ErrSavingSnapshotFailed, err)
	}

	return nil
}

// Load implements metamodel.SnapshotStore.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", metamodel.ErrSnapshotNotFound, key)
	}

	if err != nil {
		return nil, errors.Join(metamodel.ErrLoadingSnapshotFailed, err)
	}

	return data, nil
}

// List implements metamodel.SnapshotLister. Keys are returned in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, metamodel.SnapshotExtension) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *Store) pathFor(key string) (string, error) {
	clean, err := metamodel.CleanSnapshotKey(key)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

var (
	_ metamodel.SnapshotStore  = (*Store)(nil)
	_ metamodel.SnapshotLister = (*Store)(nil)
)
