package metamodel

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrSnapshotNotFound is returned when no snapshot exists under the requested key.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshotKey is returned for empty, absolute or traversing snapshot keys.
	ErrInvalidSnapshotKey = errors.New("invalid snapshot key")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")
)

// SnapshotStore persists encoded snapshot records under string keys such as "forest_20170331_0.json".
//
// Save overwrites silently; writes need not be atomic.
// Load returns an error matching ErrSnapshotNotFound if nothing is stored under key.
type SnapshotStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// SnapshotLister is implemented by stores that can enumerate their keys.
type SnapshotLister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// CleanSnapshotKey validates a snapshot key and returns it in slash-separated, cleaned form.
// Store implementations use it so that keys cannot escape their root.
func CleanSnapshotKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidSnapshotKey)
	}

	slashed := strings.ReplaceAll(key, "\\", "/")
	if strings.HasPrefix(slashed, "/") {
		return "", fmt.Errorf("%w: absolute key %q", ErrInvalidSnapshotKey, key)
	}

	for _, segment := range strings.Split(slashed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: key %q contains '..'", ErrInvalidSnapshotKey, key)
		}
	}

	return path.Clean(slashed), nil
}
