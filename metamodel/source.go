package metamodel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Model is the opaque, externally managed mutable object a MetaModel wraps.
// Only its source reference is ever persisted.
type Model any

// ModelLoader reads a model from its source reference (usually a file name).
type ModelLoader interface {
	Load(ctx context.Context, source string) (Model, error)
}

// ModelLoaderFunc adapts a function to the ModelLoader interface.
type ModelLoaderFunc func(ctx context.Context, source string) (Model, error)

// Load calls f.
func (f ModelLoaderFunc) Load(ctx context.Context, source string) (Model, error) {
	return f(ctx, source)
}

// ExtensionLoader picks a ModelLoader by the file extension of the model source.
type ExtensionLoader struct {
	loaders map[string]ModelLoader
}

// NewExtensionLoader constructs an ExtensionLoader without any registered extensions.
func NewExtensionLoader() *ExtensionLoader {
	return &ExtensionLoader{loaders: make(map[string]ModelLoader)}
}

// Register adds a loader for an extension such as ".lp". Extensions are matched case-insensitively.
func (l *ExtensionLoader) Register(ext string, loader ModelLoader) *ExtensionLoader {
	l.loaders[normalizeExtension(ext)] = loader
	return l
}

// Load implements ModelLoader.
func (l *ExtensionLoader) Load(ctx context.Context, source string) (Model, error) {
	ext := normalizeExtension(filepath.Ext(source))

	loader, ok := l.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModelSource, source)
	}

	return loader.Load(ctx, source)
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return ext
}
