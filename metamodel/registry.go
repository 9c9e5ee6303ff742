package metamodel

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// QualifiedNameSeparator separates the registry name from the operation name in "registry.operation".
const QualifiedNameSeparator = "."

// Operation is a named transformation that can be dispatched against a MetaModel.
//
// It receives the MetaModel wrapping the model (use mm.Model() for the model itself),
// followed by positional and keyword arguments in their canonical JSON-compatible shape.
// Operations must be deterministic for replay to reproduce the same model state.
type Operation interface {
	Apply(ctx context.Context, mm *MetaModel, args Args, kwargs Kwargs) error
}

// OperationFunc adapts an ordinary function to the Operation interface.
type OperationFunc func(ctx context.Context, mm *MetaModel, args Args, kwargs Kwargs) error

// Apply calls f.
func (f OperationFunc) Apply(ctx context.Context, mm *MetaModel, args Args, kwargs Kwargs) error {
	return f(ctx, mm, args, kwargs)
}

// Registry is a named collection of operations, the unit that gets attached to a MetaModel.
type Registry struct {
	name       string
	operations map[string]Operation
	order      []string
}

// NewRegistry constructs an empty registry.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:       name,
		operations: make(map[string]Operation),
	}
}

// Name returns the name the registry is attached under.
func (r *Registry) Name() string {
	return r.name
}

// Register adds an operation under the given bare name.
func (r *Registry) Register(name string, op Operation) error {
	if name == "" || strings.Contains(name, QualifiedNameSeparator) {
		return fmt.Errorf("%w: %q", ErrInvalidOperationName, name)
	}

	if op == nil {
		return fmt.Errorf("%w: %s", ErrNilOperation, name)
	}

	if _, exists := r.operations[name]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateOperation, r.name, name)
	}

	r.operations[name] = op
	r.order = append(r.order, name)

	return nil
}

// RegisterFunc adds a plain function as an operation.
func (r *Registry) RegisterFunc(name string, fn OperationFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilOperation, name)
	}

	return r.Register(name, fn)
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.operations[name]
	return op, ok
}

// Operations returns the registered operation names in registration order.
func (r *Registry) Operations() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// RegistryResolver resolves a registry name to a freshly built Registry.
// It replaces reflective module import: resolvers are wired up explicitly by the caller.
// Implementations return an error matching ErrRegistryNotFound for unknown names.
type RegistryResolver interface {
	Resolve(ctx context.Context, name string) (*Registry, error)
}

// RegistryBuilder builds a registry on demand.
type RegistryBuilder func(ctx context.Context) (*Registry, error)

// StaticResolver resolves registry names through builders registered at startup.
// A builder runs on every resolution, which is what Reattach relies on for reloads.
type StaticResolver struct {
	builders map[string]RegistryBuilder
}

// NewStaticResolver constructs an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{builders: make(map[string]RegistryBuilder)}
}

// Provide registers a builder for name, replacing any previous one.
func (r *StaticResolver) Provide(name string, builder RegistryBuilder) *StaticResolver {
	r.builders[name] = builder
	return r
}

// ProvideRegistry registers an already built registry under its own name.
func (r *StaticResolver) ProvideRegistry(reg *Registry) *StaticResolver {
	return r.Provide(reg.Name(), func(context.Context) (*Registry, error) {
		return reg, nil
	})
}

// Resolve implements RegistryResolver.
func (r *StaticResolver) Resolve(ctx context.Context, name string) (*Registry, error) {
	if name == "" {
		return nil, ErrEmptyRegistryName
	}

	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, name)
	}

	reg, err := builder(ctx)
	if err != nil {
		return nil, fmt.Errorf("building registry %s: %w", name, err)
	}

	if reg == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilRegistry, name)
	}

	return reg, nil
}

// ChainResolver asks each resolver in turn and returns the first registry found.
type ChainResolver []RegistryResolver

// Resolve implements RegistryResolver.
func (c ChainResolver) Resolve(ctx context.Context, name string) (*Registry, error) {
	for _, resolver := range c {
		reg, err := resolver.Resolve(ctx, name)
		if err == nil {
			return reg, nil
		}

		if !errors.Is(err, ErrRegistryNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, name)
}

// AttachResult reports the outcome of attaching one registry by name.
type AttachResult struct {
	Name string
	Err  error
}

// AttachResults is the per-name outcome of a bulk attach.
type AttachResults []AttachResult

// Err joins all failures, or returns nil if every registry was attached.
func (rs AttachResults) Err() error {
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}

	return errors.Join(errs...)
}

// Failed returns the names that could not be attached.
func (rs AttachResults) Failed() []string {
	var names []string
	for _, r := range rs {
		if r.Err != nil {
			names = append(names, r.Name)
		}
	}

	return names
}
