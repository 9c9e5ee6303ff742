// Package luaregistry resolves registries from Lua scripts.
//
// A registry named "analysis_functions" lives in "<dir>/analysis_functions.lua". The script returns
// a table of functions; every function becomes an operation called as fn(mm, args, kwargs), where
// mm is a table exposing the MetaModel's descriptive state plus any host functions the caller
// registered. The script is read again on every resolution, so MetaModel.Reattach picks up edits.
package luaregistry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

const (
	scriptExtension = ".lua"
	opsRegistryKey  = "metamodel_operations"

	logMsgScriptLoaded = "lua registry loaded"
	logAttrRegistry    = "registry"
	logAttrPath        = "path"
	logAttrOperations  = "operations"
)

var (
	// ErrInvalidScript is returned when a script does not evaluate to a table of functions.
	ErrInvalidScript = errors.New("lua registry script must return a table of functions")

	// ErrEmptyHostFunctionName is returned when WithHostFunction receives an empty name.
	ErrEmptyHostFunctionName = errors.New("host function name must not be empty")

	// ErrReservedHostFunctionName is returned when a host function would shadow a built-in mm field.
	ErrReservedHostFunctionName = errors.New("host function name is reserved")
)

// HostFunction is exposed to scripts as mm.<name>(...).
// Its arguments arrive canonicalized; the result is pushed back as a Lua value.
type HostFunction func(ctx context.Context, mm *metamodel.MetaModel, args metamodel.Args) (any, error)

// Option configures a Resolver.
type Option func(*Resolver) error

// WithHostFunction exposes fn to every script as mm.<name>.
func WithHostFunction(name string, fn HostFunction) Option {
	return func(r *Resolver) error {
		if strings.TrimSpace(name) == "" {
			return ErrEmptyHostFunctionName
		}

		if _, reserved := builtinFields[name]; reserved {
			return fmt.Errorf("%w: %s", ErrReservedHostFunctionName, name)
		}

		r.hostFunctions[name] = fn

		return nil
	}
}

// WithLogger sets a logger that reports each loaded script at debug level.
func WithLogger(logger metamodel.Logger) Option {
	return func(r *Resolver) error {
		r.logger = logger
		return nil
	}
}

// Resolver implements metamodel.RegistryResolver on a directory of Lua scripts.
type Resolver struct {
	dir           string
	hostFunctions map[string]HostFunction
	logger        metamodel.Logger
}

// NewResolver creates a Resolver reading scripts from dir.
func NewResolver(dir string, options ...Option) (*Resolver, error) {
	r := &Resolver{
		dir:           dir,
		hostFunctions: make(map[string]HostFunction),
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Resolve implements metamodel.RegistryResolver.
func (r *Resolver) Resolve(_ context.Context, name string) (*metamodel.Registry, error) {
	if name == "" {
		return nil, metamodel.ErrEmptyRegistryName
	}

	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %s", metamodel.ErrRegistryNotFound, name)
	}

	path := filepath.Join(r.dir, name+scriptExtension)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (no script at %s)", metamodel.ErrRegistryNotFound, name, path)
		}

		return nil, err
	}

	script, operations, err := r.load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	reg := metamodel.NewRegistry(name)
	for _, op := range operations {
		if err := reg.Register(op, &operation{script: script, registry: name, name: op}); err != nil {
			return nil, err
		}
	}

	if r.logger != nil {
		r.logger.Debug(logMsgScriptLoaded, logAttrRegistry, name, logAttrPath, path, logAttrOperations, len(operations))
	}

	return reg, nil
}

// load runs the script and keeps the returned table in the Lua registry.
// The function names are returned sorted so registration order does not depend on table iteration.
func (r *Resolver) load(path string) (*script, []string, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, nil, fmt.Errorf("load lua: %w", err)
	}

	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, nil, fmt.Errorf("run lua: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeTable {
		return nil, nil, ErrInvalidScript
	}

	var operations []string
	state.PushNil()
	for state.Next(-2) {
		if state.TypeOf(-2) == lua.TypeString && state.TypeOf(-1) == lua.TypeFunction {
			key, _ := state.ToString(-2)
			operations = append(operations, key)
		}
		state.Pop(1)
	}

	if len(operations) == 0 {
		return nil, nil, ErrInvalidScript
	}
	sort.Strings(operations)

	state.SetField(lua.RegistryIndex, opsRegistryKey)

	return &script{state: state, hostFunctions: r.hostFunctions}, operations, nil
}

// script is one loaded Lua state shared by the operations of a registry.
// Lua states are not safe for concurrent use, hence the mutex.
type script struct {
	mu            sync.Mutex
	state         *lua.State
	hostFunctions map[string]HostFunction
}

type operation struct {
	script   *script
	registry string
	name     string
}

// Apply implements metamodel.Operation.
func (o *operation) Apply(ctx context.Context, mm *metamodel.MetaModel, args metamodel.Args, kwargs metamodel.Kwargs) error {
	s := o.script
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	top := state.Top()
	defer state.SetTop(top)

	state.Field(lua.RegistryIndex, opsRegistryKey)
	state.Field(-1, o.name)
	if state.TypeOf(-1) != lua.TypeFunction {
		return fmt.Errorf("%w: %s.%s", metamodel.ErrOperationNotFound, o.registry, o.name)
	}

	s.pushHostTable(ctx, mm)
	pushValue(state, []any(args))
	pushValue(state, map[string]any(kwargs))

	if err := state.ProtectedCall(3, 0, 0); err != nil {
		return fmt.Errorf("lua %s.%s: %w", o.registry, o.name, err)
	}

	return nil
}
