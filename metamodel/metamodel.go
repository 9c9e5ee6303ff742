package metamodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MetaModel wraps one mutable model and keeps track of every named operation applied to it.
//
// A MetaModel is not safe for concurrent use; dispatches are synchronous and strictly ordered.
type MetaModel struct {
	model     Model
	modelName string

	description string
	createdAt   time.Time
	solveCount  int
	optimal     bool
	lineageID   string

	journal      *Journal
	registries   []*Registry
	builtins     map[string]Operation
	filenames    *FilenamePolicy
	filename     string
	lastSnapshot string
	replaying    bool

	loader   ModelLoader
	resolver RegistryResolver
	store    SnapshotStore
	clock    Clock

	pendingRegistries []*Registry
	pendingNames      []string

	observers
}

// Option defines a functional option for configuring a MetaModel.
type Option func(*MetaModel) error

// WithModel supplies an already loaded model, so the loader is not consulted for fresh instances.
func WithModel(model Model) Option {
	return func(mm *MetaModel) error {
		mm.model = model
		return nil
	}
}

// WithLoader sets the loader that reads the model from its source.
func WithLoader(loader ModelLoader) Option {
	return func(mm *MetaModel) error {
		mm.loader = loader
		return nil
	}
}

// WithResolver sets the resolver used by AttachRegistry, AttachMany and Reattach.
func WithResolver(resolver RegistryResolver) Option {
	return func(mm *MetaModel) error {
		mm.resolver = resolver
		return nil
	}
}

// WithRegistries attaches already built registries, in the given order.
func WithRegistries(registries ...*Registry) Option {
	return func(mm *MetaModel) error {
		for _, reg := range registries {
			if reg == nil {
				return ErrNilRegistry
			}
		}

		mm.pendingRegistries = append(mm.pendingRegistries, registries...)

		return nil
	}
}

// WithRegistryNames attaches registries by name through the resolver at construction.
// This is a best-effort bulk attach: names that cannot be resolved are logged and skipped.
func WithRegistryNames(names ...string) Option {
	return func(mm *MetaModel) error {
		mm.pendingNames = append(mm.pendingNames, names...)
		return nil
	}
}

// WithSnapshotStore sets the store snapshots are written to.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(mm *MetaModel) error {
		mm.store = store
		return nil
	}
}

// WithClock injects the clock used for creation dates and filenames.
func WithClock(clock Clock) Option {
	return func(mm *MetaModel) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}

		mm.clock = clock

		return nil
	}
}

// WithDescription sets the free-text model description.
func WithDescription(description string) Option {
	return func(mm *MetaModel) error {
		mm.description = description
		return nil
	}
}

// WithLogger sets the logger for the MetaModel.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: every dispatch with its outcome (development use)
// Info level: snapshots taken, registries attached, replays (production-safe)
// Warn level: registries skipped during bulk attach
// Error level: failed snapshots and replays.
func WithLogger(logger Logger) Option {
	return func(mm *MetaModel) error {
		mm.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the MetaModel.
// It receives the same messages as the plain logger, together with the call's context.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(mm *MetaModel) error {
		mm.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the MetaModel.
func WithMetrics(collector MetricsCollector) Option {
	return func(mm *MetaModel) error {
		mm.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the MetaModel.
func WithTracing(collector TracingCollector) Option {
	return func(mm *MetaModel) error {
		mm.tracingCollector = collector
		return nil
	}
}

// Origin names what a MetaModel is built from: a model source, or a snapshot key in the configured store.
type Origin struct {
	ModelSource string
	SnapshotKey string
}

// Open builds a MetaModel from a snapshot if one is named, otherwise from the model source.
// It fails with ErrConstruction if neither is supplied.
func Open(ctx context.Context, origin Origin, options ...Option) (*MetaModel, error) {
	switch {
	case origin.SnapshotKey != "":
		cfg, err := configure(options)
		if err != nil {
			return nil, err
		}

		return FromSnapshot(ctx, cfg.store, origin.SnapshotKey, options...)

	case origin.ModelSource != "":
		return New(ctx, origin.ModelSource, options...)

	default:
		return nil, ErrConstruction
	}
}

// New creates a fresh MetaModel for the model at source.
//
// Unless WithModel supplies the model, it is read through the configured ModelLoader.
func New(ctx context.Context, source string, options ...Option) (*MetaModel, error) {
	if source == "" {
		return nil, ErrConstruction
	}

	mm, err := configure(options)
	if err != nil {
		return nil, err
	}

	mm.modelName = source
	mm.createdAt = mm.clock.Now()
	mm.lineageID = uuid.NewString()

	if mm.model == nil {
		model, loadErr := mm.loadModel(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		mm.model = model
	}

	mm.filenames = NewFilenamePolicy(mm.clock, 0)
	mm.UpdateFilename()

	if err := mm.attachPending(ctx); err != nil {
		return nil, err
	}

	return mm, nil
}

// configure builds an unbound MetaModel from options.
func configure(options []Option) (*MetaModel, error) {
	mm := &MetaModel{
		journal: NewJournal(),
		clock:   SystemClock(),
	}

	for _, option := range options {
		if err := option(mm); err != nil {
			return nil, err
		}
	}

	mm.builtins = mm.builtinOperations()

	return mm, nil
}

func (mm *MetaModel) loadModel(ctx context.Context) (Model, error) {
	if mm.loader == nil {
		return nil, fmt.Errorf("%w: cannot read %q", ErrNoModelLoader, mm.modelName)
	}

	model, err := mm.loader.Load(ctx, mm.modelName)
	if err != nil {
		return nil, fmt.Errorf("loading model %q: %w", mm.modelName, err)
	}

	return model, nil
}

// attachPending attaches registries configured through options: explicit ones first, then named ones.
func (mm *MetaModel) attachPending(ctx context.Context) error {
	for _, reg := range mm.pendingRegistries {
		if err := mm.Attach(reg); err != nil {
			return err
		}
	}

	if len(mm.pendingNames) > 0 {
		mm.AttachMany(ctx, mm.pendingNames...)
	}

	mm.pendingRegistries = nil
	mm.pendingNames = nil

	return nil
}

/***** registries *****/

// Attach attaches an already built registry under its own name.
// Attaching a name twice replaces the registry but keeps its original position.
func (mm *MetaModel) Attach(reg *Registry) error {
	if reg == nil {
		return ErrNilRegistry
	}

	if reg.Name() == "" {
		return ErrEmptyRegistryName
	}

	if i := mm.registryIndex(reg.Name()); i >= 0 {
		mm.registries[i] = reg
		return nil
	}

	mm.registries = append(mm.registries, reg)

	return nil
}

// AttachRegistry resolves name through the configured resolver and attaches the result.
// A name that is already attached is left as is; use Reattach to force re-resolution.
func (mm *MetaModel) AttachRegistry(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyRegistryName
	}

	if mm.registryIndex(name) >= 0 {
		return nil
	}

	reg, err := mm.resolve(ctx, name)
	if err != nil {
		return err
	}

	if err := mm.Attach(reg); err != nil {
		return err
	}

	mm.logInfo(ctx, logMsgRegistryAttached, logAttrRegistry, name)

	return nil
}

// AttachMany attaches each named registry and reports one result per name.
// Failures do not stop the remaining names; each one is logged and returned in the results.
func (mm *MetaModel) AttachMany(ctx context.Context, names ...string) AttachResults {
	results := make(AttachResults, 0, len(names))

	for _, name := range names {
		err := mm.AttachRegistry(ctx, name)
		if err != nil {
			mm.logWarn(ctx, logMsgRegistryAttachFailed, err, logAttrRegistry, name)
		}

		results = append(results, AttachResult{Name: name, Err: err})
	}

	return results
}

// Reattach resolves name again and replaces the attached registry in place,
// which picks up changed operation definitions between dispatches.
// A name that is not attached yet is simply attached.
func (mm *MetaModel) Reattach(ctx context.Context, name string) error {
	if mm.registryIndex(name) < 0 {
		return mm.AttachRegistry(ctx, name)
	}

	reg, err := mm.resolve(ctx, name)
	if err != nil {
		return err
	}

	if err := mm.Attach(reg); err != nil {
		return err
	}

	mm.logInfo(ctx, logMsgRegistryReattached, logAttrRegistry, name)

	return nil
}

// RegistryNames returns the attached registry names in attachment order.
func (mm *MetaModel) RegistryNames() []string {
	names := make([]string, len(mm.registries))
	for i, reg := range mm.registries {
		names[i] = reg.Name()
	}

	return names
}

func (mm *MetaModel) resolve(ctx context.Context, name string) (*Registry, error) {
	if mm.resolver == nil {
		return nil, fmt.Errorf("%w: %s (no resolver configured)", ErrRegistryNotFound, name)
	}

	reg, err := mm.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	if reg.Name() != name {
		return nil, fmt.Errorf("%w: resolver returned registry %q for %q", ErrRegistryNotFound, reg.Name(), name)
	}

	return reg, nil
}

func (mm *MetaModel) registryIndex(name string) int {
	for i, reg := range mm.registries {
		if reg.Name() == name {
			return i
		}
	}

	return -1
}

func (mm *MetaModel) registry(name string) (*Registry, bool) {
	if i := mm.registryIndex(name); i >= 0 {
		return mm.registries[i], true
	}

	return nil, false
}

/***** descriptive state *****/

// Model returns the wrapped model.
func (mm *MetaModel) Model() Model {
	return mm.model
}

// SetModel replaces the wrapped model, for operations that build a new model rather than mutate it.
func (mm *MetaModel) SetModel(model Model) {
	mm.model = model
}

// ModelName returns the model source reference the instance was created from.
func (mm *MetaModel) ModelName() string {
	return mm.modelName
}

// Description returns the free-text description.
func (mm *MetaModel) Description() string {
	return mm.description
}

// SetDescription replaces the free-text description.
func (mm *MetaModel) SetDescription(description string) {
	mm.description = description
}

// CreatedAt returns when the model lineage was first created.
func (mm *MetaModel) CreatedAt() time.Time {
	return mm.createdAt
}

// SolveCount returns how many solves operations have reported.
func (mm *MetaModel) SolveCount() int {
	return mm.solveCount
}

// IncrementSolveCount is called by solve operations.
func (mm *MetaModel) IncrementSolveCount() {
	mm.solveCount++
}

// Optimal reports whether the last solve found an optimal solution.
func (mm *MetaModel) Optimal() bool {
	return mm.optimal
}

// SetOptimal is called by solve operations.
func (mm *MetaModel) SetOptimal(optimal bool) {
	mm.optimal = optimal
}

// LineageID identifies the model lineage; it is carried over by reconstruction.
func (mm *MetaModel) LineageID() string {
	return mm.lineageID
}

// Journal returns a copy of the recorded journal entries.
func (mm *MetaModel) Journal() []JournalEntry {
	return mm.journal.Entries()
}

// JournalLen returns the number of recorded journal entries.
func (mm *MetaModel) JournalLen() int {
	return mm.journal.Len()
}

// Filename returns the name (without extension) the next snapshot will be written to.
func (mm *MetaModel) Filename() string {
	return mm.filename
}

// LastSnapshot returns the key of the most recent snapshot taken by this instance.
func (mm *MetaModel) LastSnapshot() string {
	return mm.lastSnapshot
}

// Replaying reports whether the instance is replaying a journal during reconstruction.
// Operations can use it to skip side effects outside the model, such as writing files.
func (mm *MetaModel) Replaying() bool {
	return mm.replaying
}

// UpdateFilename computes the next filename from the policy and returns it.
func (mm *MetaModel) UpdateFilename() string {
	mm.filename = mm.filenames.Next(mm.modelName)
	return mm.filename
}
