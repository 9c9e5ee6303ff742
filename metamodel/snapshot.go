package metamodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidSnapshotJSON is returned when a persisted snapshot cannot be parsed.
	ErrInvalidSnapshotJSON = errors.New("snapshot is not valid json")

	// ErrMissingModelSource is returned when a snapshot does not name the model source it was built from.
	ErrMissingModelSource = errors.New("snapshot does not name a model source")
)

// SnapshotRecord is the persisted form of a MetaModel: its descriptive state plus the journal.
// The model itself is never part of it, only the source it can be reloaded from.
type SnapshotRecord struct {
	ModelName     string         `json:"model_name"`
	Description   string         `json:"description"`
	DateCreated   string         `json:"date_created"`
	SolveCount    int            `json:"solve_count"`
	Optimal       bool           `json:"optimal"`
	LineageID     string         `json:"lineage_id,omitempty"`
	RegistryNames []string       `json:"registry_names"`
	Filename      string         `json:"filename"`
	Version       int            `json:"version"`
	JSONFile      string         `json:"json_file"`
	FunctionList  []JournalEntry `json:"function_list"`
}

// CreatedAt parses DateCreated.
func (r SnapshotRecord) CreatedAt() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, r.DateCreated)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidSnapshotJSON, fmt.Errorf("date_created: %w", err))
	}

	return t, nil
}

// Serialize builds the snapshot record for the current state without writing it anywhere.
// The record names the current filename; TakeSnapshot writes it there.
func (mm *MetaModel) Serialize() SnapshotRecord {
	functions := mm.journal.Entries()

	return SnapshotRecord{
		ModelName:     mm.modelName,
		Description:   mm.description,
		DateCreated:   mm.createdAt.Format(time.RFC3339Nano),
		SolveCount:    mm.solveCount,
		Optimal:       mm.optimal,
		LineageID:     mm.lineageID,
		RegistryNames: mm.RegistryNames(),
		Filename:      mm.filename,
		Version:       mm.filenames.Counter() - 1,
		JSONFile:      mm.filename + SnapshotExtension,
		FunctionList:  functions,
	}
}

// MarshalSnapshot encodes a record as JSON.
func MarshalSnapshot(record SnapshotRecord) ([]byte, error) {
	if record.RegistryNames == nil {
		record.RegistryNames = []string{}
	}

	if record.FunctionList == nil {
		record.FunctionList = []JournalEntry{}
	}

	return snapshotJSON.MarshalIndent(record, "", "  ")
}

// UnmarshalSnapshot decodes a JSON snapshot record.
func UnmarshalSnapshot(data []byte) (SnapshotRecord, error) {
	var record SnapshotRecord
	if err := snapshotJSON.Unmarshal(data, &record); err != nil {
		return SnapshotRecord{}, errors.Join(ErrInvalidSnapshotJSON, err)
	}

	if record.ModelName == "" {
		return SnapshotRecord{}, ErrMissingModelSource
	}

	if record.FunctionList == nil {
		record.FunctionList = []JournalEntry{}
	}

	return record, nil
}

// TakeSnapshot writes the snapshot record to "<filename>.json" in the configured store and returns the key.
// Afterwards the filename advances, so a later snapshot of the same instance gets a new name.
func (mm *MetaModel) TakeSnapshot(ctx context.Context) (string, error) {
	if mm.store == nil {
		return "", ErrNoSnapshotStore
	}

	ctx, span := mm.startSpan(ctx, spanNameSnapshot, nil)
	start := time.Now()

	record := mm.Serialize()
	key := record.JSONFile

	data, err := MarshalSnapshot(record)
	if err == nil {
		err = mm.store.Save(ctx, key, data)
	}

	duration := time.Since(start)

	if err != nil {
		mm.logError(ctx, logMsgSnapshotFailed, err, logAttrSnapshotKey, key)
		mm.recordDuration(ctx, metricSnapshotDuration, duration, map[string]string{labelStatus: statusError})
		mm.finishSpanWithDuration(span, statusError, duration, map[string]string{
			spanAttrSnapshotKey: key,
			spanAttrErrorType:   errorTypeStore,
		})

		return "", err
	}

	mm.lastSnapshot = key
	mm.UpdateFilename()

	mm.logInfo(ctx, logMsgSnapshotTaken,
		logAttrSnapshotKey, key,
		logAttrJournalLength, len(record.FunctionList),
		logAttrDurationMS, toMilliseconds(duration))
	mm.recordDuration(ctx, metricSnapshotDuration, duration, map[string]string{labelStatus: statusSuccess})
	mm.finishSpanWithDuration(span, statusSuccess, duration, map[string]string{spanAttrSnapshotKey: key})

	return key, nil
}

// LoadSnapshot reads and decodes the snapshot stored under key.
func LoadSnapshot(ctx context.Context, store SnapshotStore, key string) (SnapshotRecord, error) {
	if store == nil {
		return SnapshotRecord{}, ErrNoSnapshotStore
	}

	data, err := store.Load(ctx, key)
	if err != nil {
		return SnapshotRecord{}, err
	}

	return UnmarshalSnapshot(data)
}

// FromSnapshot loads the snapshot under key from store and reconstructs a MetaModel from it.
// Unless options name another store, later snapshots go to the same store.
func FromSnapshot(ctx context.Context, store SnapshotStore, key string, options ...Option) (*MetaModel, error) {
	record, err := LoadSnapshot(ctx, store, key)
	if err != nil {
		return nil, err
	}

	return Reconstruct(ctx, record, append([]Option{WithSnapshotStore(store)}, options...)...)
}

// Reconstruct builds a new MetaModel from a snapshot record by reloading the model from its source
// and replaying every journal entry, in order and without recording it again.
//
// Registries passed through options are attached first; the registries named in the record are then
// attached through the resolver on a best-effort basis. The new instance inherits the journal verbatim.
// After replay, the recorded descriptive state is applied again, so the record wins over whatever
// replayed operations did to it.
//
// Reconstruction is all or nothing: on any failure it returns nil and a *ReplayError.
func Reconstruct(ctx context.Context, record SnapshotRecord, options ...Option) (*MetaModel, error) {
	mm, err := configure(options)
	if err != nil {
		return nil, err
	}

	ctx, span := mm.startSpan(ctx, spanNameReconstruct, map[string]string{
		spanAttrJournalLen:  fmt.Sprint(len(record.FunctionList)),
		spanAttrSnapshotKey: record.JSONFile,
	})
	start := time.Now()

	fail := func(index int, entry JournalEntry, err error) (*MetaModel, error) {
		replayErr := &ReplayError{Index: index, Entry: entry, Err: err}
		duration := time.Since(start)

		mm.logError(ctx, logMsgReplayFailed, replayErr,
			logAttrModelName, record.ModelName,
			logAttrEntryIndex, index)
		mm.recordDuration(ctx, metricReplayDuration, duration, map[string]string{labelStatus: statusError})
		mm.finishSpanWithDuration(span, statusError, duration, map[string]string{spanAttrErrorType: errorTypeReplay})

		return nil, replayErr
	}

	if record.ModelName == "" {
		return fail(-1, JournalEntry{}, ErrMissingModelSource)
	}

	createdAt, err := record.CreatedAt()
	if err != nil {
		return fail(-1, JournalEntry{}, err)
	}

	mm.modelName = record.ModelName
	mm.restoreDescriptiveState(record, createdAt)
	mm.journal = NewJournal(record.FunctionList...)

	if mm.model == nil {
		model, loadErr := mm.loadModel(ctx)
		if loadErr != nil {
			return fail(-1, JournalEntry{}, loadErr)
		}
		mm.model = model
	}

	if mm.resolver != nil {
		mm.pendingNames = append(mm.pendingNames, record.RegistryNames...)
	}

	if err := mm.attachPending(ctx); err != nil {
		return fail(-1, JournalEntry{}, err)
	}

	mm.filenames = NewFilenamePolicy(mm.clock, record.Version+1)
	mm.UpdateFilename()

	mm.logInfo(ctx, logMsgReplayStarted,
		logAttrModelName, record.ModelName,
		logAttrJournalLength, len(record.FunctionList))

	mm.replaying = true
	for i, entry := range record.FunctionList {
		if err := mm.DispatchTransient(ctx, entry.Operation, entry.Args, entry.Kwargs); err != nil {
			mm.replaying = false
			return fail(i, entry, err)
		}
	}
	mm.replaying = false

	mm.restoreDescriptiveState(record, createdAt)

	duration := time.Since(start)

	mm.logInfo(ctx, logMsgReplayCompleted,
		logAttrModelName, record.ModelName,
		logAttrJournalLength, mm.journal.Len(),
		logAttrDurationMS, toMilliseconds(duration))
	mm.recordDuration(ctx, metricReplayDuration, duration, map[string]string{labelStatus: statusSuccess})
	mm.finishSpanWithDuration(span, statusSuccess, duration, nil)

	return mm, nil
}

func (mm *MetaModel) restoreDescriptiveState(record SnapshotRecord, createdAt time.Time) {
	mm.description = record.Description
	mm.createdAt = createdAt
	mm.solveCount = record.SolveCount
	mm.optimal = record.Optimal

	switch {
	case record.LineageID != "":
		mm.lineageID = record.LineageID
	case mm.lineageID == "":
		mm.lineageID = uuid.NewString()
	}
}
