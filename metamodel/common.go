package metamodel

import (
	"errors"
	"fmt"
)

var ErrConstruction = errors.New("a model source or a snapshot must be supplied")
var ErrEmptyName = errors.New("an operation name must be provided")
var ErrRegistryNotFound = errors.New("registry not found")
var ErrOperationNotFound = errors.New("operation not found")
var ErrOperationFailed = errors.New("operation failed")
var ErrNonSerializableArgument = errors.New("argument is not json serializable")
var ErrArgumentMissing = errors.New("argument missing")
var ErrArgumentType = errors.New("argument has unexpected type")

var (
	// ErrEmptyRegistryName is returned when a registry is built or attached without a name.
	ErrEmptyRegistryName = errors.New("registry name must not be empty")

	// ErrInvalidOperationName is returned when an operation is registered under an empty or dotted name.
	ErrInvalidOperationName = errors.New("operation name must be non-empty and must not contain a separator")

	// ErrNilOperation is returned when a nil operation is registered.
	ErrNilOperation = errors.New("operation must not be nil")

	// ErrDuplicateOperation is returned when an operation name is registered twice in one registry.
	ErrDuplicateOperation = errors.New("operation already registered")

	// ErrNilRegistry is returned when a nil registry is attached.
	ErrNilRegistry = errors.New("registry must not be nil")
)

var (
	// ErrNoModelLoader is returned when a model has to be read from its source but no loader is configured.
	ErrNoModelLoader = errors.New("no model loader configured")

	// ErrUnsupportedModelSource is returned when no loader is registered for a model source.
	ErrUnsupportedModelSource = errors.New("unsupported model source")

	// ErrNoSnapshotStore is returned when a snapshot is taken or loaded without a configured store.
	ErrNoSnapshotStore = errors.New("no snapshot store configured")

	// ErrReconstructionFailed is returned when replaying a snapshot's journal fails.
	ErrReconstructionFailed = errors.New("reconstruction from snapshot failed")
)

// OperationError is returned by Dispatch when the resolved operation itself fails.
// It unwraps to the operation's own error, so callers can match it verbatim.
type OperationError struct {
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %q failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is reports ErrOperationFailed as a match so that the error taxonomy stays checkable with errors.Is.
func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

// ReplayError is returned by Reconstruct when a journal entry cannot be replayed.
// Index is -1 if reconstruction failed before the first entry, e.g. while loading the model.
type ReplayError struct {
	Index int
	Entry JournalEntry
	Err   error
}

func (e *ReplayError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("reconstruction failed before replay: %v", e.Err)
	}

	return fmt.Sprintf("replaying journal entry %d (%s) failed: %v", e.Index, e.Entry.Operation, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

func (e *ReplayError) Is(target error) bool {
	return target == ErrReconstructionFailed
}
