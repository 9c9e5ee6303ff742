package metamodel

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidJournalEntry is returned when a persisted journal entry is not a ["name", [args], {kwargs}] tuple.
	ErrInvalidJournalEntry = errors.New("journal entry must be a [name, args, kwargs] tuple")
)

// snapshotJSON is the codec used for journal entries and snapshot records.
// UseNumber keeps numbers as json.Number, which is the canonical argument shape.
var snapshotJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// JournalEntry is one successfully applied, recorded operation call.
//
// On the wire it is a 3-tuple: ["registry.operation", [args...], {kwargs...}].
type JournalEntry struct {
	Operation string
	Args      Args
	Kwargs    Kwargs
}

// BuildJournalEntry is a factory method for JournalEntry.
//
// It canonicalizes args and kwargs and fails with ErrNonSerializableArgument
// if any of them cannot be represented as JSON.
func BuildJournalEntry(operation string, args Args, kwargs Kwargs) (JournalEntry, error) {
	if operation == "" {
		return JournalEntry{}, ErrEmptyName
	}

	canonicalArgs, err := CanonicalArgs(args)
	if err != nil {
		return JournalEntry{}, err
	}

	canonicalKwargs, err := CanonicalKwargs(kwargs)
	if err != nil {
		return JournalEntry{}, err
	}

	return JournalEntry{
		Operation: operation,
		Args:      canonicalArgs,
		Kwargs:    canonicalKwargs,
	}, nil
}

// MarshalJSON encodes the entry as a [name, args, kwargs] tuple.
func (e JournalEntry) MarshalJSON() ([]byte, error) {
	args := e.Args
	if args == nil {
		args = Args{}
	}

	kwargs := e.Kwargs
	if kwargs == nil {
		kwargs = Kwargs{}
	}

	return snapshotJSON.Marshal([]any{e.Operation, []any(args), map[string]any(kwargs)})
}

// UnmarshalJSON decodes a [name, args, kwargs] tuple.
// The args and kwargs members may be null or omitted, which decode as empty.
func (e *JournalEntry) UnmarshalJSON(data []byte) error {
	var tuple []jsoniter.RawMessage
	if err := snapshotJSON.Unmarshal(data, &tuple); err != nil {
		return errors.Join(ErrInvalidJournalEntry, err)
	}

	if len(tuple) == 0 || len(tuple) > 3 {
		return fmt.Errorf("%w: got %d members", ErrInvalidJournalEntry, len(tuple))
	}

	var entry JournalEntry
	if err := snapshotJSON.Unmarshal(tuple[0], &entry.Operation); err != nil {
		return errors.Join(ErrInvalidJournalEntry, err)
	}

	if entry.Operation == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJournalEntry, ErrEmptyName)
	}

	var args []any
	if len(tuple) > 1 {
		if err := snapshotJSON.Unmarshal(tuple[1], &args); err != nil {
			return errors.Join(ErrInvalidJournalEntry, err)
		}
	}

	var kwargs map[string]any
	if len(tuple) > 2 {
		if err := snapshotJSON.Unmarshal(tuple[2], &kwargs); err != nil {
			return errors.Join(ErrInvalidJournalEntry, err)
		}
	}

	entry.Args = Args(args)
	if entry.Args == nil {
		entry.Args = Args{}
	}

	entry.Kwargs = Kwargs(kwargs)
	if entry.Kwargs == nil {
		entry.Kwargs = Kwargs{}
	}

	*e = entry

	return nil
}

// Clone returns a deep copy of the entry, so neither the copy nor the original can change the
// other's arguments.
func (e JournalEntry) Clone() JournalEntry {
	args := make(Args, len(e.Args))
	for i, arg := range e.Args {
		args[i] = cloneValue(arg)
	}

	kwargs := make(Kwargs, len(e.Kwargs))
	for key, arg := range e.Kwargs {
		kwargs[key] = cloneValue(arg)
	}

	return JournalEntry{Operation: e.Operation, Args: args, Kwargs: kwargs}
}

// cloneValue copies the container shapes of canonical values; scalars are immutable.
func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, item := range t {
			out[key] = cloneValue(item)
		}
		return out
	case Args:
		return Args(cloneValue([]any(t)).([]any))
	case Kwargs:
		return Kwargs(cloneValue(map[string]any(t)).(map[string]any))
	default:
		return v
	}
}

// Journal is the ordered, append-only log of recorded operation calls of one MetaModel.
type Journal struct {
	entries []JournalEntry
}

// NewJournal creates a Journal that starts with a copy of the given entries.
func NewJournal(entries ...JournalEntry) *Journal {
	j := &Journal{entries: make([]JournalEntry, 0, len(entries))}
	for _, entry := range entries {
		j.entries = append(j.entries, entry.Clone())
	}

	return j
}

// Append adds one entry at the end of the journal.
func (j *Journal) Append(entry JournalEntry) {
	j.entries = append(j.entries, entry.Clone())
}

// Entries returns a copy of all entries in recording order.
func (j *Journal) Entries() []JournalEntry {
	out := make([]JournalEntry, len(j.entries))
	for i, entry := range j.entries {
		out[i] = entry.Clone()
	}

	return out
}

// Len returns the number of recorded entries.
func (j *Journal) Len() int {
	return len(j.entries)
}
