package metamodel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Names of the capabilities every MetaModel exposes as bare operation names.
const (
	BuiltinTakeSnapshot   = "take_snapshot"
	BuiltinUpdateFilename = "update_filename"
	BuiltinSetDescription = "set_description"
)

// Dispatch resolves name, applies the operation to the wrapped model and records the call in the journal.
//
// name is either "registry.operation" or a bare "operation". A bare name is searched in every attached
// registry in attachment order, then among the MetaModel's built-in capabilities.
// The journal is only appended to if the operation succeeds.
func (mm *MetaModel) Dispatch(ctx context.Context, name string, args Args, kwargs Kwargs) error {
	return mm.dispatch(ctx, name, args, kwargs, true)
}

// DispatchTransient works like Dispatch but never records the call.
func (mm *MetaModel) DispatchTransient(ctx context.Context, name string, args Args, kwargs Kwargs) error {
	return mm.dispatch(ctx, name, args, kwargs, false)
}

func (mm *MetaModel) dispatch(ctx context.Context, name string, args Args, kwargs Kwargs, record bool) error {
	ctx, span := mm.startSpan(ctx, spanNameDispatch, map[string]string{spanAttrOperation: name})
	start := time.Now()

	if name == "" {
		return mm.dispatchFailed(ctx, span, name, start, errorTypeEmptyName, ErrEmptyName)
	}

	entry, err := BuildJournalEntry(name, args, kwargs)
	if err != nil {
		return mm.dispatchFailed(ctx, span, name, start, errorTypeArgument, err)
	}

	op, err := mm.lookup(name)
	if err != nil {
		errorType := errorTypeOperation
		if errors.Is(err, ErrRegistryNotFound) {
			errorType = errorTypeRegistry
		}

		return mm.dispatchFailed(ctx, span, name, start, errorType, err)
	}

	// the operation gets its own copy; the entry is recorded as dispatched
	call := entry.Clone()
	if err := op.Apply(ctx, mm, call.Args, call.Kwargs); err != nil {
		return mm.dispatchFailed(ctx, span, name, start, errorTypeExecution, &OperationError{Operation: name, Err: err})
	}

	if record {
		mm.journal.Append(entry)
	}

	duration := time.Since(start)

	mm.logDebug(ctx, logMsgDispatched,
		logAttrOperation, name,
		logAttrRecorded, record,
		logAttrJournalLength, mm.journal.Len(),
		logAttrDurationMS, toMilliseconds(duration))

	mm.recordDuration(ctx, metricDispatchDuration, duration, map[string]string{
		labelOperation: name,
		labelStatus:    statusSuccess,
	})
	mm.recordValue(ctx, metricJournalEntries, float64(mm.journal.Len()), nil)

	mm.finishSpanWithDuration(span, statusSuccess, duration, map[string]string{
		spanAttrJournalLen: strconv.Itoa(mm.journal.Len()),
	})

	return nil
}

func (mm *MetaModel) dispatchFailed(
	ctx context.Context,
	span SpanContext,
	name string,
	start time.Time,
	errorType string,
	err error,
) error {

	duration := time.Since(start)

	mm.logDebug(ctx, logMsgDispatchFailed,
		logAttrOperation, name,
		logAttrError, err.Error(),
		logAttrDurationMS, toMilliseconds(duration))

	mm.recordDuration(ctx, metricDispatchDuration, duration, map[string]string{
		labelOperation: name,
		labelStatus:    statusError,
	})
	mm.incrementCounter(ctx, metricDispatchErrors, map[string]string{
		labelOperation: name,
		labelErrorType: errorType,
	})

	mm.finishSpanWithDuration(span, statusError, duration, map[string]string{
		spanAttrErrorType: errorType,
	})

	return err
}

// lookup resolves a qualified or bare operation name.
func (mm *MetaModel) lookup(name string) (Operation, error) {
	registryName, operationName, qualified := strings.Cut(name, QualifiedNameSeparator)

	if qualified {
		reg, ok := mm.registry(registryName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRegistryNotFound, registryName)
		}

		op, ok := reg.Lookup(operationName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, name)
		}

		return op, nil
	}

	for _, reg := range mm.registries {
		if op, ok := reg.Lookup(name); ok {
			return op, nil
		}
	}

	if op, ok := mm.builtins[name]; ok {
		return op, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, name)
}

// builtinOperations exposes the MetaModel's own capabilities to the dispatcher.
func (mm *MetaModel) builtinOperations() map[string]Operation {
	return map[string]Operation{
		BuiltinTakeSnapshot: OperationFunc(func(ctx context.Context, mm *MetaModel, _ Args, _ Kwargs) error {
			if mm.Replaying() {
				return nil
			}

			_, err := mm.TakeSnapshot(ctx)

			return err
		}),

		BuiltinUpdateFilename: OperationFunc(func(_ context.Context, mm *MetaModel, _ Args, _ Kwargs) error {
			mm.UpdateFilename()
			return nil
		}),

		BuiltinSetDescription: OperationFunc(func(_ context.Context, mm *MetaModel, args Args, kwargs Kwargs) error {
			var (
				description string
				err         error
			)

			if kwargs.Has("description") {
				description, err = kwargs.String("description")
			} else {
				description, err = args.String(0)
			}

			if err != nil {
				return err
			}

			mm.SetDescription(description)

			return nil
		}),
	}
}
