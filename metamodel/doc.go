// Package metamodel provides a function-call journal with deterministic replay for
// expensive-to-construct, mutable models (for example optimization models).
//
// Instead of persisting large model objects over and over, a MetaModel persists only
// the reference to the original model source plus an ordered journal of the named
// operations that were applied to it. Replaying the journal against a freshly loaded
// model reconstructs any historical state, as long as the operations are deterministic
// and available under the same names.
//
// Key types:
//   - MetaModel: wraps one mutable model, owns its Journal, attached registries and descriptive state
//   - Registry: a named table of Operation(s), attached explicitly or through a RegistryResolver
//   - JournalEntry: one recorded call (operation name, positional args, keyword args)
//   - SnapshotRecord: persisted descriptive state plus the full journal
//   - SnapshotStore: where snapshot records are written to and read from
//   - FilenamePolicy: derives "<model>_<YYYYMMDD>_<counter>" artifact names from an injected Clock
//
// Common usage pattern:
//
//	analysis := metamodel.NewRegistry("analysis_functions")
//	_ = analysis.RegisterFunc("solve", solve)
//
//	mm, err := metamodel.New(ctx, "forest.lp",
//		metamodel.WithLoader(loader),
//		metamodel.WithRegistries(analysis),
//		metamodel.WithSnapshotStore(store),
//	)
//	if err != nil {
//		// handle error
//	}
//
//	err = mm.Dispatch(ctx, "analysis_functions.solve", nil, nil)
//	key, err := mm.TakeSnapshot(ctx)
//
//	// later, possibly in another process
//	restored, err := metamodel.FromSnapshot(ctx, store, key,
//		metamodel.WithLoader(loader),
//		metamodel.WithRegistries(analysis),
//	)
package metamodel
