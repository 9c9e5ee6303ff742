// Package forest is a small forest-planning plugin for metamodel.
//
// It provides a toy linear model (harvest and standing-area variables per stand and period),
// a reader for its line-oriented ".lp" files, and the "analysis_functions" registry:
//
//   - solve: optimize, take a snapshot, count the solve
//   - remove_last_period: shorten the planning horizon by one period
//   - zero_objective_coeffs: set every objective coefficient to 0
//   - set_variables_attr(attr, val, name): set obj, lb or ub on every variable of a family
//
// A typical session loads "forest.lp", attaches the registry by name and dispatches the
// operations through the MetaModel, so every snapshot written by solve can be replayed later:
//
//	mm, err := metamodel.New(ctx, "forest.lp",
//		metamodel.WithLoader(forest.Loader("./models")),
//		metamodel.WithResolver(forest.Resolver()),
//		metamodel.WithRegistryNames(forest.RegistryName),
//		metamodel.WithSnapshotStore(store),
//	)
//	err = mm.Dispatch(ctx, forest.Qualified(forest.OpSolve), nil, nil)
package forest
