package forest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/metamodel-go/example/forest"
	"github.com/AntonStoeckl/metamodel-go/metamodel"
	"github.com/AntonStoeckl/metamodel-go/metamodel/filestore"
)

var tutorialDay = time.Date(2017, time.March, 31, 9, 0, 0, 0, time.UTC)

func newForestMetaModel(t *testing.T, store metamodel.SnapshotStore) *metamodel.MetaModel {
	t.Helper()

	mm, err := metamodel.New(context.Background(), "forest.lp", tutorialOptions(store)...)
	require.NoError(t, err)

	return mm
}

func tutorialOptions(store metamodel.SnapshotStore) []metamodel.Option {
	return []metamodel.Option{
		metamodel.WithLoader(forest.Loader("testdata")),
		metamodel.WithResolver(forest.Resolver()),
		metamodel.WithRegistryNames(forest.RegistryName),
		metamodel.WithSnapshotStore(store),
		metamodel.WithClock(metamodel.FixedClock(tutorialDay)),
	}
}

func forestOf(t *testing.T, mm *metamodel.MetaModel) *forest.Model {
	t.Helper()

	model, ok := mm.Model().(*forest.Model)
	require.True(t, ok)

	return model
}

func newStore(t *testing.T) *filestore.Store {
	t.Helper()

	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	return store
}

func Test_NewAnalysisRegistry_Operations(t *testing.T) {
	reg := forest.NewAnalysisRegistry()

	assert.Equal(t, forest.RegistryName, reg.Name())
	assert.Equal(t, []string{
		forest.OpSolve,
		forest.OpRemoveLastPeriod,
		forest.OpZeroObjectiveCoeffs,
		forest.OpSetVariablesAttr,
	}, reg.Operations())
}

func Test_Solve_SnapshotsBeforeCountingTheSolve(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newStore(t)
	mm := newForestMetaModel(t, store)

	// act
	err := mm.Dispatch(ctx, forest.Qualified(forest.OpSolve), nil, nil)

	// assert
	require.NoError(t, err)
	assert.True(t, mm.Optimal())
	assert.Equal(t, 1, mm.SolveCount())
	assert.Equal(t, "forest_20170331_0.json", mm.LastSnapshot())
	assert.Equal(t, "forest_20170331_1", mm.Filename())

	record, err := metamodel.LoadSnapshot(ctx, store, "forest_20170331_0.json")
	require.NoError(t, err)
	assert.Empty(t, record.FunctionList)
	assert.Equal(t, 0, record.SolveCount)
	assert.True(t, record.Optimal)
	assert.Equal(t, []string{forest.RegistryName}, record.RegistryNames)
}

func Test_Solve_FailsWithoutStore(t *testing.T) {
	// arrange
	mm, err := metamodel.New(context.Background(), "forest.lp",
		metamodel.WithLoader(forest.Loader("testdata")),
		metamodel.WithRegistries(forest.NewAnalysisRegistry()),
	)
	require.NoError(t, err)

	// act
	err = mm.Dispatch(context.Background(), forest.Qualified(forest.OpSolve), nil, nil)

	// assert
	assert.ErrorIs(t, err, metamodel.ErrOperationFailed)
	assert.ErrorIs(t, err, metamodel.ErrNoSnapshotStore)
	assert.Zero(t, mm.JournalLen())
}

func Test_RemoveLastPeriod(t *testing.T) {
	// arrange
	ctx := context.Background()
	mm := newForestMetaModel(t, newStore(t))

	// act
	err := mm.Dispatch(ctx, forest.Qualified(forest.OpRemoveLastPeriod), nil, nil)

	// assert
	require.NoError(t, err)
	model := forestOf(t, mm)
	assert.Len(t, model.Variables(), 9)
	assert.Len(t, model.Constraints(), 11)
	_, ok := model.Variable("harv[2,3]")
	assert.False(t, ok)
	_, ok = model.Variable("mill")
	assert.True(t, ok)
	for _, c := range model.Constraints() {
		assert.NotEqual(t, "env[3]", c.Name)
	}
}

func Test_RemoveLastPeriod_UntilNoPeriodsAreLeft(t *testing.T) {
	// arrange
	ctx := context.Background()
	mm := newForestMetaModel(t, newStore(t))
	op := forest.Qualified(forest.OpRemoveLastPeriod)
	for range 3 {
		require.NoError(t, mm.Dispatch(ctx, op, nil, nil))
	}

	// act
	err := mm.Dispatch(ctx, op, nil, nil)

	// assert
	assert.ErrorIs(t, err, forest.ErrNoPeriods)
	assert.Equal(t, 3, mm.JournalLen())
	assert.Len(t, forestOf(t, mm).Variables(), 1)
}

func Test_SetVariablesAttr(t *testing.T) {
	ctx := context.Background()
	op := forest.Qualified(forest.OpSetVariablesAttr)

	t.Run("positional", func(t *testing.T) {
		mm := newForestMetaModel(t, newStore(t))

		require.NoError(t, mm.Dispatch(ctx, op, metamodel.Args{"obj", 1, "age"}, nil))

		for _, v := range forestOf(t, mm).VariablesOf("age") {
			assert.Equal(t, 1.0, v.Obj, v.Name)
		}
		harv, _ := forestOf(t, mm).Variable("harv[1,1]")
		assert.Equal(t, 12.0, harv.Obj)
	})

	t.Run("keyword", func(t *testing.T) {
		mm := newForestMetaModel(t, newStore(t))

		require.NoError(t, mm.Dispatch(ctx, op, nil, metamodel.Kwargs{"attr": "ub", "val": 5.5, "name": "harv"}))

		for _, v := range forestOf(t, mm).VariablesOf("harv") {
			assert.Equal(t, 5.5, v.UB, v.Name)
		}
		require.Equal(t, 1, mm.JournalLen())
		assert.Equal(t, op, mm.Journal()[0].Operation)
		assert.Equal(t, "harv", mm.Journal()[0].Kwargs["name"])
	})

	t.Run("invalid arguments are not recorded", func(t *testing.T) {
		mm := newForestMetaModel(t, newStore(t))

		errMissing := mm.Dispatch(ctx, op, metamodel.Args{"obj", 1}, nil)
		errType := mm.Dispatch(ctx, op, metamodel.Args{"obj", "one", "age"}, nil)
		errAttr := mm.Dispatch(ctx, op, metamodel.Args{"vtype", 1, "age"}, nil)

		assert.ErrorIs(t, errMissing, metamodel.ErrArgumentMissing)
		assert.ErrorIs(t, errType, metamodel.ErrArgumentType)
		assert.ErrorIs(t, errAttr, forest.ErrUnknownAttribute)
		assert.Zero(t, mm.JournalLen())
	})
}

func Test_Operations_RejectForeignModels(t *testing.T) {
	// arrange
	mm, err := metamodel.New(context.Background(), "forest.lp",
		metamodel.WithModel(struct{}{}),
		metamodel.WithRegistries(forest.NewAnalysisRegistry()),
	)
	require.NoError(t, err)

	// act
	err = mm.Dispatch(context.Background(), forest.Qualified(forest.OpZeroObjectiveCoeffs), nil, nil)

	// assert
	assert.ErrorIs(t, err, forest.ErrNotAForestModel)
}

func Test_Tutorial_ReplaysTheThirdSolveSnapshot(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newStore(t)
	mm := newForestMetaModel(t, store)

	steps := []struct {
		op   string
		args metamodel.Args
	}{
		{op: forest.OpSolve},
		{op: forest.OpRemoveLastPeriod},
		{op: forest.OpSolve},
		{op: forest.OpZeroObjectiveCoeffs},
		{op: forest.OpSetVariablesAttr, args: metamodel.Args{"obj", 1, "age"}},
	}
	for _, step := range steps {
		require.NoError(t, mm.Dispatch(ctx, forest.Qualified(step.op), step.args, nil))
	}

	beforeSolve := forestOf(t, mm)
	wantVariables := beforeSolve.Variables()
	wantConstraints := beforeSolve.Constraints()

	require.NoError(t, mm.Dispatch(ctx, forest.Qualified(forest.OpSolve), nil, nil))

	// act
	restored, err := metamodel.FromSnapshot(ctx, store, "forest_20170331_2.json", tutorialOptions(store)...)

	// assert
	require.NoError(t, err)

	keys, err := store.List(ctx, "forest_")
	require.NoError(t, err)
	assert.Equal(t, []string{"forest_20170331_0.json", "forest_20170331_1.json", "forest_20170331_2.json"}, keys)

	assert.Equal(t, 3, mm.SolveCount())
	assert.Equal(t, 6, mm.JournalLen())
	assert.InDelta(t, 100.0, forestOf(t, mm).ObjVal(), 1e-9)

	assert.Equal(t, 2, restored.SolveCount())
	assert.True(t, restored.Optimal())
	assert.Equal(t, mm.Journal()[:5], restored.Journal())
	assert.Equal(t, mm.LineageID(), restored.LineageID())
	assert.Equal(t, "forest_20170331_3", restored.Filename())

	model := forestOf(t, restored)
	assert.Equal(t, wantVariables, model.Variables())
	assert.Equal(t, wantConstraints, model.Constraints())

	entries, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 3, "replay must not write snapshots")
}

func Test_Tutorial_ReconstructedInstanceContinuesTheLineage(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newStore(t)
	mm := newForestMetaModel(t, store)
	require.NoError(t, mm.Dispatch(ctx, forest.Qualified(forest.OpRemoveLastPeriod), nil, nil))
	require.NoError(t, mm.Dispatch(ctx, forest.Qualified(forest.OpSolve), nil, nil))
	require.NoError(t, mm.Dispatch(ctx, forest.Qualified(forest.OpSolve), nil, nil))

	restored, err := metamodel.FromSnapshot(ctx, store, "forest_20170331_1.json", tutorialOptions(store)...)
	require.NoError(t, err)

	// act
	err = restored.Dispatch(ctx, forest.Qualified(forest.OpSolve), nil, nil)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "forest_20170331_2.json", restored.LastSnapshot())
	assert.Equal(t, 2, restored.SolveCount())
	assert.InDelta(t, 1160.0, forestOf(t, restored).ObjVal(), 1e-9)

	record, err := metamodel.LoadSnapshot(ctx, store, "forest_20170331_2.json")
	require.NoError(t, err)
	require.Len(t, record.FunctionList, 2)
	assert.Equal(t, forest.Qualified(forest.OpRemoveLastPeriod), record.FunctionList[0].Operation)
	assert.Equal(t, forest.Qualified(forest.OpSolve), record.FunctionList[1].Operation)
}
