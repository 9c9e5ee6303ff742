package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
	"github.com/AntonStoeckl/metamodel-go/metamodel/filestore"
)

func newTempStore(t *testing.T) *filestore.Store {
	t.Helper()

	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	return store
}

func Test_Store_SaveLoadOverwrite(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newTempStore(t)

	// act
	require.NoError(t, store.Save(ctx, "forest_20170331_0.json", []byte(`{"v":1}`)))
	require.NoError(t, store.Save(ctx, "forest_20170331_0.json", []byte(`{"v":2}`)))
	data, err := store.Load(ctx, "forest_20170331_0.json")

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	onDisk, err := os.ReadFile(filepath.Join(store.Root(), "forest_20170331_0.json"))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func Test_Store_CreatesNestedDirectories(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newTempStore(t)

	// act
	err := store.Save(ctx, "runs/a/forest_20170331_0.json", []byte(`{}`))

	// assert
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(store.Root(), "runs", "a", "forest_20170331_0.json"))
	assert.NoError(t, statErr)
}

func Test_Store_LoadMissingIsNotFound(t *testing.T) {
	store := newTempStore(t)

	_, err := store.Load(context.Background(), "forest_20170331_0.json")

	assert.ErrorIs(t, err, metamodel.ErrSnapshotNotFound)
}

func Test_Store_RejectsInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)

	for _, key := range []string{"", "  ", "/etc/passwd", "../escape.json", "runs/../../escape.json"} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, store.Save(ctx, key, []byte(`{}`)), metamodel.ErrInvalidSnapshotKey)

			_, err := store.Load(ctx, key)
			assert.ErrorIs(t, err, metamodel.ErrInvalidSnapshotKey)
		})
	}
}

func Test_Store_ListFiltersByPrefixInOrder(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"forest_20170331_1.json", "forest_20170331_0.json", "other_20170331_0.json", "runs/forest_20170401_0.json"} {
		require.NoError(t, store.Save(ctx, key, []byte(`{}`)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "notes.txt"), []byte("x"), 0o644))

	// act
	all, errAll := store.List(ctx, "")
	forest, errForest := store.List(ctx, "forest_")

	// assert
	require.NoError(t, errAll)
	require.NoError(t, errForest)
	assert.Equal(t, []string{
		"forest_20170331_0.json",
		"forest_20170331_1.json",
		"other_20170331_0.json",
		"runs/forest_20170401_0.json",
	}, all)
	assert.Equal(t, []string{"forest_20170331_0.json", "forest_20170331_1.json"}, forest)
}

func Test_Store_CanceledContext(t *testing.T) {
	// arrange
	store := newTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	err := store.Save(ctx, "forest_20170331_0.json", []byte(`{}`))

	// assert
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_New_Options(t *testing.T) {
	_, err := filestore.New(t.TempDir(), filestore.WithFileMode(0o444))
	assert.Error(t, err)

	store, err := filestore.New(t.TempDir(), filestore.WithFileMode(0o600))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "a.json", []byte(`{}`)))

	info, err := os.Stat(filepath.Join(store.Root(), "a.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func Test_Store_SnapshotRoundTripThroughMetaModel(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := newTempStore(t)
	reg := metamodel.NewRegistry("notes")
	require.NoError(t, reg.RegisterFunc("append", func(_ context.Context, mm *metamodel.MetaModel, args metamodel.Args, _ metamodel.Kwargs) error {
		s, err := args.String(0)
		if err != nil {
			return err
		}
		mm.SetDescription(mm.Description() + s)

		return nil
	}))
	loader := metamodel.WithLoader(metamodel.ModelLoaderFunc(func(context.Context, string) (metamodel.Model, error) {
		return struct{}{}, nil
	}))

	mm, err := metamodel.New(ctx, "forest.lp", loader, metamodel.WithRegistries(reg), metamodel.WithSnapshotStore(store))
	require.NoError(t, err)
	require.NoError(t, mm.Dispatch(ctx, "notes.append", metamodel.Args{"x"}, nil))

	// act
	key, err := mm.TakeSnapshot(ctx)
	require.NoError(t, err)
	restored, err := metamodel.FromSnapshot(ctx, store, key, loader, metamodel.WithRegistries(reg))

	// assert
	require.NoError(t, err)
	assert.Equal(t, "x", restored.Description())
	assert.Equal(t, mm.Journal(), restored.Journal())
}
