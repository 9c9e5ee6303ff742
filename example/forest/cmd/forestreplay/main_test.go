package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/metamodel-go/metamodel/storefactory"
)

func Test_ParseConfig_FlagsOverrideEnvironment(t *testing.T) {
	// arrange
	t.Setenv("FORESTREPLAY_MODEL", "env.lp")
	t.Setenv("FORESTREPLAY_MODELS_DIR", "/models")

	// act
	cfg, err := parseConfig([]string{"-model", "flag.lp", "-debug"})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "flag.lp", cfg.Model)
	assert.Equal(t, "/models", cfg.ModelsDir)
	assert.True(t, cfg.Debug)
	assert.Empty(t, cfg.Snapshot)
}

func Test_Run_TutorialThenReconstruct(t *testing.T) {
	// arrange
	ctx := context.Background()
	storeCfg := storefactory.Config{Driver: storefactory.DriverFS, Dir: t.TempDir()}
	cfg := Config{ModelsDir: "../../testdata", Model: "forest.lp"}

	var tutorialOut bytes.Buffer
	require.NoError(t, run(ctx, cfg, storeCfg, &tutorialOut))

	lines := bytes.Split(bytes.TrimSpace(tutorialOut.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "status=optimal objective=1860")
	assert.Contains(t, string(lines[1]), "objective=1160")
	assert.Contains(t, string(lines[2]), "objective=100")

	cfg.Snapshot = "forest_" + snapshotDate(t, lines[2]) + "_2.json"

	// act
	var replayOut bytes.Buffer
	err := run(ctx, cfg, storeCfg, &replayOut)

	// assert
	require.NoError(t, err)
	assert.Contains(t, replayOut.String(), "model=forest.lp solves=2 optimal=true variables=9 constraints=11")
	assert.Contains(t, replayOut.String(), "analysis_functions.set_variables_attr [obj 1 age]")
}

func Test_Run_UnknownSnapshot(t *testing.T) {
	storeCfg := storefactory.Config{Driver: storefactory.DriverFS, Dir: t.TempDir()}
	cfg := Config{ModelsDir: "../../testdata", Model: "forest.lp", Snapshot: "forest_20170331_9.json"}

	err := run(context.Background(), cfg, storeCfg, &bytes.Buffer{})

	assert.Error(t, err)
}

// snapshotDate pulls YYYYMMDD out of "... snapshot=forest_<date>_<n>.json".
func snapshotDate(t *testing.T, line []byte) string {
	t.Helper()

	i := bytes.Index(line, []byte("snapshot=forest_"))
	require.GreaterOrEqual(t, i, 0)

	start := i + len("snapshot=forest_")
	require.GreaterOrEqual(t, len(line), start+8)

	return string(line[start : start+8])
}
