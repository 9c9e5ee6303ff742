package metamodel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

func Test_ComputeName(t *testing.T) {
	date := time.Date(2017, time.March, 1, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "forest_20170301_0", metamodel.ComputeName("forest", date, 0))
	assert.Equal(t, "forest_20170301_12", metamodel.ComputeName("forest", date, 12))
}

func Test_ModelBaseName(t *testing.T) {
	testCases := map[string]string{
		"forest.lp":              "forest",
		"data/models/forest.lp":  "forest",
		"forest":                 "forest",
		"archive/forest.v2.json": "forest.v2",
	}

	for source, expected := range testCases {
		t.Run(source, func(t *testing.T) {
			assert.Equal(t, expected, metamodel.ModelBaseName(source))
		})
	}
}

func Test_FilenamePolicy_NamesDifferOnlyByCounterOnTheSameDay(t *testing.T) {
	// arrange
	policy := metamodel.NewFilenamePolicy(metamodel.FixedClock(fixedNow), 0)

	// act
	first := policy.Next("models/forest.lp")
	second := policy.Next("models/forest.lp")

	// assert
	assert.Equal(t, "forest_20170331_0", first)
	assert.Equal(t, "forest_20170331_1", second)
	assert.Equal(t, 2, policy.Counter())
}

func Test_FilenamePolicy_UsesDateAtCallTime(t *testing.T) {
	// arrange
	now := fixedNow
	policy := metamodel.NewFilenamePolicy(metamodel.ClockFunc(func() time.Time { return now }), 5)

	// act
	first := policy.Next("forest.lp")
	now = now.Add(24 * time.Hour)
	second := policy.Next("forest.lp")

	// assert
	assert.Equal(t, "forest_20170331_5", first)
	assert.Equal(t, "forest_20170401_6", second)
}
