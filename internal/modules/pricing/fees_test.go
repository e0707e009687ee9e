package pricing

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeTierMinimumFloor(t *testing.T) {
	tier := FeeTier{Percent: 0.002, Minimum: 49}

	// 0.2% of 20000 is 40, below the floor.
	assert.InDelta(t, 49, tier.Fee(200, 100), 1e-9)

	// 0.2% of 50000 is 100, above the floor.
	assert.InDelta(t, 100, tier.Fee(500, 100), 1e-9)
}

func TestFeeScheduleVenueSelection(t *testing.T) {
	classifier := StaticClassifier{
		"NOVO-B.CO": "CPH",
		"ERIC-B.ST": "STO",
		"AAPL":      "NMS",
	}
	fees := NewFeeSchedule(testRuleset(), classifier, zerolog.Nop())

	assert.Equal(t, FeeTier{Percent: 0.0015, Minimum: 29}, fees.Tier("NOVO-B.CO"))
	assert.Equal(t, FeeTier{Percent: 0.0015, Minimum: 29}, fees.Tier("ERIC-B.ST"))
	assert.Equal(t, FeeTier{Percent: 0.002, Minimum: 49}, fees.Tier("AAPL"))

	// Unknown symbols resolve to an empty venue and the standard tier.
	assert.Equal(t, FeeTier{Percent: 0.002, Minimum: 49}, fees.Tier("UNKNOWN"))

	assert.InDelta(t, 29, fees.Fee("NOVO-B.CO", 100, 100), 1e-9)
	assert.InDelta(t, 49, fees.Fee("AAPL", 100, 100), 1e-9)
}

type failingClassifier struct{}

func (failingClassifier) Venue(string) (string, error) {
	return "", fmt.Errorf("venue service down")
}

func TestFeeScheduleFallsBackOnClassifierFailure(t *testing.T) {
	fees := NewFeeSchedule(testRuleset(), failingClassifier{}, zerolog.Nop())
	assert.Equal(t, FeeTier{Percent: 0.002, Minimum: 49}, fees.Tier("NOVO-B.CO"))
}

func TestFeeScheduleWithoutClassifier(t *testing.T) {
	fees := NewFeeSchedule(testRuleset(), nil, zerolog.Nop())
	assert.Equal(t, FeeTier{Percent: 0.002, Minimum: 49}, fees.Tier("ANY"))
}

type countingClassifier struct {
	calls int
	venue string
	err   error
}

func (c *countingClassifier) Venue(string) (string, error) {
	c.calls++
	return c.venue, c.err
}

func TestCachedClassifierMemoizes(t *testing.T) {
	upstream := &countingClassifier{venue: "OSL"}
	cached := NewCachedClassifier(upstream)

	for i := 0; i < 3; i++ {
		venue, err := cached.Venue("EQNR.OL")
		require.NoError(t, err)
		assert.Equal(t, "OSL", venue)
	}
	assert.Equal(t, 1, upstream.calls)

	// A different symbol is a separate cache entry.
	_, err := cached.Venue("DNB.OL")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedClassifierDoesNotCacheFailures(t *testing.T) {
	upstream := &countingClassifier{err: fmt.Errorf("timeout")}
	cached := NewCachedClassifier(upstream)

	_, err := cached.Venue("EQNR.OL")
	require.Error(t, err)

	upstream.err = nil
	upstream.venue = "OSL"

	venue, err := cached.Venue("EQNR.OL")
	require.NoError(t, err)
	assert.Equal(t, "OSL", venue)
	assert.Equal(t, 2, upstream.calls)
}
