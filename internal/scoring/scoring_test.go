package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawScoreWeighsComponents(t *testing.T) {
	t.Parallel()

	w := DefaultWeights()
	// 5000 trophies + 400 donations at half weight + 10 war at 20x.
	require.Equal(t, 5400, w.RawScore(5000, 400, 10))
	require.Equal(t, 0, w.RawScore(0, 0, 0))
}

func TestRawScoreRounds(t *testing.T) {
	t.Parallel()

	w := Weights{Trophy: 1, Donation: 0.5, War: 20}
	require.Equal(t, 101, w.RawScore(100, 1, 0))
	require.Equal(t, 102, w.RawScore(100, 3, 0))
}

func TestAnchorPicksLargestSignal(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 5200, Anchor(5200, 4800), 0.001)
	require.InDelta(t, 6000, Anchor(5200, 6000), 0.001)
	// An empty pool and no history still anchors at 1 to avoid dividing
	// by zero.
	require.InDelta(t, 1, Anchor(0, 0), 0.001)
}

func TestPerfScoreIsPercentOfAnchor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100, PerfScore(5400, 5400))
	require.Equal(t, 50, PerfScore(2700, 5400))
	require.Equal(t, 93, PerfScore(5000, 5400))
	require.Equal(t, 0, PerfScore(0, 5400))
}
