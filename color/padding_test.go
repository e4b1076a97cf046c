package color

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaddingRoundTrip(t *testing.T) {
	t.Parallel()

	thresholds := []uint64{0, 1, DustThreshold, 546, 1 << 40, 1 << 62}
	quantities := []uint64{
		0, 1, 29, 5459, 5460, 5461, 600000000, 1<<63 - 1,
	}
	for i := 0; i < 100; i++ {
		quantities = append(quantities, uint64(rand.Int63()))
	}

	for _, threshold := range thresholds {
		for _, qty := range quantities {
			value := PadQuantity(qty, threshold)
			require.GreaterOrEqual(t, value, threshold)
			require.Equal(
				t, qty, UnpadValue(value, threshold),
				"qty=%d threshold=%d", qty, threshold,
			)
			require.Equal(t, qty < threshold, IsPadded(value))
		}
	}
}

func TestPaddingExamples(t *testing.T) {
	t.Parallel()

	// Values at or above the threshold pass through.
	require.Equal(t, uint64(600000000), PadQuantity(600000000, 5460))
	require.Equal(t, uint64(600000000), UnpadValue(600000000, 5460))

	// Small quantities get the flag and the threshold.
	require.Equal(t, uint64(1<<63|30)+5460, PadQuantity(30, 5460))
	require.Equal(t, uint64(30), OutputQuantity(
		QuantityToValue(PadQuantity(30, DustThreshold)),
	))

	require.Equal(t, int64(math.MinInt64), QuantityToValue(1<<63))
	require.Equal(t, uint64(1<<63), ValueToQuantity(math.MinInt64))
}

func TestPaddingThresholdBound(t *testing.T) {
	t.Parallel()

	// The largest quantity padded under the largest supported threshold
	// still fits the value and decodes back.
	const threshold = uint64(1 << 62)
	qty := threshold - 1

	value := PadQuantity(qty, threshold)
	require.True(t, IsPadded(value))
	require.Equal(t, uint64(1<<63|(1<<62-1))+threshold, value)
	require.Equal(t, qty, UnpadValue(value, threshold))
}
