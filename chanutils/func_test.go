package chanutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSliceHelpers(t *testing.T) {
	t.Parallel()

	nums := []int{1, 2, 3, 4, 5}
	isEven := func(n int) bool {
		return n%2 == 0
	}

	sum := Reduce(nums, func(acc int, n int) int {
		return acc + n
	})
	require.Equal(t, 15, sum)

	doubled := Map(nums, func(n int) int {
		return n * 2
	})
	require.Equal(t, []int{2, 4, 6, 8, 10}, doubled)

	require.Equal(t, []int{2, 4}, Filter(nums, isEven))
	require.Nil(t, Filter([]int{1, 3}, isEven))

	require.True(t, Any(nums, isEven))
	require.False(t, All(nums, isEven))
	require.True(t, All(doubled, isEven))
	require.Equal(t, 2, Count(nums, isEven))
}
