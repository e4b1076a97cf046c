package chanutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConcurrentQueue(t *testing.T) {
	t.Parallel()

	const numItems = 100

	// The output buffer is smaller than the number of items, so the
	// overflow list is exercised as well.
	queue := NewConcurrentQueue[int](DefaultQueueSize)
	queue.Start()
	defer queue.Stop()

	for i := 0; i < numItems; i++ {
		queue.ChanIn() <- i
	}

	for i := 0; i < numItems; i++ {
		item, err := RecvOrTimeout(queue.ChanOut(), time.Second)
		require.NoError(t, err)
		require.Equal(t, i, *item)
	}
}

func TestConcurrentQueueClose(t *testing.T) {
	t.Parallel()

	queue := NewConcurrentQueue[string](1)
	queue.Start()
	defer queue.Stop()

	queue.ChanIn() <- "a"
	queue.ChanIn() <- "b"
	queue.ChanIn() <- "c"
	close(queue.ChanIn())

	var items []string
	for item := range queue.ChanOut() {
		items = append(items, item)
	}
	require.Equal(t, []string{"a", "b", "c"}, items)
}
