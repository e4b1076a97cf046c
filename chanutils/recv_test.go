package chanutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecvOrTimeout(t *testing.T) {
	t.Parallel()

	c := make(chan int, 1)
	_, err := RecvOrTimeout(c, 10*time.Millisecond)
	require.Error(t, err)

	c <- 7
	v, err := RecvOrTimeout(c, time.Second)
	require.NoError(t, err)
	require.Equal(t, 7, *v)
}

func TestSendOrQuit(t *testing.T) {
	t.Parallel()

	quit := make(chan struct{})
	c := make(chan int, 1)
	require.True(t, SendOrQuit(c, 1, quit))

	// The buffer is full now, so only the quit signal can unblock us.
	close(quit)
	require.False(t, SendOrQuit(c, 2, quit))

	require.Equal(t, []int{1}, Collect(c))
}
