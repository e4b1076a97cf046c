package chanutils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	errs = []error{errors.New("error #1"), errors.New("error #2")}
)

func TestErrGroup(t *testing.T) {
	t.Parallel()

	returnErrFunc := func(_ context.Context, returnErr error) error {
		return returnErr
	}

	tests := []struct {
		name           string
		values         []error
		expectedErrors []error
	}{
		{
			name:           "no errors",
			values:         []error{nil, nil},
			expectedErrors: []error{nil},
		},
		{
			name:           "only first error",
			values:         []error{nil, errs[0]},
			expectedErrors: []error{errs[0]},
		},
		{
			name:           "only second error",
			values:         []error{errs[1], nil},
			expectedErrors: []error{errs[1]},
		},
		{
			name:           "any error",
			values:         []error{errs[1], errs[0]},
			expectedErrors: []error{errs[0], errs[1]},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			e := ErrGroup(
				context.Background(), returnErrFunc, test.values,
			)
			require.Contains(t, test.expectedErrors, e)
		})
	}
}

func TestErrGroupVisitsAll(t *testing.T) {
	t.Parallel()

	var sum int64
	err := ErrGroup(
		context.Background(), func(_ context.Context, v int64) error {
			atomic.AddInt64(&sum, v)
			return nil
		}, []int64{1, 2, 3, 4},
	)
	require.NoError(t, err)
	require.EqualValues(t, 10, atomic.LoadInt64(&sum))
}

func TestContextGuard(t *testing.T) {
	t.Parallel()

	g := NewContextGuard(time.Minute)

	ctx, cancel := g.WithCtxQuit()
	defer cancel()

	noTimeoutCtx, cancelNoTimeout := g.WithCtxQuitNoTimeout()
	defer cancelNoTimeout()

	blockingCtx, cancelBlocking := g.CtxBlocking()
	defer cancelBlocking()

	close(g.Quit)

	_, err := RecvOrTimeout(ctx.Done(), time.Second)
	require.NoError(t, err)

	_, err = RecvOrTimeout(noTimeoutCtx.Done(), time.Second)
	require.NoError(t, err)

	// The blocking context survives the quit signal.
	require.NoError(t, blockingCtx.Err())

	g.Wg.Wait()
}
