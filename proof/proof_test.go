package proof

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/lightninglabs/smartcolors/kernel"
	"github.com/stretchr/testify/require"
)

type testHarness struct {
	t      *testing.T
	def    *color.Definition
	script []byte
	source *MockTxSource
	proof  *Proof
}

func newHarness(t *testing.T) *testHarness {
	script := test.RandP2WPKHScript(t)
	def, err := color.NewDefinition(
		[]color.GenesisPoint{color.NewScriptGenesis(script)}, nil,
		map[string]string{color.MetadataName: "gold"}, nil,
	)
	require.NoError(t, err)

	source := NewMockTxSource()

	return &testHarness{
		t:      t,
		def:    def,
		script: script,
		source: source,
		proof:  New(def, kernel.New(), source),
	}
}

func (h *testHarness) marker() *wire.TxOut {
	out, err := color.NewMarkerOutput()
	require.NoError(h.t, err)
	return out
}

func (h *testHarness) padded(qty uint64) *wire.TxOut {
	return test.RandTxOut(h.t, color.QuantityToValue(
		color.PadQuantity(qty, color.DustThreshold),
	))
}

// genesisTx creates a transaction issuing qty at its first output.
func (h *testHarness) genesisTx(qty uint64) *wire.MsgTx {
	return test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()}, &wire.TxOut{
			Value: color.QuantityToValue(
				color.PadQuantity(qty, color.DustThreshold),
			),
			PkScript: h.script,
		},
	)
}

// transferScenario creates a genesis of 100 units at height 100 and a transfer
// at height 101 sending 30 and the remaining 70 units.
func (h *testHarness) transferScenario() (*wire.MsgTx, *wire.MsgTx) {
	genesis := h.genesisTx(100)
	h.source.AddTx(genesis, 100)

	// The plain bitcoin input that pays the fee has to be resolved as
	// well, since it could carry the color.
	funding := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()},
		test.RandTxOut(h.t, 50000),
	)
	h.source.AddTx(funding, 99)

	transfer := test.NewTx(
		[]wire.OutPoint{
			test.OutPointOf(genesis, 0), test.OutPointOf(funding, 0),
		},
		h.marker(), h.padded(30), h.padded(9999999),
	)
	h.source.AddTx(transfer, 101)

	return genesis, transfer
}

func TestObserveTransfer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	genesis, transfer := h.transferScenario()

	delta, err := h.proof.Observe(context.Background(), transfer, 101)
	require.NoError(t, err)
	require.Equal(t, 3, delta.Evaluated)
	require.Equal(t, 2, h.source.Fetches)
	require.Len(t, delta.Added, 3)

	qty, ok := h.proof.QuantityFor(test.OutPointOf(genesis, 0))
	require.True(t, ok)
	require.EqualValues(t, 100, qty)

	qty, ok = h.proof.QuantityFor(test.OutPointOf(transfer, 1))
	require.True(t, ok)
	require.EqualValues(t, 30, qty)

	qty, ok = h.proof.QuantityFor(test.OutPointOf(transfer, 2))
	require.True(t, ok)
	require.EqualValues(t, 70, qty)

	// Nothing is recorded for the marker.
	require.False(t, h.proof.IsColored(test.OutPointOf(transfer, 0)))
	require.Equal(t, 3, h.proof.NumEntries())
	require.True(t, h.proof.IsEvaluated(genesis.TxHash()))
	require.True(t, h.proof.IsEvaluated(transfer.TxHash()))

	// Observing again is a no-op without any fetch.
	delta, err = h.proof.Observe(context.Background(), transfer, 101)
	require.NoError(t, err)
	require.True(t, delta.IsEmpty())
	require.Equal(t, 2, h.source.Fetches)

	// A child of the transfer resolves from the memo table.
	child := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(transfer, 2)}, h.marker(),
		h.padded(70),
	)
	_, err = h.proof.Observe(context.Background(), child, 102)
	require.NoError(t, err)
	require.Equal(t, 2, h.source.Fetches)

	qty, ok = h.proof.QuantityFor(test.OutPointOf(child, 1))
	require.True(t, ok)
	require.EqualValues(t, 70, qty)
}

func TestObserveNoMarker(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	genesis := h.genesisTx(100)
	h.source.AddTx(genesis, 100)

	_, err := h.proof.Observe(context.Background(), genesis, 100)
	require.NoError(t, err)

	burn := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(genesis, 0)}, h.padded(30),
		h.padded(70),
	)
	delta, err := h.proof.Observe(context.Background(), burn, 101)
	require.NoError(t, err)
	require.Empty(t, delta.Added)

	for i := range burn.TxOut {
		_, ok := h.proof.QuantityFor(test.OutPointOf(burn, uint32(i)))
		require.False(t, ok)
	}

	// A transaction without a marker never needs its ancestors, so
	// unknown inputs don't matter.
	unrelated := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()}, h.padded(5),
	)
	_, err = h.proof.Observe(context.Background(), unrelated, 101)
	require.NoError(t, err)
	require.Zero(t, h.source.Fetches)
}

func TestRollback(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	genesis, transfer := h.transferScenario()

	_, err := h.proof.Observe(context.Background(), transfer, 101)
	require.NoError(t, err)

	pending := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(transfer, 1)}, h.marker(),
		h.padded(30),
	)
	_, err = h.proof.Observe(
		context.Background(), pending, UnconfirmedHeight,
	)
	require.NoError(t, err)
	require.True(t, h.proof.IsColored(test.OutPointOf(pending, 1)))

	delta := h.proof.Rollback(100)
	require.Len(t, delta.Removed, 3)

	// Everything above height 100 is gone, including unconfirmed entries.
	require.True(t, h.proof.IsColored(test.OutPointOf(genesis, 0)))
	require.False(t, h.proof.IsColored(test.OutPointOf(transfer, 1)))
	require.False(t, h.proof.IsColored(test.OutPointOf(transfer, 2)))
	require.False(t, h.proof.IsColored(test.OutPointOf(pending, 1)))
	require.True(t, h.proof.IsEvaluated(genesis.TxHash()))
	require.False(t, h.proof.IsEvaluated(transfer.TxHash()))

	// The transfer can be observed again after the reorg.
	_, err = h.proof.Observe(context.Background(), transfer, 102)
	require.NoError(t, err)

	qty, ok := h.proof.QuantityFor(test.OutPointOf(transfer, 2))
	require.True(t, ok)
	require.EqualValues(t, 70, qty)
}

func TestObserveConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, transfer := h.transferScenario()

	_, err := h.proof.Observe(
		context.Background(), transfer, UnconfirmedHeight,
	)
	require.NoError(t, err)

	delta, err := h.proof.Observe(context.Background(), transfer, 105)
	require.NoError(t, err)
	require.Len(t, delta.Added, 2)
	for _, entry := range delta.Added {
		require.EqualValues(t, 105, entry.Height)
	}

	// The confirmed entries survive a rollback to their height.
	h.proof.Rollback(105)
	require.True(t, h.proof.IsColored(test.OutPointOf(transfer, 1)))
}

func TestObserveFailureLeavesProofUntouched(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	genesis := h.genesisTx(100)
	middle := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(genesis, 0)}, h.marker(),
		h.padded(100),
	)
	h.source.AddTx(middle, 101)

	tip := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(middle, 1)}, h.marker(),
		h.padded(100),
	)

	// The genesis is missing from the source.
	_, err := h.proof.Observe(context.Background(), tip, 102)
	require.ErrorIs(t, err, ErrAncestorUnavailable)
	require.Zero(t, h.proof.NumEntries())
	require.False(t, h.proof.IsEvaluated(middle.TxHash()))
	require.False(t, h.proof.IsEvaluated(tip.TxHash()))

	// A failing source surfaces the same way.
	h.source.FetchErr = errors.New("connection refused")
	_, err = h.proof.Observe(context.Background(), tip, 102)
	require.ErrorIs(t, err, ErrAncestorUnavailable)

	// Once the source recovers, the same call succeeds.
	h.source.FetchErr = nil
	h.source.AddTx(genesis, 100)
	_, err = h.proof.Observe(context.Background(), tip, 102)
	require.NoError(t, err)

	qty, ok := h.proof.QuantityFor(test.OutPointOf(tip, 1))
	require.True(t, ok)
	require.EqualValues(t, 100, qty)
}

func TestObserveInvalidAncestry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	// The source answers with a transaction that doesn't hash to the
	// requested txid.
	bogusPrev := test.RandOutPoint()
	h.source.AddTxAs(bogusPrev.Hash, h.genesisTx(100), 100)

	tx := test.NewTx([]wire.OutPoint{bogusPrev}, h.marker(), h.padded(5))
	_, err := h.proof.Observe(context.Background(), tx, 101)
	require.ErrorIs(t, err, ErrInvalidAncestry)
	require.Zero(t, h.proof.NumEntries())
}

// TestObserveSelfSpendingAncestor makes sure a source can't make an ancestor
// spend itself: the answer doesn't hash to the requested txid.
func TestObserveSelfSpendingAncestor(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	loopPrev := test.RandOutPoint()
	loop := test.NewTx(
		[]wire.OutPoint{loopPrev}, h.marker(), h.padded(5),
	)
	h.source.AddTxAs(loopPrev.Hash, loop, 100)

	tx := test.NewTx(
		[]wire.OutPoint{loopPrev}, h.marker(), h.padded(5),
	)
	_, err := h.proof.Observe(context.Background(), tx, 101)
	require.ErrorIs(t, err, ErrInvalidAncestry)
	require.Zero(t, h.proof.NumEntries())
}

func TestObserveMaxDepth(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.proof.MaxAncestorDepth = 3

	prev := h.genesisTx(10)
	h.source.AddTx(prev, 100)
	for i := 0; i < 5; i++ {
		next := test.NewTx(
			[]wire.OutPoint{test.OutPointOf(prev, 0)}, h.padded(10),
			h.marker(),
		)
		h.source.AddTx(next, uint32(101+i))
		prev = next
	}

	_, err := h.proof.Observe(context.Background(), prev, 105)
	require.ErrorIs(t, err, ErrInvalidAncestry)
	require.Zero(t, h.proof.NumEntries())
}

// TestObserveLongChain makes sure a long unconfirmed chain is walked without
// recursion.
func TestObserveLongChain(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	const chainLength = 2000
	prev := h.genesisTx(1_000_000)
	h.source.AddTx(prev, UnconfirmedHeight)
	for i := 0; i < chainLength; i++ {
		next := test.NewTx(
			[]wire.OutPoint{test.OutPointOf(
				prev, uint32(1%len(prev.TxOut)),
			)},
			h.marker(), h.padded(1_000_000),
		)
		h.source.AddTx(next, UnconfirmedHeight)
		prev = next
	}

	delta, err := h.proof.Observe(
		context.Background(), prev, UnconfirmedHeight,
	)
	require.NoError(t, err)
	require.Equal(t, chainLength+1, delta.Evaluated)

	qty, ok := h.proof.QuantityFor(test.OutPointOf(prev, 1))
	require.True(t, ok)
	require.EqualValues(t, 1_000_000, qty)
}

func TestObserveCanceled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, transfer := h.transferScenario()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.proof.Observe(ctx, transfer, 101)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, h.proof.NumEntries())
}

func TestRestore(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, transfer := h.transferScenario()

	_, err := h.proof.Observe(context.Background(), transfer, 101)
	require.NoError(t, err)

	restored := New(h.def, kernel.New(), NewMockTxSource())
	restored.Restore(h.proof.Entries())
	require.Equal(t, h.proof.Entries(), restored.Entries())

	// Spending a restored entry needs no fetch.
	child := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(transfer, 1)}, h.marker(),
		h.padded(30),
	)
	_, err = restored.Observe(context.Background(), child, 102)
	require.NoError(t, err)
	require.True(t, restored.IsColored(test.OutPointOf(child, 1)))
}

func TestCoinbaseNeedsNoAncestors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	coinbase := test.NewCoinbaseTx(h.marker(), test.RandTxOut(t, 5000))

	_, err := h.proof.Observe(context.Background(), coinbase, 100)
	require.NoError(t, err)
	require.Zero(t, h.source.Fetches)
	require.True(t, h.proof.IsEvaluated(coinbase.TxHash()))
}
