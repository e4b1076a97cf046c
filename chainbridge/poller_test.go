package chainbridge

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

type pollerHarness struct {
	t        *testing.T
	client   *MockChainClient
	notifiee *MockNotifiee
	poller   *BlockPoller
}

func newPollerHarness(t *testing.T, startHeight,
	maxReorgDepth uint32) *pollerHarness {

	client := NewMockChainClient()
	notifiee := NewMockNotifiee(100)

	return &pollerHarness{
		t:        t,
		client:   client,
		notifiee: notifiee,
		poller: NewBlockPoller(&PollerConfig{
			Client:        client,
			Notifiee:      notifiee,
			Ticker:        ticker.NewForce(time.Hour),
			StartHeight:   startHeight,
			MaxReorgDepth: maxReorgDepth,
		}),
	}
}

func (h *pollerHarness) poll() {
	require.NoError(h.t, h.poller.Poll(context.Background()))
}

func (h *pollerHarness) assertBlocks(blocks ...*wire.MsgBlock) {
	for _, block := range blocks {
		select {
		case event := <-h.notifiee.Blocks:
			height, err := h.client.GetBlockHeaderVerbose(
				blockHashPtr(block),
			)
			require.NoError(h.t, err)
			require.EqualValues(h.t, height.Height, event.Height)
			require.Equal(h.t, block.Transactions, event.Txs)

		case <-time.After(testTimeout):
			h.t.Fatalf("block not delivered")
		}
	}
}

func (h *pollerHarness) assertNoEvents() {
	require.Empty(h.t, h.notifiee.Blocks)
	require.Empty(h.t, h.notifiee.Txs)
	require.Empty(h.t, h.notifiee.Reorgs)
}

func blockHashPtr(block *wire.MsgBlock) *chainhash.Hash {
	hash := block.BlockHash()
	return &hash
}

func TestPollerBlocks(t *testing.T) {
	t.Parallel()

	h := newPollerHarness(t, 1, 0)

	// Nothing is delivered as long as the chain is below the start
	// height.
	h.poll()
	h.assertNoEvents()

	coinbase := test.NewCoinbaseTx(test.RandTxOut(t, 50000))
	b1 := h.client.MineBlock(coinbase)
	b2 := h.client.MineBlock()

	h.poll()
	h.assertBlocks(b1, b2)
	h.assertNoEvents()

	best, ok := h.poller.BestHeight()
	require.True(t, ok)
	require.EqualValues(t, 2, best)

	// Polling again doesn't repeat anything.
	h.poll()
	h.assertNoEvents()
}

func TestPollerMempool(t *testing.T) {
	t.Parallel()

	h := newPollerHarness(t, 0, 0)
	h.poll()
	h.assertBlocks(h.client.chain[0])

	tx := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()}, test.RandTxOut(t, 1000),
	)
	h.client.AddMempoolTx(tx)

	h.poll()
	require.Equal(t, tx, <-h.notifiee.Txs)
	h.assertNoEvents()

	// A transaction is only delivered once while in the mempool.
	h.poll()
	h.assertNoEvents()

	// Mining it delivers the block but not the transaction again.
	block := h.client.MineBlock(tx)
	h.poll()
	h.assertBlocks(block)
	h.assertNoEvents()
}

func TestPollerSkipMempool(t *testing.T) {
	t.Parallel()

	h := newPollerHarness(t, 0, 0)
	h.poller.cfg.SkipMempool = true

	h.client.AddMempoolTx(test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()}, test.RandTxOut(t, 1000),
	))

	h.poll()
	h.assertBlocks(h.client.chain[0])
	h.assertNoEvents()
}

func TestPollerReorg(t *testing.T) {
	t.Parallel()

	h := newPollerHarness(t, 1, 0)
	b1 := h.client.MineBlock()
	b2 := h.client.MineBlock()
	b3 := h.client.MineBlock()

	h.poll()
	h.assertBlocks(b1, b2, b3)

	// Replace the last two blocks with a longer fork.
	h.client.Reorg(1)
	f2 := h.client.MineBlock()
	f3 := h.client.MineBlock()
	f4 := h.client.MineBlock()

	h.poll()
	require.EqualValues(t, 1, <-h.notifiee.Reorgs)
	h.assertBlocks(f2, f3, f4)
	h.assertNoEvents()

	// A fork replacing every delivered block is noticed through the
	// block below the start height.
	h.client.Reorg(0)
	g1 := h.client.MineBlock()

	h.poll()
	require.EqualValues(t, 0, <-h.notifiee.Reorgs)
	h.assertBlocks(g1)
	h.assertNoEvents()

	best, _ := h.poller.BestHeight()
	require.EqualValues(t, 1, best)
}

func TestPollerShorterChain(t *testing.T) {
	t.Parallel()

	h := newPollerHarness(t, 1, 0)
	b1 := h.client.MineBlock()
	b2 := h.client.MineBlock()

	h.poll()
	h.assertBlocks(b1, b2)

	// The node's chain shrinks without a replacement yet.
	h.client.Reorg(1)

	h.poll()
	require.EqualValues(t, 1, <-h.notifiee.Reorgs)
	h.assertNoEvents()
}

func TestPollerReorgTooDeep(t *testing.T) {
	t.Parallel()

	h := newPollerHarness(t, 1, 1)
	for i := 0; i < 4; i++ {
		h.client.MineBlock()
	}

	h.poll()
	require.Len(t, h.notifiee.Blocks, 4)

	h.client.Reorg(1)
	for i := 0; i < 3; i++ {
		h.client.MineBlock()
	}

	err := h.poller.Poll(context.Background())
	require.ErrorIs(t, err, ErrReorgTooDeep)
}

func TestPollerLoop(t *testing.T) {
	t.Parallel()

	client := NewMockChainClient()
	notifiee := NewMockNotifiee(100)
	errChan := make(chan error, 1)
	forceTicker := ticker.NewForce(time.Hour)

	poller := NewBlockPoller(&PollerConfig{
		Client:   client,
		Notifiee: notifiee,
		Ticker:   forceTicker,
		ErrChan:  errChan,
	})
	require.NoError(t, poller.Start())
	t.Cleanup(func() {
		require.NoError(t, poller.Stop())
	})

	// The first poll happens right away.
	select {
	case event := <-notifiee.Blocks:
		require.EqualValues(t, 0, event.Height)
	case <-time.After(testTimeout):
		t.Fatalf("genesis block not delivered")
	}

	client.MineBlock()
	select {
	case forceTicker.Force <- time.Now():
	case <-time.After(testTimeout):
		t.Fatalf("tick not consumed")
	}

	select {
	case event := <-notifiee.Blocks:
		require.EqualValues(t, 1, event.Height)
	case <-time.After(testTimeout):
		t.Fatalf("block not delivered")
	}

	require.Empty(t, errChan)
}
