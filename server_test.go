package smartcolors

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/chainbridge"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/colordb"
	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/lightninglabs/smartcolors/scanner"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

type serverHarness struct {
	t        *testing.T
	defsDir  string
	client   *chainbridge.MockChainClient
	defStore *colordb.DefinitionStore
	scanner  *scanner.Scanner
	wallet   *WatchWallet
	ticker   *ticker.Force
	server   *Server
}

func newServerHarness(t *testing.T, walletScripts ...[]byte) *serverHarness {
	db := colordb.NewTestDB(t)

	defDB := colordb.NewTransactionExecutor(
		db, func(tx *sql.Tx) colordb.DefinitionQueries {
			return db.WithTx(tx)
		},
	)
	proofDB := colordb.NewTransactionExecutor(
		db, func(tx *sql.Tx) colordb.ProofQueries {
			return db.WithTx(tx)
		},
	)
	defStore := colordb.NewDefinitionStore(
		defDB, clock.NewTestClock(time.Unix(1_000_000, 0)),
	)

	client := chainbridge.NewMockChainClient()
	colorScanner := scanner.New(&scanner.Config{
		TxSource: chainbridge.NewRpcTxSource(client),
		Archive:  colordb.NewProofStore(proofDB),
	})
	wallet := NewWatchWallet(walletScripts)
	pollTicker := ticker.NewForce(time.Hour)
	defsDir := t.TempDir()

	return &serverHarness{
		t:        t,
		defsDir:  defsDir,
		client:   client,
		defStore: defStore,
		scanner:  colorScanner,
		wallet:   wallet,
		ticker:   pollTicker,
		server: NewServer(&Config{
			ChainParams:    &chaincfg.RegressionNetParams,
			Scanner:        colorScanner,
			Definitions:    defStore,
			DefinitionsDir: defsDir,
			PollerCfg: &chainbridge.PollerConfig{
				Client: client,
				Ticker: pollTicker,
			},
			Wallet: wallet,
		}),
	}
}

func (h *serverHarness) poll() {
	require.NoError(h.t, h.server.poller.Poll(context.Background()))
}

func paddedOut(qty uint64, script []byte) *wire.TxOut {
	return wire.NewTxOut(
		color.QuantityToValue(color.PadQuantity(qty, color.DustThreshold)),
		script,
	)
}

func TestServerLoadDefinitions(t *testing.T) {
	t.Parallel()

	h := newServerHarness(t)
	ctx := context.Background()

	gold := newNamedDefinition(t, "gold", nil)
	writeDefinition(t, h.defsDir, "gold.json", gold)

	// A definition stored earlier is tracked as well, unless it belongs
	// to another network.
	silver := newNamedDefinition(t, "silver", nil)
	require.NoError(t, h.defStore.SaveDefinition(ctx, silver))

	mainDef, err := color.NewDefinition(
		[]color.GenesisPoint{
			color.NewScriptGenesis(test.RandP2WPKHScript(t)),
		}, nil, nil, &chaincfg.MainNetParams,
	)
	require.NoError(t, err)
	require.NoError(t, h.defStore.SaveDefinition(ctx, mainDef))

	require.NoError(t, h.server.loadDefinitions(ctx))

	stored, err := h.defStore.FetchDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	require.Len(t, h.scanner.Definitions(), 2)
	_, ok := h.scanner.Definition(gold.ID())
	require.True(t, ok)
	_, ok = h.scanner.Definition(silver.ID())
	require.True(t, ok)
	_, ok = h.scanner.Definition(mainDef.ID())
	require.False(t, ok)

	// Loading again is a no-op.
	require.NoError(t, h.server.loadDefinitions(ctx))
	require.Len(t, h.scanner.Definitions(), 2)
}

// TestServerWalletFlow issues a color to the wallet, spends part of it from
// the mempool and confirms the spend, checking the balances at every step.
func TestServerWalletFlow(t *testing.T) {
	t.Parallel()

	issuerScript := test.RandP2WPKHScript(t)
	walletScript := test.RandP2WPKHScript(t)
	h := newServerHarness(t, issuerScript, walletScript)
	ctx := context.Background()

	gold := newNamedDefinition(t, "gold", issuerScript)
	writeDefinition(t, h.defsDir, "gold.json", gold)
	require.NoError(t, h.server.loadDefinitions(ctx))

	genesis := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()},
		paddedOut(100, issuerScript),
	)
	h.client.MineBlock(genesis)
	h.poll()

	require.Equal(t, map[color.ID]uint64{
		gold.ID(): 100,
	}, h.server.Balances())

	marker, err := color.NewMarkerOutput()
	require.NoError(t, err)

	transfer := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(genesis, 0)}, marker,
		paddedOut(30, test.RandP2WPKHScript(t)),
		paddedOut(70, walletScript),
	)
	h.client.AddMempoolTx(transfer)
	h.poll()

	require.True(t, h.wallet.KnowsTx(transfer.TxHash()))
	require.Equal(t, map[color.ID]uint64{
		gold.ID(): 70,
	}, h.server.Balances())

	// Confirming the transfer doesn't change the balance.
	h.client.MineBlock(transfer)
	h.poll()

	require.Equal(t, map[color.ID]uint64{
		gold.ID(): 70,
	}, h.server.Balances())
	require.Equal(t, []wire.OutPoint{
		test.OutPointOf(transfer, 2),
	}, h.wallet.Coins())

	qty, ok := h.scanner.QuantityFor(
		gold.ID(), test.OutPointOf(transfer, 1),
	)
	require.True(t, ok)
	require.EqualValues(t, 30, qty)

	best, ok := h.server.poller.BestHeight()
	require.True(t, ok)
	require.EqualValues(t, 2, best)
	require.EqualValues(t, 2, h.scanner.BestHeight())
}

// TestServerUnavailableAncestor makes sure a block with a transaction whose
// ancestors can't be fetched doesn't stop the chain from being followed.
func TestServerUnavailableAncestor(t *testing.T) {
	t.Parallel()

	walletScript := test.RandP2WPKHScript(t)
	h := newServerHarness(t, walletScript)
	ctx := context.Background()

	gold := newNamedDefinition(t, "gold", walletScript)
	writeDefinition(t, h.defsDir, "gold.json", gold)
	require.NoError(t, h.server.loadDefinitions(ctx))

	// The marker makes the transfer depend on its input, which the node
	// doesn't know.
	marker, err := color.NewMarkerOutput()
	require.NoError(t, err)
	orphan := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()}, marker,
		paddedOut(10, test.RandP2WPKHScript(t)),
	)
	h.client.MineBlock(orphan)
	h.poll()

	best, ok := h.server.poller.BestHeight()
	require.True(t, ok)
	require.EqualValues(t, 1, best)

	genesis := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()},
		paddedOut(40, walletScript),
	)
	h.client.MineBlock(genesis)
	h.poll()

	best, ok = h.server.poller.BestHeight()
	require.True(t, ok)
	require.EqualValues(t, 2, best)
	require.EqualValues(t, 2, h.scanner.BestHeight())
	require.Equal(t, map[color.ID]uint64{
		gold.ID(): 40,
	}, h.server.Balances())
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	walletScript := test.RandP2WPKHScript(t)
	h := newServerHarness(t, walletScript)

	gold := newNamedDefinition(t, "gold", walletScript)
	writeDefinition(t, h.defsDir, "gold.json", gold)

	genesis := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()},
		paddedOut(25, walletScript),
	)
	h.client.MineBlock(genesis)

	require.NoError(t, h.server.Start())

	// The first poll happens right away.
	require.Eventually(t, func() bool {
		return h.server.Balances()[gold.ID()] == 25
	}, testTimeout, 10*time.Millisecond)

	require.NoError(t, h.server.Stop())

	// Stopping twice is fine.
	require.NoError(t, h.server.Stop())
}
