package smartcolors

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/stretchr/testify/require"
)

func TestWatchScripts(t *testing.T) {
	t.Parallel()

	pubKeyHash := btcutil.Hash160(test.RandPubKey(t).SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		pubKeyHash, &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	expected, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	scripts, err := WatchScripts(
		[]string{addr.EncodeAddress()}, &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	require.Equal(t, [][]byte{expected}, scripts)

	// An address of another network is refused.
	_, err = WatchScripts(
		[]string{addr.EncodeAddress()}, &chaincfg.MainNetParams,
	)
	require.Error(t, err)

	_, err = WatchScripts(
		[]string{"not an address"}, &chaincfg.RegressionNetParams,
	)
	require.Error(t, err)
}

func TestWatchWallet(t *testing.T) {
	t.Parallel()

	script := test.RandP2WPKHScript(t)
	wallet := NewWatchWallet([][]byte{script})

	mine := wire.NewTxOut(1000, script)
	require.True(t, wallet.IsMine(mine))
	require.False(t, wallet.IsMine(test.RandTxOut(t, 1000)))

	// A transaction unrelated to the wallet isn't recorded.
	unrelated := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()}, test.RandTxOut(t, 1000),
	)
	require.False(t, wallet.ObserveTx(unrelated))
	require.False(t, wallet.KnowsTx(unrelated.TxHash()))

	receive := test.NewTx(
		[]wire.OutPoint{test.RandOutPoint()}, test.RandTxOut(t, 1000),
		mine, wire.NewTxOut(2000, script),
	)
	require.True(t, wallet.ObserveTx(receive))
	require.True(t, wallet.KnowsTx(receive.TxHash()))
	require.ElementsMatch(t, []wire.OutPoint{
		test.OutPointOf(receive, 1), test.OutPointOf(receive, 2),
	}, wallet.Coins())
	require.True(t, wallet.OwnsOutPoint(test.OutPointOf(receive, 1)))
	require.False(t, wallet.OwnsOutPoint(test.OutPointOf(receive, 0)))

	// Seeing the same transaction again, for example once it confirms,
	// changes nothing.
	require.False(t, wallet.ObserveTx(receive))

	// Spending a coin to a foreign script removes it.
	spend := test.NewTx(
		[]wire.OutPoint{test.OutPointOf(receive, 1)},
		test.RandTxOut(t, 900),
	)
	require.True(t, wallet.ObserveTx(spend))
	require.Equal(
		t, []wire.OutPoint{test.OutPointOf(receive, 2)}, wallet.Coins(),
	)
	require.False(t, wallet.OwnsOutPoint(test.OutPointOf(receive, 1)))
}
