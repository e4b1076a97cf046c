package chainbridge

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// ChainClient is the subset of the btcd/bitcoind RPC interface the bridge
// needs.
type ChainClient interface {
	// GetRawTransactionVerbose returns a transaction together with the
	// block it confirmed in, if any.
	GetRawTransactionVerbose(
		txHash *chainhash.Hash) (*btcjson.TxRawResult, error)

	// GetBlockHeaderVerbose returns the header of a block along with its
	// height.
	GetBlockHeaderVerbose(
		blockHash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult,
		error)

	// GetBlockCount returns the height of the best block.
	GetBlockCount() (int64, error)

	// GetBlockHash returns the hash of the main chain block at a height.
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)

	// GetBlock returns a full block.
	GetBlock(blockHash *chainhash.Hash) (*wire.MsgBlock, error)

	// GetRawMempool returns the txids of all mempool transactions.
	GetRawMempool() ([]*chainhash.Hash, error)

	// GetRawTransaction returns a transaction.
	GetRawTransaction(txHash *chainhash.Hash) (*btcutil.Tx, error)
}

// A compile-time assertion to make sure the RPC client satisfies the
// ChainClient interface.
var _ ChainClient = (*rpcclient.Client)(nil)

// ChainNotifiee consumes the chain events the poller produces.
type ChainNotifiee interface {
	// NotifyTx is called for every new mempool transaction.
	NotifyTx(tx *wire.MsgTx) error

	// NotifyBlock is called for every block connected to the main chain.
	NotifyBlock(height uint32, txs []*wire.MsgTx) error

	// NotifyReorg is called when blocks above the fork height were
	// disconnected.
	NotifyReorg(forkHeight uint32) error
}
