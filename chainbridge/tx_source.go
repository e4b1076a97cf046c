package chainbridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/proof"
)

// RpcTxSource is a proof.TxSource that fetches transactions from a full node
// over RPC. The node needs a transaction index to serve confirmed
// transactions that don't pay to its wallet.
type RpcTxSource struct {
	client ChainClient
}

// NewRpcTxSource creates a new transaction source backed by the client.
func NewRpcTxSource(client ChainClient) *RpcTxSource {
	return &RpcTxSource{
		client: client,
	}
}

// A compile-time assertion to make sure RpcTxSource satisfies the
// proof.TxSource interface.
var _ proof.TxSource = (*RpcTxSource)(nil)

// FetchTx returns the transaction with the given txid along with its
// confirmation height.
//
// NOTE: This is part of the proof.TxSource interface.
func (r *RpcTxSource) FetchTx(ctx context.Context,
	txid chainhash.Hash) (*proof.ConfirmedTx, error) {

	rawTx, err := callWithContext(ctx, func() (*btcjson.TxRawResult,
		error) {

		return r.client.GetRawTransactionVerbose(&txid)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch tx %v: %w", txid, err)
	}

	tx, err := decodeTx(rawTx.Hex)
	if err != nil {
		return nil, fmt.Errorf("unable to decode tx %v: %w", txid, err)
	}

	height := proof.UnconfirmedHeight
	if rawTx.BlockHash != "" {
		blockHash, err := chainhash.NewHashFromStr(rawTx.BlockHash)
		if err != nil {
			return nil, err
		}

		height, err = r.blockHeight(ctx, blockHash)
		if err != nil {
			return nil, err
		}
	}

	log.Tracef("Fetched tx %v at height %d", txid, height)

	return &proof.ConfirmedTx{
		Tx:     tx,
		Height: height,
	}, nil
}

// blockHeight returns the height of a block. Blocks that aren't part of the
// main chain anymore count as unconfirmed.
func (r *RpcTxSource) blockHeight(ctx context.Context,
	blockHash *chainhash.Hash) (uint32, error) {

	header, err := callWithContext(ctx, func() (
		*btcjson.GetBlockHeaderVerboseResult, error) {

		return r.client.GetBlockHeaderVerbose(blockHash)
	})
	if err != nil {
		return 0, fmt.Errorf("unable to fetch block header %v: %w",
			blockHash, err)
	}

	// Stale blocks report -1 confirmations.
	if header.Confirmations < 1 || header.Height < 0 {
		return proof.UnconfirmedHeight, nil
	}

	return uint32(header.Height), nil
}

// decodeTx parses a hex encoded transaction.
func decodeTx(txHex string) (*wire.MsgTx, error) {
	txBytes, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}

	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, err
	}

	return tx, nil
}

// callWithContext runs a blocking RPC call and gives up waiting for it once
// the context is done. The RPC client has no notion of a context, so the call
// itself keeps running in the background.
func callWithContext[T any](ctx context.Context,
	call func() (T, error)) (T, error) {

	type result struct {
		val T
		err error
	}

	resultChan := make(chan result, 1)
	go func() {
		val, err := call()
		resultChan <- result{
			val: val,
			err: err,
		}
	}()

	select {
	case res := <-resultChan:
		return res.val, res.err

	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
