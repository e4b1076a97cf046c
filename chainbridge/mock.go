package chainbridge

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MockChainClient is an in-memory ChainClient holding a single main chain, a
// mempool and the blocks that were reorged out.
type MockChainClient struct {
	sync.Mutex

	// chain holds the main chain blocks by height.
	chain []*wire.MsgBlock

	// heights maps every block ever mined to its height, stale ones
	// included.
	heights map[chainhash.Hash]int32

	// txBlocks maps confirmed transactions to the block holding them.
	txBlocks map[chainhash.Hash]chainhash.Hash

	txs     map[chainhash.Hash]*wire.MsgTx
	mempool []chainhash.Hash

	nonce uint32
}

// NewMockChainClient creates a chain holding only a genesis block.
func NewMockChainClient() *MockChainClient {
	m := &MockChainClient{
		heights:  make(map[chainhash.Hash]int32),
		txBlocks: make(map[chainhash.Hash]chainhash.Hash),
		txs:      make(map[chainhash.Hash]*wire.MsgTx),
	}
	m.MineBlock()

	return m
}

// AddMempoolTx adds a transaction to the mempool.
func (m *MockChainClient) AddMempoolTx(tx *wire.MsgTx) {
	m.Lock()
	defer m.Unlock()

	txid := tx.TxHash()
	m.txs[txid] = tx
	m.mempool = append(m.mempool, txid)
}

// MineBlock appends a block with the given transactions to the main chain and
// removes them from the mempool.
func (m *MockChainClient) MineBlock(txs ...*wire.MsgTx) *wire.MsgBlock {
	m.Lock()
	defer m.Unlock()

	var prevHash chainhash.Hash
	if len(m.chain) > 0 {
		prevHash = m.chain[len(m.chain)-1].BlockHash()
	}

	// The nonce keeps blocks mined at the same height on different forks
	// apart.
	m.nonce++
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: prevHash,
			Timestamp: time.Unix(int64(len(m.chain)), 0),
			Nonce:     m.nonce,
		},
		Transactions: txs,
	}

	blockHash := block.BlockHash()
	m.heights[blockHash] = int32(len(m.chain))
	m.chain = append(m.chain, block)

	mined := make(map[chainhash.Hash]struct{}, len(txs))
	for _, tx := range txs {
		txid := tx.TxHash()
		m.txs[txid] = tx
		m.txBlocks[txid] = blockHash
		mined[txid] = struct{}{}
	}

	mempool := m.mempool[:0]
	for _, txid := range m.mempool {
		if _, ok := mined[txid]; !ok {
			mempool = append(mempool, txid)
		}
	}
	m.mempool = mempool

	return block
}

// Reorg disconnects all blocks above the fork height. Their transactions
// stay known but count as unconfirmed.
func (m *MockChainClient) Reorg(forkHeight uint32) {
	m.Lock()
	defer m.Unlock()

	for _, block := range m.chain[forkHeight+1:] {
		for _, tx := range block.Transactions {
			delete(m.txBlocks, tx.TxHash())
		}
	}
	m.chain = m.chain[:forkHeight+1]
}

// Height returns the height of the best block.
func (m *MockChainClient) Height() uint32 {
	m.Lock()
	defer m.Unlock()

	return uint32(len(m.chain) - 1)
}

// GetRawTransactionVerbose returns a known transaction.
func (m *MockChainClient) GetRawTransactionVerbose(
	txHash *chainhash.Hash) (*btcjson.TxRawResult, error) {

	m.Lock()
	defer m.Unlock()

	tx, ok := m.txs[*txHash]
	if !ok {
		return nil, fmt.Errorf("no such transaction: %v", txHash)
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}

	result := &btcjson.TxRawResult{
		Hex:  hex.EncodeToString(buf.Bytes()),
		Txid: txHash.String(),
	}
	if blockHash, ok := m.txBlocks[*txHash]; ok {
		result.BlockHash = blockHash.String()
		result.Confirmations = uint64(
			int32(len(m.chain)) - m.heights[blockHash],
		)
	}

	return result, nil
}

// GetBlockHeaderVerbose returns the header of a known block. Stale blocks
// report -1 confirmations.
func (m *MockChainClient) GetBlockHeaderVerbose(
	blockHash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult,
	error) {

	m.Lock()
	defer m.Unlock()

	height, ok := m.heights[*blockHash]
	if !ok {
		return nil, fmt.Errorf("no such block: %v", blockHash)
	}

	confirmations := int64(-1)
	if int(height) < len(m.chain) &&
		m.chain[height].BlockHash() == *blockHash {

		confirmations = int64(len(m.chain)) - int64(height)
	}

	return &btcjson.GetBlockHeaderVerboseResult{
		Hash:          blockHash.String(),
		Confirmations: confirmations,
		Height:        height,
	}, nil
}

// GetBlockCount returns the height of the best block.
func (m *MockChainClient) GetBlockCount() (int64, error) {
	m.Lock()
	defer m.Unlock()

	return int64(len(m.chain) - 1), nil
}

// GetBlockHash returns the hash of the main chain block at the height.
func (m *MockChainClient) GetBlockHash(blockHeight int64) (*chainhash.Hash,
	error) {

	m.Lock()
	defer m.Unlock()

	if blockHeight < 0 || blockHeight >= int64(len(m.chain)) {
		return nil, fmt.Errorf("block height %d out of range",
			blockHeight)
	}

	hash := m.chain[blockHeight].BlockHash()
	return &hash, nil
}

// GetBlock returns a known block.
func (m *MockChainClient) GetBlock(blockHash *chainhash.Hash) (*wire.MsgBlock,
	error) {

	m.Lock()
	defer m.Unlock()

	height, ok := m.heights[*blockHash]
	if !ok || int(height) >= len(m.chain) ||
		m.chain[height].BlockHash() != *blockHash {

		return nil, fmt.Errorf("no such block: %v", blockHash)
	}

	return m.chain[height], nil
}

// GetRawMempool returns the txids in the mempool.
func (m *MockChainClient) GetRawMempool() ([]*chainhash.Hash, error) {
	m.Lock()
	defer m.Unlock()

	txids := make([]*chainhash.Hash, len(m.mempool))
	for i := range m.mempool {
		txid := m.mempool[i]
		txids[i] = &txid
	}

	return txids, nil
}

// GetRawTransaction returns a known transaction.
func (m *MockChainClient) GetRawTransaction(
	txHash *chainhash.Hash) (*btcutil.Tx, error) {

	m.Lock()
	defer m.Unlock()

	tx, ok := m.txs[*txHash]
	if !ok {
		return nil, fmt.Errorf("no such transaction: %v", txHash)
	}

	return btcutil.NewTx(tx), nil
}

var _ ChainClient = (*MockChainClient)(nil)

// BlockEvent is a connected block seen by the MockNotifiee.
type BlockEvent struct {
	Height uint32
	Txs    []*wire.MsgTx
}

// MockNotifiee is a ChainNotifiee that forwards every event to a buffered
// channel.
type MockNotifiee struct {
	Txs    chan *wire.MsgTx
	Blocks chan BlockEvent
	Reorgs chan uint32
}

// NewMockNotifiee creates a notifiee buffering up to size events per kind.
func NewMockNotifiee(size int) *MockNotifiee {
	return &MockNotifiee{
		Txs:    make(chan *wire.MsgTx, size),
		Blocks: make(chan BlockEvent, size),
		Reorgs: make(chan uint32, size),
	}
}

// NotifyTx forwards the transaction.
func (m *MockNotifiee) NotifyTx(tx *wire.MsgTx) error {
	m.Txs <- tx
	return nil
}

// NotifyBlock forwards the block.
func (m *MockNotifiee) NotifyBlock(height uint32, txs []*wire.MsgTx) error {
	m.Blocks <- BlockEvent{
		Height: height,
		Txs:    txs,
	}
	return nil
}

// NotifyReorg forwards the fork height.
func (m *MockNotifiee) NotifyReorg(forkHeight uint32) error {
	m.Reorgs <- forkHeight
	return nil
}

var _ ChainNotifiee = (*MockNotifiee)(nil)
