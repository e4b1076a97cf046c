package proof

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MockTxSource is an in-memory TxSource.
type MockTxSource struct {
	sync.Mutex

	txs map[chainhash.Hash]*ConfirmedTx

	// FetchErr is returned by every FetchTx call if set.
	FetchErr error

	// Fetches counts the FetchTx calls.
	Fetches int
}

// NewMockTxSource creates an empty mock source.
func NewMockTxSource() *MockTxSource {
	return &MockTxSource{
		txs: make(map[chainhash.Hash]*ConfirmedTx),
	}
}

// AddTx makes a transaction available at the given height.
func (m *MockTxSource) AddTx(tx *wire.MsgTx, height uint32) {
	m.Lock()
	defer m.Unlock()

	m.txs[tx.TxHash()] = &ConfirmedTx{
		Tx:     tx,
		Height: height,
	}
}

// AddTxAs makes a transaction available under an arbitrary txid.
func (m *MockTxSource) AddTxAs(txid chainhash.Hash, tx *wire.MsgTx,
	height uint32) {

	m.Lock()
	defer m.Unlock()

	m.txs[txid] = &ConfirmedTx{
		Tx:     tx,
		Height: height,
	}
}

// FetchTx returns the transaction with the given txid.
func (m *MockTxSource) FetchTx(_ context.Context,
	txid chainhash.Hash) (*ConfirmedTx, error) {

	m.Lock()
	defer m.Unlock()

	m.Fetches++

	if m.FetchErr != nil {
		return nil, m.FetchErr
	}

	tx, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("tx %v not found", txid)
	}

	return tx, nil
}

var _ TxSource = (*MockTxSource)(nil)
