package smartcolors

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/scanner"
)

// WatchWallet is a watch-only wallet. Every output paying to one of its
// scripts is one of its coins, and a coin is gone once a transaction spends
// it. The daemon uses it to report what incoming transactions change for the
// user and what the user holds of every color.
type WatchWallet struct {
	mtx sync.RWMutex

	scripts map[string]struct{}

	// coins holds the unspent outputs paying to the wallet that were
	// observed so far.
	coins map[wire.OutPoint]struct{}

	// txs holds the transactions that touched the wallet.
	txs map[chainhash.Hash]struct{}
}

// NewWatchWallet creates a wallet watching the given output scripts.
func NewWatchWallet(scripts [][]byte) *WatchWallet {
	w := &WatchWallet{
		scripts: make(map[string]struct{}, len(scripts)),
		coins:   make(map[wire.OutPoint]struct{}),
		txs:     make(map[chainhash.Hash]struct{}),
	}
	for _, script := range scripts {
		w.scripts[string(script)] = struct{}{}
	}

	return w
}

// WatchScripts decodes the addresses and returns their output scripts. Every
// address must belong to the network.
func WatchScripts(addrs []string, params *chaincfg.Params) ([][]byte, error) {
	scripts := make([][]byte, 0, len(addrs))
	for _, addrStr := range addrs {
		addr, err := btcutil.DecodeAddress(addrStr, params)
		if err != nil {
			return nil, fmt.Errorf("invalid watch address %v: %w",
				addrStr, err)
		}
		if !addr.IsForNet(params) {
			return nil, fmt.Errorf("watch address %v is not for "+
				"network %v", addrStr, params.Name)
		}

		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, script)
	}

	return scripts, nil
}

// IsMine returns true if the output pays to a watched script.
//
// NOTE: This is part of the scanner.Wallet interface.
func (w *WatchWallet) IsMine(txOut *wire.TxOut) bool {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	_, ok := w.scripts[string(txOut.PkScript)]
	return ok
}

// OwnsOutPoint returns true if the outpoint is an unspent coin of the wallet.
//
// NOTE: This is part of the scanner.Wallet interface.
func (w *WatchWallet) OwnsOutPoint(op wire.OutPoint) bool {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	_, ok := w.coins[op]
	return ok
}

// KnowsTx returns true if the transaction already touched the wallet.
func (w *WatchWallet) KnowsTx(txid chainhash.Hash) bool {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	_, ok := w.txs[txid]
	return ok
}

// ObserveTx removes the coins the transaction spends and adds the outputs
// paying to the wallet. It returns true if the transaction touched the wallet
// for the first time.
func (w *WatchWallet) ObserveTx(tx *wire.MsgTx) bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	txid := tx.TxHash()
	if _, ok := w.txs[txid]; ok {
		return false
	}

	var touched bool
	for _, txIn := range tx.TxIn {
		if _, ok := w.coins[txIn.PreviousOutPoint]; ok {
			delete(w.coins, txIn.PreviousOutPoint)
			touched = true
		}
	}

	for i, txOut := range tx.TxOut {
		if _, ok := w.scripts[string(txOut.PkScript)]; !ok {
			continue
		}

		w.coins[wire.OutPoint{Hash: txid, Index: uint32(i)}] = struct{}{}
		touched = true
	}

	if touched {
		w.txs[txid] = struct{}{}
	}

	return touched
}

// Coins returns the unspent coins of the wallet in outpoint order.
func (w *WatchWallet) Coins() []wire.OutPoint {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	coins := make([]wire.OutPoint, 0, len(w.coins))
	for op := range w.coins {
		coins = append(coins, op)
	}
	sort.Slice(coins, func(i, j int) bool {
		cmp := bytes.Compare(coins[i].Hash[:], coins[j].Hash[:])
		if cmp != 0 {
			return cmp < 0
		}

		return coins[i].Index < coins[j].Index
	})

	return coins
}

// A compile-time assertion to make sure WatchWallet satisfies the
// scanner.Wallet interface.
var _ scanner.Wallet = (*WatchWallet)(nil)
