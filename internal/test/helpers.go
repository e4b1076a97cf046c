package test

import (
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// RandBool rolls a random boolean.
func RandBool() bool {
	return rand.Int()%2 == 0
}

func RandPrivKey(t testing.TB) *btcec.PrivateKey {
	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return privKey
}

func RandPubKey(t testing.TB) *btcec.PublicKey {
	return RandPrivKey(t).PubKey()
}

func RandBytes(num int) []byte {
	randBytes := make([]byte, num)
	_, _ = rand.Read(randBytes)
	return randBytes
}

// RandHash returns a random 32-byte hash.
func RandHash() chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], RandBytes(chainhash.HashSize))
	return h
}

// RandOutPoint returns a random outpoint.
func RandOutPoint() wire.OutPoint {
	return wire.OutPoint{
		Hash:  RandHash(),
		Index: uint32(rand.Int31n(16)),
	}
}

// RandP2WPKHScript returns a pay-to-witness-pubkey-hash script for a freshly
// generated key.
func RandP2WPKHScript(t testing.TB) []byte {
	pubKeyHash := btcutil.Hash160(RandPubKey(t).SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		pubKeyHash, &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return script
}

// RandTxOut returns an output with the given value and a random P2WPKH
// script.
func RandTxOut(t testing.TB, value int64) *wire.TxOut {
	return wire.NewTxOut(value, RandP2WPKHScript(t))
}

// NewTx builds a version 2 transaction that spends the given outpoints into
// the given outputs.
func NewTx(prevOuts []wire.OutPoint, outs ...*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	for i := range prevOuts {
		tx.AddTxIn(wire.NewTxIn(&prevOuts[i], nil, nil))
	}
	for _, out := range outs {
		tx.AddTxOut(out)
	}

	return tx
}

// NewCoinbaseTx builds a coinbase transaction paying to the given outputs.
// The extra nonce makes every call produce a distinct txid.
func NewCoinbaseTx(outs ...*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Index: wire.MaxPrevOutIndex,
		},
		SignatureScript: RandBytes(8),
		Sequence:        wire.MaxTxInSequenceNum,
	})
	for _, out := range outs {
		tx.AddTxOut(out)
	}

	return tx
}

// OutPointOf returns the outpoint of the output at the given index of tx.
func OutPointOf(tx *wire.MsgTx, index uint32) wire.OutPoint {
	return wire.OutPoint{
		Hash:  tx.TxHash(),
		Index: index,
	}
}
