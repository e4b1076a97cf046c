package freighter

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Candidate is a spendable output known to the wallet.
type Candidate struct {
	// OutPoint is the location of the output.
	OutPoint wire.OutPoint

	// TxOut is the output itself.
	TxOut *wire.TxOut

	// Confirmations is the number of blocks that confirmed the output,
	// zero while its transaction is pending.
	Confirmations uint32

	// SelfOriginated is true if the wallet created the transaction of the
	// output, which makes a pending output safe to spend.
	SelfOriginated bool
}

// Amount returns the bitcoin value of the candidate.
func (c *Candidate) Amount() btcutil.Amount {
	return btcutil.Amount(c.TxOut.Value)
}

// IsSpendable returns true if the output is confirmed or was created by the
// wallet itself.
func (c *Candidate) IsSpendable() bool {
	return c.Confirmations > 0 || c.SelfOriginated
}

// String returns a human readable description of the candidate.
func (c *Candidate) String() string {
	return fmt.Sprintf("%v (value=%v, confs=%d)", c.OutPoint, c.Amount(),
		c.Confirmations)
}

// WalletContext gives the freighter access to the coins and keys of the
// local wallet.
type WalletContext interface {
	// IsMine returns true if the output pays to the wallet.
	IsMine(txOut *wire.TxOut) bool

	// ListCandidates returns all unspent outputs of the wallet.
	ListCandidates(ctx context.Context) ([]*Candidate, error)

	// ChangeScript derives a fresh change script.
	ChangeScript(ctx context.Context) ([]byte, error)
}

// FundedTx is a transaction whose plain bitcoin inputs cover its outputs and
// the fee.
type FundedTx struct {
	// Tx is the funded transaction. The outputs of the unfunded
	// transaction keep their order, a change output may be appended.
	Tx *wire.MsgTx

	// PrevOuts holds the spent output of every input.
	PrevOuts map[wire.OutPoint]*wire.TxOut

	// Fee is the fee paid by the transaction.
	Fee btcutil.Amount

	// ChangeIndex is the index of the bitcoin change output, or -1.
	ChangeIndex int
}

// BitcoinSelector adds plain bitcoin inputs and change to a transaction.
type BitcoinSelector interface {
	// Fund adds inputs from the candidates to tx until its inputs pay for
	// its outputs and the fee. The inputs tx already has spend the
	// outputs in prevOuts.
	Fund(ctx context.Context, tx *wire.MsgTx, prevOuts []*wire.TxOut,
		candidates []*Candidate) (*FundedTx, error)
}

// Signer signs the inputs of a transaction.
type Signer interface {
	// SignTx signs every input of tx that the wallet can sign.
	SignTx(ctx context.Context, tx *wire.MsgTx,
		prevOuts txscript.PrevOutputFetcher) error
}
