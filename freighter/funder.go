package freighter

import (
	"context"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
)

// p2wkhScriptSize is the size of a P2WKH change script.
const p2wkhScriptSize = 22

// TxAuthorFunder is a BitcoinSelector that funds transactions with the
// btcwallet transaction author.
type TxAuthorFunder struct {
	// FeeRate is the fee rate in satoshis per kB.
	FeeRate btcutil.Amount

	// Wallet derives the bitcoin change script.
	Wallet WalletContext
}

// NewTxAuthorFunder creates a funder paying the given fee rate per kB.
func NewTxAuthorFunder(feeRate btcutil.Amount,
	wallet WalletContext) *TxAuthorFunder {

	return &TxAuthorFunder{
		FeeRate: feeRate,
		Wallet:  wallet,
	}
}

// Fund adds candidates, largest first, as inputs to tx until they cover its
// outputs and the fee, and appends a change output if the change isn't dust.
//
// Colored outputs with a padded value have the most significant bit of their
// value set, which reads as a negative amount. They are funded as if they
// carried no bitcoin.
func (f *TxAuthorFunder) Fund(ctx context.Context, tx *wire.MsgTx,
	prevOuts []*wire.TxOut, candidates []*Candidate) (*FundedTx, error) {

	if len(prevOuts) != len(tx.TxIn) {
		return nil, fmt.Errorf("have %d prev outputs for %d inputs",
			len(prevOuts), len(tx.TxIn))
	}

	// The author sums the output values to find its target, so padded
	// outputs are handed over without their value and restored below.
	accounting := make([]*wire.TxOut, len(tx.TxOut))
	for i, txOut := range tx.TxOut {
		value := txOut.Value
		if value < 0 {
			value = 0
		}
		accounting[i] = wire.NewTxOut(value, txOut.PkScript)
	}

	sorted := make([]*Candidate, len(candidates))
	copy(sorted, candidates)
	sortByValueDesc(sorted)

	inputSource := func(target btcutil.Amount) (btcutil.Amount,
		[]*wire.TxIn, []btcutil.Amount, [][]byte, error) {

		var (
			total   btcutil.Amount
			inputs  []*wire.TxIn
			values  []btcutil.Amount
			scripts [][]byte
		)
		add := func(txIn *wire.TxIn, prevOut *wire.TxOut) {
			value := btcutil.Amount(prevOut.Value)
			if value < 0 {
				value = 0
			}

			total += value
			inputs = append(inputs, txIn)
			values = append(values, value)
			scripts = append(scripts, prevOut.PkScript)
		}

		// The inputs already attached are always spent.
		for i, txIn := range tx.TxIn {
			add(wire.NewTxIn(&txIn.PreviousOutPoint, nil, nil),
				prevOuts[i])
		}

		for _, c := range sorted {
			if total >= target {
				break
			}

			add(wire.NewTxIn(&c.OutPoint, nil, nil), c.TxOut)
		}

		return total, inputs, values, scripts, nil
	}

	changeSource := &txauthor.ChangeSource{
		NewScript: func() ([]byte, error) {
			return f.Wallet.ChangeScript(ctx)
		},
		ScriptSize: p2wkhScriptSize,
	}

	authored, err := txauthor.NewUnsignedTransaction(
		accounting, f.FeeRate, inputSource, changeSource,
	)
	if err != nil {
		return nil, err
	}

	var outputTotal btcutil.Amount
	for _, txOut := range accounting {
		outputTotal += btcutil.Amount(txOut.Value)
	}

	// Put the real outputs back. The author keeps their order and only
	// appends the change.
	outs := make([]*wire.TxOut, 0, len(tx.TxOut)+1)
	outs = append(outs, tx.TxOut...)
	if authored.ChangeIndex >= 0 {
		change := authored.Tx.TxOut[authored.ChangeIndex]
		outputTotal += btcutil.Amount(change.Value)
		outs = append(outs, change)
	}

	funded := &wire.MsgTx{
		Version:  tx.Version,
		TxIn:     authored.Tx.TxIn,
		TxOut:    outs,
		LockTime: tx.LockTime,
	}

	spent := make(map[wire.OutPoint]*wire.TxOut, len(funded.TxIn))
	for i, txIn := range funded.TxIn {
		spent[txIn.PreviousOutPoint] = wire.NewTxOut(
			int64(authored.PrevInputValues[i]), authored.PrevScripts[i],
		)
	}
	for i, txIn := range tx.TxIn {
		spent[txIn.PreviousOutPoint] = prevOuts[i]
	}

	log.Debugf("Funded tx with %d inputs, total input %v, change index %d",
		len(funded.TxIn), authored.TotalInput, authored.ChangeIndex)

	return &FundedTx{
		Tx:          funded,
		PrevOuts:    spent,
		Fee:         authored.TotalInput - outputTotal,
		ChangeIndex: authored.ChangeIndex,
	}, nil
}

// sortByValueDesc orders candidates by descending value.
func sortByValueDesc(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TxOut.Value > candidates[j].TxOut.Value
	})
}

var _ BitcoinSelector = (*TxAuthorFunder)(nil)
