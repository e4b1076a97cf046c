package freighter

import (
	"context"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/kernel"
)

// MaxTxWeight is the largest weight of a standard transaction.
const MaxTxWeight = 400_000

// SendRequest describes a send of a color.
type SendRequest struct {
	// Tx holds the outputs receiving the color, created with
	// AddAssetOutput. It may not have inputs yet.
	Tx *wire.MsgTx

	// PlainOutputs are additional outputs that only receive bitcoin.
	PlainOutputs []*wire.TxOut

	// NoCoinDaysSort disables the coin-days ordering of the asset
	// candidates.
	NoCoinDaysSort bool

	// ShuffleOutputs randomizes the output order without changing the
	// quantities the outputs receive.
	ShuffleOutputs bool

	// SignInputs signs the completed transaction with the configured
	// signer.
	SignInputs bool

	// DustRelayFee is the relay fee per kB used for the dust check. The
	// default relay fee is used if zero.
	DustRelayFee btcutil.Amount
}

// SendResult is a completed send.
type SendResult struct {
	// Tx is the completed transaction.
	Tx *wire.MsgTx

	// AssetInputs are the colored outputs the transaction spends.
	AssetInputs []*Candidate

	// AssetChange is the quantity sent back to the wallet.
	AssetChange uint64

	// Fee is the bitcoin fee of the transaction.
	Fee btcutil.Amount

	// Quantities holds the quantity of the color each output receives.
	Quantities []uint64
}

// AddAssetOutput adds an output receiving quantity of a color to tx. The
// quantity is padded at the dust threshold.
func AddAssetOutput(tx *wire.MsgTx, pkScript []byte, quantity uint64) {
	value := color.PadQuantity(quantity, color.DustThreshold)
	tx.AddTxOut(wire.NewTxOut(color.QuantityToValue(value), pkScript))
}

// CompleteTx selects colored coins carrying amount, adds them as inputs
// together with asset change and the marker, funds the fee with plain
// bitcoin and verifies the result with the kernel. The outputs of req.Tx
// must carry exactly amount.
func (s *AssetCoinSelector) CompleteTx(ctx context.Context, req *SendRequest,
	amount uint64) (*SendResult, error) {

	s.coinLock.Lock()
	defer s.coinLock.Unlock()

	var requested uint64
	for _, txOut := range req.Tx.TxOut {
		requested = addSaturating(requested, outputQuantity(txOut))
	}
	if requested != amount {
		return nil, fmt.Errorf("%w: outputs request %d, sending %d",
			ErrColorAssignmentMismatch, requested, amount)
	}

	log.Infof("Completing send of %d of color %v to %d outputs", amount,
		s.cfg.Definition, len(req.Tx.TxOut))

	candidates, err := s.cfg.Wallet.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list candidates: %w", err)
	}

	selection := s.Select(candidates, amount, !req.NoCoinDaysSort)
	if selection.AssetGathered < amount {
		return nil, fmt.Errorf("%w: need %d, have %d",
			ErrInsufficientAssetFunds, amount,
			selection.AssetGathered)
	}

	tx := req.Tx.Copy()
	prevOuts := make([]*wire.TxOut, 0, len(selection.Selected))
	for _, c := range selection.Selected {
		tx.AddTxIn(wire.NewTxIn(&c.OutPoint, nil, nil))
		prevOuts = append(prevOuts, c.TxOut)
	}

	change := selection.AssetGathered - amount
	if change > 0 {
		changeScript, err := s.cfg.Wallet.ChangeScript(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to derive change "+
				"script: %w", err)
		}

		log.Infof("Adding asset change of %d", change)
		AddAssetOutput(tx, changeScript, change)
	}
	numColored := len(tx.TxOut)

	marker, err := color.NewMarkerOutput()
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(marker)

	for _, txOut := range req.PlainOutputs {
		tx.AddTxOut(txOut)
	}

	funded, err := s.cfg.BitcoinSelector.Fund(
		ctx, tx, prevOuts, s.plainCandidates(candidates, selection),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fund send: %w", err)
	}
	tx = funded.Tx

	if req.ShuffleOutputs {
		shuffleOutputs(s.cfg.RNG, tx, numColored)
	}

	quantities, err := s.verify(tx, numColored)
	if err != nil {
		return nil, err
	}

	err = checkDust(tx, numColored, req.DustRelayFee)
	if err != nil {
		return nil, err
	}

	if req.SignInputs && s.cfg.Signer != nil {
		fetcher := txscript.NewMultiPrevOutFetcher(funded.PrevOuts)
		if err := s.cfg.Signer.SignTx(ctx, tx, fetcher); err != nil {
			return nil, fmt.Errorf("unable to sign send: %w", err)
		}
	}

	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	if weight > MaxTxWeight {
		return nil, fmt.Errorf("%w: weight %d",
			ErrExceededMaxTransactionSize, weight)
	}

	log.Infof("Completed send %v with a fee of %v", tx.TxHash(),
		funded.Fee)
	log.Tracef("Send tx: %v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	return &SendResult{
		Tx:          tx,
		AssetInputs: selection.Selected,
		AssetChange: change,
		Fee:         funded.Fee,
		Quantities:  quantities,
	}, nil
}

// plainCandidates returns the candidates that may pay for the fee: our
// spendable outputs that carry no tracked color and weren't selected.
func (s *AssetCoinSelector) plainCandidates(candidates []*Candidate,
	selection *AssetSelection) []*Candidate {

	selected := make(map[wire.OutPoint]struct{}, len(selection.Selected))
	for _, c := range selection.Selected {
		selected[c.OutPoint] = struct{}{}
	}

	var plain []*Candidate
	for _, c := range candidates {
		if _, ok := selected[c.OutPoint]; ok {
			continue
		}
		if !c.IsSpendable() || !s.cfg.Wallet.IsMine(c.TxOut) {
			continue
		}
		if s.cfg.ColorView.IsColoredAny(c.OutPoint) {
			continue
		}

		plain = append(plain, c)
	}

	return plain
}

// verify runs the kernel over the built transaction and makes sure each of
// the first numColored non-marker outputs receives the quantity it asks for,
// and every other output receives nothing.
func (s *AssetCoinSelector) verify(tx *wire.MsgTx,
	numColored int) ([]uint64, error) {

	id := s.cfg.Definition.ID()
	lookup := func(op wire.OutPoint) (uint64, bool) {
		return s.cfg.ColorView.QuantityFor(id, op)
	}

	result := s.cfg.Kernel.Apply(s.cfg.Definition, tx, lookup)
	if result.Kind != kernel.Transfer {
		return nil, fmt.Errorf("%w: send classified as %v",
			ErrColorAssignmentMismatch, result.Kind)
	}

	seen := 0
	for i, txOut := range tx.TxOut {
		if isMarker(txOut) {
			continue
		}

		var want uint64
		if seen < numColored {
			want = outputQuantity(txOut)
		}
		seen++

		if result.Outputs[i] != want {
			return nil, fmt.Errorf("%w: output %d receives %d, "+
				"want %d", ErrColorAssignmentMismatch, i,
				result.Outputs[i], want)
		}
	}

	return result.Outputs, nil
}

// checkDust rejects outputs below the dust limit. Colored outputs carry
// their quantity in the value field and only need to be at the protocol dust
// threshold, which padding guarantees. Plain outputs follow the relay dust
// rule. The marker is never dust.
func checkDust(tx *wire.MsgTx, numColored int,
	relayFee btcutil.Amount) error {

	if relayFee == 0 {
		relayFee = txrules.DefaultRelayFeePerKb
	}

	seen := 0
	for i, txOut := range tx.TxOut {
		if isMarker(txOut) {
			continue
		}

		var isDust bool
		if seen < numColored {
			value := color.ValueToQuantity(txOut.Value)
			isDust = value < color.DustThreshold
		} else {
			isDust = txrules.IsDustOutput(txOut, relayFee)
		}
		seen++

		if isDust {
			return fmt.Errorf("%w: output %d with value %d",
				ErrDustOutputRejected, i, txOut.Value)
		}
	}

	return nil
}

// shuffleOutputs randomizes the output order of a send without changing
// which quantity every output receives. The first numColored outputs are the
// colored ones. They stay in front of all plain outputs, since the kernel
// hands the inputs out from left to right, and are only permuted among
// themselves. The marker and the plain outputs are shuffled behind them, and
// the marker is then moved to a random position, since the kernel skips it
// wherever it is.
func shuffleOutputs(rng interface{ Intn(int) int }, tx *wire.MsgTx,
	numColored int) {

	colored := tx.TxOut[:numColored]
	plain := tx.TxOut[numColored:]

	shuffle := func(outs []*wire.TxOut) {
		for i := len(outs) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			outs[i], outs[j] = outs[j], outs[i]
		}
	}
	shuffle(colored)
	shuffle(plain)

	markerIdx := -1
	for i, txOut := range tx.TxOut {
		if isMarker(txOut) {
			markerIdx = i
			break
		}
	}
	if markerIdx < 0 {
		return
	}

	marker := tx.TxOut[markerIdx]
	rest := append(
		append([]*wire.TxOut{}, tx.TxOut[:markerIdx]...),
		tx.TxOut[markerIdx+1:]...,
	)
	pos := rng.Intn(len(rest) + 1)

	outs := make([]*wire.TxOut, 0, len(tx.TxOut))
	outs = append(outs, rest[:pos]...)
	outs = append(outs, marker)
	outs = append(outs, rest[pos:]...)
	tx.TxOut = outs
}

func isMarker(txOut *wire.TxOut) bool {
	ok, err := color.DefaultMarker.IsMarker(txOut)
	return ok && err == nil
}

// outputQuantity returns the quantity a padded output asks for.
func outputQuantity(txOut *wire.TxOut) uint64 {
	return color.OutputQuantity(txOut.Value)
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}

	return a + b
}
