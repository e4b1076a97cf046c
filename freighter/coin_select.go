package freighter

import (
	"bytes"
	"errors"
	"math/bits"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/kernel"
	"github.com/lightninglabs/smartcolors/scanner"
)

var (
	// ErrInsufficientAssetFunds is returned when the wallet doesn't hold
	// enough of the color to fund a send.
	ErrInsufficientAssetFunds = errors.New("insufficient asset funds")

	// ErrColorAssignmentMismatch is returned when the kernel wouldn't
	// assign the intended quantities to the outputs of a built
	// transaction.
	ErrColorAssignmentMismatch = errors.New("color assignment mismatch")

	// ErrDustOutputRejected is returned when a built transaction has an
	// output below the dust limit.
	ErrDustOutputRejected = errors.New("dust output rejected")

	// ErrExceededMaxTransactionSize is returned when a built transaction
	// is above the standard weight limit.
	ErrExceededMaxTransactionSize = errors.New("exceeded max transaction " +
		"size")
)

// AssetCoinSelectorConfig is the config of an AssetCoinSelector.
type AssetCoinSelectorConfig struct {
	// Definition is the color the selector spends.
	Definition *color.Definition

	// ColorView gives access to the verified quantities of the color.
	ColorView scanner.ColorView

	// Wallet is the local wallet.
	Wallet WalletContext

	// BitcoinSelector funds the plain bitcoin part of a send.
	BitcoinSelector BitcoinSelector

	// Signer optionally signs completed transactions.
	Signer Signer

	// Kernel is used to verify built transactions. The default kernel is
	// used if nil.
	Kernel *kernel.Kernel

	// RNG drives the output shuffle. A time seeded source is used if nil.
	RNG *rand.Rand
}

// AssetCoinSelector selects colored coins and builds transactions sending
// them.
type AssetCoinSelector struct {
	cfg *AssetCoinSelectorConfig

	// coinLock makes sure only one send is built at a time, so two sends
	// can't select the same coins.
	coinLock sync.Mutex
}

// NewAssetCoinSelector creates a new selector from a valid config.
func NewAssetCoinSelector(cfg *AssetCoinSelectorConfig) *AssetCoinSelector {
	if cfg.Kernel == nil {
		cfg.Kernel = kernel.New()
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &AssetCoinSelector{
		cfg: cfg,
	}
}

// AssetSelection is the result of an asset coin selection.
type AssetSelection struct {
	// Selected holds the chosen outputs in selection order.
	Selected []*Candidate

	// AssetGathered is the quantity of the color the outputs carry. It
	// may be below the target if the candidates didn't suffice.
	AssetGathered uint64

	// ValueGathered is the bitcoin value of the outputs. Padded values
	// count as zero.
	ValueGathered btcutil.Amount
}

// shouldSelect returns true if the candidate is ours, spendable and carries
// the color.
func (s *AssetCoinSelector) shouldSelect(c *Candidate) bool {
	if !c.IsSpendable() || !s.cfg.Wallet.IsMine(c.TxOut) {
		return false
	}

	return s.cfg.ColorView.IsColored(s.cfg.Definition.ID(), c.OutPoint)
}

// Select accumulates eligible candidates until they carry at least the
// target quantity. Candidates are visited by descending coin-days unless
// sortByCoinDays is false, which callers that select everything anyway can
// use to skip the sort.
func (s *AssetCoinSelector) Select(candidates []*Candidate, target uint64,
	sortByCoinDays bool) *AssetSelection {

	sorted := make([]*Candidate, len(candidates))
	copy(sorted, candidates)
	if sortByCoinDays {
		sortByCoinDaysDesc(sorted)
	}

	id := s.cfg.Definition.ID()
	selection := &AssetSelection{}
	for _, c := range sorted {
		if selection.AssetGathered >= target {
			break
		}
		if !s.shouldSelect(c) {
			continue
		}

		qty, _ := s.cfg.ColorView.QuantityFor(id, c.OutPoint)

		selection.Selected = append(selection.Selected, c)
		selection.AssetGathered = addSaturating(
			selection.AssetGathered, qty,
		)
		if value := c.Amount(); value > 0 {
			selection.ValueGathered += value
		}
	}

	log.Debugf("Selected %d outputs carrying %d of color %v for target "+
		"%d", len(selection.Selected), selection.AssetGathered,
		s.cfg.Definition, target)

	return selection
}

// sortByCoinDaysDesc orders candidates by quantity times confirmations, then
// by quantity, both descending, and finally by outpoint.
func sortByCoinDaysDesc(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		aHi, aLo := coinDays(a)
		bHi, bLo := coinDays(b)
		switch {
		case aHi != bHi:
			return aHi > bHi
		case aLo != bLo:
			return aLo > bLo
		}

		aValue := color.OutputQuantity(a.TxOut.Value)
		bValue := color.OutputQuantity(b.TxOut.Value)
		if aValue != bValue {
			return aValue > bValue
		}

		cmp := bytes.Compare(a.OutPoint.Hash[:], b.OutPoint.Hash[:])
		if cmp != 0 {
			return cmp < 0
		}

		return a.OutPoint.Index < b.OutPoint.Index
	})
}

// coinDays returns the 128-bit product of the output's quantity and its
// confirmations. Padded values are unpadded first, so a small padded output
// ranks by the quantity it carries and not by its flagged wire value.
func coinDays(c *Candidate) (uint64, uint64) {
	return bits.Mul64(
		color.OutputQuantity(c.TxOut.Value), uint64(c.Confirmations),
	)
}
