package scanner

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/proof"
)

// ProofArchive persists the entries of every proof so a restarted scanner
// doesn't need to walk the chain again. The archive is only a cache: the
// scanner can always rebuild its proofs from chain data.
type ProofArchive interface {
	// FetchEntries returns all persisted entries of the color.
	FetchEntries(ctx context.Context, id color.ID) ([]proof.Entry, error)

	// ApplyDelta persists the changes one Observe or Rollback applied to
	// the proof of the color.
	ApplyDelta(ctx context.Context, id color.ID, delta *proof.Delta) error
}

// Wallet tells the scanner which coins belong to the user.
type Wallet interface {
	// IsMine returns true if the output pays to the wallet.
	IsMine(txOut *wire.TxOut) bool

	// OwnsOutPoint returns true if the previous output spent by an input
	// belonged to the wallet.
	OwnsOutPoint(op wire.OutPoint) bool
}

// ColorView gives read access to the verified quantities of every color the
// scanner tracks.
type ColorView interface {
	// QuantityFor returns the verified quantity of the color carried by
	// the outpoint.
	QuantityFor(id color.ID, op wire.OutPoint) (uint64, bool)

	// IsColored returns true if the outpoint carries the color.
	IsColored(id color.ID, op wire.OutPoint) bool

	// IsColoredAny returns true if the outpoint carries any tracked color.
	IsColoredAny(op wire.OutPoint) bool
}
