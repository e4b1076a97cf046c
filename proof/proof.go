package proof

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/kernel"
)

const (
	// UnconfirmedHeight is the height recorded for transactions that are
	// not in a block yet. It is above every real height, so a rollback to
	// any height drops unconfirmed entries.
	UnconfirmedHeight uint32 = math.MaxUint32

	// DefaultMaxAncestorDepth is the default bound on the number of
	// unevaluated ancestors a single Observe call walks through in a row.
	DefaultMaxAncestorDepth = 10_000
)

var (
	// ErrInvalidAncestry is returned when the ancestors of a transaction
	// don't form a valid graph, for example because they contain a cycle.
	ErrInvalidAncestry = errors.New("invalid ancestry")

	// ErrAncestorUnavailable is returned when an ancestor transaction
	// could not be fetched.
	ErrAncestorUnavailable = errors.New("ancestor unavailable")
)

// ConfirmedTx is a transaction together with the height of the block that
// confirmed it.
type ConfirmedTx struct {
	Tx *wire.MsgTx

	// Height is the confirmation height or UnconfirmedHeight.
	Height uint32
}

// TxSource fetches ancestor transactions.
type TxSource interface {
	// FetchTx returns the transaction with the given txid.
	FetchTx(ctx context.Context, txid chainhash.Hash) (*ConfirmedTx, error)
}

// Entry is a certified quantity of a color carried by an outpoint.
type Entry struct {
	OutPoint wire.OutPoint
	Quantity uint64

	// Height is the confirmation height of the transaction that created
	// the outpoint, or UnconfirmedHeight.
	Height uint32
}

// Delta describes the changes a single Observe or Rollback call applied to a
// proof.
type Delta struct {
	// Added holds new entries and entries whose height changed.
	Added []Entry

	// Removed holds the outpoints of dropped entries.
	Removed []wire.OutPoint

	// Evaluated is the number of transactions the kernel was applied to.
	Evaluated int
}

// IsEmpty returns true if the delta changes no entry.
func (d *Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Proof is the memo table of verified quantities of one color. It grows as
// transactions are observed and shrinks on rollback.
//
// NOTE: A Proof is not safe for concurrent use. The scanner serializes access
// to it.
type Proof struct {
	def    *color.Definition
	kernel *kernel.Kernel
	source TxSource

	// MaxAncestorDepth bounds the ancestor walk of a single Observe.
	MaxAncestorDepth int

	entries map[wire.OutPoint]Entry

	// evaluated maps the txid of every transaction the kernel was applied
	// to, to its height.
	evaluated map[chainhash.Hash]uint32
}

// New creates an empty proof for the definition.
func New(def *color.Definition, k *kernel.Kernel, source TxSource) *Proof {
	return &Proof{
		def:              def,
		kernel:           k,
		source:           source,
		MaxAncestorDepth: DefaultMaxAncestorDepth,
		entries:          make(map[wire.OutPoint]Entry),
		evaluated:        make(map[chainhash.Hash]uint32),
	}
}

// Definition returns the definition the proof is built for.
func (p *Proof) Definition() *color.Definition {
	return p.def
}

// QuantityFor returns the verified quantity carried by op. The second return
// value is false if op is not known to carry the color.
func (p *Proof) QuantityFor(op wire.OutPoint) (uint64, bool) {
	entry, ok := p.entries[op]
	if !ok {
		return 0, false
	}

	return entry.Quantity, true
}

// IsColored returns true if op is known to carry the color.
func (p *Proof) IsColored(op wire.OutPoint) bool {
	_, ok := p.entries[op]
	return ok
}

// IsEvaluated returns true if the transaction was already evaluated.
func (p *Proof) IsEvaluated(txid chainhash.Hash) bool {
	_, ok := p.evaluated[txid]
	return ok
}

// NumEntries returns the number of colored outpoints.
func (p *Proof) NumEntries() int {
	return len(p.entries)
}

// Entries returns all entries ordered by outpoint.
func (p *Proof) Entries() []Entry {
	entries := make([]Entry, 0, len(p.entries))
	for _, entry := range p.entries {
		entries = append(entries, entry)
	}
	sortEntries(entries)

	return entries
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return compareOutPoints(
			entries[i].OutPoint, entries[j].OutPoint,
		) < 0
	})
}

func compareOutPoints(a, b wire.OutPoint) int {
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c
	}

	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	default:
		return 0
	}
}

// Restore loads previously persisted entries. The entries are treated as
// already verified, and the transactions that created them as evaluated.
func (p *Proof) Restore(entries []Entry) {
	for _, entry := range entries {
		if entry.Quantity == 0 {
			continue
		}

		p.entries[entry.OutPoint] = entry
		p.evaluated[entry.OutPoint.Hash] = entry.Height
	}

	log.Debugf("Restored %d entries for color %v", len(entries), p.def)
}

// frame is one transaction on the ancestor walk stack.
type frame struct {
	tx     *wire.MsgTx
	txid   chainhash.Hash
	height uint32

	// nextInput is the index of the next input whose ancestor needs to
	// be resolved.
	nextInput int

	// needsInputs caches the kernel's answer for tx.
	needsInputs bool
}

// staging collects the changes of a single Observe call. Nothing is written
// to the proof until the whole walk succeeded.
type staging struct {
	entries   map[wire.OutPoint]Entry
	evaluated map[chainhash.Hash]uint32
}

// Observe makes sure tx and all of its ancestors that matter for the color are
// evaluated, and records the quantities of their colored outputs. The height
// is the confirmation height of tx or UnconfirmedHeight. Observing a known
// transaction again with a confirmed height records the new height.
//
// If Observe fails, the proof is left untouched.
func (p *Proof) Observe(ctx context.Context, tx *wire.MsgTx,
	height uint32) (*Delta, error) {

	txid := tx.TxHash()

	if known, ok := p.evaluated[txid]; ok {
		if height == UnconfirmedHeight || height == known {
			return &Delta{}, nil
		}

		return p.confirm(txid, len(tx.TxOut), height), nil
	}

	stage := &staging{
		entries:   make(map[wire.OutPoint]Entry),
		evaluated: make(map[chainhash.Hash]uint32),
	}

	if err := p.walk(ctx, stage, tx, txid, height); err != nil {
		return nil, err
	}

	// The walk succeeded, commit the staged changes.
	delta := &Delta{
		Evaluated: len(stage.evaluated),
	}
	for hash, h := range stage.evaluated {
		p.evaluated[hash] = h
	}
	for op, entry := range stage.entries {
		p.entries[op] = entry
		delta.Added = append(delta.Added, entry)
	}
	sortEntries(delta.Added)

	log.Debugf("Observed tx %v for color %v: evaluated %d txs, %d new "+
		"entries", txid, p.def, delta.Evaluated, len(delta.Added))

	return delta, nil
}

// confirm updates the height of an evaluated transaction and its entries.
func (p *Proof) confirm(txid chainhash.Hash, numOutputs int,
	height uint32) *Delta {

	p.evaluated[txid] = height

	delta := &Delta{}
	for i := 0; i < numOutputs; i++ {
		op := wire.OutPoint{Hash: txid, Index: uint32(i)}
		entry, ok := p.entries[op]
		if !ok {
			continue
		}

		entry.Height = height
		p.entries[op] = entry
		delta.Added = append(delta.Added, entry)
	}

	log.Debugf("Tx %v confirmed at height %d for color %v", txid, height,
		p.def)

	return delta
}

// isEvaluated checks both the staged and the committed evaluated sets.
func (p *Proof) isEvaluated(stage *staging, txid chainhash.Hash) bool {
	if _, ok := stage.evaluated[txid]; ok {
		return true
	}

	_, ok := p.evaluated[txid]
	return ok
}

// lookup returns the staged or committed quantity of op.
func (p *Proof) lookup(stage *staging) kernel.InputLookup {
	return func(op wire.OutPoint) (uint64, bool) {
		if entry, ok := stage.entries[op]; ok {
			return entry.Quantity, true
		}

		return p.QuantityFor(op)
	}
}

// walk evaluates tx after all of its relevant ancestors using an explicit
// depth first stack. Every fetched ancestor must hash to the txid it was
// requested by (see fetch), so the stack can't hold a cycle: an ancestry loop
// would need a transaction committing to its own hash.
func (p *Proof) walk(ctx context.Context, stage *staging, tx *wire.MsgTx,
	txid chainhash.Hash, height uint32) error {

	push := func(stack []*frame, tx *wire.MsgTx, txid chainhash.Hash,
		height uint32) []*frame {

		return append(stack, &frame{
			tx:          tx,
			txid:        txid,
			height:      height,
			needsInputs: p.needsInputs(tx),
		})
	}

	stack := push(nil, tx, txid, height)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		top := stack[len(stack)-1]

		// Find the next input whose ancestor still needs to be
		// evaluated.
		var ancestor *chainhash.Hash
		for top.needsInputs && top.nextInput < len(top.tx.TxIn) {
			prevOut := top.tx.TxIn[top.nextInput].PreviousOutPoint
			top.nextInput++

			// Genesis outpoints take their quantity from the
			// definition.
			if p.def.IsGenesisOutPoint(prevOut) {
				continue
			}
			if p.isEvaluated(stage, prevOut.Hash) {
				continue
			}

			hash := prevOut.Hash
			ancestor = &hash
			break
		}

		if ancestor != nil {
			if len(stack) >= p.MaxAncestorDepth {
				return fmt.Errorf("%w: more than %d unevaluated "+
					"ancestors of %v", ErrInvalidAncestry,
					p.MaxAncestorDepth, txid)
			}

			parent, err := p.fetch(ctx, *ancestor)
			if err != nil {
				return err
			}

			stack = push(stack, parent.Tx, *ancestor, parent.Height)
			continue
		}

		// All ancestors are known, evaluate the transaction itself.
		p.evaluate(stage, top)

		stack = stack[:len(stack)-1]
	}

	return nil
}

// needsInputs returns true if the ancestors of tx matter for the color.
// Coinbase transactions have no ancestors.
func (p *Proof) needsInputs(tx *wire.MsgTx) bool {
	if blockchain.IsCoinBaseTx(tx) {
		return false
	}

	return p.kernel.NeedsInputs(p.def, tx)
}

func (p *Proof) fetch(ctx context.Context,
	txid chainhash.Hash) (*ConfirmedTx, error) {

	if p.source == nil {
		return nil, fmt.Errorf("%w: no tx source for %v",
			ErrAncestorUnavailable, txid)
	}

	parent, err := p.source.FetchTx(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrAncestorUnavailable,
			txid, err)
	}
	if parent == nil || parent.Tx == nil {
		return nil, fmt.Errorf("%w: %v not found",
			ErrAncestorUnavailable, txid)
	}
	if parent.Tx.TxHash() != txid {
		return nil, fmt.Errorf("%w: source returned tx %v for %v",
			ErrInvalidAncestry, parent.Tx.TxHash(), txid)
	}

	log.Tracef("Fetched ancestor %v at height %d", txid, parent.Height)

	return parent, nil
}

func (p *Proof) evaluate(stage *staging, f *frame) {
	result := p.kernel.Apply(p.def, f.tx, p.lookup(stage))

	stage.evaluated[f.txid] = f.height
	for i, qty := range result.Outputs {
		if qty == 0 {
			continue
		}

		op := wire.OutPoint{Hash: f.txid, Index: uint32(i)}
		stage.entries[op] = Entry{
			OutPoint: op,
			Quantity: qty,
			Height:   f.height,
		}
	}

	if result.Kind != kernel.Uncolored {
		log.Debugf("Tx %v is a %v of color %v assigning %d units",
			f.txid, result.Kind, p.def, result.Total())
	}
}

// Rollback drops every entry and evaluated transaction above the given
// height, including all unconfirmed ones.
func (p *Proof) Rollback(height uint32) *Delta {
	delta := &Delta{}
	for op, entry := range p.entries {
		if entry.Height > height {
			delete(p.entries, op)
			delta.Removed = append(delta.Removed, op)
		}
	}
	for txid, h := range p.evaluated {
		if h > height {
			delete(p.evaluated, txid)
		}
	}

	sort.Slice(delta.Removed, func(i, j int) bool {
		return compareOutPoints(delta.Removed[i], delta.Removed[j]) < 0
	})

	log.Debugf("Rolled back color %v to height %d, removed %d entries",
		p.def, height, len(delta.Removed))

	return delta
}
