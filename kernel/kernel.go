package kernel

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightninglabs/smartcolors/color"
)

// Kind describes how the kernel classified a transaction for one color.
type Kind uint8

const (
	// Uncolored means the transaction neither issues nor carries the
	// color.
	Uncolored Kind = iota

	// ScriptGenesis means at least one output pays to a genesis script.
	ScriptGenesis

	// OutPointGenesis means at least one input spends a genesis outpoint.
	OutPointGenesis

	// Transfer means colored inputs were distributed over the outputs.
	Transfer

	// Destroyed means the transaction spent colored inputs without a
	// valid marker, so all of their quantity is gone.
	Destroyed
)

// String returns a human readable name of the kind.
func (k Kind) String() string {
	switch k {
	case Uncolored:
		return "uncolored"
	case ScriptGenesis:
		return "script_genesis"
	case OutPointGenesis:
		return "outpoint_genesis"
	case Transfer:
		return "transfer"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// InputLookup returns the quantity of the color carried by a previous output.
// The second return value is false if the output carries none or is unknown.
type InputLookup func(op wire.OutPoint) (uint64, bool)

// NoInputs is an InputLookup for which no input is colored.
func NoInputs(wire.OutPoint) (uint64, bool) {
	return 0, false
}

// Result is the outcome of applying the kernel to one transaction.
type Result struct {
	// Kind is the classification of the transaction.
	Kind Kind

	// Outputs holds the quantity assigned to each output, in output order.
	Outputs []uint64
}

// Total returns the sum of all output quantities, saturating at the maximum
// uint64.
func (r *Result) Total() uint64 {
	var total uint64
	for _, qty := range r.Outputs {
		total = addSaturating(total, qty)
	}

	return total
}

// IsColored returns true if any output received a quantity.
func (r *Result) IsColored() bool {
	for _, qty := range r.Outputs {
		if qty != 0 {
			return true
		}
	}

	return false
}

// Kernel assigns quantities of a color to the outputs of a transaction. It is
// a pure function of the definition, the transaction and the quantities of
// the spent outputs, and it never fails: transactions it can't make sense of
// simply don't carry the color.
type Kernel struct {
	// Marker recognizes the transfer marker output.
	Marker color.MarkerRecognizer

	// DustThreshold is the threshold output values are unpadded with.
	DustThreshold uint64
}

// New returns a kernel using the protocol marker and dust threshold.
func New() *Kernel {
	return &Kernel{
		Marker:        color.DefaultMarker,
		DustThreshold: color.DustThreshold,
	}
}

// markerState describes the marker outputs of a transaction.
type markerState struct {
	// markers flags every well formed marker output.
	markers []bool

	// found is true if at least one well formed marker exists.
	found bool

	// malformed is true if any output is a malformed marker.
	malformed bool
}

func (k *Kernel) scanMarkers(tx *wire.MsgTx) markerState {
	state := markerState{
		markers: make([]bool, len(tx.TxOut)),
	}
	for i, txOut := range tx.TxOut {
		isMarker, err := k.Marker.IsMarker(txOut)
		switch {
		case err != nil:
			state.malformed = true

		case isMarker:
			state.markers[i] = true
			state.found = true
		}
	}

	return state
}

// candidate returns the quantity an output asks for.
func (k *Kernel) candidate(txOut *wire.TxOut) uint64 {
	return color.UnpadValue(
		color.ValueToQuantity(txOut.Value), k.DustThreshold,
	)
}

// Apply runs the kernel for the given definition over tx. The lookup is asked
// for the quantity carried by every spent output that isn't a genesis
// outpoint.
func (k *Kernel) Apply(def *color.Definition, tx *wire.MsgTx,
	lookup InputLookup) *Result {

	if lookup == nil {
		lookup = NoInputs
	}

	result := &Result{
		Kind:    Uncolored,
		Outputs: make([]uint64, len(tx.TxOut)),
	}

	defer log.Tracef("Applied kernel: %v", newLogClosure(func() string {
		return fmt.Sprintf("color=%v, tx=%v, kind=%v, outputs=%v",
			def.ID(), tx.TxHash(), result.Kind,
			spew.Sdump(result.Outputs))
	}))

	// An output paying to a genesis script issues exactly what its value
	// decodes to. Whatever the inputs carried is not passed on.
	for i, txOut := range tx.TxOut {
		if def.IsGenesisOutput(txOut) {
			result.Kind = ScriptGenesis
			result.Outputs[i] = k.candidate(txOut)
		}
	}
	if result.Kind == ScriptGenesis {
		return result
	}

	var (
		totalIn   uint64
		isGenesis bool
		unbounded bool
	)
	for _, txIn := range tx.TxIn {
		prevOut := txIn.PreviousOutPoint

		qty, bounded, ok := def.GenesisQuantity(prevOut)
		if ok {
			isGenesis = true
			if !bounded {
				unbounded = true
			}
			totalIn = addSaturating(totalIn, qty)

			continue
		}

		if qty, ok := lookup(prevOut); ok {
			totalIn = addSaturating(totalIn, qty)
		}
	}

	markers := k.scanMarkers(tx)

	switch {
	// Spending a genesis outpoint without a quantity bound issues what
	// every output asks for.
	case unbounded:
		result.Kind = OutPointGenesis
		for i, txOut := range tx.TxOut {
			if !markers.markers[i] {
				result.Outputs[i] = k.candidate(txOut)
			}
		}

		return result

	// A bounded genesis is distributed like a transfer, but doesn't need
	// a marker.
	case isGenesis:
		result.Kind = OutPointGenesis

	case totalIn == 0:
		return result

	case !markers.found || markers.malformed:
		result.Kind = Destroyed
		return result

	default:
		result.Kind = Transfer
	}

	remaining := totalIn
	for i, txOut := range tx.TxOut {
		if remaining == 0 {
			break
		}
		if markers.markers[i] {
			continue
		}

		qty := k.candidate(txOut)
		if qty > remaining {
			qty = remaining
		}

		result.Outputs[i] = qty
		remaining -= qty
	}

	return result
}

// NeedsInputs returns true if the result of Apply for tx depends on the
// quantities carried by its inputs. Transactions issuing through a genesis
// script or an unbounded genesis outpoint, and transactions without a well
// formed marker that spend no genesis outpoint, never carry colored inputs
// forward, so their ancestors don't need to be resolved.
func (k *Kernel) NeedsInputs(def *color.Definition, tx *wire.MsgTx) bool {
	for _, txOut := range tx.TxOut {
		if def.IsGenesisOutput(txOut) {
			return false
		}
	}

	var boundedGenesis bool
	for _, txIn := range tx.TxIn {
		_, bounded, ok := def.GenesisQuantity(txIn.PreviousOutPoint)
		if !ok {
			continue
		}
		if !bounded {
			return false
		}

		boundedGenesis = true
	}
	if boundedGenesis {
		return true
	}

	markers := k.scanMarkers(tx)
	return markers.found && !markers.malformed
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}

	return a + b
}
