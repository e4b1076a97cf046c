package color

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// MarkerMagic is the data pushed by a transfer marker output.
	MarkerMagic = []byte("SMARTASS")

	// ErrMalformedMarker is returned for a null-data output that claims to
	// be a marker but is not exactly a marker script.
	ErrMalformedMarker = errors.New("malformed marker output")
)

// MarkerRecognizer decides whether an output is the null-data marker that
// flags a transaction as a color transfer.
type MarkerRecognizer interface {
	// IsMarker returns true if the output is a well formed marker. An
	// output that looks like a marker but is malformed returns
	// ErrMalformedMarker.
	IsMarker(txOut *wire.TxOut) (bool, error)
}

// MarkerScript returns the output script of a transfer marker: OP_RETURN
// followed by a single push of MarkerMagic.
func MarkerScript() ([]byte, error) {
	return txscript.NullDataScript(MarkerMagic)
}

// NewMarkerOutput returns a zero value transfer marker output.
func NewMarkerOutput() (*wire.TxOut, error) {
	script, err := MarkerScript()
	if err != nil {
		return nil, err
	}

	return wire.NewTxOut(0, script), nil
}

// NullDataMarker recognizes the OP_RETURN <magic> marker.
type NullDataMarker struct {
	// Magic is the exact data the marker pushes.
	Magic []byte
}

// DefaultMarker recognizes markers carrying MarkerMagic.
var DefaultMarker MarkerRecognizer = &NullDataMarker{Magic: MarkerMagic}

// IsMarker returns true if the output script is OP_RETURN followed by exactly
// one push of the magic. Null-data outputs whose first push only starts with
// the magic, that carry more pushes or that don't parse are reported as
// malformed markers. Any other output is not a marker.
func (m *NullDataMarker) IsMarker(txOut *wire.TxOut) (bool, error) {
	if txOut == nil {
		return false, nil
	}

	script := txOut.PkScript
	if len(script) == 0 || script[0] != txscript.OP_RETURN {
		return false, nil
	}

	const scriptVersion = 0
	tokenizer := txscript.MakeScriptTokenizer(scriptVersion, script[1:])
	if !tokenizer.Next() {
		// Either a bare OP_RETURN or a broken first push. The latter
		// is only a malformed marker if it carries the magic.
		if tokenizer.Err() != nil && bytes.Contains(script, m.Magic) {
			return false, ErrMalformedMarker
		}

		return false, nil
	}

	data := tokenizer.Data()
	if !bytes.HasPrefix(data, m.Magic) {
		return false, nil
	}

	switch {
	case len(data) != len(m.Magic):
		return false, ErrMalformedMarker

	case tokenizer.Next() || tokenizer.Err() != nil:
		return false, ErrMalformedMarker
	}

	return true, nil
}
