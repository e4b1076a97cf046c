package color

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// OutPointGenesisJSON is the JSON form of an outpoint genesis point.
type OutPointGenesisJSON struct {
	// OutPoint is the genesis outpoint in txid:index form.
	OutPoint string `json:"outpoint"`

	// Quantity optionally bounds the issued supply.
	Quantity *uint64 `json:"quantity,omitempty"`
}

// ScriptGenesisJSON is the JSON form of a script genesis point. Exactly one
// of the fields must be set.
type ScriptGenesisJSON struct {
	// Script is the hex encoded output script.
	Script string `json:"script,omitempty"`

	// Address is an address on the network the definition is loaded for.
	Address string `json:"address,omitempty"`
}

// DefinitionJSON is the human editable form of a definition. The network is
// not part of the document, it is supplied by whoever loads it.
type DefinitionJSON struct {
	Version         uint8                 `json:"version"`
	OutPointGenesis []OutPointGenesisJSON `json:"outpoint_genesis,omitempty"`
	ScriptGenesis   []ScriptGenesisJSON   `json:"script_genesis,omitempty"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
}

// DecodeDefinitionJSON reads a JSON definition document from r. Addresses are
// decoded for the given network.
func DecodeDefinitionJSON(r io.Reader, params *chaincfg.Params) (*Definition,
	error) {

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc DefinitionJSON
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDefinition, err)
	}

	return doc.Definition(params)
}

// Definition converts the document into a definition for the given network.
func (j *DefinitionJSON) Definition(params *chaincfg.Params) (*Definition,
	error) {

	if j.Version != DefinitionVersion {
		return nil, fmt.Errorf("%w: unknown version %d",
			ErrMalformedDefinition, j.Version)
	}

	var (
		points     []GenesisPoint
		quantities = make(map[wire.OutPoint]uint64)
	)
	for _, g := range j.OutPointGenesis {
		op, err := ParseOutPoint(g.OutPoint)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDefinition,
				err)
		}

		points = append(points, NewOutPointGenesis(op))
		if g.Quantity != nil {
			quantities[op] = *g.Quantity
		}
	}

	for _, g := range j.ScriptGenesis {
		script, err := g.script(params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDefinition,
				err)
		}

		points = append(points, NewScriptGenesis(script))
	}

	return NewDefinition(points, quantities, j.Metadata, params)
}

func (g ScriptGenesisJSON) script(params *chaincfg.Params) ([]byte, error) {
	switch {
	case g.Script != "" && g.Address != "":
		return nil, fmt.Errorf("script genesis with both script and " +
			"address")

	case g.Script != "":
		return hex.DecodeString(g.Script)

	case g.Address != "":
		if params == nil {
			return nil, fmt.Errorf("address %v needs a network",
				g.Address)
		}

		addr, err := btcutil.DecodeAddress(g.Address, params)
		if err != nil {
			return nil, err
		}
		if !addr.IsForNet(params) {
			return nil, fmt.Errorf("address %v is not for %v",
				g.Address, params.Name)
		}

		return txscript.PayToAddrScript(addr)

	default:
		return nil, fmt.Errorf("empty script genesis")
	}
}

// DefinitionToJSON returns the JSON document of a definition. Script genesis
// points are always written as raw scripts.
func DefinitionToJSON(d *Definition) *DefinitionJSON {
	doc := &DefinitionJSON{
		Version:  DefinitionVersion,
		Metadata: d.Metadata(),
	}

	for _, point := range d.GenesisPoints() {
		switch p := point.(type) {
		case *OutPointGenesis:
			entry := OutPointGenesisJSON{
				OutPoint: p.OutPoint.String(),
			}
			if qty, bounded, _ := d.GenesisQuantity(p.OutPoint); bounded {
				qty := qty
				entry.Quantity = &qty
			}
			doc.OutPointGenesis = append(doc.OutPointGenesis, entry)

		case *ScriptGenesis:
			doc.ScriptGenesis = append(
				doc.ScriptGenesis, ScriptGenesisJSON{
					Script: hex.EncodeToString(p.Script),
				},
			)
		}
	}

	return doc
}

// EncodeDefinitionJSON writes the indented JSON document of d to w.
func EncodeDefinitionJSON(w io.Writer, d *Definition) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(DefinitionToJSON(d))
}

// ParseOutPoint parses an outpoint in txid:index form.
func ParseOutPoint(s string) (wire.OutPoint, error) {
	txid, index, ok := strings.Cut(s, ":")
	if !ok {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q is not in "+
			"txid:index form", s)
	}

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return wire.OutPoint{}, err
	}
	if len(txid) != chainhash.MaxHashStringSize {
		return wire.OutPoint{}, fmt.Errorf("invalid txid %q", txid)
	}

	idx, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("invalid output index %q: %w",
			index, err)
	}

	return wire.OutPoint{
		Hash:  *hash,
		Index: uint32(idx),
	}, nil
}
