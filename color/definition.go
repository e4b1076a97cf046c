package color

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/merbinner"
	"github.com/lightningnetwork/lnd/tlv"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	// DefinitionVersion is the only payload version this package knows.
	DefinitionVersion uint8 = 0

	// MaxReservedSize is the maximum size of the reserved TLV section of a
	// definition payload.
	MaxReservedSize = 1 << 16

	// quantitySize is the size of a bounded genesis quantity stored as an
	// outpoint tree value.
	quantitySize = 8
)

const (
	// MetadataName is the metadata key of the human readable name a
	// definition is registered under.
	MetadataName = "name"

	// MetadataDivisibility is the metadata key of the number of decimal
	// places user facing amounts are shown with.
	MetadataDivisibility = "divisibility"
)

var (
	// ErrMalformedDefinition is returned when a definition payload cannot
	// be decoded.
	ErrMalformedDefinition = errors.New("malformed color definition")

	// ErrDuplicateGenesisKey is returned when a definition lists the same
	// genesis point twice.
	ErrDuplicateGenesisKey = errors.New("duplicate genesis key")

	// ErrInvalidReserved is returned when the reserved section of a
	// payload is not a valid TLV stream or carries an even type this
	// version does not understand.
	ErrInvalidReserved = fmt.Errorf("%w: invalid reserved section",
		ErrMalformedDefinition)
)

// ID identifies a color. It is the sha256 hash of the definition payload.
type ID [sha256.Size]byte

// String returns the hex encoded ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID decodes a hex encoded ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid color id length %d", len(b))
	}
	copy(id[:], b)

	return id, nil
}

// Definition is an issuer's declaration of a color: the set of genesis
// outpoints, the set of genesis scripts and free form metadata. Only the
// genesis data is part of the payload and therefore of the ID; metadata and
// network are carried alongside it.
//
// A Definition is immutable.
type Definition struct {
	outPointTree *merbinner.Tree
	scriptTree   *merbinner.Tree

	// reserved is the raw TLV stream of the reserved section.
	reserved      []byte
	reservedTypes tlv.TypeMap

	metadata map[string]string
	params   *chaincfg.Params

	idOnce sync.Once
	id     ID
}

// NewDefinition creates a definition from a list of genesis points. The
// quantities map optionally bounds the supply issued by an outpoint genesis;
// outpoint genesis points without an entry issue whatever their genesis
// transaction assigns.
func NewDefinition(points []GenesisPoint, quantities map[wire.OutPoint]uint64,
	metadata map[string]string, params *chaincfg.Params) (*Definition,
	error) {

	var (
		outPointLeaves []merbinner.Leaf
		scriptLeaves   []merbinner.Leaf
		seen           = make(map[string]struct{}, len(points))
		usedQuantities int
	)
	for _, point := range points {
		key := point.Bytes()
		if _, ok := seen[string(key)]; ok {
			return nil, fmt.Errorf("%w: %v %v", ErrDuplicateGenesisKey,
				point.Type(), point)
		}
		seen[string(key)] = struct{}{}

		switch p := point.(type) {
		case *OutPointGenesis:
			var value []byte
			if qty, ok := quantities[p.OutPoint]; ok {
				if qty == 0 {
					return nil, fmt.Errorf("%w: zero "+
						"quantity for %v",
						ErrMalformedDefinition, p)
				}

				usedQuantities++
				value = encodeQuantity(qty)
			}

			outPointLeaves = append(outPointLeaves, merbinner.Leaf{
				Key:   key,
				Value: value,
			})

		case *ScriptGenesis:
			scriptLeaves = append(scriptLeaves, merbinner.Leaf{
				Key: key,
			})

		default:
			return nil, fmt.Errorf("unknown genesis point %T", point)
		}
	}

	if usedQuantities != len(quantities) {
		return nil, fmt.Errorf("%w: quantity given for outpoint that is "+
			"not a genesis point", ErrMalformedDefinition)
	}

	outPointTree, err := merbinner.New(outPointLeaves)
	if err != nil {
		return nil, err
	}
	scriptTree, err := merbinner.New(scriptLeaves)
	if err != nil {
		return nil, err
	}

	return &Definition{
		outPointTree: outPointTree,
		scriptTree:   scriptTree,
		metadata:     copyMetadata(metadata),
		params:       params,
	}, nil
}

func encodeQuantity(qty uint64) []byte {
	var b [quantitySize]byte
	binary.BigEndian.PutUint64(b[:], qty)
	return b[:]
}

func copyMetadata(metadata map[string]string) map[string]string {
	c := make(map[string]string, len(metadata))
	for k, v := range metadata {
		c[k] = v
	}

	return c
}

// DecodeDefinition parses a definition payload. The payload must be in
// canonical form, which makes Payload return exactly the decoded bytes.
func DecodeDefinition(payload []byte, metadata map[string]string,
	params *chaincfg.Params) (*Definition, error) {

	r := bytes.NewReader(payload)

	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrMalformedDefinition,
			err)
	}
	if version[0] != DefinitionVersion {
		return nil, fmt.Errorf("%w: unknown version %d",
			ErrMalformedDefinition, version[0])
	}

	outPointTree, err := merbinner.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: outpoint tree: %v",
			ErrMalformedDefinition, err)
	}
	err = outPointTree.ForEach(func(l merbinner.Leaf) error {
		return checkGenesisLeaf(l, OutPointGenesisType)
	})
	if err != nil {
		return nil, err
	}

	scriptTree, err := merbinner.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: script tree: %v",
			ErrMalformedDefinition, err)
	}
	err = scriptTree.ForEach(func(l merbinner.Leaf) error {
		return checkGenesisLeaf(l, ScriptGenesisType)
	})
	if err != nil {
		return nil, err
	}

	reserved, err := wire.ReadVarBytes(
		r, 0, MaxReservedSize, "reserved",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: reserved: %v", ErrMalformedDefinition,
			err)
	}
	reservedTypes, err := decodeReserved(reserved)
	if err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedDefinition, r.Len())
	}

	return &Definition{
		outPointTree:  outPointTree,
		scriptTree:    scriptTree,
		reserved:      reserved,
		reservedTypes: reservedTypes,
		metadata:      copyMetadata(metadata),
		params:        params,
	}, nil
}

// checkGenesisLeaf makes sure a decoded tree leaf is a genesis point of the
// expected type with a valid value.
func checkGenesisLeaf(l merbinner.Leaf, expected GenesisType) error {
	point, err := ParseGenesisPoint(l.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDefinition, err)
	}
	if point.Type() != expected {
		return fmt.Errorf("%w: %v genesis in %v tree",
			ErrMalformedDefinition, point.Type(), expected)
	}

	switch {
	case expected == ScriptGenesisType && len(l.Value) != 0:
		return fmt.Errorf("%w: script genesis with value",
			ErrMalformedDefinition)

	case expected == OutPointGenesisType && len(l.Value) != 0 &&
		len(l.Value) != quantitySize:

		return fmt.Errorf("%w: quantity of %d bytes",
			ErrMalformedDefinition, len(l.Value))

	case expected == OutPointGenesisType && len(l.Value) == quantitySize &&
		binary.BigEndian.Uint64(l.Value) == 0:

		return fmt.Errorf("%w: zero genesis quantity",
			ErrMalformedDefinition)
	}

	return nil
}

// decodeReserved parses the reserved TLV stream. No types are defined yet, so
// unknown odd types are kept and unknown even types are rejected.
func decodeReserved(reserved []byte) (tlv.TypeMap, error) {
	if len(reserved) == 0 {
		return nil, nil
	}

	stream, err := tlv.NewStream()
	if err != nil {
		return nil, err
	}

	parsedTypes, err := stream.DecodeWithParsedTypes(
		bytes.NewReader(reserved),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReserved, err)
	}

	for typ := range parsedTypes {
		if typ%2 == 0 {
			return nil, fmt.Errorf("%w: unknown even type %d",
				ErrInvalidReserved, typ)
		}
	}

	return parsedTypes, nil
}

// Encode writes the definition payload to w.
func (d *Definition) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{DefinitionVersion}); err != nil {
		return err
	}
	if err := d.outPointTree.Encode(w); err != nil {
		return err
	}
	if err := d.scriptTree.Encode(w); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, d.reserved)
}

// Payload returns the canonical binary form of the definition.
func (d *Definition) Payload() []byte {
	var b bytes.Buffer

	// Writing to a bytes.Buffer never fails.
	_ = d.Encode(&b)
	return b.Bytes()
}

// ID returns the identity of the color, the sha256 hash of the payload.
func (d *Definition) ID() ID {
	d.idOnce.Do(func() {
		d.id = sha256.Sum256(d.Payload())
	})

	return d.id
}

// Equal returns true if both definitions have the same ID. Metadata is not
// taken into account.
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}

	return d.ID() == other.ID()
}

// IsGenesisOutput returns true if the output pays to one of the genesis
// scripts.
func (d *Definition) IsGenesisOutput(txOut *wire.TxOut) bool {
	if txOut == nil {
		return false
	}

	_, ok := d.scriptTree.Lookup(NewScriptGenesis(txOut.PkScript).Bytes())
	return ok
}

// IsGenesisOutPoint returns true if spending op issues this color.
func (d *Definition) IsGenesisOutPoint(op wire.OutPoint) bool {
	_, ok := d.outPointTree.Lookup(NewOutPointGenesis(op).Bytes())
	return ok
}

// GenesisQuantity returns the quantity issued by spending op. The ok result
// is false if op isn't a genesis outpoint, and bounded is false if the
// definition doesn't limit the issued quantity.
func (d *Definition) GenesisQuantity(op wire.OutPoint) (uint64, bool, bool) {
	value, ok := d.outPointTree.Lookup(NewOutPointGenesis(op).Bytes())
	if !ok {
		return 0, false, false
	}
	if len(value) != quantitySize {
		return 0, false, true
	}

	return binary.BigEndian.Uint64(value), true, true
}

// HasOutPointGenesis returns true if the definition has any outpoint genesis.
func (d *Definition) HasOutPointGenesis() bool {
	return !d.outPointTree.IsEmpty()
}

// GenesisPoints returns all genesis points sorted by ComparePoints.
func (d *Definition) GenesisPoints() []GenesisPoint {
	points := make(
		[]GenesisPoint, 0,
		d.outPointTree.NumLeaves()+d.scriptTree.NumLeaves(),
	)
	collect := func(l merbinner.Leaf) error {
		point, err := ParseGenesisPoint(l.Key)
		if err != nil {
			return err
		}
		points = append(points, point)
		return nil
	}

	// The keys were validated when the trees were built or decoded.
	_ = d.outPointTree.ForEach(collect)
	_ = d.scriptTree.ForEach(collect)

	sort.Slice(points, func(i, j int) bool {
		return ComparePoints(points[i], points[j]) < 0
	})

	return points
}

// OutPointTree returns the tree of genesis outpoints.
func (d *Definition) OutPointTree() *merbinner.Tree {
	return d.outPointTree
}

// ScriptTree returns the tree of genesis scripts.
func (d *Definition) ScriptTree() *merbinner.Tree {
	return d.scriptTree
}

// ReservedTypes returns the unknown odd types found in the reserved section.
func (d *Definition) ReservedTypes() tlv.TypeMap {
	return d.reservedTypes
}

// Params returns the network the definition was loaded for.
func (d *Definition) Params() *chaincfg.Params {
	return d.params
}

// Metadata returns a copy of the metadata.
func (d *Definition) Metadata() map[string]string {
	return copyMetadata(d.metadata)
}

// MetadataKeys returns the metadata keys in sorted order.
func (d *Definition) MetadataKeys() []string {
	keys := maps.Keys(d.metadata)
	slices.Sort(keys)
	return keys
}

// Name returns the name the definition is known by, or the empty string.
func (d *Definition) Name() string {
	return d.metadata[MetadataName]
}

// String returns the name of the definition followed by its ID.
func (d *Definition) String() string {
	if d.Name() == "" {
		return d.ID().String()
	}

	return fmt.Sprintf("%s(%s)", d.Name(), d.ID())
}
