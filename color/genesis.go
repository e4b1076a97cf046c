package color

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// GenesisType is the one-byte tag written in front of an encoded genesis
// point.
type GenesisType uint8

const (
	// OutPointGenesisType identifies an asset by the outpoint its genesis
	// transaction spends.
	OutPointGenesisType GenesisType = 0x01

	// ScriptGenesisType identifies an asset by the output script its
	// genesis outputs pay to.
	ScriptGenesisType GenesisType = 0x02
)

// String returns a human readable name of the genesis type.
func (t GenesisType) String() string {
	switch t {
	case OutPointGenesisType:
		return "outpoint"
	case ScriptGenesisType:
		return "script"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const (
	// outPointSize is the size of a serialized outpoint: a 32-byte txid
	// followed by a 4-byte little-endian output index.
	outPointSize = chainhash.HashSize + 4
)

var (
	// ErrMalformedGenesisPoint is returned when an encoded genesis point
	// cannot be decoded.
	ErrMalformedGenesisPoint = errors.New("malformed genesis point")
)

// GenesisPoint identifies the point where an asset is issued. It is either an
// OutPointGenesis or a ScriptGenesis; no other implementations exist.
type GenesisPoint interface {
	// Type returns the tag of the genesis point.
	Type() GenesisType

	// Matches returns true if the output at the given outpoint is this
	// genesis point.
	Matches(op wire.OutPoint, txOut *wire.TxOut) bool

	// Encode writes the tagged, length prefixed genesis point to w.
	Encode(w io.Writer) error

	// Bytes returns the encoded genesis point.
	Bytes() []byte

	// String returns a human readable representation.
	String() string

	genesisPoint()
}

// OutPointGenesis is a genesis point that matches a single previous outpoint.
// The transaction spending it is the genesis transaction.
type OutPointGenesis struct {
	OutPoint wire.OutPoint
}

// NewOutPointGenesis returns the genesis point for the given outpoint.
func NewOutPointGenesis(op wire.OutPoint) *OutPointGenesis {
	return &OutPointGenesis{OutPoint: op}
}

// Type returns the tag of the genesis point.
func (g *OutPointGenesis) Type() GenesisType {
	return OutPointGenesisType
}

// Matches returns true if op is the genesis outpoint.
func (g *OutPointGenesis) Matches(op wire.OutPoint, _ *wire.TxOut) bool {
	return g.OutPoint == op
}

// Encode writes the tagged, length prefixed genesis point to w.
func (g *OutPointGenesis) Encode(w io.Writer) error {
	return encodeGenesis(w, OutPointGenesisType, serializeOutPoint(g.OutPoint))
}

// Bytes returns the encoded genesis point.
func (g *OutPointGenesis) Bytes() []byte {
	return genesisBytes(g)
}

// String returns the outpoint in txid:index form.
func (g *OutPointGenesis) String() string {
	return g.OutPoint.String()
}

func (g *OutPointGenesis) genesisPoint() {}

// ScriptGenesis is a genesis point that matches every output paying to the
// exact script.
type ScriptGenesis struct {
	Script []byte
}

// NewScriptGenesis returns the genesis point for the given output script.
func NewScriptGenesis(script []byte) *ScriptGenesis {
	return &ScriptGenesis{
		Script: append([]byte(nil), script...),
	}
}

// Type returns the tag of the genesis point.
func (g *ScriptGenesis) Type() GenesisType {
	return ScriptGenesisType
}

// Matches returns true if the output pays to the genesis script.
func (g *ScriptGenesis) Matches(_ wire.OutPoint, txOut *wire.TxOut) bool {
	if txOut == nil {
		return false
	}

	return bytes.Equal(g.Script, txOut.PkScript)
}

// Encode writes the tagged, length prefixed genesis point to w.
func (g *ScriptGenesis) Encode(w io.Writer) error {
	return encodeGenesis(w, ScriptGenesisType, g.Script)
}

// Bytes returns the encoded genesis point.
func (g *ScriptGenesis) Bytes() []byte {
	return genesisBytes(g)
}

// String returns the hex encoded script.
func (g *ScriptGenesis) String() string {
	return hex.EncodeToString(g.Script)
}

func (g *ScriptGenesis) genesisPoint() {}

func encodeGenesis(w io.Writer, t GenesisType, payload []byte) error {
	if _, err := w.Write([]byte{byte(t)}); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, payload)
}

func genesisBytes(g GenesisPoint) []byte {
	var b bytes.Buffer

	// Writing to a bytes.Buffer never fails.
	_ = g.Encode(&b)
	return b.Bytes()
}

func serializeOutPoint(op wire.OutPoint) []byte {
	var b [outPointSize]byte
	copy(b[:chainhash.HashSize], op.Hash[:])
	binary.LittleEndian.PutUint32(b[chainhash.HashSize:], op.Index)
	return b[:]
}

// DecodeGenesisPoint reads a genesis point from r. If r knows how many bytes
// are left (like a bytes.Reader), payload lengths beyond that are rejected
// before anything is allocated.
func DecodeGenesisPoint(r io.Reader) (GenesisPoint, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, fmt.Errorf("%w: tag: %v", ErrMalformedGenesisPoint,
			err)
	}

	genesisType := GenesisType(tag[0])
	switch genesisType {
	case OutPointGenesisType, ScriptGenesisType:
	default:
		return nil, fmt.Errorf("%w: unknown type %d",
			ErrMalformedGenesisPoint, tag[0])
	}

	length, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: length: %v",
			ErrMalformedGenesisPoint, err)
	}
	if length > math.MaxInt32 {
		return nil, fmt.Errorf("%w: length %d exceeds %d",
			ErrMalformedGenesisPoint, length, math.MaxInt32)
	}
	if lr, ok := r.(interface{ Len() int }); ok {
		if length > uint64(lr.Len()) {
			return nil, fmt.Errorf("%w: length %d exceeds "+
				"remaining %d bytes", ErrMalformedGenesisPoint,
				length, lr.Len())
		}
	}

	// Without knowing the remaining size we read in bounded chunks so a
	// bogus length cannot make us allocate more than is actually there.
	var payload bytes.Buffer
	n, err := io.CopyN(&payload, r, int64(length))
	if err != nil {
		return nil, fmt.Errorf("%w: payload truncated after %d of %d "+
			"bytes", ErrMalformedGenesisPoint, n, length)
	}

	switch genesisType {
	case OutPointGenesisType:
		if payload.Len() != outPointSize {
			return nil, fmt.Errorf("%w: outpoint of %d bytes",
				ErrMalformedGenesisPoint, payload.Len())
		}

		b := payload.Bytes()
		var op wire.OutPoint
		copy(op.Hash[:], b[:chainhash.HashSize])
		op.Index = binary.LittleEndian.Uint32(b[chainhash.HashSize:])

		return NewOutPointGenesis(op), nil

	default:
		return &ScriptGenesis{Script: payload.Bytes()}, nil
	}
}

// ParseGenesisPoint decodes a genesis point from b, which must not contain any
// trailing bytes.
func ParseGenesisPoint(b []byte) (GenesisPoint, error) {
	r := bytes.NewReader(b)
	g, err := DecodeGenesisPoint(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedGenesisPoint, r.Len())
	}

	return g, nil
}

// ComparePoints orders genesis points by their tag first, then outpoints by
// their serialized form and scripts by their raw bytes. It returns -1, 0 or 1.
func ComparePoints(a, b GenesisPoint) int {
	if a.Type() != b.Type() {
		if a.Type() < b.Type() {
			return -1
		}
		return 1
	}

	switch a := a.(type) {
	case *OutPointGenesis:
		return bytes.Compare(
			serializeOutPoint(a.OutPoint),
			serializeOutPoint(b.(*OutPointGenesis).OutPoint),
		)

	case *ScriptGenesis:
		return bytes.Compare(a.Script, b.(*ScriptGenesis).Script)

	default:
		panic(fmt.Sprintf("unknown genesis point %T", a))
	}
}
