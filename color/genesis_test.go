package color

import (
	"bytes"
	"io"
	"math"
	"sort"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/stretchr/testify/require"
)

func TestGenesisPointEncoding(t *testing.T) {
	t.Parallel()

	op := test.RandOutPoint()
	script := test.RandP2WPKHScript(t)

	testCases := []struct {
		name  string
		point GenesisPoint
	}{{
		name:  "outpoint",
		point: NewOutPointGenesis(op),
	}, {
		name:  "script",
		point: NewScriptGenesis(script),
	}, {
		name:  "empty script",
		point: NewScriptGenesis(nil),
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := tc.point.Bytes()
			require.Equal(t, byte(tc.point.Type()), b[0])

			decoded, err := ParseGenesisPoint(b)
			require.NoError(t, err)
			require.Equal(t, tc.point.Type(), decoded.Type())
			require.Equal(t, b, decoded.Bytes())
			require.Zero(t, ComparePoints(tc.point, decoded))
		})
	}

	// An outpoint genesis is the tag, a one byte length and 36 bytes.
	b := NewOutPointGenesis(op).Bytes()
	require.Len(t, b, 1+1+outPointSize)
	require.Equal(t, byte(outPointSize), b[1])
	require.Equal(t, op.Hash[:], b[2:34])
}

func TestGenesisPointMatches(t *testing.T) {
	t.Parallel()

	op := test.RandOutPoint()
	txOut := test.RandTxOut(t, 1000)

	opGenesis := NewOutPointGenesis(op)
	require.True(t, opGenesis.Matches(op, txOut))
	require.False(t, opGenesis.Matches(test.RandOutPoint(), txOut))

	scriptGenesis := NewScriptGenesis(txOut.PkScript)
	require.True(t, scriptGenesis.Matches(test.RandOutPoint(), txOut))
	require.False(t, scriptGenesis.Matches(op, test.RandTxOut(t, 1000)))
	require.False(t, scriptGenesis.Matches(op, nil))
}

func TestDecodeGenesisPointMalformed(t *testing.T) {
	t.Parallel()

	var hugeLength bytes.Buffer
	hugeLength.WriteByte(byte(ScriptGenesisType))
	require.NoError(t, wire.WriteVarInt(&hugeLength, 0, math.MaxInt32+1))

	var overrun bytes.Buffer
	overrun.WriteByte(byte(ScriptGenesisType))
	require.NoError(t, wire.WriteVarInt(&overrun, 0, 100))
	overrun.Write([]byte{1, 2, 3})

	shortOutPoint := append(
		[]byte{byte(OutPointGenesisType), 3}, []byte{1, 2, 3}...,
	)

	testCases := []struct {
		name    string
		encoded []byte
	}{{
		name:    "empty",
		encoded: nil,
	}, {
		name:    "unknown tag",
		encoded: []byte{0x03, 0x00},
	}, {
		name:    "zero tag",
		encoded: []byte{0x00, 0x00},
	}, {
		name:    "missing length",
		encoded: []byte{byte(ScriptGenesisType)},
	}, {
		name:    "length above max int32",
		encoded: hugeLength.Bytes(),
	}, {
		name:    "length beyond buffer",
		encoded: overrun.Bytes(),
	}, {
		name:    "short outpoint",
		encoded: shortOutPoint,
	}, {
		name: "trailing bytes",
		encoded: append(
			NewScriptGenesis([]byte{0x51}).Bytes(), 0x00,
		),
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseGenesisPoint(tc.encoded)
			require.ErrorIs(t, err, ErrMalformedGenesisPoint)
		})
	}

	// A reader that doesn't know its length still fails cleanly on a
	// truncated payload.
	_, err := DecodeGenesisPoint(io.MultiReader(
		bytes.NewReader(overrun.Bytes()),
	))
	require.ErrorIs(t, err, ErrMalformedGenesisPoint)
}

func TestComparePoints(t *testing.T) {
	t.Parallel()

	opA := wire.OutPoint{Index: 1}
	opB := wire.OutPoint{Index: 2}
	opA.Hash[0] = 1
	opB.Hash[0] = 1

	points := []GenesisPoint{
		NewScriptGenesis([]byte{0x02}),
		NewOutPointGenesis(opB),
		NewScriptGenesis([]byte{0x01, 0xff}),
		NewOutPointGenesis(opA),
	}
	sort.Slice(points, func(i, j int) bool {
		return ComparePoints(points[i], points[j]) < 0
	})

	require.Equal(t, []GenesisPoint{
		NewOutPointGenesis(opA),
		NewOutPointGenesis(opB),
		NewScriptGenesis([]byte{0x01, 0xff}),
		NewScriptGenesis([]byte{0x02}),
	}, points)

	require.Equal(t, 1, ComparePoints(points[1], points[0]))
	require.Equal(t, -1, ComparePoints(points[1], points[2]))
}
