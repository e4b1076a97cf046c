package merbinner

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math/rand"
	"runtime"
	"testing"

	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/stretchr/testify/require"
)

func randLeaves(num int) []Leaf {
	leaves := make([]Leaf, num)
	for i := range leaves {
		leaves[i] = Leaf{
			Key:   test.RandBytes(1 + rand.Intn(40)),
			Value: test.RandBytes(rand.Intn(10)),
		}
	}

	return leaves
}

// keysWithFirstBit returns two keys whose paths differ in the first bit. The
// first returned key goes left, the second goes right.
func keysWithFirstBit(t *testing.T) ([]byte, []byte) {
	var left, right []byte
	for i := 0; i < 256 && (left == nil || right == nil); i++ {
		key := []byte{byte(i)}
		path := sha256.Sum256(key)
		if path[0]&0x80 == 0 && left == nil {
			left = key
		} else if path[0]&0x80 != 0 && right == nil {
			right = key
		}
	}
	require.NotNil(t, left)
	require.NotNil(t, right)

	return left, right
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()

	tree, err := New(nil)
	require.NoError(t, err)

	require.Equal(t, []byte{0x00, 0x00}, tree.Bytes())
	require.Equal(t, Hash(sha256.Sum256([]byte{0, 0})), tree.Hash())
	require.Equal(t, Empty.Hash(), tree.Hash())
	require.True(t, tree.IsEmpty())

	_, ok := tree.Lookup([]byte("anything"))
	require.False(t, ok)

	decoded, err := Parse(tree.Bytes())
	require.NoError(t, err)
	require.Equal(t, 0, decoded.NumLeaves())
}

func TestSingleLeafTree(t *testing.T) {
	t.Parallel()

	tree, err := New([]Leaf{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)

	require.Equal(t, []byte{
		0x01, 0x01, 0x01, 'k', 0x01, 'v',
	}, tree.Bytes())

	value, ok := tree.Lookup([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v"), value)

	_, ok = tree.Lookup([]byte("K"))
	require.False(t, ok)
}

// TestInsertionOrderIndependence asserts that the encoding and hash of a tree
// only depend on its leaf set.
func TestInsertionOrderIndependence(t *testing.T) {
	t.Parallel()

	for _, numLeaves := range []int{2, 3, 10, 100, 500} {
		numLeaves := numLeaves
		t.Run(fmt.Sprintf("%d leaves", numLeaves), func(t *testing.T) {
			t.Parallel()

			leaves := randLeaves(numLeaves)
			tree, err := New(leaves)
			require.NoError(t, err)
			require.Equal(t, numLeaves, tree.NumLeaves())

			for i := 0; i < 5; i++ {
				shuffled := append([]Leaf(nil), leaves...)
				rand.Shuffle(len(shuffled), func(i, j int) {
					shuffled[i], shuffled[j] =
						shuffled[j], shuffled[i]
				})

				other, err := New(shuffled)
				require.NoError(t, err)
				require.Equal(t, tree.Bytes(), other.Bytes())
				require.Equal(t, tree.Hash(), other.Hash())
				require.True(t, tree.Equal(other))
			}

			for _, l := range leaves {
				value, ok := tree.Lookup(l.Key)
				require.True(t, ok)
				require.Equal(t, l.Value, value)
			}
		})
	}
}

func TestTreeOrderIteration(t *testing.T) {
	t.Parallel()

	tree, err := New(randLeaves(50))
	require.NoError(t, err)

	var prev []byte
	err = tree.ForEach(func(l Leaf) error {
		path := sha256.Sum256(l.Key)
		require.Negative(t, bytes.Compare(prev, path[:]))
		prev = path[:]
		return nil
	})
	require.NoError(t, err)
	require.Len(t, tree.Leaves(), 50)

	// An error stops the iteration.
	var visited int
	stop := fmt.Errorf("stop")
	err = tree.ForEach(func(Leaf) error {
		visited++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, visited)
}

func TestDuplicateKey(t *testing.T) {
	t.Parallel()

	_, err := New([]Leaf{
		{Key: []byte("a"), Value: []byte{1}},
		{Key: []byte("b")},
		{Key: []byte("a"), Value: []byte{2}},
	})
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestLeavesAreCopied(t *testing.T) {
	t.Parallel()

	key := []byte("key")
	tree, err := New([]Leaf{{Key: key, Value: []byte("value")}})
	require.NoError(t, err)

	key[0] = 'x'
	_, ok := tree.Lookup([]byte("key"))
	require.True(t, ok)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, numLeaves := range []int{0, 1, 2, 7, 64} {
		tree, err := New(randLeaves(numLeaves))
		require.NoError(t, err)

		decoded, err := Parse(tree.Bytes())
		require.NoError(t, err)
		require.Equal(t, tree.Bytes(), decoded.Bytes())
		require.Equal(t, tree.Hash(), decoded.Hash())
		require.Equal(t, tree.Leaves(), decoded.Leaves())
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	left, right := keysWithFirstBit(t)
	leaf := func(key []byte) []byte {
		return append(
			append([]byte{0x01, byte(len(key))}, key...), 0x00,
		)
	}

	good, err := New([]Leaf{{Key: left}, {Key: right}})
	require.NoError(t, err)

	goodBytes := good.Bytes()
	expected := append(
		append([]byte{0x02, 0x02}, leaf(left)...), leaf(right)...,
	)
	require.Equal(t, expected, goodBytes)

	testCases := []struct {
		name    string
		encoded []byte
	}{{
		name:    "empty input",
		encoded: nil,
	}, {
		name:    "truncated",
		encoded: goodBytes[:len(goodBytes)-2],
	}, {
		name:    "trailing bytes",
		encoded: append(append([]byte(nil), goodBytes...), 0x00),
	}, {
		name:    "count mismatch",
		encoded: append([]byte{0x03}, goodBytes[1:]...),
	}, {
		name:    "count too large",
		encoded: []byte{0xfe, 0xff, 0xff, 0xff, 0xff, 0x00},
	}, {
		name:    "unknown tag",
		encoded: []byte{0x00, 0x03},
	}, {
		name:    "key length overrun",
		encoded: []byte{0x01, 0x01, 0x20, 'k'},
	}, {
		name: "inner node with one leaf",
		encoded: append(
			append([]byte{0x01, 0x02}, leaf(left)...), 0x00,
		),
	}, {
		name: "inner node without leaves",
		encoded: []byte{0x00, 0x02, 0x00, 0x00},
	}, {
		name: "leaf on the wrong path",
		encoded: append(
			append([]byte{0x02, 0x02}, leaf(right)...),
			leaf(left)...,
		),
	}, {
		name: "duplicate key",
		encoded: append(
			append([]byte{0x02, 0x02}, leaf(left)...),
			leaf(left)...,
		),
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.encoded)
			require.ErrorIs(t, err, ErrMalformedTree)
		})
	}
}

// TestDecodeLargeCountSmallInput makes sure a short input declaring the
// maximum leaf count is rejected without allocating for the declared leaves.
// It doesn't run in parallel so the allocation stats only see this decode.
func TestDecodeLargeCountSmallInput(t *testing.T) {
	// MaxLeaves followed by a single empty node.
	encoded := []byte{0xfe, 0x00, 0x10, 0x00, 0x00, 0x00}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	_, err := Parse(encoded)

	runtime.ReadMemStats(&after)

	require.ErrorIs(t, err, ErrMalformedTree)
	require.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
}
