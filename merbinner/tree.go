package merbinner

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicateKey is returned when a tree is built from a leaf set that
	// contains the same key twice.
	ErrDuplicateKey = errors.New("merbinner: duplicate key")

	// ErrTooManyLeaves is returned when a tree would hold more than
	// MaxLeaves leaves.
	ErrTooManyLeaves = errors.New("merbinner: too many leaves")
)

// Tree is an immutable binary trie over a set of key/value pairs. A leaf lives
// at the path given by the sha256 hash of its key, and the tree branches at
// depth d on bit d of that path. The shape of the tree only depends on the set
// of keys, so two trees built from the same leaves in any order are identical.
//
// A subtree without leaves is an empty node, a subtree with exactly one leaf is
// a leaf node and every other subtree is an inner node.
type Tree struct {
	root node

	encodeOnce sync.Once
	encoded    []byte

	hashOnce sync.Once
	hash     Hash
}

// Empty is the tree without any leaves.
var Empty = &Tree{root: emptyNode{}}

// New builds a tree from the given leaves. The leaves are copied, so the caller
// may reuse the passed slices.
func New(leaves []Leaf) (*Tree, error) {
	if len(leaves) > MaxLeaves {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyLeaves,
			len(leaves), MaxLeaves)
	}

	nodes := make([]*leafNode, 0, len(leaves))
	seen := make(map[string]struct{}, len(leaves))
	for _, l := range leaves {
		if len(l.Key) > MaxKeySize {
			return nil, fmt.Errorf("merbinner: key of %d bytes "+
				"exceeds max of %d", len(l.Key), MaxKeySize)
		}
		if len(l.Value) > MaxValueSize {
			return nil, fmt.Errorf("merbinner: value of %d bytes "+
				"exceeds max of %d", len(l.Value), MaxValueSize)
		}

		if _, ok := seen[string(l.Key)]; ok {
			return nil, fmt.Errorf("%w: %x", ErrDuplicateKey, l.Key)
		}
		seen[string(l.Key)] = struct{}{}

		nodes = append(nodes, newLeafNode(l.Copy()))
	}

	sort.Slice(nodes, func(i, j int) bool {
		return bytes.Compare(nodes[i].path[:], nodes[j].path[:]) < 0
	})

	root, err := build(nodes, 0)
	if err != nil {
		return nil, err
	}

	return &Tree{root: root}, nil
}

// build creates the subtree for the given leaves, which must be sorted by path
// and share the first depth bits of their paths.
func build(leaves []*leafNode, depth int) (node, error) {
	switch len(leaves) {
	case 0:
		return emptyNode{}, nil

	case 1:
		return leaves[0], nil
	}

	// Distinct keys with the same path would make us branch forever.
	if depth >= MaxDepth {
		return nil, fmt.Errorf("%w: path collision", ErrDuplicateKey)
	}

	// Since the leaves are sorted, all leaves going left come first.
	split := sort.Search(len(leaves), func(i int) bool {
		return bitIndex(depth, &leaves[i].path) == 1
	})

	left, err := build(leaves[:split], depth+1)
	if err != nil {
		return nil, err
	}
	right, err := build(leaves[split:], depth+1)
	if err != nil {
		return nil, err
	}

	return newInnerNode(left, right), nil
}

// NumLeaves returns the number of leaves in the tree.
func (t *Tree) NumLeaves() int {
	return t.root.numLeaves()
}

// IsEmpty returns true if the tree holds no leaves.
func (t *Tree) IsEmpty() bool {
	return t.NumLeaves() == 0
}

// Lookup returns the value stored for the exact key, if any.
func (t *Tree) Lookup(key []byte) ([]byte, bool) {
	path := leafPath(key)

	current := t.root
	for depth := 0; ; depth++ {
		switch n := current.(type) {
		case emptyNode:
			return nil, false

		case *leafNode:
			if !bytes.Equal(n.Key, key) {
				return nil, false
			}

			return n.Value, true

		case *innerNode:
			if bitIndex(depth, &path) == 0 {
				current = n.left
			} else {
				current = n.right
			}

		default:
			return nil, false
		}
	}
}

// ForEach calls fn for every leaf in tree order. Iteration stops at the first
// error, which is returned.
func (t *Tree) ForEach(fn func(Leaf) error) error {
	return walk(t.root, fn)
}

func walk(n node, fn func(Leaf) error) error {
	switch n := n.(type) {
	case *leafNode:
		return fn(n.Leaf)

	case *innerNode:
		if err := walk(n.left, fn); err != nil {
			return err
		}

		return walk(n.right, fn)
	}

	return nil
}

// Leaves returns a copy of all leaves in tree order.
func (t *Tree) Leaves() []Leaf {
	leaves := make([]Leaf, 0, t.NumLeaves())
	_ = t.ForEach(func(l Leaf) error {
		leaves = append(leaves, l.Copy())
		return nil
	})

	return leaves
}

// Bytes returns the canonical encoding of the tree.
func (t *Tree) Bytes() []byte {
	t.encodeOnce.Do(func() {
		var b bytes.Buffer

		// Writing to a bytes.Buffer never fails.
		_ = t.Encode(&b)
		t.encoded = b.Bytes()
	})

	return append([]byte(nil), t.encoded...)
}

// Hash returns the sha256 hash of the canonical encoding of the tree.
func (t *Tree) Hash() Hash {
	t.hashOnce.Do(func() {
		t.hash = sha256.Sum256(t.Bytes())
	})

	return t.hash
}

// Equal returns true if both trees hold the same leaves.
func (t *Tree) Equal(other *Tree) bool {
	if other == nil {
		return false
	}

	return t.Hash() == other.Hash()
}
