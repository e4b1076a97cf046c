package merbinner

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// hashSize is the size of the leaf paths and of the tree hash.
	hashSize = sha256.Size

	// MaxDepth is the maximum depth of a node in the tree. A leaf path has
	// exactly this many bits.
	MaxDepth = hashSize * 8
)

// NodeType is the tag written in front of every encoded node.
type NodeType uint8

const (
	// EmptyNodeType marks an empty subtree.
	EmptyNodeType NodeType = 0x00

	// LeafNodeType marks a single key/value pair.
	LeafNodeType NodeType = 0x01

	// InnerNodeType marks a branch with a left (bit 0) and a right (bit 1)
	// child.
	InnerNodeType NodeType = 0x02
)

// Hash is the content hash of a tree.
type Hash [hashSize]byte

// String returns a Hash as a hex-encoded string.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Leaf is a key/value pair stored in the tree.
type Leaf struct {
	Key   []byte
	Value []byte
}

// Copy returns a deep copy of the leaf.
func (l Leaf) Copy() Leaf {
	return Leaf{
		Key:   append([]byte(nil), l.Key...),
		Value: append([]byte(nil), l.Value...),
	}
}

// leafPath returns the path of the given key within the tree.
func leafPath(key []byte) [hashSize]byte {
	return sha256.Sum256(key)
}

// bitIndex returns the bit at position idx of the path, counting from the most
// significant bit of the first byte.
func bitIndex(idx int, path *[hashSize]byte) byte {
	byteVal := path[idx/8]
	return (byteVal >> (7 - uint(idx%8))) & 1
}

// setBit returns a copy of path with the bit at position idx set.
func setBit(idx int, path [hashSize]byte) [hashSize]byte {
	path[idx/8] |= 1 << (7 - uint(idx%8))
	return path
}

// node is one of emptyNode, *leafNode or *innerNode.
type node interface {
	nodeType() NodeType

	// numLeaves returns the number of leaves below and including this
	// node.
	numLeaves() int
}

type emptyNode struct{}

func (emptyNode) nodeType() NodeType { return EmptyNodeType }

func (emptyNode) numLeaves() int { return 0 }

type leafNode struct {
	Leaf
	path [hashSize]byte
}

func newLeafNode(l Leaf) *leafNode {
	return &leafNode{
		Leaf: l,
		path: leafPath(l.Key),
	}
}

func (*leafNode) nodeType() NodeType { return LeafNodeType }

func (*leafNode) numLeaves() int { return 1 }

type innerNode struct {
	left  node
	right node
	count int
}

func newInnerNode(left, right node) *innerNode {
	return &innerNode{
		left:  left,
		right: right,
		count: left.numLeaves() + right.numLeaves(),
	}
}

func (*innerNode) nodeType() NodeType { return InnerNodeType }

func (n *innerNode) numLeaves() int { return n.count }
