package merbinner

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// MaxLeaves is the maximum number of leaves a tree may hold.
	MaxLeaves = 1 << 20

	// MaxKeySize is the maximum size of a single key.
	MaxKeySize = 1 << 16

	// MaxValueSize is the maximum size of a single value.
	MaxValueSize = 1 << 16
)

var (
	// ErrMalformedTree is returned when an encoded tree cannot be decoded
	// or is not in canonical form.
	ErrMalformedTree = errors.New("merbinner: malformed tree")
)

// Encode writes the canonical encoding of the tree to w: the number of leaves
// as a BigSize integer followed by the nodes in depth-first order.
func (t *Tree) Encode(w io.Writer) error {
	var buf [8]byte
	err := tlv.WriteVarInt(w, uint64(t.NumLeaves()), &buf)
	if err != nil {
		return err
	}

	return encodeNode(w, t.root, &buf)
}

func encodeNode(w io.Writer, n node, buf *[8]byte) error {
	if _, err := w.Write([]byte{byte(n.nodeType())}); err != nil {
		return err
	}

	switch n := n.(type) {
	case *leafNode:
		if err := writeVarBytes(w, n.Key, buf); err != nil {
			return err
		}

		return writeVarBytes(w, n.Value, buf)

	case *innerNode:
		if err := encodeNode(w, n.left, buf); err != nil {
			return err
		}

		return encodeNode(w, n.right, buf)
	}

	return nil
}

func writeVarBytes(w io.Writer, b []byte, buf *[8]byte) error {
	if err := tlv.WriteVarInt(w, uint64(len(b)), buf); err != nil {
		return err
	}

	_, err := w.Write(b)
	return err
}

// Decode reads a tree from r. Only canonical encodings are accepted, so
// re-encoding a decoded tree yields exactly the bytes that were read.
func Decode(r io.Reader) (*Tree, error) {
	var buf [8]byte
	count, err := tlv.ReadVarInt(r, &buf)
	if err != nil {
		return nil, malformed("leaf count: %v", err)
	}
	if count > MaxLeaves {
		return nil, malformed("leaf count %d exceeds max of %d", count,
			MaxLeaves)
	}

	// The count is untrusted until the leaves were read, so the key set
	// grows with the leaves actually decoded.
	d := &decoder{
		r:    r,
		seen: make(map[string]struct{}),
	}
	root, err := d.decodeNode(0, [hashSize]byte{})
	if err != nil {
		return nil, err
	}

	if uint64(root.numLeaves()) != count {
		return nil, malformed("leaf count %d does not match %d decoded "+
			"leaves", count, root.numLeaves())
	}

	return &Tree{root: root}, nil
}

// Parse decodes a tree from b, which must not contain any trailing bytes.
func Parse(b []byte) (*Tree, error) {
	r := bytes.NewReader(b)
	tree, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, malformed("%d trailing bytes", r.Len())
	}

	return tree, nil
}

type decoder struct {
	r    io.Reader
	buf  [8]byte
	seen map[string]struct{}
}

// decodeNode decodes the node at the given depth whose position in the tree is
// described by the first depth bits of prefix.
func (d *decoder) decodeNode(depth int, prefix [hashSize]byte) (node,
	error) {

	if depth > MaxDepth {
		return nil, malformed("depth exceeds %d", MaxDepth)
	}

	var tag [1]byte
	if _, err := io.ReadFull(d.r, tag[:]); err != nil {
		return nil, malformed("node tag: %v", err)
	}

	switch NodeType(tag[0]) {
	case EmptyNodeType:
		return emptyNode{}, nil

	case LeafNodeType:
		key, err := d.readVarBytes(MaxKeySize)
		if err != nil {
			return nil, malformed("leaf key: %v", err)
		}
		value, err := d.readVarBytes(MaxValueSize)
		if err != nil {
			return nil, malformed("leaf value: %v", err)
		}

		if _, ok := d.seen[string(key)]; ok {
			return nil, malformed("duplicate key %x", key)
		}
		d.seen[string(key)] = struct{}{}
		if len(d.seen) > MaxLeaves {
			return nil, malformed("more than %d leaves", MaxLeaves)
		}

		leaf := newLeafNode(Leaf{Key: key, Value: value})
		for i := 0; i < depth; i++ {
			if bitIndex(i, &leaf.path) != bitIndex(i, &prefix) {
				return nil, malformed("leaf %x at wrong position",
					key)
			}
		}

		return leaf, nil

	case InnerNodeType:
		if depth == MaxDepth {
			return nil, malformed("inner node at max depth")
		}

		left, err := d.decodeNode(depth+1, prefix)
		if err != nil {
			return nil, err
		}
		right, err := d.decodeNode(depth+1, setBit(depth, prefix))
		if err != nil {
			return nil, err
		}

		inner := newInnerNode(left, right)
		if inner.numLeaves() < 2 {
			return nil, malformed("inner node with %d leaves",
				inner.numLeaves())
		}

		return inner, nil

	default:
		return nil, malformed("unknown node type %d", tag[0])
	}
}

func (d *decoder) readVarBytes(maxSize uint64) ([]byte, error) {
	size, err := tlv.ReadVarInt(d.r, &d.buf)
	if err != nil {
		return nil, err
	}
	if size > maxSize {
		return nil, fmt.Errorf("length %d exceeds max of %d", size,
			maxSize)
	}

	// Bound the allocation by the bytes actually available when we know
	// them.
	if lr, ok := d.r.(interface{ Len() int }); ok {
		if size > uint64(lr.Len()) {
			return nil, fmt.Errorf("length %d exceeds remaining "+
				"%d bytes", size, lr.Len())
		}
	}

	b := make([]byte, size)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, err
	}

	return b, nil
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedTree, fmt.Sprintf(format,
		args...))
}
