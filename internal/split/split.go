package split

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Node tags, shared between the binary and the textual encodings.
const (
	opLeaf       = 'N'
	opHorizontal = 'H'
	opVertical   = 'V'
)

var (
	ErrTreeTruncated  = errors.New("split tree truncated")
	ErrTreeTrailing   = errors.New("trailing bytes after split tree")
	ErrBadSplitOffset = errors.New("split offset outside rectangle")
)

// Node is one vertex of a split tree. Leaves become virtual outputs;
// H and V nodes cut the current rectangle At pixels from its top or left
// edge respectively.
type Node struct {
	Op     byte
	At     uint32
	First  *Node
	Second *Node
}

// Leaf returns a node that keeps the current rectangle whole.
func Leaf() *Node {
	return &Node{Op: opLeaf}
}

// Horizontal cuts the rectangle at pixels from its top edge.
func Horizontal(at uint32, top, bottom *Node) *Node {
	return &Node{Op: opHorizontal, At: at, First: top, Second: bottom}
}

// Vertical cuts the rectangle at pixels from its left edge.
func Vertical(at uint32, left, right *Node) *Node {
	return &Node{Op: opVertical, At: at, First: left, Second: right}
}

// Decode parses the binary tree encoding used in configuration records:
// 'N' is a leaf, 'H' and 'V' carry a little-endian u32 offset followed by
// both subtrees.
func Decode(b []byte) (*Node, error) {
	node, rest, err := decode(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrTreeTrailing
	}
	return node, nil
}

func decode(b []byte) (*Node, []byte, error) {
	if len(b) == 0 {
		return nil, nil, ErrTreeTruncated
	}

	switch b[0] {
	case opLeaf:
		return Leaf(), b[1:], nil

	case opHorizontal, opVertical:
		if len(b) < 5 {
			return nil, nil, ErrTreeTruncated
		}
		node := &Node{
			Op: b[0],
			At: binary.LittleEndian.Uint32(b[1:5]),
		}
		var err error
		node.First, b, err = decode(b[5:])
		if err != nil {
			return nil, nil, err
		}
		node.Second, b, err = decode(b)
		if err != nil {
			return nil, nil, err
		}
		return node, b, nil

	default:
		return nil, nil, fmt.Errorf("unknown split tree tag %q", b[0])
	}
}

// Encode serializes the tree into the binary form Decode accepts.
func Encode(n *Node) []byte {
	return appendNode(nil, n)
}

func appendNode(b []byte, n *Node) []byte {
	b = append(b, n.Op)
	if n.Op == opLeaf {
		return b
	}
	b = binary.LittleEndian.AppendUint32(b, n.At)
	b = appendNode(b, n.First)
	return appendNode(b, n.Second)
}

// Parse reads the textual prefix form used on the command line: "N"
// keeps the rectangle whole, "H <px> <top> <bottom>" and
// "V <px> <left> <right>" cut it. Example: "V 960 H 540 N N N".
func Parse(s string) (*Node, error) {
	node, rest, err := parse(strings.Fields(s))
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing tokens after split description: %q", strings.Join(rest, " "))
	}
	return node, nil
}

func parse(fields []string) (*Node, []string, error) {
	if len(fields) == 0 {
		return nil, nil, errors.New("unexpected end of split description")
	}

	switch strings.ToUpper(fields[0]) {
	case "N":
		return Leaf(), fields[1:], nil

	case "H", "V":
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("%q needs a pixel offset", fields[0])
		}
		at, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid split offset %q", fields[1])
		}

		node := &Node{
			Op: strings.ToUpper(fields[0])[0],
			At: uint32(at),
		}
		node.First, fields, err = parse(fields[2:])
		if err != nil {
			return nil, nil, err
		}
		node.Second, fields, err = parse(fields)
		if err != nil {
			return nil, nil, err
		}
		return node, fields, nil

	default:
		return nil, nil, fmt.Errorf("unknown split tree token %q", fields[0])
	}
}

// String renders the tree in the form Parse reads.
func (n *Node) String() string {
	if n.Op == opLeaf {
		return "N"
	}
	return fmt.Sprintf("%c %d %s %s", n.Op, n.At, n.First, n.Second)
}

// Leaves counts the virtual outputs the tree would produce.
func Leaves(n *Node) int {
	if n.Op == opLeaf {
		return 1
	}
	return Leaves(n.First) + Leaves(n.Second)
}

// Region is one rectangle emitted by a tree walk, relative to the
// rectangle the walk started from.
type Region struct {
	X      uint32
	Y      uint32
	Width  uint32
	Height uint32
}

// Walk flattens the tree into sub-regions of a width x height rectangle.
// Regions come out depth first, top/left child before bottom/right, and
// that order is stable: virtual outputs are numbered by it.
func Walk(width, height uint32, tree *Node) ([]Region, error) {
	return walk(nil, Region{Width: width, Height: height}, tree)
}

func walk(acc []Region, r Region, n *Node) ([]Region, error) {
	switch n.Op {
	case opLeaf:
		return append(acc, r), nil

	case opHorizontal:
		if n.At == 0 || n.At >= r.Height {
			return nil, fmt.Errorf("%w: H at %d within height %d", ErrBadSplitOffset, n.At, r.Height)
		}
		acc, err := walk(acc, Region{X: r.X, Y: r.Y, Width: r.Width, Height: n.At}, n.First)
		if err != nil {
			return nil, err
		}
		return walk(acc, Region{X: r.X, Y: r.Y + n.At, Width: r.Width, Height: r.Height - n.At}, n.Second)

	case opVertical:
		if n.At == 0 || n.At >= r.Width {
			return nil, fmt.Errorf("%w: V at %d within width %d", ErrBadSplitOffset, n.At, r.Width)
		}
		acc, err := walk(acc, Region{X: r.X, Y: r.Y, Width: n.At, Height: r.Height}, n.First)
		if err != nil {
			return nil, err
		}
		return walk(acc, Region{X: r.X + n.At, Y: r.Y, Width: r.Width - n.At, Height: r.Height}, n.Second)

	default:
		return nil, fmt.Errorf("unknown split tree tag %q", n.Op)
	}
}
