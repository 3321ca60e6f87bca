package trie

import (
	"errors"
	"fmt"

	"github.com/eth2028/statelessblock/rlp"
)

var errDecodeInvalid = errors.New("trie: invalid encoded node")

// decodeNode parses the RLP encoding of a single trie node (a 2-element
// shortNode or a 17-element fullNode) read via the shared rlp.Stream
// reader. hash is the reference this node's bytes were fetched by; it is
// stashed in the result so the hasher can recognize the node as unchanged
// without rehashing it.
func decodeNode(hash hashNode, data []byte) (node, error) {
	if len(data) == 0 {
		return nil, errDecodeInvalid
	}

	elems, err := decodeNodeList(data)
	if err != nil {
		return nil, fmt.Errorf("trie decode: %w", err)
	}

	switch len(elems) {
	case 2:
		return decodeShort(hash, elems)
	case 17:
		return decodeFull(hash, elems)
	default:
		return nil, fmt.Errorf("%w: expected 2 or 17 elements, got %d", errDecodeInvalid, len(elems))
	}
}

// decodeNodeList reads the top-level RLP list of a node encoding into its
// raw element slices. String/byte elements are returned as their content
// (nil for the empty string);
// list elements (an inline child node embedded instead of hashed) are
// returned with their header intact, ready to feed back into decodeNode.
func decodeNodeList(data []byte) ([][]byte, error) {
	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}

	var elems [][]byte
	for !s.AtListEnd() {
		kind, _, err := s.Kind()
		if err != nil {
			return nil, err
		}
		var elem []byte
		if kind == rlp.List {
			elem, err = s.Raw()
		} else {
			elem, err = s.Bytes()
			if len(elem) == 0 {
				elem = nil
			}
		}
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	return elems, nil
}

// decodeShort turns a 2-element node list into a shortNode. The key
// determines which: a key carrying the HP terminator means the second
// element is a stored value (leaf); otherwise it is a child reference
// (extension).
func decodeShort(hash hashNode, elems [][]byte) (node, error) {
	key := compactToHex(elems[0])
	if hasTerm(key) {
		return &shortNode{Key: key, Val: valueNode(elems[1]), flags: nodeFlag{hash: hash}}, nil
	}

	child, err := decodeRef(elems[1])
	if err != nil {
		return nil, err
	}
	return &shortNode{Key: key, Val: child, flags: nodeFlag{hash: hash}}, nil
}

// decodeFull turns a 17-element node list into a fullNode: sixteen nibble
// branches plus an optional value embedded at the branch itself.
func decodeFull(hash hashNode, elems [][]byte) (node, error) {
	n := &fullNode{flags: nodeFlag{hash: hash}}
	for i := 0; i < 16; i++ {
		if len(elems[i]) == 0 {
			continue
		}
		child, err := decodeRef(elems[i])
		if err != nil {
			return nil, err
		}
		n.Children[i] = child
	}
	if len(elems[16]) > 0 {
		n.Children[16] = valueNode(elems[16])
	}
	return n, nil
}

// decodeRef resolves one child slot of a node: empty stays nil, a 32-byte
// string is a hash reference left unresolved, anything else is an inline
// node small enough to embed directly and is decoded recursively.
func decodeRef(data []byte) (node, error) {
	switch {
	case len(data) == 0:
		return nil, nil
	case len(data) == 32:
		return hashNode(data), nil
	default:
		return decodeNode(nil, data)
	}
}
