package trie

import (
	"github.com/eth2028/statelessblock/crypto"
	"github.com/eth2028/statelessblock/rlp"
)

// hasher turns a subtree of nodes into either a 32-byte keccak reference or,
// for subtrees small enough to embed, its own raw RLP encoding.
type hasher struct{}

func newHasher() *hasher {
	return &hasher{}
}

// hash returns two views of n: the collapsed form (children replaced by
// their hashes/inline encodings, suitable for RLP-encoding this node) and
// the cached form (children replaced by their already-hashed equivalents,
// suitable for keeping resident in the trie). force always computes a real
// hash even for a sub-32-byte encoding; Trie.Hash sets it for the root so
// callers always get a stable reference, never an inline blob.
func (h *hasher) hash(n node, force bool) (collapsedOut, cachedOut node) {
	if hash, dirty := n.cache(); hash != nil && !dirty {
		return hash, n
	}

	collapsed, cached := h.hashChildren(n)
	stored, err := h.store(collapsed, force)
	if err != nil {
		panic("hasher: " + err.Error())
	}

	if ref, ok := stored.(hashNode); ok {
		switch cn := cached.(type) {
		case *shortNode:
			cn.flags.hash, cn.flags.dirty = ref, false
		case *fullNode:
			cn.flags.hash, cn.flags.dirty = ref, false
		}
	}
	return stored, cached
}

// hashChildren descends into n's children, replacing each with its hashed
// (or inline) form. Leaves (valueNode) and already-resolved hash references
// pass through untouched.
func (h *hasher) hashChildren(n node) (node, node) {
	switch n := n.(type) {
	case *shortNode:
		collapsed, cached := n.copy(), n.copy()
		collapsed.Key = hexToCompact(n.Key)
		if _, isValue := n.Val.(valueNode); !isValue {
			collapsed.Val, cached.Val = h.hash(n.Val, false)
		}
		return collapsed, cached

	case *fullNode:
		collapsed, cached := n.copy(), n.copy()
		for i, child := range n.Children[:16] {
			if child != nil {
				collapsed.Children[i], cached.Children[i] = h.hash(child, false)
			}
		}
		return collapsed, cached

	default:
		return n, n
	}
}

// store RLP-encodes n and returns either the raw encoding (when it fits
// inline, under 32 bytes, and force is false) or its keccak256 hash.
func (h *hasher) store(n node, force bool) (node, error) {
	switch n.(type) {
	case hashNode, valueNode:
		return n, nil
	}

	enc, err := encodeNode(n)
	if err != nil {
		return nil, err
	}
	if !force && len(enc) < 32 {
		return n, nil
	}
	return hashNode(crypto.Keccak256(enc)), nil
}

// encodeNode produces the canonical RLP encoding of a trie node: a
// 2-element list for a shortNode, a 17-element list for a fullNode.
func encodeNode(n node) ([]byte, error) {
	switch n := n.(type) {
	case *shortNode:
		return encodeShortNode(n)
	case *fullNode:
		return encodeFullNode(n)
	case hashNode:
		return []byte(n), nil
	case valueNode:
		return rlp.EncodeToBytes([]byte(n))
	default:
		return nil, nil
	}
}

func encodeShortNode(n *shortNode) ([]byte, error) {
	keyEnc, err := rlp.EncodeToBytes(n.Key)
	if err != nil {
		return nil, err
	}
	valEnc, err := encodeNodeRef(n.Val)
	if err != nil {
		return nil, err
	}
	return rlp.WrapList(append(keyEnc, valEnc...)), nil
}

func encodeFullNode(n *fullNode) ([]byte, error) {
	var payload []byte
	for _, child := range n.Children {
		enc, err := encodeNodeRef(child)
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return rlp.WrapList(payload), nil
}

// encodeNodeRef encodes one slot of a parent node's children list: absent
// slots become the RLP empty string, a value or hash reference becomes an
// RLP string, and an inline child node is written as its own raw encoding.
func encodeNodeRef(n node) ([]byte, error) {
	switch n := n.(type) {
	case nil:
		return []byte{0x80}, nil
	case valueNode:
		return rlp.EncodeToBytes([]byte(n))
	case hashNode:
		return rlp.EncodeToBytes([]byte(n))
	case *shortNode:
		return encodeShortNode(n)
	case *fullNode:
		return encodeFullNode(n)
	default:
		return []byte{0x80}, nil
	}
}
