package trie

import (
	"bytes"
	"errors"

	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/crypto"
	"github.com/eth2028/statelessblock/rlp"
)

// ErrNotFound is returned when a key is not found in the trie.
var ErrNotFound = errors.New("trie: key not found")

// emptyRoot is the root hash of a trie with no entries: keccak256 of the
// RLP encoding of the empty string (0x80).
var emptyRoot = func() types.Hash {
	enc, _ := rlp.EncodeToBytes([]byte{})
	return crypto.Keccak256Hash(enc)
}()

// Trie is an in-memory Merkle-Patricia trie over hex-nibble keys. It does
// not resolve hashNode references on its own — callers that need to read
// a trie built from partial data go through ResolvableTrie instead.
type Trie struct {
	root node
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{}
}

// Get looks up key, returning ErrNotFound if it has no entry.
func (t *Trie) Get(key []byte) ([]byte, error) {
	val, ok := get(t.root, keybytesToHex(key), 0)
	if !ok {
		return nil, ErrNotFound
	}
	return val, nil
}

func get(n node, key []byte, pos int) ([]byte, bool) {
	switch n := n.(type) {
	case nil:
		return nil, false
	case valueNode:
		return []byte(n), true
	case *shortNode:
		rest := key[pos:]
		if len(rest) < len(n.Key) || !bytes.Equal(n.Key, rest[:len(n.Key)]) {
			return nil, false
		}
		return get(n.Val, key, pos+len(n.Key))
	case *fullNode:
		if pos >= len(key) {
			return get(n.Children[16], key, pos)
		}
		return get(n.Children[key[pos]], key, pos+1)
	case hashNode:
		// An in-memory Trie never resolves unknown references; only
		// ResolvableTrie does that, against a NodeDatabase.
		return nil, false
	default:
		return nil, false
	}
}

// Put inserts or overwrites the value at key. An empty value deletes key
// instead, matching Ethereum's convention that zero-value storage slots
// don't exist in the trie.
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	root, err := insert(t.root, keybytesToHex(key), valueNode(value))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func insert(n node, key []byte, value node) (node, error) {
	if len(key) == 0 {
		if existing, ok := n.(valueNode); ok && bytes.Equal(existing, value.(valueNode)) {
			return existing, nil
		}
		return value, nil
	}

	switch n := n.(type) {
	case nil:
		return &shortNode{Key: key, Val: value, flags: nodeFlag{dirty: true}}, nil
	case *shortNode:
		return insertIntoShort(n, key, value)
	case *fullNode:
		return insertIntoFull(n, key, value)
	case hashNode:
		return nil, errors.New("trie: cannot insert below an unresolved hash node")
	default:
		return nil, errors.New("trie: unknown node type")
	}
}

// insertIntoShort either extends n's existing path (key fully matches n.Key)
// or splits it into a branch at the first differing nibble.
func insertIntoShort(n *shortNode, key, value node) (node, error) {
	k := key.([]byte)
	match := prefixLen(k, n.Key)
	if match == len(n.Key) {
		child, err := insert(n.Val, k[match:], value)
		if err != nil {
			return nil, err
		}
		return &shortNode{Key: n.Key, Val: child, flags: nodeFlag{dirty: true}}, nil
	}

	branch := &fullNode{flags: nodeFlag{dirty: true}}
	oldBranch, err := insert(nil, n.Key[match+1:], n.Val)
	if err != nil {
		return nil, err
	}
	branch.Children[n.Key[match]] = oldBranch

	newBranch, err := insert(nil, k[match+1:], value)
	if err != nil {
		return nil, err
	}
	branch.Children[k[match]] = newBranch

	if match == 0 {
		return branch, nil
	}
	return &shortNode{Key: k[:match], Val: branch, flags: nodeFlag{dirty: true}}, nil
}

func insertIntoFull(n *fullNode, key, value node) (node, error) {
	k := key.([]byte)
	nn := n.copy()
	nn.flags = nodeFlag{dirty: true}
	child, err := insert(n.Children[k[0]], k[1:], value)
	if err != nil {
		return nil, err
	}
	nn.Children[k[0]] = child
	return nn, nil
}

// Delete removes key from the trie. A missing key is a no-op.
func (t *Trie) Delete(key []byte) error {
	root, err := del(t.root, keybytesToHex(key))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func del(n node, key []byte) (node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *shortNode:
		return delFromShort(n, key)
	case *fullNode:
		return delFromFull(n, key)
	case valueNode:
		if len(key) == 0 {
			return nil, nil
		}
		return n, nil
	case hashNode:
		return nil, errors.New("trie: cannot delete below an unresolved hash node")
	default:
		return nil, errors.New("trie: unknown node type")
	}
}

func delFromShort(n *shortNode, key []byte) (node, error) {
	match := prefixLen(key, n.Key)
	if match < len(n.Key) {
		return n, nil // key isn't in this subtree
	}
	if match == len(key) {
		return nil, nil // exact match: drop the whole node
	}

	child, err := del(n.Val, key[len(n.Key):])
	if err != nil {
		return nil, err
	}
	switch child := child.(type) {
	case nil:
		return nil, nil
	case *shortNode:
		return &shortNode{Key: concat(n.Key, child.Key), Val: child.Val, flags: nodeFlag{dirty: true}}, nil
	default:
		return &shortNode{Key: n.Key, Val: child, flags: nodeFlag{dirty: true}}, nil
	}
}

func delFromFull(n *fullNode, key []byte) (node, error) {
	nn := n.copy()
	nn.flags = nodeFlag{dirty: true}
	child, err := del(n.Children[key[0]], key[1:])
	if err != nil {
		return nil, err
	}
	nn.Children[key[0]] = child

	remaining := -1
	for i, c := range nn.Children {
		if c == nil {
			continue
		}
		if remaining >= 0 {
			return nn, nil // still branches in two or more directions
		}
		remaining = i
	}
	if remaining < 0 {
		return nil, nil
	}
	return collapseSingleChild(nn, remaining)
}

// collapseSingleChild folds a branch with exactly one remaining child into
// a shortNode, merging nibbles where the child is itself a shortNode.
func collapseSingleChild(n *fullNode, nibble int) (node, error) {
	if nibble == 16 {
		return &shortNode{Key: []byte{nibbleTerminator}, Val: n.Children[16], flags: nodeFlag{dirty: true}}, nil
	}
	child := n.Children[nibble]
	if cn, ok := child.(*shortNode); ok {
		return &shortNode{Key: concat([]byte{byte(nibble)}, cn.Key), Val: cn.Val, flags: nodeFlag{dirty: true}}, nil
	}
	return &shortNode{Key: []byte{byte(nibble)}, Val: child, flags: nodeFlag{dirty: true}}, nil
}

// Hash computes the trie's root hash, rehashing any dirty subtrees.
func (t *Trie) Hash() types.Hash {
	if t.root == nil {
		return emptyRoot
	}
	h := newHasher()
	hashed, cached := h.hash(t.root, true)
	t.root = cached

	if ref, ok := hashed.(hashNode); ok {
		return types.BytesToHash(ref)
	}
	// force=true yields a hashNode for a shortNode, fullNode or hashNode
	// root (the hasher panics if encoding fails); only a bare valueNode
	// root reaches this fallback.
	enc, _ := encodeNode(hashed)
	return crypto.Keccak256Hash(enc)
}

// Len reports the number of stored key-value pairs. It walks the whole
// trie, so it costs O(n).
func (t *Trie) Len() int {
	return countValues(t.root)
}

// Empty reports whether the trie holds no entries.
func (t *Trie) Empty() bool {
	return t.root == nil
}

func countValues(n node) int {
	switch n := n.(type) {
	case valueNode:
		return 1
	case *shortNode:
		return countValues(n.Val)
	case *fullNode:
		count := 0
		for _, child := range n.Children {
			count += countValues(child)
		}
		return count
	default:
		return 0 // nil or an unresolved hashNode
	}
}

// concat returns a freshly allocated slice containing a followed by b.
func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
