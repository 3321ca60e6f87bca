// Package trie implements a sparse Merkle-Patricia trie: shortNode
// (extension/leaf), fullNode (16-way branch plus an embedded value slot),
// hashNode (an unresolved reference into a NodeDatabase) and valueNode
// (a stored leaf value).
package trie

// nodeFlag tracks per-node hashing state: a cached hash once computed, and
// whether the node has been mutated since that hash was taken.
type nodeFlag struct {
	hash  hashNode
	dirty bool
}

// node is implemented by every trie node representation. cache exposes the
// flag state above so the hasher can skip re-hashing clean subtrees.
type node interface {
	cache() (hashNode, bool)
}

// fullNode is a 16-way branch keyed by hex nibble. Children[16] holds a
// value embedded directly at the branch, if any.
type fullNode struct {
	Children [17]node
	flags    nodeFlag
}

// shortNode collapses a run of nibbles with a single child. Whether it acts
// as an extension (Val is another branch/extension) or a leaf (Val is a
// valueNode) is determined by whether Key carries the HP terminator.
type shortNode struct {
	Key   []byte
	Val   node
	flags nodeFlag
}

// hashNode is a reference to a node that has not yet been resolved from the
// backing NodeDatabase.
type hashNode []byte

// valueNode is the raw bytes stored at a trie leaf.
type valueNode []byte

func (n *fullNode) cache() (hashNode, bool)  { return n.flags.hash, n.flags.dirty }
func (n *shortNode) cache() (hashNode, bool) { return n.flags.hash, n.flags.dirty }
func (n hashNode) cache() (hashNode, bool)   { return nil, true }
func (n valueNode) cache() (hashNode, bool)  { return nil, true }

func (n *fullNode) copy() *fullNode {
	cp := *n
	return &cp
}

func (n *shortNode) copy() *shortNode {
	cp := *n
	return &cp
}
