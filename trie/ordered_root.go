package trie

import (
	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/rlp"
)

// OrderedRoot builds a fresh trie keyed by the RLP encoding of each item's
// index (0, 1, 2, ...) and returns its root hash. This is the construction
// Ethereum uses for transaction, receipt, and withdrawal roots: order
// matters and is captured by the index key, not by insertion order of the
// trie itself.
func OrderedRoot(items [][]byte) types.Hash {
	t := New()
	for i, item := range items {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			panic("trie: encode ordered index: " + err.Error())
		}
		if err := t.Put(key, item); err != nil {
			panic("trie: insert ordered item: " + err.Error())
		}
	}
	return t.Hash()
}
