package trie

import (
	"bytes"
	"errors"
	"sync"

	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/crypto"
)

var ErrNodeNotFound = errors.New("trie: node not found in database")

// NodeReader retrieves RLP-encoded trie nodes by hash from a backing store.
type NodeReader interface {
	Node(hash types.Hash) ([]byte, error)
}

// NodeWriter persists an RLP-encoded trie node keyed by its hash.
type NodeWriter interface {
	Put(hash types.Hash, data []byte) error
}

// NodeDatabase is a two-tier node store: an in-memory set of nodes produced
// since the last Commit, backed by an optional NodeReader for nodes already
// on disk. A ResolvableTrie reads through it to fault in hashNode
// references on demand.
type NodeDatabase struct {
	mu    sync.RWMutex
	dirty map[types.Hash][]byte
	disk  NodeReader
	size  int
}

// NewNodeDatabase returns a node database. disk may be nil, in which case
// the database only ever serves nodes it has itself been given.
func NewNodeDatabase(disk NodeReader) *NodeDatabase {
	return &NodeDatabase{dirty: make(map[types.Hash][]byte), disk: disk}
}

func (db *NodeDatabase) Node(hash types.Hash) ([]byte, error) {
	if hash == (types.Hash{}) {
		return nil, ErrNodeNotFound
	}
	db.mu.RLock()
	data, ok := db.dirty[hash]
	db.mu.RUnlock()
	if ok {
		return data, nil
	}
	if db.disk == nil {
		return nil, ErrNodeNotFound
	}
	return db.disk.Node(hash)
}

func (db *NodeDatabase) InsertNode(hash types.Hash, data []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.dirty[hash]; !exists {
		db.size += len(data)
	}
	db.dirty[hash] = data
}

func (db *NodeDatabase) DirtySize() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.size
}

func (db *NodeDatabase) DirtyCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.dirty)
}

// Commit flushes every dirty node to writer and empties the dirty set.
func (db *NodeDatabase) Commit(writer NodeWriter) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for hash, data := range db.dirty {
		if err := writer.Put(hash, data); err != nil {
			return err
		}
	}
	db.dirty = make(map[types.Hash][]byte)
	db.size = 0
	return nil
}

const trieNodeKeyPrefix = 't'

func trieNodeKey(hash types.Hash) []byte {
	key := make([]byte, 1+types.HashLength)
	key[0] = trieNodeKeyPrefix
	copy(key[1:], hash[:])
	return key
}

// NewRawDBNodeReader adapts a byte-oriented key-value getter to NodeReader,
// namespacing lookups under the trie node key prefix.
func NewRawDBNodeReader(get func(key []byte) ([]byte, error)) NodeReader {
	return rawdbNodeReader{get: get}
}

type rawdbNodeReader struct {
	get func(key []byte) ([]byte, error)
}

func (r rawdbNodeReader) Node(hash types.Hash) ([]byte, error) {
	data, err := r.get(trieNodeKey(hash))
	if err != nil {
		return nil, ErrNodeNotFound
	}
	return data, nil
}

// NewRawDBNodeWriter adapts a byte-oriented key-value setter to NodeWriter.
func NewRawDBNodeWriter(put func(key, value []byte) error) NodeWriter {
	return rawdbNodeWriter{put: put}
}

type rawdbNodeWriter struct {
	put func(key, value []byte) error
}

func (w rawdbNodeWriter) Put(hash types.Hash, data []byte) error {
	return w.put(trieNodeKey(hash), data)
}

// CommitTrie hashes every dirty node reachable from t's root, stores the
// encodings in db, and returns the resulting root hash.
func CommitTrie(t *Trie, db *NodeDatabase) (types.Hash, error) {
	if t.root == nil {
		return emptyRoot, nil
	}

	root, cached := commitSubtree(t.root, db)
	t.root = cached

	if ref, ok := root.(hashNode); ok {
		return types.BytesToHash(ref), nil
	}
	enc, err := encodeNode(root)
	if err != nil {
		return types.Hash{}, err
	}
	hash := crypto.Keccak256Hash(enc)
	db.InsertNode(hash, enc)
	return hash, nil
}

// commitSubtree walks n depth-first, storing every node whose encoding is
// 32 bytes or more and returning both the reference to hand to the parent
// (collapsed form) and the node to keep resident in memory (cached form).
func commitSubtree(n node, db *NodeDatabase) (node, node) {
	switch n := n.(type) {
	case nil, valueNode, hashNode:
		return n, n
	case *shortNode:
		return commitShort(n, db)
	case *fullNode:
		return commitFull(n, db)
	default:
		return n, n
	}
}

func commitShort(n *shortNode, db *NodeDatabase) (node, node) {
	collapsed, cached := n.copy(), n.copy()
	collapsed.Key = hexToCompact(n.Key)
	if _, isValue := n.Val.(valueNode); !isValue {
		collapsed.Val, cached.Val = commitSubtree(n.Val, db)
	}
	return storeIfLarge(collapsed, cached, db)
}

func commitFull(n *fullNode, db *NodeDatabase) (node, node) {
	collapsed, cached := n.copy(), n.copy()
	for i, child := range n.Children[:16] {
		if child != nil {
			collapsed.Children[i], cached.Children[i] = commitSubtree(child, db)
		}
	}
	return storeIfLarge(collapsed, cached, db)
}

// storeIfLarge encodes collapsed and, if the encoding is 32 bytes or more,
// inserts it into db under its keccak hash and marks cached as clean.
func storeIfLarge(collapsed, cached node, db *NodeDatabase) (node, node) {
	enc, err := encodeNode(collapsed)
	if err != nil {
		return collapsed, cached
	}
	if len(enc) < 32 {
		return collapsed, cached
	}
	hash := crypto.Keccak256(enc)
	db.InsertNode(types.BytesToHash(hash), enc)
	switch cn := cached.(type) {
	case *shortNode:
		cn.flags.hash, cn.flags.dirty = hashNode(hash), false
	case *fullNode:
		cn.flags.hash, cn.flags.dirty = hashNode(hash), false
	}
	return hashNode(hash), cached
}

// ResolvableTrie is a Trie that faults in hashNode references from a
// NodeDatabase as they're encountered, rather than requiring the whole
// tree to already be resident. Reads, writes and deletes all resolve
// lazily along the path they touch.
type ResolvableTrie struct {
	Trie
	db *NodeDatabase
}

// NewResolvableTrie opens the trie rooted at root against db. A zero or
// empty-root hash yields an empty trie without touching db.
func NewResolvableTrie(root types.Hash, db *NodeDatabase) (*ResolvableTrie, error) {
	t := &ResolvableTrie{db: db}
	if root == emptyRoot || root == (types.Hash{}) {
		return t, nil
	}
	resolved, err := t.resolveHash(hashNode(root[:]))
	if err != nil {
		return nil, err
	}
	t.root = resolved
	return t, nil
}

func (t *ResolvableTrie) resolveHash(hash hashNode) (node, error) {
	data, err := t.db.Node(types.BytesToHash(hash))
	if err != nil {
		return nil, err
	}
	return decodeNode(hash, data)
}

func (t *ResolvableTrie) Get(key []byte) ([]byte, error) {
	value, found, err := t.resolveGet(t.root, keybytesToHex(key), 0)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

func (t *ResolvableTrie) resolveGet(n node, key []byte, pos int) ([]byte, bool, error) {
	switch n := n.(type) {
	case nil:
		return nil, false, nil
	case valueNode:
		return []byte(n), true, nil
	case *shortNode:
		rest := key[pos:]
		if len(rest) < len(n.Key) || !bytes.Equal(n.Key, rest[:len(n.Key)]) {
			return nil, false, nil
		}
		return t.resolveGet(n.Val, key, pos+len(n.Key))
	case *fullNode:
		if pos >= len(key) {
			return t.resolveGet(n.Children[16], key, pos)
		}
		return t.resolveGet(n.Children[key[pos]], key, pos+1)
	case hashNode:
		resolved, err := t.resolveHash(n)
		if err != nil {
			return nil, false, err
		}
		return t.resolveGet(resolved, key, pos)
	default:
		return nil, false, nil
	}
}

func (t *ResolvableTrie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	root, err := t.resolveInsert(t.root, keybytesToHex(key), valueNode(value))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *ResolvableTrie) resolveInsert(n node, key []byte, value node) (node, error) {
	if hn, ok := n.(hashNode); ok {
		resolved, err := t.resolveHash(hn)
		if err != nil {
			return nil, err
		}
		n = resolved
	}
	if len(key) == 0 {
		return value, nil
	}

	switch n := n.(type) {
	case nil:
		return &shortNode{Key: key, Val: value, flags: nodeFlag{dirty: true}}, nil
	case *shortNode:
		match := prefixLen(key, n.Key)
		if match == len(n.Key) {
			child, err := t.resolveInsert(n.Val, key[match:], value)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: n.Key, Val: child, flags: nodeFlag{dirty: true}}, nil
		}
		branch := &fullNode{flags: nodeFlag{dirty: true}}
		oldChild, err := t.resolveInsert(nil, n.Key[match+1:], n.Val)
		if err != nil {
			return nil, err
		}
		branch.Children[n.Key[match]] = oldChild
		newChild, err := t.resolveInsert(nil, key[match+1:], value)
		if err != nil {
			return nil, err
		}
		branch.Children[key[match]] = newChild
		if match == 0 {
			return branch, nil
		}
		return &shortNode{Key: key[:match], Val: branch, flags: nodeFlag{dirty: true}}, nil
	case *fullNode:
		nn := n.copy()
		nn.flags = nodeFlag{dirty: true}
		child, err := t.resolveInsert(n.Children[key[0]], key[1:], value)
		if err != nil {
			return nil, err
		}
		nn.Children[key[0]] = child
		return nn, nil
	default:
		return nil, errors.New("trie: unknown node type")
	}
}

func (t *ResolvableTrie) Delete(key []byte) error {
	root, err := t.resolveDelete(t.root, keybytesToHex(key))
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *ResolvableTrie) resolveDelete(n node, key []byte) (node, error) {
	if hn, ok := n.(hashNode); ok {
		resolved, err := t.resolveHash(hn)
		if err != nil {
			return nil, err
		}
		n = resolved
	}

	switch n := n.(type) {
	case nil:
		return nil, nil
	case *shortNode:
		match := prefixLen(key, n.Key)
		if match < len(n.Key) {
			return n, nil
		}
		if match == len(key) {
			return nil, nil
		}
		child, err := t.resolveDelete(n.Val, key[len(n.Key):])
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
	case *fullNode:
		nn := n.copy()
		nn.flags = nodeFlag{dirty: true}
		child, err := t.resolveDelete(n.Children[key[0]], key[1:])
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
				return nn, nil
			}
			remaining = i
		}
		if remaining < 0 {
			return nil, nil
		}
		return collapseSingleChild(nn, remaining)
	case valueNode:
		if len(key) == 0 {
			return nil, nil
		}
		return n, nil
	default:
		return nil, errors.New("trie: unknown node type")
	}
}

// Commit flushes dirty nodes reachable from the trie's root into the
// underlying database and returns the new root hash.
func (t *ResolvableTrie) Commit() (types.Hash, error) {
	return CommitTrie(&t.Trie, t.db)
}
