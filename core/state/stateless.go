// Package state hydrates a closed-world account/storage view from a block
// witness and finalizes it back into state and storage roots. Unlike a
// general-purpose StateDB, the view never falls back to a default zero
// account for an address it was not told about: a witness that omits an
// address the block later touches is a malformed witness, not a sparse
// read, and that distinction must surface as an error.
package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/core/vm"
	"github.com/eth2028/statelessblock/crypto"
	"github.com/eth2028/statelessblock/rlp"
	"github.com/eth2028/statelessblock/trie"
	"github.com/holiman/uint256"
)

// AccountState tags how an account has been touched during block execution.
// It governs trie finalization and is deliberately kept outside types.Account:
// it has no consensus encoding and must never leak into account RLP.
type AccountState int

const (
	// Untouched accounts are left exactly as hydrated; their storage trie,
	// if any, is never re-resolved.
	Untouched AccountState = iota
	// Touched accounts have a pending nonce/balance/code/storage delta to
	// fold into the trie at finalization.
	Touched
	// StorageCleared accounts had all storage slots deleted (EIP-158/161
	// empty-account sweep or SELFDESTRUCT under a future fork); the
	// storage trie is dropped to the empty root rather than walked.
	StorageCleared
	// NotExisting accounts must be removed from the state trie entirely.
	NotExisting
)

var (
	// ErrUnknownAccount is returned by Basic for an address the witness
	// never declared.
	ErrUnknownAccount = errors.New("state: address not present in witness")
	// ErrUnknownSlot is returned by Storage for a slot the witness never
	// declared, unless the account is StorageCleared.
	ErrUnknownSlot = errors.New("state: storage slot not present in witness")
	// ErrUnknownAncestor is returned by BlockHash for a block number outside
	// the supplied ancestor window.
	ErrUnknownAncestor = errors.New("state: ancestor hash not present in witness")
	// ErrCodeByHashUnsupported marks that this view is closed-world: code
	// travels with the account via Basic, never via a hash lookup.
	ErrCodeByHashUnsupported = errors.New("state: CodeByHash not supported by a closed-world view")
	// ErrRootMismatch is returned by Hydrate when the witness does not
	// reproduce the parent header's state root.
	ErrRootMismatch = errors.New("state: witness does not match parent state root")
	// ErrAncestorChainBroken is returned by Hydrate when an ancestor header's
	// hash does not match the parent_hash of the header one step closer to
	// the chain tip.
	ErrAncestorChainBroken = errors.New("state: ancestor header chain broken")
	// ErrAncestorWindowExceeded is returned by Hydrate when an ancestor
	// header's block number falls outside the 256-block BLOCKHASH window
	// behind the parent.
	ErrAncestorWindowExceeded = errors.New("state: ancestor header outside 256-block window")
)

// ancestorWindow is the number of blocks behind the parent that BLOCKHASH
// may reach back to (EVM spec: the 256 most recent completed blocks).
const ancestorWindow = 256

// accountEntry is one hydrated account plus its lazily-resolved storage trie.
type accountEntry struct {
	account types.Account
	state   AccountState
	storage *trie.ResolvableTrie
	code    []byte
}

// Witness is the subset of the block witness this package consumes: account
// proofs, contract bytecodes, the parent header, and the ancestor header
// chain behind it. The caller (the witness hydrator) is responsible for
// parsing the wire witness into this shape; this package only verifies and
// serves it.
type Witness struct {
	ParentStateRoot types.Hash
	Nodes           map[types.Hash][]byte           // state+storage trie nodes, keyed by hash
	Accounts        map[types.Address]types.Account // accounts known to be present
	Codes           map[types.Hash][]byte           // CodeHash -> bytecode

	// AncestorHeaders runs newest-first (closest to the parent first): each
	// header's hash must equal the parent_hash of the header before it in
	// the slice (the first must equal the parent header's own parent_hash),
	// and each must lie within the 256-block window behind the parent. Up to
	// 255 entries. The parent header itself is supplied to Hydrate directly,
	// not carried on Witness, since the caller has already validated it.
	AncestorHeaders []*types.Header
}

// View is the closed-world state/storage view produced by Hydrate. It
// implements vm.Database so an Interpreter can execute against it directly.
type View struct {
	parentRoot types.Hash
	nodeDB     *trie.NodeDatabase
	accounts   map[types.Address]*accountEntry
	codes      map[types.Hash][]byte
	ancestors  map[uint64]types.Hash
}

var _ vm.Database = (*View)(nil)

// Hydrate builds a View from a witness, verifying that replaying the
// witness's account set against the supplied trie nodes reproduces the
// parent header's state root, and that the witness's ancestor header chain
// links back from parent without a gap or a window violation. parent may be
// nil only for tests that never call View.BlockHash. It does not mutate the
// witness.
func Hydrate(w *Witness, parent *types.Header) (*View, error) {
	nodeDB := trie.NewNodeDatabase(nil)
	for hash, data := range w.Nodes {
		nodeDB.InsertNode(hash, data)
	}

	stateTrie, err := trie.NewResolvableTrie(w.ParentStateRoot, nodeDB)
	if err != nil {
		return nil, fmt.Errorf("state: resolve parent state trie: %w", err)
	}

	ancestors, err := verifyAncestorChain(parent, w.AncestorHeaders)
	if err != nil {
		return nil, err
	}

	v := &View{
		parentRoot: w.ParentStateRoot,
		nodeDB:     nodeDB,
		accounts:   make(map[types.Address]*accountEntry, len(w.Accounts)),
		codes:      w.Codes,
		ancestors:  ancestors,
	}

	for addr, acct := range w.Accounts {
		key := crypto.Keccak256(addr.Bytes())
		enc, err := stateTrie.Get(key)
		if err != nil {
			return nil, fmt.Errorf("state: account %s missing from parent trie: %w", addr.Hex(), err)
		}
		got, err := decodeStateAccount(enc)
		if err != nil {
			return nil, fmt.Errorf("state: decode account %s: %w", addr.Hex(), err)
		}
		if !accountsEqual(*got, acct) {
			return nil, fmt.Errorf("%w: account %s", ErrRootMismatch, addr.Hex())
		}

		entry := &accountEntry{account: acct, state: Untouched}
		if acct.Root != types.EmptyRootHash {
			storageTrie, err := trie.NewResolvableTrie(acct.Root, nodeDB)
			if err != nil {
				return nil, fmt.Errorf("state: resolve storage trie for %s: %w", addr.Hex(), err)
			}
			entry.storage = storageTrie
		}
		if len(acct.CodeHash) > 0 {
			codeHash := types.BytesToHash(acct.CodeHash)
			code, ok := w.Codes[codeHash]
			if !ok && codeHash != types.EmptyCodeHash {
				return nil, fmt.Errorf("state: bytecode for %s (code hash %s) missing from witness", addr.Hex(), codeHash.Hex())
			}
			entry.code = code
		}
		v.accounts[addr] = entry
	}

	if computed := stateTrie.Hash(); computed != w.ParentStateRoot {
		return nil, fmt.Errorf("%w: got %s want %s", ErrRootMismatch, computed.Hex(), w.ParentStateRoot.Hex())
	}

	return v, nil
}

// verifyAncestorChain walks the ancestor headers from the one closest to
// parent outward, checking that each header's hash matches the parent_hash
// recorded by the header in front of it and that it falls within the
// 256-block BLOCKHASH window, then returns the block-number -> hash map the
// View serves through BlockHash. A nil parent with no ancestors is accepted
// (hydration of a witness that never needs BlockHash).
func verifyAncestorChain(parent *types.Header, ancestors []*types.Header) (map[uint64]types.Hash, error) {
	hashes := make(map[uint64]types.Hash, len(ancestors)+1)
	if parent == nil {
		if len(ancestors) != 0 {
			return nil, fmt.Errorf("%w: ancestor headers supplied without a parent header", ErrAncestorChainBroken)
		}
		return hashes, nil
	}

	parentNumber := parent.Number.Uint64()
	hashes[parentNumber] = parent.Hash()

	wantHash := parent.ParentHash
	for i, h := range ancestors {
		got := h.Hash()
		if got != wantHash {
			return nil, fmt.Errorf("%w: ancestor %d (block %d)", ErrAncestorChainBroken, i, h.Number)
		}
		if parentNumber-h.Number.Uint64() >= ancestorWindow {
			return nil, fmt.Errorf("%w: ancestor %d (block %d)", ErrAncestorWindowExceeded, i, h.Number)
		}
		hashes[h.Number.Uint64()] = got
		wantHash = h.ParentHash
	}
	return hashes, nil
}

// Basic returns the hydrated account for addr, or ErrUnknownAccount if the
// witness never declared it.
func (v *View) Basic(addr types.Address) (types.Account, error) {
	entry, ok := v.accounts[addr]
	if !ok {
		return types.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	if entry.state == NotExisting {
		return types.Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	return entry.account, nil
}

// Storage returns the value at (addr, slot). A witness miss is an error
// unless the account has been marked StorageCleared, in which case every
// slot reads as zero.
func (v *View) Storage(addr types.Address, slot types.Hash) (uint256.Int, error) {
	entry, ok := v.accounts[addr]
	if !ok {
		return uint256.Int{}, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	if entry.state == StorageCleared || entry.state == NotExisting {
		return uint256.Int{}, nil
	}
	if entry.storage == nil {
		return uint256.Int{}, nil
	}
	key := crypto.Keccak256(slot.Bytes())
	enc, err := entry.storage.Get(key)
	if err != nil {
		if errors.Is(err, trie.ErrNotFound) {
			return uint256.Int{}, nil
		}
		return uint256.Int{}, fmt.Errorf("%w: (%s,%s): %v", ErrUnknownSlot, addr.Hex(), slot.Hex(), err)
	}
	return decodeStorageValue(enc)
}

// BlockHash resolves an ancestor block hash from the witness's 256-window.
func (v *View) BlockHash(number uint64) (types.Hash, error) {
	h, ok := v.ancestors[number]
	if !ok {
		return types.Hash{}, fmt.Errorf("%w: block %d", ErrUnknownAncestor, number)
	}
	return h, nil
}

// CodeByHash always errors: bytecode in this view travels with the account
// (Basic + the code map populated at hydration), never via a bare hash
// lookup, since the witness is closed-world.
func (v *View) CodeByHash(hash types.Hash) ([]byte, error) {
	return nil, ErrCodeByHashUnsupported
}

// Code returns the bytecode for addr, if any was declared by the witness.
func (v *View) Code(addr types.Address) ([]byte, error) {
	entry, ok := v.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	return entry.code, nil
}

// Commit folds a transaction's state delta into the view. The delta map is
// walked in no particular order; each address's update touches only that
// address's entry, so the order does not affect the result.
func (v *View) Commit(delta map[types.Address]*vm.AccountDelta) error {
	for addr, d := range delta {
		entry, ok := v.accounts[addr]
		if !ok {
			entry = &accountEntry{account: types.NewAccount()}
			v.accounts[addr] = entry
		}
		if d.SelfDestructed {
			entry.state = NotExisting
			entry.storage = nil
			entry.code = nil
			entry.account = types.Account{}
			continue
		}

		entry.account.Nonce = d.Nonce
		entry.account.Balance = d.Balance.ToBig()
		if len(d.Code) > 0 {
			entry.code = d.Code
			entry.account.CodeHash = d.CodeHash.Bytes()
		}

		if d.StorageCleared {
			entry.state = StorageCleared
			entry.storage = nil
		} else if len(d.StorageWrites) > 0 {
			if entry.storage == nil {
				t, err := trie.NewResolvableTrie(types.Hash{}, v.nodeDB)
				if err != nil {
					return fmt.Errorf("state: new storage trie for %s: %w", addr.Hex(), err)
				}
				entry.storage = t
			}
			for _, w := range d.StorageWrites {
				key := crypto.Keccak256(w.Slot.Bytes())
				if w.Value.IsZero() {
					if err := entry.storage.Delete(key); err != nil {
						return fmt.Errorf("state: delete storage (%s,%s): %w", addr.Hex(), w.Slot.Hex(), err)
					}
					continue
				}
				enc := encodeStorageValue(w.Value)
				if err := entry.storage.Put(key, enc); err != nil {
					return fmt.Errorf("state: write storage (%s,%s): %w", addr.Hex(), w.Slot.Hex(), err)
				}
			}
		}
		if entry.state != StorageCleared {
			entry.state = Touched
		}
	}
	return nil
}

// StateOf reports the finalization tag for addr. Accounts never committed
// to are Untouched.
func (v *View) StateOf(addr types.Address) AccountState {
	if entry, ok := v.accounts[addr]; ok {
		return entry.state
	}
	return Untouched
}

// Accounts returns every address the view knows about, touched or not, in
// no particular order.
func (v *View) Accounts() []types.Address {
	addrs := make([]types.Address, 0, len(v.accounts))
	for addr := range v.accounts {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Finalize rebuilds the state trie starting from the parent root, applying
// every touched/cleared/removed account, and returns the new state root.
// Untouched accounts are never re-resolved, so the cost is proportional to
// the number of accounts actually touched during block execution.
func (v *View) Finalize() (types.Hash, error) {
	stateTrie, err := trie.NewResolvableTrie(v.parentRoot, v.nodeDB)
	if err != nil {
		return types.Hash{}, fmt.Errorf("state: reopen parent trie: %w", err)
	}

	for addr, entry := range v.accounts {
		key := crypto.Keccak256(addr.Bytes())
		switch entry.state {
		case Untouched:
			continue
		case NotExisting:
			if err := stateTrie.Delete(key); err != nil {
				return types.Hash{}, fmt.Errorf("state: delete account %s: %w", addr.Hex(), err)
			}
		case Touched, StorageCleared:
			storageRoot := types.EmptyRootHash
			if entry.storage != nil {
				if _, err := entry.storage.Commit(); err != nil {
					return types.Hash{}, fmt.Errorf("state: commit storage for %s: %w", addr.Hex(), err)
				}
				storageRoot = entry.storage.Hash()
			}
			entry.account.Root = storageRoot
			enc, err := encodeStateAccount(entry.account)
			if err != nil {
				return types.Hash{}, fmt.Errorf("state: encode account %s: %w", addr.Hex(), err)
			}
			if err := stateTrie.Put(key, enc); err != nil {
				return types.Hash{}, fmt.Errorf("state: write account %s: %w", addr.Hex(), err)
			}
		}
	}

	if _, err := stateTrie.Commit(); err != nil {
		return types.Hash{}, fmt.Errorf("state: commit state trie: %w", err)
	}
	return stateTrie.Hash(), nil
}

// --- account/storage RLP codec ---
//
// Consensus account encoding is the classic four-tuple
// [nonce, balance, storageRoot, codeHash]; AccountState is never part of it.

type rlpStateAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     []byte
	CodeHash []byte
}

func encodeStateAccount(acct types.Account) ([]byte, error) {
	balance := acct.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	codeHash := acct.CodeHash
	if len(codeHash) == 0 {
		codeHash = types.EmptyCodeHash.Bytes()
	}
	root := acct.Root
	if root == (types.Hash{}) {
		root = types.EmptyRootHash
	}
	return rlp.EncodeToBytes(rlpStateAccount{
		Nonce:    acct.Nonce,
		Balance:  balance,
		Root:     root.Bytes(),
		CodeHash: codeHash,
	})
}

func decodeStateAccount(data []byte) (*types.Account, error) {
	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("decode outer list: %w", err)
	}
	nonce, err := s.Uint64()
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	balBytes, err := s.Bytes()
	if err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	rootBytes, err := s.Bytes()
	if err != nil {
		return nil, fmt.Errorf("decode root: %w", err)
	}
	codeHashBytes, err := s.Bytes()
	if err != nil {
		return nil, fmt.Errorf("decode code hash: %w", err)
	}
	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("decode list end: %w", err)
	}
	return &types.Account{
		Nonce:    nonce,
		Balance:  new(big.Int).SetBytes(balBytes),
		Root:     types.BytesToHash(rootBytes),
		CodeHash: codeHashBytes,
	}, nil
}

func accountsEqual(a, b types.Account) bool {
	if a.Nonce != b.Nonce {
		return false
	}
	ab, bb := a.Balance, b.Balance
	if ab == nil {
		ab = new(big.Int)
	}
	if bb == nil {
		bb = new(big.Int)
	}
	if ab.Cmp(bb) != 0 {
		return false
	}
	if a.Root != b.Root {
		return false
	}
	return types.BytesToHash(a.CodeHash) == types.BytesToHash(b.CodeHash)
}

func encodeStorageValue(val uint256.Int) []byte {
	b := val.Bytes()
	enc, _ := rlp.EncodeToBytes(b)
	return enc
}

func decodeStorageValue(data []byte) (uint256.Int, error) {
	s := rlp.NewStreamFromBytes(data)
	b, err := s.Bytes()
	if err != nil {
		return uint256.Int{}, err
	}
	var v uint256.Int
	if len(b) > 32 {
		return uint256.Int{}, errors.New("state: storage value too large")
	}
	v.SetBytes(b)
	return v, nil
}
