package core

import (
	"math/big"

	"github.com/eth2028/statelessblock/core/types"
)

// GenesisAccount represents an account in the genesis allocation.
type GenesisAccount struct {
	Balance *big.Int
	Code    []byte
	Nonce   uint64
	Storage map[types.Hash]types.Hash
}

// GenesisAlloc is the genesis allocation map: address -> account.
type GenesisAlloc map[types.Address]GenesisAccount

// Genesis specifies the header fields and pre-funded accounts of a genesis
// block. It exists as a ChainConfig-driven test fixture: the core itself
// never builds a chain from genesis, it only re-executes single blocks
// against a supplied witness, but tests need a deterministic parent header
// and a matching initial allocation to build that witness from.
type Genesis struct {
	Config     *ChainConfig
	Nonce      uint64
	Timestamp  uint64
	ExtraData  []byte
	GasLimit   uint64
	Difficulty *big.Int
	MixHash    types.Hash
	Coinbase   types.Address
	Alloc      GenesisAlloc

	// Optional overrides for consensus tests.
	Number     uint64
	GasUsed    uint64
	ParentHash types.Hash
	BaseFee    *big.Int
}

// ToBlock builds the genesis header and block from the spec. The returned
// block has an empty state root; callers that need a populated state root
// should hash the allocation into a witness state trie themselves (the
// core has no state-mutation path outside of ExecuteBlock).
func (g *Genesis) ToBlock() *types.Block {
	head := &types.Header{
		ParentHash:  g.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    g.Coinbase,
		Root:        types.EmptyRootHash,
		TxHash:      types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Difficulty:  g.Difficulty,
		Number:      new(big.Int).SetUint64(g.Number),
		GasLimit:    g.GasLimit,
		GasUsed:     g.GasUsed,
		Time:        g.Timestamp,
		MixDigest:   g.MixHash,
	}

	if g.Nonce != 0 {
		n := g.Nonce
		for i := 7; i >= 0; i-- {
			head.Nonce[i] = byte(n)
			n >>= 8
		}
	}

	if len(g.ExtraData) > 0 {
		head.Extra = make([]byte, len(g.ExtraData))
		copy(head.Extra, g.ExtraData)
	}

	if head.Difficulty == nil {
		head.Difficulty = new(big.Int)
	}

	if g.BaseFee != nil {
		head.BaseFee = new(big.Int).Set(g.BaseFee)
	} else if g.Config != nil {
		head.BaseFee = big.NewInt(InitialBaseFee)
	}

	if g.Config != nil && g.Config.IsShanghai(g.Timestamp) {
		emptyWithdrawalsHash := types.EmptyRootHash
		head.WithdrawalsHash = &emptyWithdrawalsHash
	}

	return types.NewBlock(head, nil)
}

// DefaultGenesisBlock returns a mainnet-shaped genesis specification, useful
// as the deterministic parent header in end-to-end fixtures.
func DefaultGenesisBlock() *Genesis {
	return &Genesis{
		Config:     MainnetConfig,
		Nonce:      66,
		GasLimit:   30_000_000,
		Difficulty: big.NewInt(17_179_869_184),
		Alloc:      GenesisAlloc{},
	}
}

// TestGenesisBlock returns a genesis specification with every fork active
// from block zero, for use with TestConfig in fixture-driven tests.
func TestGenesisBlock() *Genesis {
	return &Genesis{
		Config:     TestConfig,
		GasLimit:   30_000_000,
		Difficulty: big.NewInt(0),
		BaseFee:    big.NewInt(InitialBaseFee),
		Alloc:      GenesisAlloc{},
	}
}
