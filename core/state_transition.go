// state_transition.go orchestrates one block's worth of stateless
// re-execution: it builds and validates the candidate header against its
// parent, hydrates the State View from the witness, runs every transaction
// through the Executor, applies withdrawals, finalizes the trie roots, and
// computes the resulting block hash. This is the only entry point a zkVM
// guest program needs to call.
package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/eth2028/statelessblock/core/state"
	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/core/vm"
	"github.com/eth2028/statelessblock/log"
	"github.com/eth2028/statelessblock/trie"
	"github.com/holiman/uint256"
)

var ErrNumberOverflow = errors.New("core: block number overflow")

var logger = log.Default().Module("core")

// BlockInput is the witness-declared shape of the block being re-executed:
// everything about it that isn't derived from the parent header or
// execution. It corresponds to the unsigned fields a block proposer commits
// to before the gas-used/roots become known.
type BlockInput struct {
	Coinbase     types.Address
	GasLimit     uint64
	Time         uint64
	MixDigest    types.Hash
	Extra        []byte
	Transactions []*types.Transaction
	Withdrawals  []*types.Withdrawal
}

// BlockResult is the output of ExecuteBlock: the fully-populated header, its
// final hash, and the per-transaction receipts.
type BlockResult struct {
	Header    *types.Header
	BlockHash types.Hash
	Receipts  []*types.Receipt
}

// ExecuteBlock runs the full pipeline for one block: header build and
// validation (4.3), witness hydration (4.1/4.2), transaction execution
// (4.4), withdrawal application (4.5), and trie finalization (4.6). A panic
// raised inside the pipeline is recovered and returned as an error.
func ExecuteBlock(config *ChainConfig, interp vm.Interpreter, parent *types.Header, witness *state.Witness, input *BlockInput) (result *BlockResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("core: block execution aborted: %v", r)
		}
	}()
	header, err := BuildHeader(config, parent, input)
	if err != nil {
		return nil, fmt.Errorf("build header: %w", err)
	}
	if err := NewBlockValidator(config).ValidateHeader(header, parent); err != nil {
		return nil, fmt.Errorf("validate header: %w", err)
	}
	for _, tx := range input.Transactions {
		if tx.Type() == types.BlobTxType {
			return nil, fmt.Errorf("%w: tx %s", ErrBlobTxUnsupported, tx.Hash().Hex())
		}
	}
	if config != nil && config.IsShanghai(header.Time) && input.Withdrawals == nil {
		return nil, errors.New("core: post-Shanghai block requires a withdrawals list")
	}

	view, err := state.Hydrate(witness, parent)
	if err != nil {
		logger.Error("witness hydration failed", "number", header.Number, "err", err)
		return nil, fmt.Errorf("hydrate witness: %w", err)
	}

	processor := NewStateProcessor(config, interp)
	processor.SetGetHash(func(n uint64) (types.Hash, error) { return view.BlockHash(n) })
	receipts, err := processor.Process(view, header, input.Transactions)
	if err != nil {
		logger.Error("transaction execution failed", "number", header.Number, "err", err)
		return nil, fmt.Errorf("execute transactions: %w", err)
	}

	if err := ApplyWithdrawals(view, input.Withdrawals); err != nil {
		return nil, fmt.Errorf("apply withdrawals: %w", err)
	}

	stateRoot, err := view.Finalize()
	if err != nil {
		return nil, fmt.Errorf("finalize state: %w", err)
	}

	var cumulativeGasUsed uint64
	if n := len(receipts); n > 0 {
		cumulativeGasUsed = receipts[n-1].CumulativeGasUsed
	}

	header.Root = stateRoot
	header.TxHash = txRoot(input.Transactions)
	header.ReceiptHash = receiptRoot(receipts)
	header.Bloom = types.CreateBloom(receipts)
	header.GasUsed = cumulativeGasUsed
	if config == nil || config.IsShanghai(header.Time) {
		wr := withdrawalsRoot(input.Withdrawals)
		header.WithdrawalsHash = &wr
	}

	if header.GasUsed > header.GasLimit {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidGasUsed, header.GasUsed, header.GasLimit)
	}

	types.DeriveReceiptFields(receipts, header.Hash(), header.Number.Uint64(), header.BaseFee, input.Transactions)

	logger.Info("block executed", "number", header.Number, "hash", header.Hash().Hex(), "txs", len(input.Transactions), "gasUsed", header.GasUsed)

	return &BlockResult{
		Header:    header,
		BlockHash: header.Hash(),
		Receipts:  receipts,
	}, nil
}

// BuildHeader constructs the candidate header for parent's successor block
// from the witness-declared input fields, per 4.3: parent linkage and
// number are derived, consensus fields for the post-merge, pre-blob era are
// fixed to their canonical values, and the base fee is computed from the
// parent via EIP-1559.
func BuildHeader(config *ChainConfig, parent *types.Header, input *BlockInput) (*types.Header, error) {
	if parent.Number == nil {
		return nil, errors.New("core: parent header missing number")
	}
	number := new(big.Int).Add(parent.Number, big.NewInt(1))
	if !number.IsUint64() {
		return nil, ErrNumberOverflow
	}
	if len(input.Extra) > MaxExtraDataSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrExtraDataTooLong, len(input.Extra), MaxExtraDataSize)
	}

	return &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Coinbase:   input.Coinbase,
		Difficulty: new(big.Int),
		Number:     number,
		GasLimit:   input.GasLimit,
		Time:       input.Time,
		Extra:      input.Extra,
		MixDigest:  input.MixDigest,
		BaseFee:    CalcBaseFee(parent),
	}, nil
}

// ApplyWithdrawals credits every withdrawal's amount (in Gwei) to its
// target address, creating the account if the witness never declared it,
// and commits the result to view. Per 4.5, withdrawals consume no gas and
// produce no receipts.
func ApplyWithdrawals(view *state.View, withdrawals []*types.Withdrawal) error {
	credits, err := types.ProcessWithdrawals(withdrawals)
	if err != nil {
		return err
	}
	if len(credits) == 0 {
		return nil
	}

	var gweiToWei uint256.Int
	gweiToWei.SetUint64(1_000_000_000)

	delta := make(map[types.Address]*vm.AccountDelta, len(credits))
	for addr, gwei := range credits {
		acct, err := view.Basic(addr)
		if err != nil {
			if !errors.Is(err, state.ErrUnknownAccount) {
				return fmt.Errorf("read account %s: %w", addr.Hex(), err)
			}
			acct = types.NewAccount()
		}
		var bal uint256.Int
		if acct.Balance != nil {
			bal.SetFromBig(acct.Balance)
		}
		var amount uint256.Int
		amount.SetUint64(gwei)
		amount.Mul(&amount, &gweiToWei)
		if overflow := bal.AddOverflow(&bal, &amount); overflow {
			return fmt.Errorf("balance overflow crediting withdrawal to %s", addr.Hex())
		}
		delta[addr] = &vm.AccountDelta{
			Address:  addr,
			Nonce:    acct.Nonce,
			Balance:  bal,
			CodeHash: types.BytesToHash(acct.CodeHash),
		}
	}
	return view.Commit(delta)
}

// txRoot, receiptRoot and withdrawalsRoot build the ordered Merkle-Patricia
// trie root over each list's canonical per-item RLP encoding (4.6). The same
// trie.OrderedRoot construction backs all three; none of the teacher's
// linear-hash or binary-Merkle shortcuts are reused.
func txRoot(txs []*types.Transaction) types.Hash {
	items := make([][]byte, len(txs))
	for i, tx := range txs {
		enc, err := tx.EncodeRLP()
		if err != nil {
			panic("core: encode transaction for root: " + err.Error())
		}
		items[i] = enc
	}
	return trie.OrderedRoot(items)
}

func receiptRoot(receipts []*types.Receipt) types.Hash {
	items := make([][]byte, len(receipts))
	for i, r := range receipts {
		enc, err := r.EncodeRLP()
		if err != nil {
			panic("core: encode receipt for root: " + err.Error())
		}
		items[i] = enc
	}
	return trie.OrderedRoot(items)
}

func withdrawalsRoot(withdrawals []*types.Withdrawal) types.Hash {
	if len(withdrawals) == 0 {
		return types.EmptyRootHash
	}
	items := make([][]byte, len(withdrawals))
	for i, w := range withdrawals {
		items[i] = types.EncodeWithdrawal(w)
	}
	return trie.OrderedRoot(items)
}
