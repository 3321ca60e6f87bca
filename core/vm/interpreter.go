// Package vm defines the narrow collaborator contract between the stateless
// block core and the EVM that actually executes transaction bytecode. Opcode
// semantics are treated as a black box: this package only fixes the shapes
// that cross that boundary (block/tx environment, the state-access
// capability, and the transact result) plus one minimal interpreter that
// implements value-transfer-only transactions, sufficient to drive the core
// end to end without claiming full EVM conformance.
package vm

import (
	"errors"
	"math/big"

	"github.com/eth2028/statelessblock/core/types"
	"github.com/holiman/uint256"
)

var (
	// ErrNoCode is returned by the minimal interpreter when a transaction
	// targets contract code; full opcode execution is out of scope here.
	ErrNoCode = errors.New("vm: contract code execution not supported by the minimal interpreter")
	// ErrInsufficientBalance is returned when the sender cannot cover value + gas.
	ErrInsufficientBalance = errors.New("vm: insufficient balance for transfer")
)

// GetHashFunc returns the hash of the ancestor block with the given number.
type GetHashFunc func(uint64) (types.Hash, error)

// BlockContext carries the block-level environment, set once per block.
type BlockContext struct {
	GetHash    GetHashFunc
	BlockNumber uint64
	Time        uint64
	Coinbase    types.Address
	GasLimit    uint64
	BaseFee     *big.Int
	PrevRandao  types.Hash
}

// TxContext carries the transaction-level environment, set once per tx.
type TxContext struct {
	Origin     types.Address
	GasPrice   *big.Int
	AccessList types.AccessList
}

// Database is the narrow state-access capability the interpreter is given.
// It is intentionally smaller than a full StateDB: the stateless core's
// State View is closed-world and does not support arbitrary code lookups.
type Database interface {
	// Basic returns the hydrated account for addr. Returns an error if addr
	// was not pre-declared in the witness.
	Basic(addr types.Address) (types.Account, error)
	// Storage returns the value at (addr, slot). Returns an error if the
	// slot was not pre-declared and the account is not StorageCleared.
	Storage(addr types.Address, slot types.Hash) (uint256.Int, error)
	// BlockHash resolves an ancestor block hash. A miss is fatal.
	BlockHash(number uint64) (types.Hash, error)
	// CodeByHash must not be called against a closed-world view; bytecode
	// is expected to travel with the account via Basic.
	CodeByHash(hash types.Hash) ([]byte, error)
}

// StorageWrite is a single post-transaction slot mutation.
type StorageWrite struct {
	Slot  types.Hash
	Value uint256.Int
}

// AccountDelta is the post-transaction state of one touched account, as
// produced by Transact and applied to the State View via Commit.
type AccountDelta struct {
	Address         types.Address
	Nonce           uint64
	Balance         uint256.Int
	Code            []byte
	CodeHash        types.Hash
	StorageWrites   []StorageWrite
	StorageCleared  bool
	SelfDestructed  bool
}

// Result is what Transact returns: the outcome of one transaction.
type Result struct {
	Success    bool
	GasUsed    uint64
	ReturnData []byte
	Logs       []*types.Log
	StateDelta map[types.Address]*AccountDelta
}

// Interpreter is the black-box collaborator. A conforming implementation
// obeys standard Ethereum opcode semantics for a fixed hard-fork; this
// package ships one minimal implementation (below) that only handles plain
// value transfers, enough to exercise the core end to end.
type Interpreter interface {
	SetBlockContext(ctx BlockContext)
	Transact(txCtx TxContext, db Database, msg Message) (*Result, error)
}

// Message is the interpreter-facing view of a transaction, independent of
// its wire encoding/type. See core.TransactionToMessage for the conversion.
type Message struct {
	From      types.Address
	To        *types.Address
	Nonce     uint64
	Value     *uint256.Int
	GasLimit  uint64
	GasPrice  *big.Int
	Data      []byte
}

// MinimalInterpreter implements Interpreter for plain value transfers only.
// Any message with non-empty Data directed at an account that already has
// code is rejected with ErrNoCode: executing that code is the job of a real
// EVM, which this repository does not ship.
type MinimalInterpreter struct {
	blockCtx BlockContext
}

// NewMinimalInterpreter constructs an interpreter with no block context set;
// call SetBlockContext before the first Transact.
func NewMinimalInterpreter() *MinimalInterpreter {
	return &MinimalInterpreter{}
}

func (m *MinimalInterpreter) SetBlockContext(ctx BlockContext) {
	m.blockCtx = ctx
}

// Transact performs intrinsic-gas accounting and a balance transfer. It
// never executes bytecode: a message with non-empty Data sent to an account
// with code, or a contract creation with non-empty init code, returns
// ErrNoCode. A message with empty Data sent to an account with code is
// applied as a plain value transfer and no code runs.
func (m *MinimalInterpreter) Transact(txCtx TxContext, db Database, msg Message) (*Result, error) {
	sender, err := db.Basic(msg.From)
	if err != nil {
		return nil, err
	}
	if sender.Nonce != msg.Nonce {
		return nil, errors.New("vm: nonce mismatch")
	}

	gasUsed := intrinsicGas(msg.Data, msg.To == nil, txCtx.AccessList)
	if gasUsed > msg.GasLimit {
		return nil, errors.New("vm: intrinsic gas exceeds gas limit")
	}

	cost := new(big.Int).Mul(msg.GasPrice, new(big.Int).SetUint64(msg.GasLimit))
	if msg.Value != nil {
		cost.Add(cost, msg.Value.ToBig())
	}
	var spent uint256.Int
	if _, overflow := spent.SetFromBig(cost); overflow {
		return nil, errors.New("vm: transaction cost overflows 256 bits")
	}

	senderBal := accountBalance(sender)
	if senderBal.Lt(&spent) {
		return nil, ErrInsufficientBalance
	}
	var newSenderBal uint256.Int
	newSenderBal.Sub(&senderBal, &spent)

	delta := make(map[types.Address]*AccountDelta)
	delta[msg.From] = &AccountDelta{
		Address:  msg.From,
		Nonce:    sender.Nonce + 1,
		Balance:  newSenderBal,
		CodeHash: types.BytesToHash(sender.CodeHash),
	}

	if msg.To != nil {
		if *msg.To != msg.From {
			recipient, err := db.Basic(*msg.To)
			if err != nil {
				recipient = types.NewAccount()
			}
			recipientCodeHash := types.BytesToHash(recipient.CodeHash)
			hasCode := recipientCodeHash != types.EmptyCodeHash && recipientCodeHash != (types.Hash{})
			if hasCode && len(msg.Data) > 0 {
				return nil, ErrNoCode
			}
			recipientBal := accountBalance(recipient)
			if msg.Value != nil {
				if overflow := recipientBal.AddOverflow(&recipientBal, msg.Value); overflow {
					return nil, errors.New("vm: recipient balance overflow")
				}
			}
			delta[*msg.To] = &AccountDelta{
				Address:  *msg.To,
				Nonce:    recipient.Nonce,
				Balance:  recipientBal,
				CodeHash: recipientCodeHash,
			}
		} else if msg.Value != nil {
			// Self-transfer: value nets to zero against the sender entry above.
			newSenderBal.Add(&newSenderBal, msg.Value)
			delta[msg.From].Balance = newSenderBal
		}
	} else if len(msg.Data) > 0 {
		return nil, ErrNoCode
	}

	return &Result{
		Success:    true,
		GasUsed:    gasUsed,
		StateDelta: delta,
	}, nil
}

func accountBalance(acct types.Account) uint256.Int {
	var bal uint256.Int
	if acct.Balance != nil {
		bal.SetFromBig(acct.Balance)
	}
	return bal
}

// intrinsicGas computes the EIP-2930/3860 Shanghai-era intrinsic gas floor.
const (
	txGas                   = 21000
	txGasContractCreation   = 53000
	txDataZeroGas           = 4
	txDataNonZeroGasEIP2028 = 16
	txAccessListAddressGas  = 2400
	txAccessListStorageGas  = 1900
	initCodeWordGas         = 2
)

func intrinsicGas(data []byte, isCreate bool, accessList types.AccessList) uint64 {
	var gas uint64 = txGas
	if isCreate {
		gas = txGasContractCreation
	}
	var zeros, nonZeros uint64
	for _, b := range data {
		if b == 0 {
			zeros++
		} else {
			nonZeros++
		}
	}
	gas += zeros * txDataZeroGas
	gas += nonZeros * txDataNonZeroGasEIP2028
	if isCreate {
		words := (uint64(len(data)) + 31) / 32
		gas += words * initCodeWordGas
	}
	for _, entry := range accessList {
		gas += txAccessListAddressGas
		gas += uint64(len(entry.StorageKeys)) * txAccessListStorageGas
	}
	return gas
}
