package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/eth2028/statelessblock/core/state"
	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/core/vm"
	"github.com/eth2028/statelessblock/crypto"
	"github.com/holiman/uint256"
)

// Shanghai-era intrinsic gas constants (EIP-2930 access lists, EIP-3860
// init-code word gas). These are a pre-check the Executor performs before
// handing a transaction to the interpreter; the interpreter meters its own
// intrinsic gas internally, but duplicating the floor here lets a malformed
// transaction fail fast with a precise error instead of an opaque interpreter
// rejection.
const (
	TxGas                  uint64 = 21000
	TxGasContractCreation  uint64 = 53000
	TxDataZeroGas          uint64 = 4
	TxDataNonZeroGas       uint64 = 16
	TxAccessListAddressGas uint64 = 2400
	TxAccessListStorageGas uint64 = 1900
	InitCodeWordGas        uint64 = 2
)

var (
	ErrNonceTooLow         = errors.New("nonce too low")
	ErrNonceTooHigh        = errors.New("nonce too high")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrGasLimitExceeded    = errors.New("gas limit exceeded")
	ErrIntrinsicGasTooLow  = errors.New("intrinsic gas too low")
	ErrFeeCapTooLow        = errors.New("max fee per gas below block base fee")
	ErrTipAboveFeeCap      = errors.New("max priority fee per gas above max fee per gas")
	ErrMissingSender       = errors.New("transaction signature could not be recovered")
)

// StateProcessor executes a block's transactions sequentially against a
// State View, producing one receipt per transaction.
type StateProcessor struct {
	config  *ChainConfig
	interp  vm.Interpreter
	getHash vm.GetHashFunc
}

// NewStateProcessor creates a processor that drives interp against view,
// using config for chain id and fee-cap validation.
func NewStateProcessor(config *ChainConfig, interp vm.Interpreter) *StateProcessor {
	return &StateProcessor{config: config, interp: interp}
}

// SetGetHash sets the block hash lookup function forwarded to the
// interpreter's block context.
func (p *StateProcessor) SetGetHash(fn vm.GetHashFunc) {
	p.getHash = fn
}

// Process executes every transaction in block against view, in order,
// returning the per-transaction receipts. Gas accounting is tracked in a
// single block-wide GasPool seeded from the header's gas limit.
func (p *StateProcessor) Process(view *state.View, header *types.Header, txs []*types.Transaction) ([]*types.Receipt, error) {
	p.interp.SetBlockContext(vm.BlockContext{
		GetHash:     p.getHash,
		BlockNumber: header.Number.Uint64(),
		Time:        header.Time,
		Coinbase:    header.Coinbase,
		GasLimit:    header.GasLimit,
		BaseFee:     header.BaseFee,
		PrevRandao:  header.MixDigest,
	})

	gasPool := new(GasPool).AddGas(header.GasLimit)
	receipts := make([]*types.Receipt, 0, len(txs))
	var cumulativeGasUsed uint64

	for i, tx := range txs {
		receipt, gasUsed, err := p.applyTransaction(view, header, tx, gasPool)
		if err != nil {
			return nil, fmt.Errorf("tx %d [%s]: %w", i, tx.Hash().Hex(), err)
		}
		cumulativeGasUsed += gasUsed
		receipt.CumulativeGasUsed = cumulativeGasUsed
		receipt.TransactionIndex = uint(i)
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

// applyTransaction recovers the sender, runs the block-gas guard and
// intrinsic-gas/fee-cap pre-checks, invokes the interpreter, settles gas
// refunds and the coinbase tip, and commits the resulting delta to view.
func (p *StateProcessor) applyTransaction(view *state.View, header *types.Header, tx *types.Transaction, gp *GasPool) (*types.Receipt, uint64, error) {
	if tx.Type() == types.BlobTxType {
		return nil, 0, ErrBlobTxUnsupported
	}

	if tx.Sender() == nil {
		chainID := uint64(1)
		if p.config != nil && p.config.ChainID != nil {
			chainID = p.config.ChainID.Uint64()
		}
		recovered, err := types.MakeSigner(chainID, tx.Type()).Sender(tx)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMissingSender, err)
		}
		tx.SetSender(recovered)
	}
	env := TransactionToMessage(tx)

	if err := gp.SubGas(tx.Gas()); err != nil {
		return nil, 0, err
	}

	if err := checkFeeCap(env, header.BaseFee); err != nil {
		gp.AddGas(tx.Gas())
		return nil, 0, err
	}

	igas := intrinsicGas(env.Data, env.To == nil, env.AccessList)
	if env.GasLimit < igas {
		gp.AddGas(tx.Gas())
		return nil, 0, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGasTooLow, env.GasLimit, igas)
	}

	gasPrice := effectiveGasPrice(env, header.BaseFee)

	value := new(uint256.Int)
	if _, overflow := value.SetFromBig(env.Value); overflow {
		gp.AddGas(tx.Gas())
		return nil, 0, errors.New("core: transaction value overflows 256 bits")
	}

	msg := vm.Message{
		From:     env.From,
		To:       env.To,
		Nonce:    env.Nonce,
		Value:    value,
		GasLimit: env.GasLimit,
		GasPrice: gasPrice,
		Data:     env.Data,
	}
	txCtx := vm.TxContext{Origin: env.From, GasPrice: gasPrice, AccessList: env.AccessList}

	vmResult, err := p.interp.Transact(txCtx, view, msg)
	if err != nil {
		gp.AddGas(tx.Gas())
		return nil, 0, err
	}
	result := toExecutionResult(env, vmResult)

	if err := settleGasAccounting(view, header, msg, gasPrice, vmResult); err != nil {
		return nil, 0, err
	}
	if err := view.Commit(vmResult.StateDelta); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}

	gp.AddGas(tx.Gas() - result.UsedGas)

	status := types.ReceiptStatusSuccessful
	if result.Failed() {
		status = types.ReceiptStatusFailed
	}
	receipt := types.NewReceipt(status, result.UsedGas)
	receipt.Type = tx.Type()
	receipt.TxHash = tx.Hash()
	receipt.GasUsed = result.UsedGas
	receipt.EffectiveGasPrice = gasPrice
	receipt.Logs = vmResult.Logs
	receipt.Bloom = types.LogsBloom(receipt.Logs)
	if env.To == nil && !result.Failed() {
		receipt.ContractAddress = result.ContractAddress
	}

	return receipt, result.UsedGas, nil
}

// toExecutionResult translates the interpreter's raw vm.Result into the
// caller-facing ExecutionResult, computing the deployed contract address
// for a creation transaction since the interpreter only reports deltas.
func toExecutionResult(env Message, vmResult *vm.Result) *ExecutionResult {
	result := &ExecutionResult{
		UsedGas:    vmResult.GasUsed,
		ReturnData: vmResult.ReturnData,
	}
	if !vmResult.Success {
		result.Err = errors.New("core: transaction execution failed")
	}
	if env.To == nil {
		result.ContractAddress = crypto.CreateAddress(env.From, env.Nonce)
	}
	return result
}

// settleGasAccounting credits the sender's unused gas back and the
// coinbase's priority-fee tip, mutating result.StateDelta in place so a
// single view.Commit call applies the whole transaction atomically. The
// base-fee portion of gasUsed is burned: it is charged to the sender by the
// interpreter but credited to no one, matching EIP-1559.
func settleGasAccounting(view *state.View, header *types.Header, msg vm.Message, gasPrice *big.Int, result *vm.Result) error {
	senderDelta, ok := result.StateDelta[msg.From]
	if !ok {
		return fmt.Errorf("core: interpreter result missing sender delta for %s", msg.From.Hex())
	}

	gasLeft := msg.GasLimit - result.GasUsed
	if gasLeft > 0 {
		refund := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLeft))
		var refundU256 uint256.Int
		if _, overflow := refundU256.SetFromBig(refund); overflow {
			return errors.New("core: gas refund overflows 256 bits")
		}
		senderDelta.Balance.Add(&senderDelta.Balance, &refundU256)
	}

	if header.BaseFee == nil || header.BaseFee.Sign() <= 0 {
		return nil
	}
	tip := new(big.Int).Sub(gasPrice, header.BaseFee)
	if tip.Sign() <= 0 {
		return nil
	}
	tipAmount := new(big.Int).Mul(tip, new(big.Int).SetUint64(result.GasUsed))
	var tipU256 uint256.Int
	if _, overflow := tipU256.SetFromBig(tipAmount); overflow {
		return errors.New("core: coinbase tip overflows 256 bits")
	}

	if coinbaseDelta, ok := result.StateDelta[header.Coinbase]; ok {
		coinbaseDelta.Balance.Add(&coinbaseDelta.Balance, &tipU256)
		return nil
	}

	coinbase, err := view.Basic(header.Coinbase)
	if err != nil {
		if !errors.Is(err, state.ErrUnknownAccount) {
			return fmt.Errorf("core: read coinbase %s: %w", header.Coinbase.Hex(), err)
		}
		coinbase = types.NewAccount()
	}
	var coinbaseBal uint256.Int
	if coinbase.Balance != nil {
		coinbaseBal.SetFromBig(coinbase.Balance)
	}
	coinbaseBal.Add(&coinbaseBal, &tipU256)
	result.StateDelta[header.Coinbase] = &vm.AccountDelta{
		Address:  header.Coinbase,
		Nonce:    coinbase.Nonce,
		Balance:  coinbaseBal,
		CodeHash: types.BytesToHash(coinbase.CodeHash),
	}
	return nil
}

// checkFeeCap validates EIP-1559 fee-cap/tip-cap ordering against the
// block's base fee for dynamic-fee (and later) transaction types. Legacy
// and EIP-2930 transactions carry a single gas price and are exempt.
func checkFeeCap(env Message, baseFee *big.Int) error {
	if env.TxType < types.DynamicFeeTxType || baseFee == nil || baseFee.Sign() <= 0 {
		return nil
	}
	feeCap, tipCap := env.GasFeeCap, env.GasTipCap
	if feeCap != nil && tipCap != nil && feeCap.Cmp(tipCap) < 0 {
		return fmt.Errorf("%w: tip %s, cap %s", ErrTipAboveFeeCap, tipCap, feeCap)
	}
	if feeCap != nil && feeCap.Cmp(baseFee) < 0 {
		return fmt.Errorf("%w: fee cap %s, base fee %s", ErrFeeCapTooLow, feeCap, baseFee)
	}
	return nil
}

// EffectiveGasPrice computes the price actually paid per unit gas under
// EIP-1559: min(feeCap, baseFee+tipCap) for dynamic-fee transactions, or the
// flat gas price for legacy/access-list transactions.
func EffectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	return effectiveGasPrice(TransactionToMessage(tx), baseFee)
}

func effectiveGasPrice(env Message, baseFee *big.Int) *big.Int {
	if env.TxType < types.DynamicFeeTxType || baseFee == nil || baseFee.Sign() <= 0 {
		if env.GasPrice != nil {
			return new(big.Int).Set(env.GasPrice)
		}
		return new(big.Int)
	}
	tip := env.GasTipCap
	if tip == nil {
		tip = new(big.Int)
	}
	feeCap := env.GasFeeCap
	if feeCap == nil {
		return new(big.Int).Set(baseFee)
	}
	price := new(big.Int).Add(baseFee, tip)
	if price.Cmp(feeCap) > 0 {
		price.Set(feeCap)
	}
	return price
}

// intrinsicGas computes the Shanghai-era intrinsic gas floor: the base
// transaction cost, calldata byte costs, EIP-3860 init-code word gas for
// contract creation, and EIP-2930 access-list costs.
func intrinsicGas(data []byte, isCreate bool, accessList types.AccessList) uint64 {
	gas := TxGas
	if isCreate {
		gas = TxGasContractCreation
	}
	var zero, nonZero uint64
	for _, b := range data {
		if b == 0 {
			zero++
		} else {
			nonZero++
		}
	}
	gas += zero*TxDataZeroGas + nonZero*TxDataNonZeroGas
	if isCreate {
		words := (uint64(len(data)) + 31) / 32
		gas += words * InitCodeWordGas
	}
	for _, tuple := range accessList {
		gas += TxAccessListAddressGas
		gas += uint64(len(tuple.StorageKeys)) * TxAccessListStorageGas
	}
	return gas
}
