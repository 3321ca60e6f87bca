package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/eth2028/statelessblock/core/types"
)

// Block validation errors.
var (
	ErrUnknownParent     = errors.New("unknown parent")
	ErrInvalidNumber     = errors.New("invalid block number")
	ErrInvalidGasLimit   = errors.New("invalid gas limit")
	ErrInvalidGasUsed    = errors.New("gas used exceeds gas limit")
	ErrInvalidTimestamp  = errors.New("timestamp before parent")
	ErrExtraDataTooLong  = errors.New("extra data too long")
	ErrInvalidBaseFee    = errors.New("invalid base fee")
	ErrInvalidDifficulty = errors.New("invalid difficulty for post-merge block")
	ErrInvalidUncleHash  = errors.New("invalid uncle hash for post-merge block")
	ErrInvalidNonce      = errors.New("invalid nonce for post-merge block")
	ErrBlobTxUnsupported = errors.New("EIP-4844 blob transactions are not supported")
)

const (
	// MaxExtraDataSize is the maximum allowed extra data in a block header.
	MaxExtraDataSize = 32

	// GasLimitBoundDivisor is the divisor for max gas limit change per block.
	GasLimitBoundDivisor uint64 = 1024

	// MinGasLimit is the minimum gas limit.
	MinGasLimit uint64 = 5000

	// MaxGasLimit is the maximum gas limit (2^63 - 1).
	MaxGasLimit uint64 = 1<<63 - 1

	// ElasticityMultiplier is the EIP-1559 elasticity multiplier.
	ElasticityMultiplier uint64 = 2

	// BaseFeeChangeDenominator is the EIP-1559 base fee change denominator.
	BaseFeeChangeDenominator uint64 = 8
)

// BlockValidator validates block headers and bodies against the consensus
// rules of a single fixed fork: post-merge, pre-Cancun (Shanghai semantics).
// EIP-4844 blob transactions are detected and rejected rather than
// interpreted, per this repository's scope.
type BlockValidator struct {
	config *ChainConfig
}

// NewBlockValidator creates a new block validator.
func NewBlockValidator(config *ChainConfig) *BlockValidator {
	return &BlockValidator{config: config}
}

// ValidateHeader checks whether header is a legal child of parent: parent
// linkage, monotonic timestamp, sequential number, bounded gas limit
// change, gas used within limit, post-merge consensus fields, and the
// EIP-1559 base fee.
func (v *BlockValidator) ValidateHeader(header, parent *types.Header) error {
	if header.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: want %v, got %v", ErrUnknownParent, parent.Hash(), header.ParentHash)
	}

	if len(header.Extra) > MaxExtraDataSize {
		return fmt.Errorf("%w: %d > %d", ErrExtraDataTooLong, len(header.Extra), MaxExtraDataSize)
	}

	if header.Time < parent.Time {
		return fmt.Errorf("%w: child %d < parent %d", ErrInvalidTimestamp, header.Time, parent.Time)
	}

	expected := new(big.Int).Add(parent.Number, big.NewInt(1))
	if header.Number.Cmp(expected) != 0 {
		return fmt.Errorf("%w: want %v, got %v", ErrInvalidNumber, expected, header.Number)
	}

	if err := verifyGasLimit(parent.GasLimit, header.GasLimit); err != nil {
		return err
	}

	if header.GasUsed > header.GasLimit {
		return fmt.Errorf("%w: %d > %d", ErrInvalidGasUsed, header.GasUsed, header.GasLimit)
	}

	if err := verifyPostMerge(header); err != nil {
		return err
	}

	if header.BaseFee != nil {
		expectedBaseFee := CalcBaseFee(parent)
		if header.BaseFee.Cmp(expectedBaseFee) != 0 {
			return fmt.Errorf("%w: want %v, got %v", ErrInvalidBaseFee, expectedBaseFee, header.BaseFee)
		}
	}

	return nil
}

// ValidateBody checks the block body against the header: no uncles
// post-merge, and a present withdrawals list for post-Shanghai blocks.
// Any transaction of EIP-4844 blob type fails fast rather than being
// silently skipped.
func (v *BlockValidator) ValidateBody(block *types.Block) error {
	header := block.Header()

	if len(block.Uncles()) > 0 {
		return ErrInvalidUncleHash
	}

	for _, tx := range block.Transactions() {
		if tx.Type() == types.BlobTxType {
			return fmt.Errorf("%w: tx %s", ErrBlobTxUnsupported, tx.Hash().Hex())
		}
	}

	if v.config != nil && v.config.IsShanghai(header.Time) {
		if block.Withdrawals() == nil {
			return errors.New("post-Shanghai block missing withdrawals")
		}
	}

	return nil
}

// verifyGasLimit checks that the gas limit change is within bounds.
func verifyGasLimit(parentGasLimit, headerGasLimit uint64) error {
	if headerGasLimit < MinGasLimit {
		return fmt.Errorf("%w: %d < minimum %d", ErrInvalidGasLimit, headerGasLimit, MinGasLimit)
	}
	if headerGasLimit > MaxGasLimit {
		return fmt.Errorf("%w: %d > maximum %d", ErrInvalidGasLimit, headerGasLimit, MaxGasLimit)
	}

	var diff uint64
	if headerGasLimit < parentGasLimit {
		diff = parentGasLimit - headerGasLimit
	} else {
		diff = headerGasLimit - parentGasLimit
	}
	limit := parentGasLimit / GasLimitBoundDivisor
	if diff >= limit {
		return fmt.Errorf("%w: change %d exceeds limit %d", ErrInvalidGasLimit, diff, limit)
	}
	return nil
}

// verifyPostMerge checks that post-merge consensus fields are correct.
func verifyPostMerge(header *types.Header) error {
	if header.Difficulty != nil && header.Difficulty.Sign() != 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidDifficulty, header.Difficulty)
	}
	if header.Nonce != (types.BlockNonce{}) {
		return fmt.Errorf("%w: got %v", ErrInvalidNonce, header.Nonce)
	}
	if header.UncleHash != (types.Hash{}) && header.UncleHash != types.EmptyUncleHash {
		return fmt.Errorf("%w: got %v", ErrInvalidUncleHash, header.UncleHash)
	}
	return nil
}
