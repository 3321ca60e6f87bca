package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/eth2028/statelessblock/core/types"
)

func childHeader(t *testing.T, parent *types.Header) *types.Header {
	t.Helper()
	input := &BlockInput{GasLimit: parent.GasLimit, Time: parent.Time + 12}
	header, err := BuildHeader(TestConfig, parent, input)
	if err != nil {
		t.Fatalf("build header: %v", err)
	}
	return header
}

func TestValidateHeaderAcceptsValidChild(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); err != nil {
		t.Fatalf("validate header: %v", err)
	}
}

func TestValidateHeaderRejectsWrongParentHash(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)
	header.ParentHash = types.Hash{0x01}

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); !errors.Is(err, ErrUnknownParent) {
		t.Fatalf("want ErrUnknownParent, got %v", err)
	}
}

func TestValidateHeaderAcceptsEqualTimestamp(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)
	header.Time = parent.Time

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); err != nil {
		t.Fatalf("equal timestamp should be accepted, got %v", err)
	}
}

func TestValidateHeaderRejectsTimestampBeforeParent(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	parent.Time = 1000
	header := childHeader(t, parent)
	header.Time = parent.Time - 1

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("want ErrInvalidTimestamp, got %v", err)
	}
}

func TestValidateHeaderRejectsWrongNumber(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)
	header.Number = new(big.Int).Add(parent.Number, big.NewInt(2))

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("want ErrInvalidNumber, got %v", err)
	}
}

func TestValidateHeaderRejectsExcessiveGasLimitChange(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)
	header.GasLimit = parent.GasLimit * 2

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); !errors.Is(err, ErrInvalidGasLimit) {
		t.Fatalf("want ErrInvalidGasLimit, got %v", err)
	}
}

func TestValidateHeaderRejectsGasUsedOverLimit(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)
	header.GasUsed = header.GasLimit + 1

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); !errors.Is(err, ErrInvalidGasUsed) {
		t.Fatalf("want ErrInvalidGasUsed, got %v", err)
	}
}

func TestValidateHeaderRejectsNonzeroDifficulty(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)
	header.Difficulty = big.NewInt(1)

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatalf("want ErrInvalidDifficulty, got %v", err)
	}
}

func TestValidateHeaderRejectsWrongBaseFee(t *testing.T) {
	parent := TestGenesisBlock().ToBlock().Header()
	header := childHeader(t, parent)
	header.BaseFee = new(big.Int).Add(header.BaseFee, big.NewInt(1))

	if err := NewBlockValidator(TestConfig).ValidateHeader(header, parent); !errors.Is(err, ErrInvalidBaseFee) {
		t.Fatalf("want ErrInvalidBaseFee, got %v", err)
	}
}

func TestValidateBodyRejectsUncles(t *testing.T) {
	header := TestGenesisBlock().ToBlock().Header()
	block := types.NewBlock(header, &types.Body{Uncles: []*types.Header{{}}})

	if err := NewBlockValidator(TestConfig).ValidateBody(block); !errors.Is(err, ErrInvalidUncleHash) {
		t.Fatalf("want ErrInvalidUncleHash, got %v", err)
	}
}

func TestValidateBodyRejectsBlobTx(t *testing.T) {
	header := TestGenesisBlock().ToBlock().Header()
	tx := types.NewTransaction(&types.BlobTx{ChainID: TestConfig.ChainID, Gas: 21000})
	block := types.NewBlock(header, &types.Body{Transactions: []*types.Transaction{tx}, Withdrawals: []*types.Withdrawal{}})

	if err := NewBlockValidator(TestConfig).ValidateBody(block); !errors.Is(err, ErrBlobTxUnsupported) {
		t.Fatalf("want ErrBlobTxUnsupported, got %v", err)
	}
}

func TestValidateBodyRequiresWithdrawalsPostShanghai(t *testing.T) {
	header := TestGenesisBlock().ToBlock().Header()
	block := types.NewBlock(header, &types.Body{})

	if err := NewBlockValidator(TestConfig).ValidateBody(block); err == nil {
		t.Fatal("expected missing withdrawals list to be rejected")
	}
}

func TestValidateBodyAcceptsEmptyWithdrawalsList(t *testing.T) {
	header := TestGenesisBlock().ToBlock().Header()
	block := types.NewBlock(header, &types.Body{Withdrawals: []*types.Withdrawal{}})

	if err := NewBlockValidator(TestConfig).ValidateBody(block); err != nil {
		t.Fatalf("validate body: %v", err)
	}
}
