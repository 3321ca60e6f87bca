package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/eth2028/statelessblock/core/state"
	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/core/vm"
	"github.com/eth2028/statelessblock/crypto"
	"github.com/eth2028/statelessblock/rlp"
	"github.com/eth2028/statelessblock/trie"
)

// mapNodeWriter accumulates committed trie nodes into a plain map.
type mapNodeWriter struct{ nodes map[types.Hash][]byte }

func (w *mapNodeWriter) Put(hash types.Hash, data []byte) error {
	w.nodes[hash] = data
	return nil
}

func encodeTestAccount(acct types.Account) []byte {
	type rlpAcct struct {
		Nonce    uint64
		Balance  *big.Int
		Root     []byte
		CodeHash []byte
	}
	bal := acct.Balance
	if bal == nil {
		bal = new(big.Int)
	}
	root := acct.Root
	if root == (types.Hash{}) {
		root = types.EmptyRootHash
	}
	data, _ := rlp.EncodeToBytes(rlpAcct{Nonce: acct.Nonce, Balance: bal, Root: root.Bytes(), CodeHash: acct.CodeHash})
	return data
}

// buildWitness builds a witness containing exactly the supplied accounts,
// with no storage and no ancestor hashes.
func buildWitness(t *testing.T, accounts map[types.Address]types.Account) *state.Witness {
	t.Helper()

	stateTrie := trie.New()
	for addr, acct := range accounts {
		if err := stateTrie.Put(crypto.Keccak256(addr.Bytes()), encodeTestAccount(acct)); err != nil {
			t.Fatalf("state put: %v", err)
		}
	}
	stateDB := trie.NewNodeDatabase(nil)
	root, err := trie.CommitTrie(stateTrie, stateDB)
	if err != nil {
		t.Fatalf("commit state trie: %v", err)
	}
	writer := &mapNodeWriter{nodes: make(map[types.Hash][]byte)}
	if err := stateDB.Commit(writer); err != nil {
		t.Fatalf("flush nodes: %v", err)
	}

	return &state.Witness{
		ParentStateRoot: root,
		Nodes:           writer.nodes,
		Accounts:        accounts,
		Codes:           map[types.Hash][]byte{},
	}
}

// buildView hydrates a witness containing exactly the supplied accounts,
// suitable for processor tests that only exercise balance/nonce/gas
// bookkeeping. No parent header is supplied since these tests never call
// View.BlockHash.
func buildView(t *testing.T, accounts map[types.Address]types.Account) *state.View {
	t.Helper()
	view, err := state.Hydrate(buildWitness(t, accounts), nil)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	return view
}

func legacyTx(nonce uint64, to types.Address, value, gasPrice *big.Int, gas uint64) *types.Transaction {
	tx := types.NewTransaction(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
	})
	return tx
}

func TestProcessSimpleValueTransfer(t *testing.T) {
	sender := types.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := types.HexToAddress("0x2222222222222222222222222222222222222222")
	coinbase := types.HexToAddress("0x3333333333333333333333333333333333333333")

	view := buildView(t, map[types.Address]types.Account{
		sender:    {Nonce: 0, Balance: big.NewInt(1_000_000_000_000), CodeHash: types.EmptyCodeHash.Bytes(), Root: types.EmptyRootHash},
		recipient: types.NewAccount(),
	})

	tx := legacyTx(0, recipient, big.NewInt(1000), big.NewInt(10), 21000)
	tx.SetSender(sender)

	header := &types.Header{
		Number:   big.NewInt(1),
		GasLimit: 30_000_000,
		Coinbase: coinbase,
		BaseFee:  nil,
	}

	proc := NewStateProcessor(TestConfig, vm.NewMinimalInterpreter())
	proc.SetGetHash(func(uint64) (types.Hash, error) { return types.Hash{}, errors.New("no ancestors") })

	receipts, err := proc.Process(view, header, []*types.Transaction{tx})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("want 1 receipt, got %d", len(receipts))
	}
	if receipts[0].Status != types.ReceiptStatusSuccessful {
		t.Fatalf("want success, got status %d", receipts[0].Status)
	}

	recipientAcct, err := view.Basic(recipient)
	if err != nil {
		t.Fatalf("recipient basic: %v", err)
	}
	if recipientAcct.Balance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("recipient balance: want 1000, got %s", recipientAcct.Balance)
	}

	senderAcct, err := view.Basic(sender)
	if err != nil {
		t.Fatalf("sender basic: %v", err)
	}
	if senderAcct.Nonce != 1 {
		t.Fatalf("sender nonce: want 1, got %d", senderAcct.Nonce)
	}
	// 1_000_000_000_000 - 1000 - 21000*10
	want := new(big.Int).Sub(big.NewInt(1_000_000_000_000), big.NewInt(1000))
	want.Sub(want, big.NewInt(21000*10))
	if senderAcct.Balance.Cmp(want) != 0 {
		t.Fatalf("sender balance: want %s, got %s", want, senderAcct.Balance)
	}
}

func TestProcessCoinbaseTipWithBaseFee(t *testing.T) {
	sender := types.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := types.HexToAddress("0x2222222222222222222222222222222222222222")
	coinbase := types.HexToAddress("0x4444444444444444444444444444444444444444")

	view := buildView(t, map[types.Address]types.Account{
		sender:    {Nonce: 0, Balance: big.NewInt(1_000_000_000_000), CodeHash: types.EmptyCodeHash.Bytes(), Root: types.EmptyRootHash},
		recipient: types.NewAccount(),
	})

	tx := types.NewTransaction(&types.DynamicFeeTx{
		ChainID:   TestConfig.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(20),
		Gas:       21000,
		To:        &recipient,
		Value:     big.NewInt(500),
	})
	tx.SetSender(sender)

	header := &types.Header{
		Number:   big.NewInt(1),
		GasLimit: 30_000_000,
		Coinbase: coinbase,
		BaseFee:  big.NewInt(10),
	}

	proc := NewStateProcessor(TestConfig, vm.NewMinimalInterpreter())
	proc.SetGetHash(func(uint64) (types.Hash, error) { return types.Hash{}, errors.New("no ancestors") })

	if _, err := proc.Process(view, header, []*types.Transaction{tx}); err != nil {
		t.Fatalf("process: %v", err)
	}

	coinbaseAcct, err := view.Basic(coinbase)
	if err != nil {
		t.Fatalf("coinbase basic: %v", err)
	}
	// effective gas price = min(feeCap, baseFee+tip) = min(20, 12) = 12; tip = 12-10 = 2
	wantTip := new(big.Int).Mul(big.NewInt(2), big.NewInt(21000))
	if coinbaseAcct.Balance.Cmp(wantTip) != 0 {
		t.Fatalf("coinbase tip: want %s, got %s", wantTip, coinbaseAcct.Balance)
	}
}

func TestProcessRejectsBlobTx(t *testing.T) {
	sender := types.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := types.HexToAddress("0x2222222222222222222222222222222222222222")

	view := buildView(t, map[types.Address]types.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000), CodeHash: types.EmptyCodeHash.Bytes(), Root: types.EmptyRootHash},
	})

	tx := types.NewTransaction(&types.BlobTx{
		ChainID: TestConfig.ChainID,
		Nonce:   0,
		Gas:     21000,
		To:      recipient,
	})
	tx.SetSender(sender)

	header := &types.Header{Number: big.NewInt(1), GasLimit: 30_000_000}
	proc := NewStateProcessor(TestConfig, vm.NewMinimalInterpreter())

	if _, err := proc.Process(view, header, []*types.Transaction{tx}); !errors.Is(err, ErrBlobTxUnsupported) {
		t.Fatalf("want ErrBlobTxUnsupported, got %v", err)
	}
}

func TestProcessRejectsIntrinsicGasTooLow(t *testing.T) {
	sender := types.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := types.HexToAddress("0x2222222222222222222222222222222222222222")

	view := buildView(t, map[types.Address]types.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000), CodeHash: types.EmptyCodeHash.Bytes(), Root: types.EmptyRootHash},
	})

	tx := legacyTx(0, recipient, big.NewInt(0), big.NewInt(1), 20000)
	tx.SetSender(sender)

	header := &types.Header{Number: big.NewInt(1), GasLimit: 30_000_000}
	proc := NewStateProcessor(TestConfig, vm.NewMinimalInterpreter())

	if _, err := proc.Process(view, header, []*types.Transaction{tx}); !errors.Is(err, ErrIntrinsicGasTooLow) {
		t.Fatalf("want ErrIntrinsicGasTooLow, got %v", err)
	}
}

func TestProcessRejectsFeeCapBelowBaseFee(t *testing.T) {
	sender := types.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := types.HexToAddress("0x2222222222222222222222222222222222222222")

	view := buildView(t, map[types.Address]types.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000), CodeHash: types.EmptyCodeHash.Bytes(), Root: types.EmptyRootHash},
	})

	tx := types.NewTransaction(&types.DynamicFeeTx{
		ChainID:   TestConfig.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(5),
		Gas:       21000,
		To:        &recipient,
		Value:     big.NewInt(0),
	})
	tx.SetSender(sender)

	header := &types.Header{Number: big.NewInt(1), GasLimit: 30_000_000, BaseFee: big.NewInt(10)}
	proc := NewStateProcessor(TestConfig, vm.NewMinimalInterpreter())

	if _, err := proc.Process(view, header, []*types.Transaction{tx}); !errors.Is(err, ErrFeeCapTooLow) {
		t.Fatalf("want ErrFeeCapTooLow, got %v", err)
	}
}

func TestIntrinsicGasAccountsForAccessListAndInitCode(t *testing.T) {
	accessList := types.AccessList{
		{Address: types.HexToAddress("0x01"), StorageKeys: []types.Hash{{}, {}}},
	}
	gas := intrinsicGas(make([]byte, 32), true, accessList)
	want := TxGasContractCreation + 32*TxDataZeroGas + 1*InitCodeWordGas + TxAccessListAddressGas + 2*TxAccessListStorageGas
	if gas != want {
		t.Fatalf("intrinsicGas: want %d, got %d", want, gas)
	}
}

func TestEffectiveGasPriceLegacyIgnoresBaseFee(t *testing.T) {
	tx := legacyTx(0, types.Address{}, big.NewInt(0), big.NewInt(7), 21000)
	price := EffectiveGasPrice(tx, big.NewInt(1000))
	if price.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("legacy effective price: want 7, got %s", price)
	}
}
