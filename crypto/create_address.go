package crypto

import (
	"github.com/eth2028/statelessblock/core/types"
	"github.com/eth2028/statelessblock/rlp"
)

// CreateAddress derives the address assigned to a contract deployed by
// creator at the given account nonce: keccak256(rlp([creator, nonce]))[12:].
func CreateAddress(creator types.Address, nonce uint64) types.Address {
	data, _ := rlp.EncodeToBytes([]interface{}{creator, nonce})
	hash := Keccak256(data)
	return types.BytesToAddress(hash[12:])
}
