package types

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// BloomBitLength is the number of bits in a bloom filter (2048).
const BloomBitLength = 8 * BloomLength

// bloomBitIndexes derives the three bit positions a value contributes to a
// bloom filter: the first 6 bytes of keccak256(data), read as three
// big-endian uint16s and reduced mod 2048.
func bloomBitIndexes(data []byte) [3]uint {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	sum := d.Sum(nil)

	var idx [3]uint
	for i := range idx {
		idx[i] = uint(binary.BigEndian.Uint16(sum[2*i:])) & (BloomBitLength - 1)
	}
	return idx
}

// bloomByteAndMask converts a 0..2047 bit position into the byte offset and
// bit mask within a Bloom array. Ethereum numbers bit 0 as the LSB of the
// last byte, counting up toward the MSB of the first byte.
func bloomByteAndMask(bit uint) (int, byte) {
	return BloomLength - 1 - int(bit/8), 1 << (bit % 8)
}

// BloomAdd sets the bits data contributes to bloom.
func BloomAdd(bloom *Bloom, data []byte) {
	for _, bit := range bloomBitIndexes(data) {
		idx, mask := bloomByteAndMask(bit)
		bloom[idx] |= mask
	}
}

// BloomContains reports whether every bit data would set is already set in
// bloom. False positives are possible by construction; false negatives
// are not.
func BloomContains(bloom Bloom, data []byte) bool {
	for _, bit := range bloomBitIndexes(data) {
		idx, mask := bloomByteAndMask(bit)
		if bloom[idx]&mask == 0 {
			return false
		}
	}
	return true
}

// LogsBloom computes the combined bloom filter contribution of a set of logs.
func LogsBloom(logs []*Log) Bloom {
	var bloom Bloom
	for _, l := range logs {
		BloomAdd(&bloom, l.Address.Bytes())
		for _, topic := range l.Topics {
			BloomAdd(&bloom, topic.Bytes())
		}
	}
	return bloom
}

// CreateBloom OR-combines the per-receipt blooms of a block's receipts.
func CreateBloom(receipts []*Receipt) Bloom {
	var bloom Bloom
	for _, r := range receipts {
		for i := range r.Bloom {
			bloom[i] |= r.Bloom[i]
		}
	}
	return bloom
}
