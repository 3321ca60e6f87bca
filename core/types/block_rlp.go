package types

import (
	"fmt"

	"github.com/eth2028/statelessblock/rlp"
)

// EncodeRLP returns the RLP encoding of the block: [header, [tx1, tx2, ...], [uncle1, uncle2, ...]].
func (b *Block) EncodeRLP() ([]byte, error) {
	headerEnc, err := b.header.EncodeRLP()
	if err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}

	// Each tx's own RLP envelope is wrapped as a byte string rather than
	// spliced in as a raw list, since typed transactions are not
	// themselves bare RLP lists.
	txsPayload, err := encodeItems(b.body.Transactions, (*Transaction).EncodeRLP, true)
	if err != nil {
		return nil, fmt.Errorf("encoding transactions: %w", err)
	}

	// Uncle headers are already complete RLP lists, so they're spliced in
	// directly rather than wrapped as byte strings.
	unclesPayload, err := encodeItems(b.body.Uncles, (*Header).EncodeRLP, false)
	if err != nil {
		return nil, fmt.Errorf("encoding uncles: %w", err)
	}

	var blockPayload []byte
	blockPayload = append(blockPayload, headerEnc...)
	blockPayload = append(blockPayload, rlp.WrapList(txsPayload)...)
	blockPayload = append(blockPayload, rlp.WrapList(unclesPayload)...)

	return rlp.WrapList(blockPayload), nil
}

// encodeItems RLP-encodes each item with encode and concatenates the
// results. When asByteString is true each encoding is additionally wrapped
// as an RLP byte string, for payloads (like typed transactions) that are not
// themselves bare RLP lists.
func encodeItems[T any](items []T, encode func(T) ([]byte, error), asByteString bool) ([]byte, error) {
	var payload []byte
	for i, item := range items {
		enc, err := encode(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if asByteString {
			payload = rlp.AppendBytes(payload, enc)
		} else {
			payload = append(payload, enc...)
		}
	}
	return payload, nil
}

// DecodeBlockRLP decodes an RLP-encoded block.
func DecodeBlockRLP(data []byte) (*Block, error) {
	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("opening block list: %w", err)
	}

	headerBytes, err := s.Raw()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := DecodeHeaderRLP(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	txs, err := decodeItems(s, (*rlp.Stream).Bytes, DecodeTxRLP)
	if err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}

	uncles, err := decodeItems(s, (*rlp.Stream).Raw, DecodeHeaderRLP)
	if err != nil {
		return nil, fmt.Errorf("decoding uncles: %w", err)
	}

	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("closing block list: %w", err)
	}

	block := &Block{header: header}
	block.body.Transactions = txs
	block.body.Uncles = uncles
	return block, nil
}

// decodeItems opens a nested RLP list, decodes each element by first reading
// its raw bytes with readItem and then parsing those bytes with decode, and
// closes the list. Used for both the transactions list (each element a
// wrapped byte string) and the uncles list (each element a raw header list).
func decodeItems[T any](s *rlp.Stream, readItem func(*rlp.Stream) ([]byte, error), decode func([]byte) (T, error)) ([]T, error) {
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("opening list: %w", err)
	}
	var out []T
	for !s.AtListEnd() {
		raw, err := readItem(s)
		if err != nil {
			return nil, fmt.Errorf("reading item: %w", err)
		}
		v, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding item: %w", err)
		}
		out = append(out, v)
	}
	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("closing list: %w", err)
	}
	return out, nil
}
