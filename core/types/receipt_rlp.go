package types

import (
	"fmt"

	"github.com/eth2028/statelessblock/rlp"
)

// EncodeRLP returns the RLP encoding of the receipt's consensus fields:
// [Status, CumulativeGasUsed, Bloom, Logs].
// For typed receipts (Type > 0), the encoding is prefixed with the type byte.
func (r *Receipt) EncodeRLP() ([]byte, error) {
	var logsPayload []byte
	for _, log := range r.Logs {
		enc, err := EncodeLogRLP(log)
		if err != nil {
			return nil, fmt.Errorf("receipt: encode log: %w", err)
		}
		logsPayload = append(logsPayload, enc...)
	}

	payload := rlp.AppendUint64(nil, r.Status)
	payload = rlp.AppendUint64(payload, r.CumulativeGasUsed)
	bloomEnc, err := rlp.EncodeToBytes(r.Bloom)
	if err != nil {
		return nil, fmt.Errorf("receipt: encode bloom: %w", err)
	}
	payload = append(payload, bloomEnc...)
	payload = append(payload, rlp.WrapList(logsPayload)...)

	encoded := rlp.WrapList(payload)

	if r.Type != 0 {
		typed := make([]byte, 1+len(encoded))
		typed[0] = r.Type
		copy(typed[1:], encoded)
		return typed, nil
	}
	return encoded, nil
}

// DecodeReceiptRLP decodes an RLP-encoded receipt.
func DecodeReceiptRLP(data []byte) (*Receipt, error) {
	r := &Receipt{}

	// Typed receipts are prefixed with a type byte below 0x80, distinguishing
	// them from the list-header byte (>= 0xc0) a legacy receipt starts with.
	if len(data) > 0 && data[0] < 0x80 {
		r.Type = data[0]
		data = data[1:]
	}

	s := rlp.NewStreamFromBytes(data)
	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("receipt: decode outer list: %w", err)
	}

	var err error
	r.Status, err = s.Uint64()
	if err != nil {
		return nil, fmt.Errorf("receipt: decode status: %w", err)
	}
	r.CumulativeGasUsed, err = s.Uint64()
	if err != nil {
		return nil, fmt.Errorf("receipt: decode cumulative gas used: %w", err)
	}
	if err := decodeBloom(s, &r.Bloom); err != nil {
		return nil, fmt.Errorf("receipt: decode bloom: %w", err)
	}

	if _, err := s.List(); err != nil {
		return nil, fmt.Errorf("receipt: decode logs list: %w", err)
	}
	for !s.AtListEnd() {
		if _, err := s.List(); err != nil {
			return nil, fmt.Errorf("receipt: decode log entry: %w", err)
		}
		log, err := decodeLogFields(s)
		if err != nil {
			return nil, fmt.Errorf("receipt: decode log: %w", err)
		}
		if err := s.ListEnd(); err != nil {
			return nil, fmt.Errorf("receipt: decode log entry end: %w", err)
		}
		r.Logs = append(r.Logs, log)
	}
	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("receipt: decode logs list end: %w", err)
	}

	if err := s.ListEnd(); err != nil {
		return nil, fmt.Errorf("receipt: decode outer list end: %w", err)
	}
	return r, nil
}
