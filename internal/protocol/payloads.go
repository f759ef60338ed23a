package protocol

import (
	"fmt"

	"github.com/danmuck/ledgerd/internal/protocol/wire"
	"github.com/danmuck/ledgerd/internal/types"
)

// EncodeStoredValues renders an AllItems payload: a u32 count, then per
// entry the 33-byte key and a length-prefixed value.
func EncodeStoredValues(values []types.StoredValue) []byte {
	size := 4
	for _, v := range values {
		size += types.KeyLen + 4 + len(v.Value)
	}
	w := wire.NewWriter(size)
	w.U32(uint32(len(values)))
	for _, v := range values {
		w.Raw(v.Key.Bytes()).Bytes(v.Value)
	}
	return w.Out()
}

func DecodeStoredValues(payload []byte) ([]types.StoredValue, error) {
	r := wire.NewReader(payload)
	n, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: stored values count: %v", ErrMalformedResponse, err)
	}
	if uint64(n)*uint64(types.KeyLen+4) > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: stored values count %d exceeds payload", ErrMalformedResponse, n)
	}
	out := make([]types.StoredValue, 0, n)
	for i := uint32(0); i < n; i++ {
		raw, err := r.Fixed(types.KeyLen)
		if err != nil {
			return nil, fmt.Errorf("%w: stored value key: %v", ErrMalformedResponse, err)
		}
		key := types.Key{Tag: types.KeyTag(raw[0])}
		copy(key.Addr[:], raw[1:])
		val, err := r.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: stored value: %v", ErrMalformedResponse, err)
		}
		out = append(out, types.StoredValue{Key: key, Value: val})
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// EncodeU64 is the payload of Uptime and LastProgress.
func EncodeU64(v uint64) []byte {
	return wire.NewWriter(8).U64(v).Out()
}

func DecodeU64(payload []byte) (uint64, error) {
	r := wire.NewReader(payload)
	v, err := r.U64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := r.Done(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return v, nil
}

// BlockRange is an inclusive range of block heights.
type BlockRange struct {
	Low  uint64
	High uint64
}

func EncodeBlockRange(br BlockRange) []byte {
	return wire.NewWriter(16).U64(br.Low).U64(br.High).Out()
}

func DecodeBlockRange(payload []byte) (BlockRange, error) {
	r := wire.NewReader(payload)
	low, err := r.U64()
	if err != nil {
		return BlockRange{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	high, err := r.U64()
	if err != nil {
		return BlockRange{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := r.Done(); err != nil {
		return BlockRange{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return BlockRange{Low: low, High: high}, nil
}
