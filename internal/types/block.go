package types

// BlockHeader is stored under its own hash in the block_header record table.
type BlockHeader struct {
	Height       uint64   `cbor:"1,keyasint"`
	Parent       Digest   `cbor:"2,keyasint"`
	StateRoot    Digest   `cbor:"3,keyasint"`
	Timestamp    int64    `cbor:"4,keyasint"`
	Transactions []Digest `cbor:"5,keyasint,omitempty"`
}

// Hash is the digest of the deterministic encoding.
func (h BlockHeader) Hash() (Digest, []byte, error) {
	raw, err := Marshal(h)
	if err != nil {
		return Digest{}, nil, err
	}
	return DigestOf(raw), raw, nil
}

func DecodeBlockHeader(raw []byte) (BlockHeader, error) {
	var out BlockHeader
	if err := Unmarshal(raw, &out); err != nil {
		return BlockHeader{}, err
	}
	return out, nil
}
