package types

// ExecutionEffects is the payload of a speculative execution.
type ExecutionEffects struct {
	TransactionHash Digest  `cbor:"1,keyasint"`
	PreStateRoot    Digest  `cbor:"2,keyasint"`
	PostStateRoot   Digest  `cbor:"3,keyasint"`
	GasUsed         uint64  `cbor:"4,keyasint"`
	Transforms      []Write `cbor:"5,keyasint,omitempty"`
}

// DecodeExecutionEffects parses a speculative execution payload.
func DecodeExecutionEffects(raw []byte) (ExecutionEffects, error) {
	var out ExecutionEffects
	if err := Unmarshal(raw, &out); err != nil {
		return ExecutionEffects{}, err
	}
	return out, nil
}
