package types

import "encoding/binary"

// StoredValue is one global-state entry.
type StoredValue struct {
	_     struct{} `cbor:",toarray"`
	Key   Key
	Value []byte
}

// BalanceKey addresses the balance of an account.
func BalanceKey(account Digest) Key {
	return Key{Tag: KeyTagBalance, Addr: account}
}

// EncodeBalance is the stored form of a balance: u64 little-endian.
func EncodeBalance(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// DecodeBalance returns false unless raw is exactly eight bytes.
func DecodeBalance(raw []byte) (uint64, bool) {
	if len(raw) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(raw), true
}
