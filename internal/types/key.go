package types

import (
	"bytes"
	"fmt"
)

// KeyTag selects a category of global-state keys.
type KeyTag uint8

const (
	KeyTagAccount    KeyTag = 0
	KeyTagHash       KeyTag = 1
	KeyTagURef       KeyTag = 2
	KeyTagTransfer   KeyTag = 3
	KeyTagDeployInfo KeyTag = 4
	KeyTagEraInfo    KeyTag = 5
	KeyTagBalance    KeyTag = 6
	KeyTagBid        KeyTag = 7
	KeyTagWithdraw   KeyTag = 8
	KeyTagDictionary KeyTag = 9
)

var keyTagNames = map[KeyTag]string{
	KeyTagAccount:    "account",
	KeyTagHash:       "hash",
	KeyTagURef:       "uref",
	KeyTagTransfer:   "transfer",
	KeyTagDeployInfo: "deploy-info",
	KeyTagEraInfo:    "era-info",
	KeyTagBalance:    "balance",
	KeyTagBid:        "bid",
	KeyTagWithdraw:   "withdraw",
	KeyTagDictionary: "dictionary",
}

// Known reports whether t belongs to the version 1 key tag set.
func (t KeyTag) Known() bool {
	_, ok := keyTagNames[t]
	return ok
}

func (t KeyTag) String() string {
	if name, ok := keyTagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ParseKeyTag resolves a key tag by name.
func ParseKeyTag(name string) (KeyTag, bool) {
	for tag, n := range keyTagNames {
		if n == name {
			return tag, true
		}
	}
	return 0, false
}

// KeyLen is the serialized length of a Key.
const KeyLen = 1 + DigestLen

// Key addresses one global-state value.
type Key struct {
	_    struct{} `cbor:",toarray"`
	Tag  KeyTag
	Addr [DigestLen]byte
}

func NewKey(tag KeyTag, addr [DigestLen]byte) Key {
	return Key{Tag: tag, Addr: addr}
}

// Bytes returns the tag byte followed by the address.
func (k Key) Bytes() []byte {
	out := make([]byte, KeyLen)
	out[0] = byte(k.Tag)
	copy(out[1:], k.Addr[:])
	return out
}

// Compare orders keys by tag then address.
func (k Key) Compare(other Key) int {
	if k.Tag != other.Tag {
		if k.Tag < other.Tag {
			return -1
		}
		return 1
	}
	return bytes.Compare(k.Addr[:], other.Addr[:])
}

func (k Key) String() string {
	return fmt.Sprintf("%s-%x", k.Tag, k.Addr[:])
}
