package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DigestLen is the fixed byte length of a Digest.
const DigestLen = 32

var ErrInvalidDigest = errors.New("types: invalid digest")

// Digest is a blake2b-256 content hash.
type Digest [DigestLen]byte

// DigestOf hashes b.
func DigestOf(b []byte) Digest {
	return Digest(blake2b.Sum256(b))
}

// DigestFromHex parses a 64 character hex string.
func DigestFromHex(s string) (Digest, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	if len(raw) != DigestLen {
		return Digest{}, fmt.Errorf("%w: length %d", ErrInvalidDigest, len(raw))
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}
