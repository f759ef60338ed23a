package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrMalformedTransaction = errors.New("types: malformed transaction")
	ErrInvalidTransaction   = errors.New("types: invalid transaction")
)

// Write is one key/value mutation carried by a transaction.
type Write struct {
	_     struct{} `cbor:",toarray"`
	Key   Key
	Value []byte
}

// Transaction is the CBOR body submitted through the binary port.
type Transaction struct {
	ChainName  string  `cbor:"1,keyasint"`
	Timestamp  int64   `cbor:"2,keyasint"`
	TTL        int64   `cbor:"3,keyasint"`
	Initiator  Digest  `cbor:"4,keyasint"`
	Payment    uint64  `cbor:"5,keyasint"`
	EntryPoint string  `cbor:"6,keyasint"`
	Writes     []Write `cbor:"7,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v with the deterministic CBOR mode used for hashing.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encode returns the canonical bytes of the transaction.
func (t Transaction) Encode() ([]byte, error) {
	return Marshal(t)
}

// Hash is the digest of the canonical encoding.
func (t Transaction) Hash() (Digest, error) {
	raw, err := t.Encode()
	if err != nil {
		return Digest{}, err
	}
	return DigestOf(raw), nil
}

// ExpiresAt is the instant after which the transaction is no longer
// acceptable. It saturates instead of wrapping for extreme TTLs.
func (t Transaction) ExpiresAt() time.Time {
	switch {
	case t.Timestamp > 0 && t.TTL > math.MaxInt64-t.Timestamp:
		return time.UnixMilli(math.MaxInt64)
	case t.Timestamp < 0 && t.TTL < math.MinInt64-t.Timestamp:
		return time.UnixMilli(math.MinInt64)
	}
	return time.UnixMilli(t.Timestamp + t.TTL)
}

// Validate checks structural fields only.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ChainName) == "" {
		return fmt.Errorf("%w: missing chain_name", ErrInvalidTransaction)
	}
	if strings.TrimSpace(t.EntryPoint) == "" {
		return fmt.Errorf("%w: missing entry_point", ErrInvalidTransaction)
	}
	if t.TTL <= 0 {
		return fmt.Errorf("%w: non-positive ttl", ErrInvalidTransaction)
	}
	if t.Initiator.IsZero() {
		return fmt.Errorf("%w: missing initiator", ErrInvalidTransaction)
	}
	return nil
}

// DecodeTransaction parses and structurally validates a transaction body.
func DecodeTransaction(raw []byte) (Transaction, error) {
	if len(raw) == 0 {
		return Transaction{}, fmt.Errorf("%w: empty body", ErrMalformedTransaction)
	}
	var t Transaction
	if err := Unmarshal(raw, &t); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
