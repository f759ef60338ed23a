package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/ledgerd/internal/protocol/wire"
	"github.com/danmuck/ledgerd/internal/types"
)

var (
	ErrMalformedHeader    = errors.New("protocol: malformed header")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnknownTag         = errors.New("protocol: unknown tag")
	ErrMalformedPayload   = errors.New("protocol: malformed payload")
)

// DecodeError is a localized failure: the frame was well delimited but its
// content could not be turned into a Request. Header holds whatever part of
// the header was readable.
type DecodeError struct {
	Kind   error
	Code   ErrorCode
	Level  TagLevel
	Value  uint64
	Header Header
	Err    error
}

func (e *DecodeError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrUnknownTag):
		return fmt.Sprintf("%v: level=%s value=%d", e.Kind, e.Level, e.Value)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unknownTag(h Header, level TagLevel, value uint64) *DecodeError {
	code := UnsupportedRequest
	switch level {
	case LevelGet:
		code = UnknownGetRequestTag
	case LevelState:
		code = UnknownStateRequestTag
	case LevelRecordID:
		code = UnknownRecordID
	case LevelInformation:
		code = MalformedInformationRequest
	case LevelKeyTag:
		code = UnknownKeyTag
	}
	return &DecodeError{Kind: ErrUnknownTag, Code: code, Level: level, Value: value, Header: h}
}

func malformedPayload(h Header, err error) *DecodeError {
	return &DecodeError{Kind: ErrMalformedPayload, Code: MalformedPayload, Header: h, Err: err}
}

// DecodeHeader reads the fixed header and checks the version before anything
// else is interpreted.
func DecodeHeader(body []byte) (Header, *wire.Reader, error) {
	r := wire.NewReader(body)
	var h Header

	version, err := r.U16()
	if err != nil {
		return h, nil, &DecodeError{Kind: ErrMalformedHeader, Code: TooLittleBytesForVersion, Err: err}
	}
	h.Version = version
	if version != Version {
		return h, nil, &DecodeError{
			Kind:   ErrUnsupportedVersion,
			Code:   UnsupportedVersion,
			Value:  uint64(version),
			Header: h,
		}
	}

	tag, err := r.U8()
	if err != nil {
		return h, nil, &DecodeError{Kind: ErrMalformedHeader, Code: MalformedCommandHeader, Header: h, Err: err}
	}
	h.TypeTag = CommandTag(tag)
	id, err := r.U16()
	if err != nil {
		return h, nil, &DecodeError{Kind: ErrMalformedHeader, Code: MalformedCommandHeader, Header: h, Err: err}
	}
	h.ID = id
	return h, r, nil
}

// DecodeRequest parses a frame body (without its length prefix). Every
// failure is a *DecodeError; it never panics on arbitrary input.
func DecodeRequest(body []byte) (Request, error) {
	h, r, err := DecodeHeader(body)
	if err != nil {
		return Request{Header: h}, err
	}

	var cmd Command
	switch h.TypeTag {
	case CommandGet:
		cmd, err = decodeGet(h, r)
	case CommandTryAcceptTransaction:
		var txn []byte
		txn, err = decodeTransactionBytes(h, r)
		cmd = TryAcceptTransaction{Transaction: txn}
	case CommandTrySpeculativeExec:
		var txn []byte
		txn, err = decodeTransactionBytes(h, r)
		cmd = TrySpeculativeExec{Transaction: txn}
	default:
		return Request{Header: h}, unknownTag(h, LevelCommand, uint64(h.TypeTag))
	}
	if err != nil {
		return Request{Header: h}, err
	}
	if err := r.Done(); err != nil {
		return Request{Header: h}, malformedPayload(h, err)
	}
	return Request{Header: h, Command: cmd}, nil
}

func decodeTransactionBytes(h Header, r *wire.Reader) ([]byte, error) {
	txn, err := r.Bytes()
	if err != nil {
		return nil, malformedPayload(h, err)
	}
	return txn, nil
}

func decodeGet(h Header, r *wire.Reader) (Command, error) {
	raw, err := r.U8()
	if err != nil {
		return nil, malformedPayload(h, err)
	}
	switch tag := GetTag(raw); tag {
	case GetRecord:
		id, err := r.U8()
		if err != nil {
			return nil, malformedPayload(h, err)
		}
		if !RecordID(id).Known() {
			return nil, unknownTag(h, LevelRecordID, uint64(id))
		}
		key, err := r.Bytes()
		if err != nil {
			return nil, malformedPayload(h, err)
		}
		return Get{Query: RecordQuery{RecordID: RecordID(id), Key: key}}, nil

	case GetInformation:
		info, err := r.U16()
		if err != nil {
			return nil, malformedPayload(h, err)
		}
		if !InfoTag(info).Known() {
			return nil, unknownTag(h, LevelInformation, uint64(info))
		}
		key, err := r.Bytes()
		if err != nil {
			return nil, malformedPayload(h, err)
		}
		if !InfoTag(info).TakesKey() && len(key) != 0 {
			return nil, &DecodeError{
				Kind:   ErrMalformedPayload,
				Code:   MalformedInformationRequest,
				Header: h,
				Err:    fmt.Errorf("info tag %s takes no key, got %d bytes", InfoTag(info), len(key)),
			}
		}
		return Get{Query: InformationQuery{InfoTag: InfoTag(info), Key: key}}, nil

	case GetState:
		q, err := decodeState(h, r)
		if err != nil {
			return nil, err
		}
		return Get{Query: StateQuery{Query: q}}, nil

	default:
		return nil, unknownTag(h, LevelGet, uint64(tag))
	}
}

func decodeState(h Header, r *wire.Reader) (StateRequest, error) {
	raw, err := r.U8()
	if err != nil {
		return nil, malformedPayload(h, err)
	}
	switch tag := StateTag(raw); tag {
	case StateItem:
		key, err := decodeKey(h, r)
		if err != nil {
			return nil, err
		}
		return ItemRequest{Key: key}, nil

	case StateAllItems:
		kt, err := r.U8()
		if err != nil {
			return nil, malformedPayload(h, err)
		}
		if !types.KeyTag(kt).Known() {
			return nil, unknownTag(h, LevelKeyTag, uint64(kt))
		}
		return AllItemsRequest{KeyTag: types.KeyTag(kt)}, nil

	case StateTrie:
		raw, err := r.Fixed(types.DigestLen)
		if err != nil {
			return nil, malformedPayload(h, err)
		}
		var d types.Digest
		copy(d[:], raw)
		return TrieRequest{Digest: d}, nil

	default:
		return nil, unknownTag(h, LevelState, uint64(tag))
	}
}

func decodeKey(h Header, r *wire.Reader) (types.Key, error) {
	kt, err := r.U8()
	if err != nil {
		return types.Key{}, malformedPayload(h, err)
	}
	if !types.KeyTag(kt).Known() {
		return types.Key{}, unknownTag(h, LevelKeyTag, uint64(kt))
	}
	addr, err := r.Fixed(types.DigestLen)
	if err != nil {
		return types.Key{}, malformedPayload(h, err)
	}
	key := types.Key{Tag: types.KeyTag(kt)}
	copy(key.Addr[:], addr)
	return key, nil
}
