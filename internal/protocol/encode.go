package protocol

import (
	"fmt"

	"github.com/danmuck/ledgerd/internal/protocol/wire"
)

// EncodeRequest renders req as a frame body. It is the inverse of
// DecodeRequest for every well-formed request.
func EncodeRequest(req Request) ([]byte, error) {
	w := wire.NewWriter(64)
	w.U16(req.Header.Version)
	if req.Command == nil {
		return nil, fmt.Errorf("%w: nil command", ErrMalformedPayload)
	}
	w.U8(uint8(req.Command.Tag()))
	w.U16(req.Header.ID)

	switch cmd := req.Command.(type) {
	case Get:
		if err := encodeGet(w, cmd); err != nil {
			return nil, err
		}
	case TryAcceptTransaction:
		w.Bytes(cmd.Transaction)
	case TrySpeculativeExec:
		w.Bytes(cmd.Transaction)
	default:
		return nil, fmt.Errorf("%w: command %T", ErrUnknownTag, req.Command)
	}
	return w.Out(), nil
}

func encodeGet(w *wire.Writer, g Get) error {
	if g.Query == nil {
		return fmt.Errorf("%w: nil get query", ErrMalformedPayload)
	}
	w.U8(uint8(g.Query.Tag()))
	switch q := g.Query.(type) {
	case RecordQuery:
		w.U8(uint8(q.RecordID)).Bytes(q.Key)
	case InformationQuery:
		w.U16(uint16(q.InfoTag)).Bytes(q.Key)
	case StateQuery:
		if q.Query == nil {
			return fmt.Errorf("%w: nil state query", ErrMalformedPayload)
		}
		w.U8(uint8(q.Query.Tag()))
		switch s := q.Query.(type) {
		case ItemRequest:
			w.Raw(s.Key.Bytes())
		case AllItemsRequest:
			w.U8(uint8(s.KeyTag))
		case TrieRequest:
			w.Raw(s.Digest[:])
		default:
			return fmt.Errorf("%w: state query %T", ErrUnknownTag, q.Query)
		}
	default:
		return fmt.Errorf("%w: get query %T", ErrUnknownTag, g.Query)
	}
	return nil
}
