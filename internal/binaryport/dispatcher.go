package binaryport

import (
	"context"
	"errors"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/types"
	"github.com/rs/zerolog/log"
)

// Gates switches optional request families on or off.
type Gates struct {
	AllItems        bool
	Trie            bool
	SpeculativeExec bool
}

// Dispatcher routes decoded requests to node capabilities and folds every
// result into an Outcome. It holds no per-connection state.
type Dispatcher struct {
	caps  node.Capabilities
	gates Gates
}

func NewDispatcher(caps node.Capabilities, gates Gates) *Dispatcher {
	return &Dispatcher{caps: caps, gates: gates}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) protocol.Outcome {
	switch cmd := req.Command.(type) {
	case protocol.Get:
		return d.get(ctx, cmd)
	case protocol.TryAcceptTransaction:
		if d.caps.Acceptor == nil {
			return protocol.Failure(protocol.FunctionDisabled)
		}
		if err := d.caps.Acceptor.TryAccept(ctx, cmd.Transaction); err != nil {
			return failure(req, err)
		}
		return protocol.SuccessEmpty()
	case protocol.TrySpeculativeExec:
		if !d.gates.SpeculativeExec || d.caps.Executor == nil {
			return protocol.Failure(protocol.FunctionDisabled)
		}
		fx, err := d.caps.Executor.SpeculativeExec(ctx, cmd.Transaction)
		if err != nil {
			return failure(req, err)
		}
		raw, err := types.Marshal(fx)
		if err != nil {
			return failure(req, err)
		}
		return protocol.Success(protocol.ResponseSpeculativeExecutionResult, raw)
	default:
		return protocol.Failure(protocol.UnsupportedRequest)
	}
}

func (d *Dispatcher) get(ctx context.Context, g protocol.Get) protocol.Outcome {
	req := protocol.Request{Command: g}
	switch q := g.Query.(type) {
	case protocol.RecordQuery:
		if len(q.Key) == 0 {
			return protocol.SuccessEmpty()
		}
		if d.caps.Records == nil {
			return protocol.Failure(protocol.FunctionDisabled)
		}
		raw, err := d.caps.Records.Get(ctx, q.RecordID, q.Key)
		if err != nil {
			return failure(req, err)
		}
		return protocol.Success(protocol.ResponseType(q.RecordID), raw)

	case protocol.InformationQuery:
		if d.caps.Info == nil {
			return protocol.Failure(protocol.FunctionDisabled)
		}
		typ, raw, err := d.caps.Info.Info(ctx, q.InfoTag, q.Key)
		if err != nil {
			return failure(req, err)
		}
		return protocol.Success(typ, raw)

	case protocol.StateQuery:
		if d.caps.State == nil {
			return protocol.Failure(protocol.FunctionDisabled)
		}
		return d.state(ctx, req, q)

	default:
		return protocol.Failure(protocol.UnknownGetRequestTag)
	}
}

func (d *Dispatcher) state(ctx context.Context, req protocol.Request, q protocol.StateQuery) protocol.Outcome {
	switch s := q.Query.(type) {
	case protocol.ItemRequest:
		raw, err := d.caps.State.GetItem(ctx, s.Key)
		if err != nil {
			return failure(req, err)
		}
		return protocol.Success(protocol.ResponseStoredValue, raw)

	case protocol.AllItemsRequest:
		if !d.gates.AllItems {
			return protocol.Failure(protocol.FunctionDisabled)
		}
		values, err := d.caps.State.GetAllItems(ctx, s.KeyTag)
		if err != nil {
			return failure(req, err)
		}
		return protocol.Success(protocol.ResponseStoredValues, protocol.EncodeStoredValues(values))

	case protocol.TrieRequest:
		if !d.gates.Trie {
			return protocol.Failure(protocol.FunctionDisabled)
		}
		raw, err := d.caps.State.GetTrie(ctx, s.Digest)
		if err != nil {
			return failure(req, err)
		}
		return protocol.Success(protocol.ResponseTrieBytes, raw)

	default:
		return protocol.Failure(protocol.UnknownStateRequestTag)
	}
}

// ErrorCodeFor maps a collaborator error onto the version 1 table.
func ErrorCodeFor(err error) protocol.ErrorCode {
	var rejected *node.RejectedError
	var exec *node.ExecutionError
	switch {
	case err == nil:
		return protocol.NoError
	case errors.Is(err, node.ErrNotFound):
		return protocol.NotFound
	case errors.Is(err, node.ErrBadRequest):
		return protocol.BadRequest
	case errors.As(err, &rejected):
		switch rejected.Reason {
		case node.RejectMalformed:
			return protocol.MalformedPayload
		case node.RejectInvalid:
			return protocol.InvalidTransactionUnspecified
		case node.RejectChainName:
			return protocol.InvalidTransactionChainName
		case node.RejectFutureTimestamp:
			return protocol.TimestampInFuture
		case node.RejectExpired:
			return protocol.TransactionExpired
		case node.RejectDuplicate:
			return protocol.DuplicateTransaction
		case node.RejectInsufficientBalance:
			return protocol.InsufficientBalance
		}
		return protocol.InvalidTransactionUnspecified
	case errors.As(err, &exec):
		switch exec.Kind {
		case node.ExecOutOfGas:
			return protocol.OutOfGas
		case node.ExecNoSuchEntryPoint:
			return protocol.NoSuchEntryPoint
		}
		return protocol.ExecutionFailed
	default:
		return protocol.InternalError
	}
}

func failure(req protocol.Request, err error) protocol.Outcome {
	code := ErrorCodeFor(err)
	if code == protocol.InternalError && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("kind", req.Kind()).Msg("binary port request failed")
	} else {
		log.Debug().Err(err).Str("kind", req.Kind()).Str("error_code", code.String()).Msg("binary port request rejected")
	}
	return protocol.Failure(code)
}
