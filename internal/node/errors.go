package node

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("node: not found")
	ErrBadRequest = errors.New("node: bad request")
)

// RejectReason is why a transaction was not accepted.
type RejectReason uint8

const (
	RejectMalformed RejectReason = iota + 1
	RejectInvalid
	RejectChainName
	RejectFutureTimestamp
	RejectExpired
	RejectDuplicate
	RejectInsufficientBalance
)

func (r RejectReason) String() string {
	switch r {
	case RejectMalformed:
		return "malformed"
	case RejectInvalid:
		return "invalid"
	case RejectChainName:
		return "chain_name"
	case RejectFutureTimestamp:
		return "future_timestamp"
	case RejectExpired:
		return "expired"
	case RejectDuplicate:
		return "duplicate"
	case RejectInsufficientBalance:
		return "insufficient_balance"
	default:
		return fmt.Sprintf("reject(%d)", uint8(r))
	}
}

type RejectedError struct {
	Reason RejectReason
	Err    error
}

func Rejected(reason RejectReason, err error) *RejectedError {
	return &RejectedError{Reason: reason, Err: err}
}

func (e *RejectedError) Error() string {
	if e.Err == nil {
		return "node: transaction rejected: " + e.Reason.String()
	}
	return fmt.Sprintf("node: transaction rejected: %s: %v", e.Reason, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// ExecFailure is why a speculative execution did not produce effects.
type ExecFailure uint8

const (
	ExecOutOfGas ExecFailure = iota + 1
	ExecNoSuchEntryPoint
	ExecFailed
)

func (f ExecFailure) String() string {
	switch f {
	case ExecOutOfGas:
		return "out_of_gas"
	case ExecNoSuchEntryPoint:
		return "no_such_entry_point"
	case ExecFailed:
		return "failed"
	default:
		return fmt.Sprintf("exec_failure(%d)", uint8(f))
	}
}

type ExecutionError struct {
	Kind ExecFailure
	Err  error
}

func ExecError(kind ExecFailure, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Err: err}
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return "node: execution failed: " + e.Kind.String()
	}
	return fmt.Sprintf("node: execution failed: %s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
