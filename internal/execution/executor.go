// Package execution runs transactions speculatively against a private
// snapshot of global state.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/state"
	"github.com/danmuck/ledgerd/internal/types"
)

const (
	EntryTransfer = "transfer"
	EntryWrite    = "write"
	EntryNoop     = "noop"

	BaseGas     uint64 = 10
	GasPerWrite uint64 = 5
)

// Snapshotter hands out private copies of global state.
type Snapshotter interface {
	Snapshot() *state.Snapshot
}

type Executor struct {
	chainName string
	state     Snapshotter
}

var _ node.Executor = (*Executor)(nil)

func NewExecutor(chainName string, st Snapshotter) *Executor {
	return &Executor{chainName: chainName, state: st}
}

// SpeculativeExec never mutates shared state; all writes land in a snapshot
// that is dropped on return.
func (e *Executor) SpeculativeExec(ctx context.Context, raw []byte) (types.ExecutionEffects, error) {
	txn, err := types.DecodeTransaction(raw)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransaction) {
			return types.ExecutionEffects{}, node.Rejected(node.RejectInvalid, err)
		}
		return types.ExecutionEffects{}, node.Rejected(node.RejectMalformed, err)
	}
	if txn.ChainName != e.chainName {
		return types.ExecutionEffects{}, node.Rejected(node.RejectChainName, fmt.Errorf("got %q want %q", txn.ChainName, e.chainName))
	}
	hash, err := txn.Hash()
	if err != nil {
		return types.ExecutionEffects{}, fmt.Errorf("execution: hash: %w", err)
	}

	snap := e.state.Snapshot()
	var transforms []types.Write
	switch txn.EntryPoint {
	case EntryNoop:
	case EntryWrite:
		transforms = txn.Writes
	case EntryTransfer:
		transforms, err = transfer(snap, txn)
		if err != nil {
			return types.ExecutionEffects{}, err
		}
	default:
		return types.ExecutionEffects{}, node.ExecError(node.ExecNoSuchEntryPoint, fmt.Errorf("entry point %q", txn.EntryPoint))
	}

	gas := BaseGas + GasPerWrite*uint64(len(transforms))
	if gas > txn.Payment {
		return types.ExecutionEffects{}, node.ExecError(node.ExecOutOfGas, fmt.Errorf("gas %d payment %d", gas, txn.Payment))
	}

	for _, w := range transforms {
		if err := ctx.Err(); err != nil {
			return types.ExecutionEffects{}, err
		}
		snap.Set(w.Key, w.Value)
	}
	post, err := snap.Root()
	if err != nil {
		return types.ExecutionEffects{}, fmt.Errorf("execution: post state root: %w", err)
	}

	return types.ExecutionEffects{
		TransactionHash: hash,
		PreStateRoot:    snap.Base(),
		PostStateRoot:   post,
		GasUsed:         gas,
		Transforms:      transforms,
	}, nil
}

// transfer expects one write naming the target balance key with the amount
// as its u64 value, and expands it into debit and credit writes.
func transfer(snap *state.Snapshot, txn types.Transaction) ([]types.Write, error) {
	if len(txn.Writes) != 1 || txn.Writes[0].Key.Tag != types.KeyTagBalance {
		return nil, node.ExecError(node.ExecFailed, errors.New("transfer takes exactly one balance write"))
	}
	amount, ok := types.DecodeBalance(txn.Writes[0].Value)
	if !ok {
		return nil, node.ExecError(node.ExecFailed, errors.New("transfer amount must be u64"))
	}
	from := types.BalanceKey(txn.Initiator)
	to := txn.Writes[0].Key
	if from == to {
		return nil, node.ExecError(node.ExecFailed, errors.New("transfer to self"))
	}

	fromBal, _ := balanceOf(snap, from)
	if fromBal < amount {
		return nil, node.ExecError(node.ExecFailed, fmt.Errorf("balance %d below amount %d", fromBal, amount))
	}
	toBal, _ := balanceOf(snap, to)
	if toBal > math.MaxUint64-amount {
		return nil, node.ExecError(node.ExecFailed, fmt.Errorf("balance %d plus amount %d overflows", toBal, amount))
	}
	return []types.Write{
		{Key: from, Value: types.EncodeBalance(fromBal - amount)},
		{Key: to, Value: types.EncodeBalance(toBal + amount)},
	}, nil
}

func balanceOf(snap *state.Snapshot, key types.Key) (uint64, bool) {
	raw, ok := snap.Get(key)
	if !ok {
		return 0, false
	}
	return types.DecodeBalance(raw)
}
