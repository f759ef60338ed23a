package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/state"
	"github.com/danmuck/ledgerd/internal/testutil/testlog"
	"github.com/danmuck/ledgerd/internal/types"
)

func setup(t *testing.T) (*Executor, *state.State, types.Digest) {
	t.Helper()
	st := state.New()
	alice := types.DigestOf([]byte("alice"))
	st.Put(types.BalanceKey(alice), types.EncodeBalance(500))
	if _, err := st.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return NewExecutor("ledger-test", st), st, alice
}

func txnBytes(t *testing.T, txn types.Transaction) []byte {
	t.Helper()
	raw, err := txn.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func baseTxn(initiator types.Digest, entry string, payment uint64) types.Transaction {
	return types.Transaction{
		ChainName:  "ledger-test",
		Timestamp:  time.Now().UnixMilli(),
		TTL:        60_000,
		Initiator:  initiator,
		Payment:    payment,
		EntryPoint: entry,
	}
}

func TestSpeculativeTransferLeavesStateUntouched(t *testing.T) {
	testlog.Start(t)

	exec, st, alice := setup(t)
	bob := types.DigestOf([]byte("bob"))
	txn := baseTxn(alice, EntryTransfer, 100)
	txn.Writes = []types.Write{{Key: types.BalanceKey(bob), Value: types.EncodeBalance(200)}}

	rootBefore := st.StateRoot()
	fx, err := exec.SpeculativeExec(context.Background(), txnBytes(t, txn))
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if fx.GasUsed != BaseGas+2*GasPerWrite {
		t.Fatalf("unexpected gas=%d", fx.GasUsed)
	}
	if fx.PreStateRoot != rootBefore || fx.PostStateRoot == rootBefore {
		t.Fatalf("unexpected roots pre=%s post=%s", fx.PreStateRoot, fx.PostStateRoot)
	}
	if len(fx.Transforms) != 2 {
		t.Fatalf("expected debit and credit, got %d", len(fx.Transforms))
	}

	if st.StateRoot() != rootBefore {
		t.Fatalf("state root moved")
	}
	raw, err := st.GetItem(context.Background(), types.BalanceKey(alice))
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if v, _ := types.DecodeBalance(raw); v != 500 {
		t.Fatalf("balance changed to %d", v)
	}
	if _, err := st.GetItem(context.Background(), types.BalanceKey(bob)); !errors.Is(err, node.ErrNotFound) {
		t.Fatalf("credit leaked into state: %v", err)
	}
}

func TestSpeculativeExecFailures(t *testing.T) {
	testlog.Start(t)

	exec, _, alice := setup(t)

	write := baseTxn(alice, EntryWrite, 12)
	write.Writes = []types.Write{{Key: types.NewKey(types.KeyTagURef, [32]byte{1}), Value: []byte("x")}}
	overdraw := baseTxn(alice, EntryTransfer, 100)
	overdraw.Writes = []types.Write{{Key: types.BalanceKey(types.DigestOf([]byte("bob"))), Value: types.EncodeBalance(10_000)}}

	var ee *node.ExecutionError
	_, err := exec.SpeculativeExec(context.Background(), txnBytes(t, write))
	if !errors.As(err, &ee) || ee.Kind != node.ExecOutOfGas {
		t.Fatalf("expected out of gas, got %v", err)
	}
	_, err = exec.SpeculativeExec(context.Background(), txnBytes(t, baseTxn(alice, "mint", 100)))
	if !errors.As(err, &ee) || ee.Kind != node.ExecNoSuchEntryPoint {
		t.Fatalf("expected no such entry point, got %v", err)
	}
	_, err = exec.SpeculativeExec(context.Background(), txnBytes(t, overdraw))
	if !errors.As(err, &ee) || ee.Kind != node.ExecFailed {
		t.Fatalf("expected execution failure, got %v", err)
	}

	var re *node.RejectedError
	_, err = exec.SpeculativeExec(context.Background(), []byte("junk"))
	if !errors.As(err, &re) || re.Reason != node.RejectMalformed {
		t.Fatalf("expected malformed rejection, got %v", err)
	}
	other := baseTxn(alice, EntryNoop, 100)
	other.ChainName = "elsewhere"
	_, err = exec.SpeculativeExec(context.Background(), txnBytes(t, other))
	if !errors.As(err, &re) || re.Reason != node.RejectChainName {
		t.Fatalf("expected chain name rejection, got %v", err)
	}
}

func TestTransferCreditOverflowFails(t *testing.T) {
	testlog.Start(t)

	exec, st, alice := setup(t)
	bob := types.DigestOf([]byte("bob"))
	st.Put(types.BalanceKey(bob), types.EncodeBalance(math.MaxUint64-5))
	if _, err := st.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn := baseTxn(alice, EntryTransfer, 100)
	txn.Writes = []types.Write{{Key: types.BalanceKey(bob), Value: types.EncodeBalance(10)}}
	var ee *node.ExecutionError
	if _, err := exec.SpeculativeExec(context.Background(), txnBytes(t, txn)); !errors.As(err, &ee) || ee.Kind != node.ExecFailed {
		t.Fatalf("expected execution failure on credit overflow, got %v", err)
	}

	txn.Writes = []types.Write{{Key: types.BalanceKey(bob), Value: types.EncodeBalance(5)}}
	if _, err := exec.SpeculativeExec(context.Background(), txnBytes(t, txn)); err != nil {
		t.Fatalf("credit up to the maximum balance should succeed: %v", err)
	}
}

func TestSpeculativeNoopGas(t *testing.T) {
	testlog.Start(t)

	exec, st, alice := setup(t)
	fx, err := exec.SpeculativeExec(context.Background(), txnBytes(t, baseTxn(alice, EntryNoop, 10)))
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if fx.GasUsed != BaseGas || fx.PostStateRoot != st.StateRoot() {
		t.Fatalf("noop must cost base gas and keep the root: %+v", fx)
	}
}
