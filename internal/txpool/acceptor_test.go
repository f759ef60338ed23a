package txpool

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/state"
	"github.com/danmuck/ledgerd/internal/storage"
	"github.com/danmuck/ledgerd/internal/testutil/testlog"
	"github.com/danmuck/ledgerd/internal/types"
)

var now = time.UnixMilli(1_700_000_000_000)

func fixture(t *testing.T) (*Acceptor, *state.State, *storage.Store, types.Digest) {
	t.Helper()
	st := state.New()
	records := storage.NewStore()
	account := types.DigestOf([]byte("alice"))
	st.Put(types.BalanceKey(account), types.EncodeBalance(1_000))
	acc := NewAcceptor(Config{
		ChainName:       "ledger-test",
		TimestampLeeway: time.Second,
		Now:             func() time.Time { return now },
	}, st, records)
	return acc, st, records, account
}

func encode(t *testing.T, txn types.Transaction) []byte {
	t.Helper()
	raw, err := txn.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func validTxn(account types.Digest) types.Transaction {
	return types.Transaction{
		ChainName:  "ledger-test",
		Timestamp:  now.UnixMilli(),
		TTL:        int64(time.Hour / time.Millisecond),
		Initiator:  account,
		Payment:    100,
		EntryPoint: "noop",
	}
}

func reason(err error) node.RejectReason {
	var re *node.RejectedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return 0
}

func TestTryAcceptStoresAndQueues(t *testing.T) {
	testlog.Start(t)

	acc, _, records, account := fixture(t)
	raw := encode(t, validTxn(account))
	if err := acc.TryAccept(context.Background(), raw); err != nil {
		t.Fatalf("accept: %v", err)
	}
	pending := acc.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected one pending, got %d", len(pending))
	}
	stored, err := records.Get(context.Background(), protocol.RecordTransaction, pending[0][:])
	if err != nil {
		t.Fatalf("stored transaction missing: %v", err)
	}
	if types.DigestOf(stored) != pending[0] {
		t.Fatalf("stored bytes do not hash to pending id")
	}

	if got := reason(acc.TryAccept(context.Background(), raw)); got != node.RejectDuplicate {
		t.Fatalf("expected duplicate, got %s", got)
	}
	if drained := acc.Drain(); len(drained) != 1 || len(acc.Pending()) != 0 {
		t.Fatalf("drain mismatch")
	}
	if got := reason(acc.TryAccept(context.Background(), raw)); got != node.RejectDuplicate {
		t.Fatalf("drained transaction must stay a duplicate, got %s", got)
	}
}

func TestTryAcceptHugeTTL(t *testing.T) {
	testlog.Start(t)

	acc, _, _, account := fixture(t)
	txn := validTxn(account)
	txn.TTL = math.MaxInt64
	if err := acc.TryAccept(context.Background(), encode(t, txn)); err != nil {
		t.Fatalf("huge ttl must not read as expired: %v", err)
	}
}

func TestRequeueRestoresDrainedOrder(t *testing.T) {
	testlog.Start(t)

	acc, _, _, account := fixture(t)
	first := validTxn(account)
	second := validTxn(account)
	second.Payment++
	third := validTxn(account)
	third.Payment += 2
	for _, txn := range []types.Transaction{first, second} {
		if err := acc.TryAccept(context.Background(), encode(t, txn)); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}
	drained := acc.Drain()
	if err := acc.TryAccept(context.Background(), encode(t, third)); err != nil {
		t.Fatalf("accept third: %v", err)
	}

	acc.Requeue(append(drained, types.DigestOf([]byte("never accepted"))))
	pending := acc.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	if pending[0] != drained[0] || pending[1] != drained[1] || pending[2] != types.DigestOf(encode(t, third)) {
		t.Fatalf("requeued hashes not ahead of newer ones: %v", pending)
	}
	if got := reason(acc.TryAccept(context.Background(), encode(t, first))); got != node.RejectDuplicate {
		t.Fatalf("requeued transaction must stay a duplicate, got %s", got)
	}
}

func TestTryAcceptRejections(t *testing.T) {
	testlog.Start(t)

	acc, _, _, account := fixture(t)

	wrongChain := validTxn(account)
	wrongChain.ChainName = "other"
	future := validTxn(account)
	future.Timestamp = now.Add(time.Minute).UnixMilli()
	expired := validTxn(account)
	expired.Timestamp = now.Add(-2 * time.Hour).UnixMilli()
	poor := validTxn(account)
	poor.Payment = 5_000
	stranger := validTxn(types.DigestOf([]byte("mallory")))
	invalid := validTxn(account)
	invalid.EntryPoint = ""

	cases := []struct {
		name string
		raw  []byte
		want node.RejectReason
	}{
		{"malformed", []byte{0xff, 0x00}, node.RejectMalformed},
		{"empty", nil, node.RejectMalformed},
		{"invalid", encode(t, invalid), node.RejectInvalid},
		{"chain", encode(t, wrongChain), node.RejectChainName},
		{"future", encode(t, future), node.RejectFutureTimestamp},
		{"expired", encode(t, expired), node.RejectExpired},
		{"balance", encode(t, poor), node.RejectInsufficientBalance},
		{"no balance", encode(t, stranger), node.RejectInsufficientBalance},
	}
	for _, tc := range cases {
		if got := reason(acc.TryAccept(context.Background(), tc.raw)); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
	if len(acc.Pending()) != 0 {
		t.Fatalf("rejected transactions must not be queued")
	}
}
