package binaryport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/ledgerd/internal/execution"
	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/protocol/frame"
	"github.com/danmuck/ledgerd/internal/state"
	"github.com/danmuck/ledgerd/internal/status"
	"github.com/danmuck/ledgerd/internal/storage"
	"github.com/danmuck/ledgerd/internal/txpool"
	"github.com/danmuck/ledgerd/internal/types"
)

const testChain = "ledger-test"

type fixture struct {
	caps    node.Capabilities
	state   *state.State
	records *storage.Store
	pool    *txpool.Acceptor
	alice   types.Digest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.New()
	records := storage.NewStore()
	alice := types.DigestOf([]byte("alice"))
	st.Put(types.BalanceKey(alice), types.EncodeBalance(1_000))
	if _, err := st.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	pool := txpool.NewAcceptor(txpool.Config{ChainName: testChain, TimestampLeeway: time.Second}, st, records)
	info := status.NewProvider(status.Config{NetworkName: "ledger-net", ChainName: testChain}, records, st.StateRoot)
	return &fixture{
		caps: node.Capabilities{
			Records:  records,
			Info:     info,
			State:    st,
			Acceptor: pool,
			Executor: execution.NewExecutor(testChain, st),
		},
		state:   st,
		records: records,
		pool:    pool,
		alice:   alice,
	}
}

func (f *fixture) transaction(t *testing.T, entry string, payment uint64) []byte {
	t.Helper()
	raw, err := types.Transaction{
		ChainName:  testChain,
		Timestamp:  time.Now().UnixMilli(),
		TTL:        60_000,
		Initiator:  f.alice,
		Payment:    payment,
		EntryPoint: entry,
	}.Encode()
	if err != nil {
		t.Fatalf("encode transaction: %v", err)
	}
	return raw
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.QPSLimit = 0
	cfg.MaxConnections = 0
	cfg.Gates = Gates{AllItems: true, Trie: true, SpeculativeExec: true}
	return cfg
}

// startServer serves on a loopback listener until the test ends.
func startServer(t *testing.T, cfg Config, caps node.Capabilities) *Server {
	t.Helper()
	srv := NewServer(cfg, caps)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	for srv.Addr() == nil {
		time.Sleep(time.Millisecond)
	}
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = nc.Close() })
	return nc
}

// requestFrame encodes req and returns the full frame as sent on the wire.
func requestFrame(t *testing.T, req protocol.Request) []byte {
	t.Helper()
	body, err := protocol.EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return rawFrame(t, body)
}

func rawFrame(t *testing.T, body []byte) []byte {
	t.Helper()
	wire, err := frame.Encode(body, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	return wire
}

func roundTrip(t *testing.T, nc net.Conn, wire []byte) protocol.Response {
	t.Helper()
	if _, err := nc.Write(wire); err != nil {
		t.Fatalf("write: %v", err)
	}
	return readResponse(t, nc)
}

func readResponse(t *testing.T, nc net.Conn) protocol.Response {
	t.Helper()
	_ = nc.SetReadDeadline(time.Now().Add(3 * time.Second))
	fr, err := frame.ReadFrame(nc, frame.Limits{MaxFrameBytes: 64 << 20})
	if err != nil {
		t.Fatalf("read response frame: %v", err)
	}
	resp, err := protocol.DecodeResponse(fr.Body())
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// expectClosed asserts the peer closes without sending anything.
func expectClosed(t *testing.T, nc net.Conn) {
	t.Helper()
	_ = nc.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	n, err := nc.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected close without response, got n=%d err=%v", n, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatalf("connection was not closed: %v", err)
	}
}

// blockingRecords parks every Get until its context ends.
type blockingRecords struct {
	entered   chan struct{}
	cancelled chan struct{}
}

func newBlockingRecords() *blockingRecords {
	return &blockingRecords{
		entered:   make(chan struct{}, 1),
		cancelled: make(chan struct{}, 1),
	}
}

func (b *blockingRecords) Get(ctx context.Context, _ protocol.RecordID, _ []byte) ([]byte, error) {
	b.entered <- struct{}{}
	<-ctx.Done()
	b.cancelled <- struct{}{}
	return nil, ctx.Err()
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
