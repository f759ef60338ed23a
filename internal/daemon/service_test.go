package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ledgerd/internal/client"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/protocol/session"
	"github.com/danmuck/ledgerd/internal/testutil/testlog"
	"github.com/danmuck/ledgerd/internal/types"
)

var (
	alice = types.DigestOf([]byte("alice"))
	bob   = types.DigestOf([]byte("bob"))
)

func testConfig() ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.ChainName = "ledger-test"
	cfg.BlockInterval = time.Hour
	cfg.BinaryPort.Address = "127.0.0.1:0"
	cfg.BinaryPort.QPSLimit = 0
	cfg.Admin = AdminConfig{ListenAddr: "127.0.0.1:0", Token: "secret"}
	cfg.Genesis = []GenesisAccount{{Account: alice, Balance: 1_000}}
	return cfg
}

func transfer(t *testing.T, amount uint64) []byte {
	t.Helper()
	raw, err := types.Transaction{
		ChainName:  "ledger-test",
		Timestamp:  time.Now().UnixMilli(),
		TTL:        int64(time.Hour / time.Millisecond),
		Initiator:  alice,
		Payment:    100,
		EntryPoint: "transfer",
		Writes:     []types.Write{{Key: types.BalanceKey(bob), Value: types.EncodeBalance(amount)}},
	}.Encode()
	if err != nil {
		t.Fatalf("encode transfer: %v", err)
	}
	return raw
}

// runService starts svc and returns a client bound to its binary port.
func runService(t *testing.T, svc *Service) *client.Client {
	t.Helper()
	if err := svc.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.RunContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("service did not stop")
		}
	})

	cfg := session.DefaultClientConfig()
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	c := client.New(svc.BinaryAddr().String(), cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBootstrapSealsGenesisOnce(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testConfig())
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	st := svc.Status().Status()
	if st.AvailableLow != 0 || st.AvailableHigh != 0 || st.LatestBlock.IsZero() {
		t.Fatalf("expected only genesis block, got %+v", st)
	}
	if st.ReactorState != "KeepUp" {
		t.Fatalf("expected KeepUp after bootstrap, got %q", st.ReactorState)
	}
}

func TestBootstrapRejectsBadConfig(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.BlockInterval = 0
	if err := NewService(cfg).Bootstrap(context.Background()); !errors.Is(err, ErrInvalidBlockInterval) {
		t.Fatalf("expected ErrInvalidBlockInterval, got %v", err)
	}
	cfg = testConfig()
	cfg.ChainName = " "
	if err := NewService(cfg).Bootstrap(context.Background()); !errors.Is(err, ErrChainNameRequired) {
		t.Fatalf("expected ErrChainNameRequired, got %v", err)
	}
}

func TestAcceptedTransferIsSealedAndQueryable(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testConfig())
	c := runService(t, svc)
	ctx := context.Background()

	raw := transfer(t, 250)
	if err := c.TryAccept(ctx, raw); err != nil {
		t.Fatalf("try accept: %v", err)
	}
	header, hash, err := svc.ProduceBlock(ctx)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if header.Height != 1 || len(header.Transactions) != 1 {
		t.Fatalf("unexpected header: %+v", header)
	}
	if header.Transactions[0] != types.DigestOf(raw) {
		t.Fatalf("block does not carry the accepted transaction")
	}

	bal, err := c.Item(ctx, types.BalanceKey(bob))
	if err != nil {
		t.Fatalf("bob balance: %v", err)
	}
	if v, _ := types.DecodeBalance(bal); v != 250 {
		t.Fatalf("expected bob=250, got %d", v)
	}

	typ, rawHeader, err := c.Information(ctx, protocol.InfoBlockHeader, nil)
	if err != nil || typ != protocol.ResponseBlockHeader {
		t.Fatalf("latest header: type=%d err=%v", typ, err)
	}
	latest, err := types.DecodeBlockHeader(rawHeader)
	if err != nil || latest.Height != 1 || latest.StateRoot != header.StateRoot {
		t.Fatalf("latest header mismatch: %+v err=%v", latest, err)
	}

	rawEffects, err := c.Record(ctx, protocol.RecordExecutionResult, header.Transactions[0][:])
	if err != nil {
		t.Fatalf("execution result: %v", err)
	}
	effects, err := types.DecodeExecutionEffects(rawEffects)
	if err != nil || effects.PostStateRoot != header.StateRoot {
		t.Fatalf("effects post root mismatch: %+v err=%v", effects, err)
	}

	_, rawRange, err := c.Information(ctx, protocol.InfoAvailableBlockRange, nil)
	if err != nil {
		t.Fatalf("block range: %v", err)
	}
	br, err := protocol.DecodeBlockRange(rawRange)
	if err != nil || br.Low != 0 || br.High != 1 {
		t.Fatalf("unexpected range %+v err=%v", br, err)
	}
	if _, err := c.Record(ctx, protocol.RecordBlockBody, hash[:]); err != nil {
		t.Fatalf("block body: %v", err)
	}
}

func TestCancelledProductionKeepsPending(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testConfig())
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	raw := transfer(t, 10)
	if err := svc.pool.TryAccept(context.Background(), raw); err != nil {
		t.Fatalf("try accept: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := svc.ProduceBlock(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if pending := svc.pool.Pending(); len(pending) != 1 || pending[0] != types.DigestOf(raw) {
		t.Fatalf("cancelled production lost pending transactions: %v", pending)
	}

	header, _, err := svc.ProduceBlock(context.Background())
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(header.Transactions) != 1 || header.Transactions[0] != types.DigestOf(raw) {
		t.Fatalf("transaction not sealed after retry: %+v", header)
	}
}

func TestFailedTransferIsDropped(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testConfig())
	c := runService(t, svc)
	ctx := context.Background()

	raw := transfer(t, 5_000)
	if err := c.TryAccept(ctx, raw); err != nil {
		t.Fatalf("try accept: %v", err)
	}
	header, _, err := svc.ProduceBlock(ctx)
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(header.Transactions) != 0 {
		t.Fatalf("expected empty block, got %d transactions", len(header.Transactions))
	}
	hash := types.DigestOf(raw)
	_, err = c.Record(ctx, protocol.RecordExecutionResult, hash[:])
	var re *client.ResponseError
	if !errors.As(err, &re) || re.Code != protocol.NotFound {
		t.Fatalf("expected NotFound for dropped result, got %v", err)
	}
}

func TestPoolStatusCountsRecords(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testConfig())
	ctx := context.Background()
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	c := runService(t, svc)

	if err := c.TryAccept(ctx, transfer(t, 10)); err != nil {
		t.Fatalf("try accept: %v", err)
	}
	out, err := svc.Admin().ExecuteAction(ctx, "pool_status")
	if err != nil || !strings.HasPrefix(out, "pending=1 transactions=1 blocks=1 ") {
		t.Fatalf("unexpected pool status before produce: %q err=%v", out, err)
	}
	if _, _, err := svc.ProduceBlock(ctx); err != nil {
		t.Fatalf("produce: %v", err)
	}
	out, err = svc.Admin().ExecuteAction(ctx, "pool_status")
	if err != nil || !strings.HasPrefix(out, "pending=0 transactions=1 blocks=2 ") {
		t.Fatalf("unexpected pool status after produce: %q err=%v", out, err)
	}
}

func TestAdminServesReadyAndActions(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testConfig())
	runService(t, svc)
	base := fmt.Sprintf("http://%s", svc.AdminAddr())

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(base + "/ready")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin never became ready: err=%v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/actions/produce_block", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("produce action: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("produce action status=%d", resp.StatusCode)
	}
	if high := svc.Status().Status().AvailableHigh; high != 1 {
		t.Fatalf("expected height 1 after action, got %d", high)
	}
}
