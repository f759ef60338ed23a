package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/ledgerd/internal/client"
	"github.com/danmuck/ledgerd/internal/daemon"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/testutil/testlog"
	"github.com/danmuck/ledgerd/internal/types"
)

func startNode(t *testing.T) (*daemon.Service, *client.Client) {
	t.Helper()
	cfg := daemon.DefaultServiceConfig()
	cfg.ChainName = "ledger-cli"
	cfg.BlockInterval = time.Hour
	cfg.BinaryPort.Address = "127.0.0.1:0"
	cfg.BinaryPort.QPSLimit = 0
	cfg.Genesis = []daemon.GenesisAccount{{Account: types.DigestOf([]byte("alice")), Balance: 1_000}}

	svc := daemon.NewService(cfg)
	if err := svc.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.RunContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	clientCfg := defaultClientConfig()
	c := client.New(svc.BinaryAddr().String(), clientCfg.Session)
	t.Cleanup(func() { _ = c.Close() })
	return svc, c
}

func TestRunTransferThenQuery(t *testing.T) {
	testlog.Start(t)
	svc, c := startNode(t)
	ctx := context.Background()
	alice := types.DigestOf([]byte("alice")).String()
	bob := types.DigestOf([]byte("bob"))

	out, err := run(ctx, c, []string{"transfer", alice, bob.String(), "40"}, transferOptions{chain: "ledger-cli", payment: 50})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if m, _ := out.(map[string]any); m["accepted"] != true {
		t.Fatalf("unexpected transfer output: %#v", out)
	}
	if _, _, err := svc.ProduceBlock(ctx); err != nil {
		t.Fatalf("produce: %v", err)
	}

	out, err = run(ctx, c, []string{"item", "balance", bob.String()}, transferOptions{})
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if m, _ := out.(map[string]any); m["value"] != "2800000000000000" {
		t.Fatalf("unexpected bob balance output: %#v", out)
	}

	if _, err := run(ctx, c, []string{"uptime"}, transferOptions{}); err != nil {
		t.Fatalf("uptime: %v", err)
	}
	if _, err := run(ctx, c, []string{"status"}, transferOptions{}); err != nil {
		t.Fatalf("status: %v", err)
	}
}

func TestRunReportsNodeErrors(t *testing.T) {
	testlog.Start(t)
	_, c := startNode(t)
	ctx := context.Background()

	_, err := run(ctx, c, []string{"transfer", types.DigestOf([]byte("alice")).String(), types.DigestOf([]byte("bob")).String(), "1"}, transferOptions{chain: "other-chain", payment: 50})
	var re *client.ResponseError
	if !errors.As(err, &re) || re.Code != protocol.InvalidTransactionChainName {
		t.Fatalf("expected chain name rejection, got %v", err)
	}

	_, err = run(ctx, c, []string{"all-items", "balance"}, transferOptions{})
	if !errors.As(err, &re) || re.Code != protocol.FunctionDisabled {
		t.Fatalf("expected all-items to be disabled by default, got %v", err)
	}
}

func TestRunListsErrorCodes(t *testing.T) {
	testlog.Start(t)
	out, err := run(context.Background(), nil, []string{"codes"}, transferOptions{})
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	rows, ok := out.([]errorCodeRow)
	if !ok || len(rows) == 0 {
		t.Fatalf("unexpected codes output: %#v", out)
	}
	if rows[0].Code != 0 || rows[0].Name != "no_error" {
		t.Fatalf("table not ordered by code: %+v", rows[0])
	}
	found := false
	for i, row := range rows {
		if i > 0 && rows[i-1].Code >= row.Code {
			t.Fatalf("table not ordered at %d: %+v", i, row)
		}
		if row.Code == uint16(protocol.InternalError) && row.Name == protocol.InternalError.String() {
			found = true
		}
	}
	if !found {
		t.Fatalf("internal_error missing from %+v", rows)
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	for _, args := range [][]string{
		{"bogus"},
		{"info"},
		{"info", "no_such_tag"},
		{"record", "transaction"},
		{"item", "nope", "00"},
		{"trie", "zz"},
		{"transfer", "aa", "bb"},
	} {
		if _, err := run(ctx, nil, args, transferOptions{}); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
