// Command portctl issues binary port requests against a running node.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/ledgerd/internal/client"
	"github.com/danmuck/ledgerd/internal/observability"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/status"
	"github.com/danmuck/ledgerd/internal/types"
)

const usage = `usage: portctl [flags] <command> [args]

commands:
  uptime
  status
  info <tag> [hex-key]
  record <record-id> <hex-key>
  item <key-tag> <hex-addr>
  all-items <key-tag>
  trie <hex-digest>
  accept <file>
  exec <file>
  transfer <hex-from> <hex-to> <amount>
  codes
`

func main() {
	configPath := flag.String("config", "", "portctl config file")
	addr := flag.String("addr", "", "node binary port address (overrides config)")
	chain := flag.String("chain", "ledger-dev", "chain name for transfer")
	payment := flag.Uint64("payment", 100, "payment for transfer")
	timeout := flag.Duration("timeout", 30*time.Second, "overall request timeout")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	observability.InitLogger("portctl", *logLevel)

	cfg := defaultClientConfig()
	if *configPath != "" {
		loaded, err := loadClientConfig(*configPath)
		if err != nil {
			fail(err)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Address = *addr
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := client.New(cfg.Address, cfg.Session)
	defer c.Close()

	out, err := run(ctx, c, flag.Args(), transferOptions{chain: *chain, payment: *payment})
	if err != nil {
		fail(err)
	}
	if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
		fail(err)
	}
}

type transferOptions struct {
	chain   string
	payment uint64
}

// run executes one command and returns a JSON-encodable result.
func run(ctx context.Context, c *client.Client, args []string, opts transferOptions) (any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "codes":
		return errorCodeTable(), nil

	case "uptime":
		d, err := c.Uptime(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"uptime": d.String(), "uptime_ms": d.Milliseconds()}, nil

	case "status":
		_, raw, err := c.Information(ctx, protocol.InfoNodeStatus, nil)
		if err != nil {
			return nil, err
		}
		st, err := status.DecodeNodeStatus(raw)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status":       st,
			"state_root":   st.StateRoot.String(),
			"latest_block": st.LatestBlock.String(),
		}, nil

	case "info":
		if len(rest) < 1 {
			return nil, errors.New("info: tag required")
		}
		tag, ok := protocol.ParseInfoTag(rest[0])
		if !ok {
			return nil, fmt.Errorf("info: unknown tag %q", rest[0])
		}
		key, err := optionalHex(rest[1:])
		if err != nil {
			return nil, err
		}
		typ, raw, err := c.Information(ctx, tag, key)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": uint8(typ), "payload": hex.EncodeToString(raw)}, nil

	case "record":
		if len(rest) != 2 {
			return nil, errors.New("record: record-id and key required")
		}
		id, ok := protocol.ParseRecordID(rest[0])
		if !ok {
			return nil, fmt.Errorf("record: unknown record id %q", rest[0])
		}
		key, err := hex.DecodeString(rest[1])
		if err != nil {
			return nil, fmt.Errorf("record: key: %w", err)
		}
		raw, err := c.Record(ctx, id, key)
		if err != nil {
			return nil, err
		}
		return map[string]any{"payload": hex.EncodeToString(raw)}, nil

	case "item":
		if len(rest) != 2 {
			return nil, errors.New("item: key-tag and address required")
		}
		key, err := parseKey(rest[0], rest[1])
		if err != nil {
			return nil, err
		}
		raw, err := c.Item(ctx, key)
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": key.String(), "value": hex.EncodeToString(raw)}, nil

	case "all-items":
		if len(rest) != 1 {
			return nil, errors.New("all-items: key-tag required")
		}
		tag, ok := types.ParseKeyTag(rest[0])
		if !ok {
			return nil, fmt.Errorf("all-items: unknown key tag %q", rest[0])
		}
		values, err := c.AllItems(ctx, tag)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]string, 0, len(values))
		for _, v := range values {
			out = append(out, map[string]string{"key": v.Key.String(), "value": hex.EncodeToString(v.Value)})
		}
		return out, nil

	case "trie":
		if len(rest) != 1 {
			return nil, errors.New("trie: digest required")
		}
		d, err := types.DigestFromHex(rest[0])
		if err != nil {
			return nil, err
		}
		raw, err := c.Trie(ctx, d)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bytes": len(raw), "trie": hex.EncodeToString(raw)}, nil

	case "accept", "exec":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%s: transaction file required", cmd)
		}
		raw, err := readInput(rest[0])
		if err != nil {
			return nil, err
		}
		return submit(ctx, c, cmd, raw)

	case "transfer":
		if len(rest) != 3 {
			return nil, errors.New("transfer: from, to and amount required")
		}
		raw, err := buildTransfer(rest[0], rest[1], rest[2], opts)
		if err != nil {
			return nil, err
		}
		return submit(ctx, c, "accept", raw)
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

type errorCodeRow struct {
	Code uint16 `json:"code"`
	Name string `json:"name"`
}

// errorCodeTable lists the response codes a node may answer with.
func errorCodeTable() []errorCodeRow {
	codes := protocol.ErrorCodes()
	rows := make([]errorCodeRow, 0, len(codes))
	for code, name := range codes {
		rows = append(rows, errorCodeRow{Code: uint16(code), Name: name})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows
}

func submit(ctx context.Context, c *client.Client, cmd string, raw []byte) (any, error) {
	hash := types.DigestOf(raw)
	if cmd == "exec" {
		effects, err := c.SpeculativeExec(ctx, raw)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"transaction":     effects.TransactionHash.String(),
			"pre_state_root":  effects.PreStateRoot.String(),
			"post_state_root": effects.PostStateRoot.String(),
			"gas_used":        effects.GasUsed,
			"transforms":      len(effects.Transforms),
		}, nil
	}
	if err := c.TryAccept(ctx, raw); err != nil {
		return nil, err
	}
	return map[string]any{"accepted": true, "transaction": hash.String()}, nil
}

func buildTransfer(fromHex, toHex, amountRaw string, opts transferOptions) ([]byte, error) {
	from, err := types.DigestFromHex(fromHex)
	if err != nil {
		return nil, fmt.Errorf("transfer: from: %w", err)
	}
	to, err := types.DigestFromHex(toHex)
	if err != nil {
		return nil, fmt.Errorf("transfer: to: %w", err)
	}
	amount, err := strconv.ParseUint(amountRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("transfer: amount: %w", err)
	}
	return types.Transaction{
		ChainName:  opts.chain,
		Timestamp:  time.Now().UnixMilli(),
		TTL:        int64(30 * time.Minute / time.Millisecond),
		Initiator:  from,
		Payment:    opts.payment,
		EntryPoint: "transfer",
		Writes:     []types.Write{{Key: types.BalanceKey(to), Value: types.EncodeBalance(amount)}},
	}.Encode()
}

func parseKey(tagName, addrHex string) (types.Key, error) {
	tag, ok := types.ParseKeyTag(tagName)
	if !ok {
		return types.Key{}, fmt.Errorf("unknown key tag %q", tagName)
	}
	addr, err := types.DigestFromHex(addrHex)
	if err != nil {
		return types.Key{}, err
	}
	return types.NewKey(tag, addr), nil
}

func optionalHex(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimSpace(args[0]))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	return raw, nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func fail(err error) {
	var re *client.ResponseError
	if errors.As(err, &re) {
		fmt.Fprintf(os.Stderr, "portctl: node answered %s (%d)\n", re.Code, uint16(re.Code))
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "portctl: %v\n", err)
	os.Exit(1)
}
