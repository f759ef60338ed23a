// Package txpool validates submitted transactions and queues the accepted ones.
package txpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/types"
	"github.com/rs/zerolog/log"
)

// RecordWriter persists accepted transactions.
type RecordWriter interface {
	Put(id protocol.RecordID, key, value []byte) error
}

type Config struct {
	ChainName string
	// TimestampLeeway tolerates client clocks slightly ahead of ours.
	TimestampLeeway time.Duration
	Now             func() time.Time
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Acceptor is safe for concurrent use.
type Acceptor struct {
	cfg     Config
	state   node.GlobalState
	records RecordWriter

	mu      sync.Mutex
	seen    map[types.Digest]struct{}
	pending []types.Digest
}

var _ node.TransactionAcceptor = (*Acceptor)(nil)

func NewAcceptor(cfg Config, state node.GlobalState, records RecordWriter) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		state:   state,
		records: records,
		seen:    make(map[types.Digest]struct{}),
	}
}

// TryAccept returns nil on acceptance, *node.RejectedError when the
// transaction is refused, or a plain error for internal failures.
func (a *Acceptor) TryAccept(ctx context.Context, raw []byte) error {
	txn, err := types.DecodeTransaction(raw)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransaction) {
			return node.Rejected(node.RejectInvalid, err)
		}
		return node.Rejected(node.RejectMalformed, err)
	}

	if txn.ChainName != a.cfg.ChainName {
		return node.Rejected(node.RejectChainName, fmt.Errorf("got %q want %q", txn.ChainName, a.cfg.ChainName))
	}
	now := a.cfg.now()
	if time.UnixMilli(txn.Timestamp).After(now.Add(a.cfg.TimestampLeeway)) {
		return node.Rejected(node.RejectFutureTimestamp, nil)
	}
	if txn.ExpiresAt().Before(now) {
		return node.Rejected(node.RejectExpired, fmt.Errorf("expired at %s", txn.ExpiresAt().UTC().Format(time.RFC3339)))
	}

	balance, err := a.balance(ctx, txn.Initiator)
	if err != nil {
		return err
	}
	if balance < txn.Payment {
		return node.Rejected(node.RejectInsufficientBalance, fmt.Errorf("balance %d payment %d", balance, txn.Payment))
	}

	canonical, err := txn.Encode()
	if err != nil {
		return fmt.Errorf("txpool: encode: %w", err)
	}
	hash := types.DigestOf(canonical)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.seen[hash]; dup {
		return node.Rejected(node.RejectDuplicate, fmt.Errorf("hash %s", hash))
	}
	if err := a.records.Put(protocol.RecordTransaction, hash[:], canonical); err != nil {
		return fmt.Errorf("txpool: store: %w", err)
	}
	a.seen[hash] = struct{}{}
	a.pending = append(a.pending, hash)

	log.Debug().
		Str("hash", hash.String()).
		Str("entry_point", txn.EntryPoint).
		Uint64("payment", txn.Payment).
		Msg("transaction accepted")
	return nil
}

func (a *Acceptor) balance(ctx context.Context, account types.Digest) (uint64, error) {
	raw, err := a.state.GetItem(ctx, types.BalanceKey(account))
	if errors.Is(err, node.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("txpool: balance lookup: %w", err)
	}
	v, ok := types.DecodeBalance(raw)
	if !ok {
		return 0, fmt.Errorf("txpool: balance for %s is %d bytes", account, len(raw))
	}
	return v, nil
}

// Pending lists accepted transaction hashes in acceptance order.
func (a *Acceptor) Pending() []types.Digest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Digest, len(a.pending))
	copy(out, a.pending)
	return out
}

// Drain removes and returns every pending hash. Duplicate detection still
// covers drained transactions.
func (a *Acceptor) Drain() []types.Digest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.pending
	a.pending = nil
	return out
}

// Requeue puts hashes back at the front of the pending list, ahead of
// anything accepted since they were drained. Hashes never accepted here are
// ignored.
func (a *Acceptor) Requeue(hashes []types.Digest) {
	if len(hashes) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	back := make([]types.Digest, 0, len(hashes)+len(a.pending))
	for _, h := range hashes {
		if _, ok := a.seen[h]; ok {
			back = append(back, h)
		}
	}
	a.pending = append(back, a.pending...)
}
