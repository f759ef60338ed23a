package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/ledgerd/internal/execution"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/state"
	"github.com/danmuck/ledgerd/internal/status"
	"github.com/danmuck/ledgerd/internal/storage"
	"github.com/danmuck/ledgerd/internal/txpool"
	"github.com/danmuck/ledgerd/internal/types"
	"github.com/rs/zerolog/log"
)

// producer seals pending transactions into blocks. Transactions that fail
// execution are left out of the block and get no execution_result record.
type producer struct {
	store    *storage.Store
	state    *state.State
	pool     *txpool.Acceptor
	executor *execution.Executor
	status   *status.Provider
	now      func() time.Time

	mu     sync.Mutex
	next   uint64
	parent types.Digest
}

// produce drains the pool, executes each transaction against committed
// state, commits and stores the new block. Cancellation before the drain
// leaves the pool untouched; cancellation during it seals what already ran
// and requeues the rest.
func (p *producer) produce(ctx context.Context) (types.BlockHeader, types.Digest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return types.BlockHeader{}, types.Digest{}, err
	}

	drained := p.pool.Drain()
	included := make([]types.Digest, 0, len(drained))
	for i, hash := range drained {
		if ctx.Err() != nil {
			p.requeue(drained[i:])
			break
		}
		raw, err := p.store.Get(ctx, protocol.RecordTransaction, hash[:])
		if err != nil {
			log.Warn().Str("txn", hash.String()).Err(err).Msg("pending transaction missing")
			continue
		}
		effects, err := p.executor.SpeculativeExec(ctx, raw)
		if err != nil && ctx.Err() != nil {
			p.requeue(drained[i:])
			break
		}
		if err != nil {
			log.Warn().Str("txn", hash.String()).Err(err).Msg("transaction dropped from block")
			continue
		}
		p.state.Apply(effects.Transforms)
		result, err := types.Marshal(effects)
		if err != nil {
			return types.BlockHeader{}, types.Digest{}, fmt.Errorf("daemon: encode effects: %w", err)
		}
		if err := p.store.Put(protocol.RecordExecutionResult, hash[:], result); err != nil {
			return types.BlockHeader{}, types.Digest{}, err
		}
		included = append(included, hash)
	}

	root, err := p.state.Commit()
	if err != nil {
		return types.BlockHeader{}, types.Digest{}, fmt.Errorf("daemon: commit state: %w", err)
	}
	header := types.BlockHeader{
		Height:       p.next,
		Parent:       p.parent,
		StateRoot:    root,
		Timestamp:    p.now().UnixMilli(),
		Transactions: included,
	}
	hash, rawHeader, err := header.Hash()
	if err != nil {
		return types.BlockHeader{}, types.Digest{}, fmt.Errorf("daemon: encode header: %w", err)
	}
	body, err := types.Marshal(included)
	if err != nil {
		return types.BlockHeader{}, types.Digest{}, fmt.Errorf("daemon: encode body: %w", err)
	}
	if err := p.store.Put(protocol.RecordBlockHeader, hash[:], rawHeader); err != nil {
		return types.BlockHeader{}, types.Digest{}, err
	}
	if err := p.store.Put(protocol.RecordBlockBody, hash[:], body); err != nil {
		return types.BlockHeader{}, types.Digest{}, err
	}
	p.status.AddBlock(header.Height, hash)

	p.next++
	p.parent = hash
	return header, hash, nil
}

func (p *producer) requeue(hashes []types.Digest) {
	log.Warn().Int("transactions", len(hashes)).Msg("block production cancelled, requeueing")
	p.pool.Requeue(hashes)
}
