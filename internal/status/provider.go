// Package status answers node information queries.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/types"
)

const (
	ReactorInitialize = "Initialize"
	ReactorKeepUp     = "KeepUp"
	ReactorValidate   = "Validate"
	ReactorShutdown   = "ShutdownForUpgrade"
)

type Config struct {
	NetworkName  string
	ChainName    string
	Version      string
	ChainspecRaw []byte
	Now          func() time.Time
}

// Provider is safe for concurrent use.
type Provider struct {
	cfg       Config
	started   time.Time
	records   node.RecordStore
	stateRoot func() types.Digest

	mu           sync.RWMutex
	peers        []Peer
	reactorState string
	lastProgress time.Time
	blockRange   protocol.BlockRange
	latestBlock  types.Digest
}

var _ node.InfoProvider = (*Provider)(nil)

func NewProvider(cfg Config, records node.RecordStore, stateRoot func() types.Digest) *Provider {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if stateRoot == nil {
		stateRoot = func() types.Digest { return types.Digest{} }
	}
	now := cfg.Now()
	return &Provider{
		cfg:          cfg,
		started:      now,
		records:      records,
		stateRoot:    stateRoot,
		reactorState: ReactorInitialize,
		lastProgress: now,
	}
}

func (p *Provider) SetPeers(peers []Peer) {
	cp := append([]Peer(nil), peers...)
	p.mu.Lock()
	p.peers = cp
	p.mu.Unlock()
}

func (p *Provider) SetReactorState(s string) {
	p.mu.Lock()
	p.reactorState = s
	p.mu.Unlock()
}

// AddBlock extends the available range to height and makes hash the latest
// block. Heights must be added in order.
func (p *Provider) AddBlock(height uint64, hash types.Digest) {
	now := p.cfg.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latestBlock.IsZero() {
		p.blockRange = protocol.BlockRange{Low: height, High: height}
	} else if height > p.blockRange.High {
		p.blockRange.High = height
	}
	p.latestBlock = hash
	p.lastProgress = now
}

func (p *Provider) Uptime() time.Duration {
	return p.cfg.Now().Sub(p.started)
}

// Status snapshots everything NodeStatus reports.
func (p *Provider) Status() NodeStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return NodeStatus{
		NetworkName:      p.cfg.NetworkName,
		ChainName:        p.cfg.ChainName,
		Version:          p.cfg.Version,
		UptimeMillis:     uint64(p.Uptime().Milliseconds()),
		ReactorState:     p.reactorState,
		PeerCount:        uint32(len(p.peers)),
		StateRoot:        p.stateRoot(),
		LatestBlock:      p.latestBlock,
		AvailableLow:     p.blockRange.Low,
		AvailableHigh:    p.blockRange.High,
		LastProgressUnix: p.lastProgress.UnixMilli(),
	}
}

func (p *Provider) Info(ctx context.Context, tag protocol.InfoTag, key []byte) (protocol.ResponseType, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	switch tag {
	case protocol.InfoUptime:
		return protocol.ResponseUptime, protocol.EncodeU64(uint64(p.Uptime().Milliseconds())), nil

	case protocol.InfoPeers:
		p.mu.RLock()
		peers := append([]Peer{}, p.peers...)
		p.mu.RUnlock()
		raw, err := types.Marshal(peers)
		if err != nil {
			return 0, nil, fmt.Errorf("status: encode peers: %w", err)
		}
		return protocol.ResponsePeers, raw, nil

	case protocol.InfoLastProgress:
		p.mu.RLock()
		at := p.lastProgress
		p.mu.RUnlock()
		return protocol.ResponseLastProgress, protocol.EncodeU64(uint64(at.UnixMilli())), nil

	case protocol.InfoReactorState:
		p.mu.RLock()
		s := p.reactorState
		p.mu.RUnlock()
		return protocol.ResponseReactorState, []byte(s), nil

	case protocol.InfoNetworkName:
		return protocol.ResponseNetworkName, []byte(p.cfg.NetworkName), nil

	case protocol.InfoAvailableBlockRange:
		p.mu.RLock()
		br := p.blockRange
		p.mu.RUnlock()
		return protocol.ResponseAvailableBlockRange, protocol.EncodeBlockRange(br), nil

	case protocol.InfoChainspecRawBytes:
		if len(p.cfg.ChainspecRaw) == 0 {
			return 0, nil, fmt.Errorf("%w: chainspec", node.ErrNotFound)
		}
		return protocol.ResponseChainspecRawBytes, append([]byte(nil), p.cfg.ChainspecRaw...), nil

	case protocol.InfoNodeStatus:
		raw, err := types.Marshal(p.Status())
		if err != nil {
			return 0, nil, fmt.Errorf("status: encode node status: %w", err)
		}
		return protocol.ResponseNodeStatus, raw, nil

	case protocol.InfoBlockHeader:
		hash, err := p.blockKey(key)
		if err != nil {
			return 0, nil, err
		}
		raw, err := p.records.Get(ctx, protocol.RecordBlockHeader, hash[:])
		if err != nil {
			return 0, nil, err
		}
		return protocol.ResponseBlockHeader, raw, nil

	case protocol.InfoSignedBlock:
		hash, err := p.blockKey(key)
		if err != nil {
			return 0, nil, err
		}
		header, err := p.records.Get(ctx, protocol.RecordBlockHeader, hash[:])
		if err != nil {
			return 0, nil, err
		}
		body, err := p.records.Get(ctx, protocol.RecordBlockBody, hash[:])
		if err != nil && !errors.Is(err, node.ErrNotFound) {
			return 0, nil, err
		}
		raw, err := types.Marshal(SignedBlock{Hash: hash, Header: header, Body: body})
		if err != nil {
			return 0, nil, fmt.Errorf("status: encode signed block: %w", err)
		}
		return protocol.ResponseSignedBlock, raw, nil

	case protocol.InfoTransaction:
		if len(key) != types.DigestLen {
			return 0, nil, fmt.Errorf("%w: transaction hash must be %d bytes", node.ErrBadRequest, types.DigestLen)
		}
		raw, err := p.records.Get(ctx, protocol.RecordTransaction, key)
		if err != nil {
			return 0, nil, err
		}
		return protocol.ResponseTransaction, raw, nil
	}
	return 0, nil, fmt.Errorf("%w: info tag %s", node.ErrBadRequest, tag)
}

// blockKey resolves an empty key to the latest block.
func (p *Provider) blockKey(key []byte) (types.Digest, error) {
	switch len(key) {
	case 0:
		p.mu.RLock()
		latest := p.latestBlock
		p.mu.RUnlock()
		if latest.IsZero() {
			return types.Digest{}, fmt.Errorf("%w: no blocks yet", node.ErrNotFound)
		}
		return latest, nil
	case types.DigestLen:
		var d types.Digest
		copy(d[:], key)
		return d, nil
	default:
		return types.Digest{}, fmt.Errorf("%w: block hash must be %d bytes", node.ErrBadRequest, types.DigestLen)
	}
}
