// Package daemon assembles a ledger node: record store, global state,
// transaction pool, executor, status provider, binary port and admin HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/ledgerd/internal/admin"
	"github.com/danmuck/ledgerd/internal/binaryport"
	"github.com/danmuck/ledgerd/internal/execution"
	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/state"
	"github.com/danmuck/ledgerd/internal/status"
	"github.com/danmuck/ledgerd/internal/storage"
	"github.com/danmuck/ledgerd/internal/txpool"
	"github.com/danmuck/ledgerd/internal/types"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidBlockInterval = errors.New("daemon: invalid block interval")
	ErrChainNameRequired    = errors.New("daemon: chain name required")
)

// GenesisAccount seeds one balance before the first block.
type GenesisAccount struct {
	Account types.Digest
	Balance uint64
}

type AdminConfig struct {
	ListenAddr  string
	Token       string
	CorsOrigins []string
}

// ServiceConfig configures a standalone node.
type ServiceConfig struct {
	NodeID       string
	NetworkName  string
	ChainName    string
	Version      string
	ChainspecRaw []byte
	// BlockInterval is how often pending transactions are sealed.
	BlockInterval   time.Duration
	TimestampLeeway time.Duration

	BinaryPortEnabled bool
	BinaryPort        binaryport.Config
	Admin             AdminConfig

	Genesis []GenesisAccount
	Peers   []status.Peer
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		NodeID:            "ledgerd.local",
		NetworkName:       "ledger-devnet",
		ChainName:         "ledger-dev",
		Version:           "0.1.0",
		BlockInterval:     5 * time.Second,
		TimestampLeeway:   2 * time.Second,
		BinaryPortEnabled: true,
		BinaryPort:        binaryport.DefaultConfig(),
	}
}

// Service owns every node component and their lifecycles.
type Service struct {
	cfg ServiceConfig

	store    *storage.Store
	state    *state.State
	pool     *txpool.Acceptor
	executor *execution.Executor
	status   *status.Provider
	producer *producer
	binary   *binaryport.Server
	admin    *admin.Server

	listenMu sync.Mutex
	binaryLn net.Listener
	adminLn  net.Listener

	bootMu       sync.Mutex
	bootstrapped bool
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{cfg: cfg}
	s.store = storage.NewStore()
	s.state = state.New()
	s.pool = txpool.NewAcceptor(txpool.Config{
		ChainName:       cfg.ChainName,
		TimestampLeeway: cfg.TimestampLeeway,
	}, s.state, s.store)
	s.executor = execution.NewExecutor(cfg.ChainName, s.state)
	s.status = status.NewProvider(status.Config{
		NetworkName:  cfg.NetworkName,
		ChainName:    cfg.ChainName,
		Version:      cfg.Version,
		ChainspecRaw: cfg.ChainspecRaw,
	}, s.store, s.state.StateRoot)
	s.status.SetPeers(cfg.Peers)
	s.producer = &producer{
		store:    s.store,
		state:    s.state,
		pool:     s.pool,
		executor: s.executor,
		status:   s.status,
		now:      time.Now,
	}
	s.binary = binaryport.NewServer(cfg.BinaryPort, s.Capabilities())
	s.admin = admin.New(admin.Config{
		NodeID:      cfg.NodeID,
		Addr:        cfg.Admin.ListenAddr,
		Version:     cfg.Version,
		CorsOrigins: cfg.Admin.CorsOrigins,
		Token:       cfg.Admin.Token,
	}, s.status)
	s.admin.Register("produce_block", s.produceAction)
	s.admin.Register("pool_status", s.poolStatusAction)
	return s
}

// Capabilities exposes the components the binary port serves from.
func (s *Service) Capabilities() node.Capabilities {
	return node.Capabilities{
		Records:  s.store,
		Info:     s.status,
		State:    s.state,
		Acceptor: s.pool,
		Executor: s.executor,
	}
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// Listen binds the binary port and admin listeners. RunContext calls it when
// the caller has not.
func (s *Service) Listen() error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.cfg.BinaryPortEnabled && s.binaryLn == nil {
		ln, err := net.Listen("tcp", s.cfg.BinaryPort.Address)
		if err != nil {
			return fmt.Errorf("daemon: binary port listen: %w", err)
		}
		s.binaryLn = ln
	}
	if strings.TrimSpace(s.cfg.Admin.ListenAddr) != "" && s.adminLn == nil {
		ln, err := net.Listen("tcp", s.cfg.Admin.ListenAddr)
		if err != nil {
			return fmt.Errorf("daemon: admin listen: %w", err)
		}
		s.adminLn = ln
	}
	return nil
}

// BinaryAddr is nil until Listen succeeds or when the port is disabled.
func (s *Service) BinaryAddr() net.Addr {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.binaryLn == nil {
		return nil
	}
	return s.binaryLn.Addr()
}

func (s *Service) AdminAddr() net.Addr {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.adminLn == nil {
		return nil
	}
	return s.adminLn.Addr()
}

func (s *Service) Status() *status.Provider {
	return s.status
}

func (s *Service) Admin() *admin.Server {
	return s.admin
}

// ProduceBlock seals whatever is pending now.
func (s *Service) ProduceBlock(ctx context.Context) (types.BlockHeader, types.Digest, error) {
	return s.producer.produce(ctx)
}

// Bootstrap applies genesis balances and seals block zero. It is idempotent.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.BlockInterval <= 0 {
		return ErrInvalidBlockInterval
	}
	if strings.TrimSpace(s.cfg.ChainName) == "" {
		return ErrChainNameRequired
	}
	s.bootMu.Lock()
	defer s.bootMu.Unlock()
	if s.bootstrapped {
		return nil
	}

	for _, g := range s.cfg.Genesis {
		s.state.Put(types.BalanceKey(g.Account), types.EncodeBalance(g.Balance))
	}
	header, hash, err := s.producer.produce(ctx)
	if err != nil {
		return fmt.Errorf("daemon: genesis block: %w", err)
	}
	s.bootstrapped = true
	s.status.SetReactorState(status.ReactorKeepUp)
	log.Info().
		Str("node", s.cfg.NodeID).
		Str("chain", s.cfg.ChainName).
		Int("genesis_accounts", len(s.cfg.Genesis)).
		Str("genesis_block", hash.String()).
		Str("state_root", header.StateRoot.String()).
		Msg("node bootstrapped")
	return nil
}

// RunContext serves until ctx is done. A listener failure stops the node.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	if err := s.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	binaryLn, adminLn := s.listeners()
	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	if binaryLn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- s.binary.Serve(ctx, binaryLn)
		}()
	}
	if adminLn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- s.admin.Serve(ctx, adminLn)
		}()
	}
	defer func() {
		cancel()
		wg.Wait()
	}()
	s.admin.SetReady(true)
	defer s.admin.SetReady(false)

	ticker := time.NewTicker(s.cfg.BlockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.status.SetReactorState(status.ReactorShutdown)
			log.Info().Str("node", s.cfg.NodeID).Msg("node shutdown")
			return nil
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ticker.C:
			header, hash, err := s.producer.produce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return err
			}
			log.Info().
				Str("node", s.cfg.NodeID).
				Uint64("height", header.Height).
				Str("block", hash.String()).
				Int("transactions", len(header.Transactions)).
				Int("binary_connections", s.binary.ActiveConnections()).
				Msg("block sealed")
		}
	}
}

func (s *Service) listeners() (net.Listener, net.Listener) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	return s.binaryLn, s.adminLn
}

func (s *Service) produceAction(ctx context.Context) (string, error) {
	header, hash, err := s.producer.produce(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("height=%d block=%s transactions=%d", header.Height, hash, len(header.Transactions)), nil
}

func (s *Service) poolStatusAction(context.Context) (string, error) {
	return fmt.Sprintf("pending=%d transactions=%d blocks=%d binary_connections=%d",
		len(s.pool.Pending()),
		s.store.Len(protocol.RecordTransaction),
		s.store.Len(protocol.RecordBlockHeader),
		s.binary.ActiveConnections()), nil
}
