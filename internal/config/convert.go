package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/ledgerd/internal/binaryport"
	"github.com/danmuck/ledgerd/internal/daemon"
	"github.com/danmuck/ledgerd/internal/protocol/session"
	"github.com/danmuck/ledgerd/internal/status"
	"github.com/danmuck/ledgerd/internal/types"
)

// ServiceConfig resolves a validated file config into the runtime form.
// The chainspec file, when named, is read here.
func (c NodeConfig) ServiceConfig() (daemon.ServiceConfig, error) {
	out := daemon.DefaultServiceConfig()
	out.NodeID = c.Node.ID
	out.NetworkName = c.Node.NetworkName
	out.ChainName = c.Node.ChainName
	out.Version = c.Node.Version
	if d := parseDuration(c.Node.BlockInterval); d > 0 {
		out.BlockInterval = d
	}
	if strings.TrimSpace(c.Node.TimestampLeeway) != "" {
		out.TimestampLeeway = parseDuration(c.Node.TimestampLeeway)
	}
	if path := strings.TrimSpace(c.Node.ChainspecPath); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return daemon.ServiceConfig{}, fmt.Errorf("chainspec load failed (%s): %w", path, err)
		}
		out.ChainspecRaw = raw
	}

	out.BinaryPortEnabled = c.BinaryPort.Enabled
	out.BinaryPort = BinaryPortConfig(c.BinaryPort)
	out.Admin = daemon.AdminConfig{
		ListenAddr:  c.Admin.Address,
		Token:       c.Admin.Token,
		CorsOrigins: append([]string(nil), c.Admin.CorsOrigins...),
	}

	for i, g := range c.Genesis {
		account, err := types.DigestFromHex(g.Account)
		if err != nil {
			return daemon.ServiceConfig{}, fmt.Errorf("genesis[%d]: %w", i, err)
		}
		out.Genesis = append(out.Genesis, daemon.GenesisAccount{Account: account, Balance: g.Balance})
	}
	for _, p := range c.Peers {
		out.Peers = append(out.Peers, status.Peer{NodeID: p.ID, Address: p.Address})
	}
	return out, nil
}

// BinaryPortConfig leaves unset limits and timeouts to session defaults.
func BinaryPortConfig(s BinaryPortSection) binaryport.Config {
	return binaryport.Config{
		Address: strings.TrimSpace(s.Address),
		Session: session.ServerConfig{
			MaxFrameBytes:    uint32(s.MaxFrameBytes),
			MaxResponseBytes: uint32(s.MaxResponseBytes),
			IdleTimeout:      parseDuration(s.IdleTimeout),
			ReadTimeout:      parseDuration(s.ReadTimeout),
			WriteTimeout:     parseDuration(s.WriteTimeout),
			InitialLifetime:  parseDuration(s.InitialLifetime),
			Termination:      session.DefaultTerminationDelays(),
		}.WithDefaults(),
		MaxConnections: s.MaxConnections,
		QPSLimit:       s.QPSLimit,
		Gates: binaryport.Gates{
			AllItems:        s.AllowAllItems,
			Trie:            s.AllowTrie,
			SpeculativeExec: s.AllowSpeculativeExec,
		},
	}
}
