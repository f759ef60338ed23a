// Command ledgerd runs a ledger node serving the binary port.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/ledgerd/internal/config"
	"github.com/danmuck/ledgerd/internal/daemon"
	"github.com/danmuck/ledgerd/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "node config file (defaults apply when empty)")
	logLevel := flag.String("log-level", "", "log level override")
	flag.Parse()

	cfg := config.DefaultNodeConfig()
	if *configPath != "" {
		loaded, err := config.LoadNodeConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	level := cfg.Node.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	observability.InitLogger("ledgerd", level)

	svcCfg, err := cfg.ServiceConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
	log.Info().
		Str("node", svcCfg.NodeID).
		Str("chain", svcCfg.ChainName).
		Bool("binary_port", svcCfg.BinaryPortEnabled).
		Str("binary_addr", svcCfg.BinaryPort.Address).
		Str("admin_addr", svcCfg.Admin.ListenAddr).
		Msg("ledgerd starting")

	if err := daemon.NewService(svcCfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}
