package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ledgerd/internal/protocol/session"
)

type fileConfig struct {
	Address        string `toml:"address"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	MaxAttempts    int    `toml:"max_attempts"`
	MaxFrameBytes  uint32 `toml:"max_frame_bytes"`
}

type clientConfig struct {
	Address string
	Session session.ClientConfig
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Address: "127.0.0.1:7779",
		Session: session.DefaultClientConfig(),
	}
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load portctl config: %w", err)
	}

	if meta.IsDefined("address") {
		if addr := strings.TrimSpace(raw.Address); addr != "" {
			cfg.Address = addr
		}
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
	} {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("max_attempts") {
		cfg.Session.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.Session.MaxFrameBytes = raw.MaxFrameBytes
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return clientConfig{}, fmt.Errorf("unknown portctl config key %q", undecoded[0].String())
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}
