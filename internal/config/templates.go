package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Template renders a starter config. "node" is generated from
// DefaultNodeConfig so it never drifts from the loader's defaults.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		raw, err := toml.Marshal(DefaultNodeConfig())
		if err != nil {
			return "", fmt.Errorf("render node template: %w", err)
		}
		return string(raw), nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `address = "127.0.0.1:7779"
connect_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"
max_attempts = 3
max_frame_bytes = 4194304
`
