package main

import (
	"flag"
	"log"

	"github.com/danmuck/ledgerd/internal/config"
)

func main() {
	kind := flag.String("kind", "node", "config kind: node|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing node config file")
	input := flag.String("input", "cmd/ledgerd/config.toml", "node config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "node" {
			log.Fatalf("validation supports kind=node only, got %s", *kind)
		}
		if _, err := config.LoadNodeConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated node config at %s", *input)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "node":
			target = "cmd/ledgerd/config.toml"
		case "client":
			target = "cmd/portctl/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
