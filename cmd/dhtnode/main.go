// Command dhtnode runs a standalone Mainline DHT node, the CLI driver
// described in SPEC_FULL.md's Ambient Stack, grounded on
// _examples/original_source/dht_node/dht_node.py's
// `if __name__ == "__main__"` block: start the node, then block until an
// interrupt, then stop it.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/retonato/simple-dht-node/config"
	"github.com/retonato/simple-dht-node/dht"
	"github.com/retonato/simple-dht-node/krpc"
)

func main() {
	app := &cli.App{
		Name:  "dhtnode",
		Usage: "run a Mainline BitTorrent DHT node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "node-id", Usage: "40-character hex node identifier (random if omitted)"},
			&cli.IntFlag{Name: "node-port", Usage: "UDP port to bind (random 1025-65535 if omitted)"},
			&cli.StringFlag{Name: "config", Usage: "optional TOML config file with node_id/node_port"},
			&cli.DurationFlag{Name: "stats-interval", Value: 5 * time.Minute, Usage: "interval between stats log lines"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("dhtnode exited with error", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	node, err := dht.New(cfg)
	if err != nil {
		return fmt.Errorf("dhtnode: constructing node: %w", err)
	}

	if err := node.Start(); err != nil {
		return fmt.Errorf("dhtnode: starting node: %w", err)
	}

	statsTicker := time.NewTicker(c.Duration("stats-interval"))
	defer statsTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			node.Stop()
			return nil
		case <-statsTicker.C:
			dht.LogStats(node)
		}
	}
}

// resolveConfig merges an optional config file with --node-id/--node-port
// flags, the flags taking precedence (matching CLI convention: explicit
// invocation arguments override a file default).
func resolveConfig(c *cli.Context) (dht.Config, error) {
	var cfg dht.Config

	if path := c.String("config"); path != "" {
		f, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		if f.NodeID != "" {
			id, err := krpc.ParseID(f.NodeID)
			if err != nil {
				return cfg, err
			}
			cfg.ID = id
		}
		cfg.Port = f.NodePort
	}

	if s := c.String("node-id"); s != "" {
		id, err := krpc.ParseID(s)
		if err != nil {
			return cfg, fmt.Errorf("dhtnode: --node-id: %w", err)
		}
		cfg.ID = id
	}
	if p := c.Int("node-port"); p != 0 {
		cfg.Port = p
	}

	return cfg, nil
}
