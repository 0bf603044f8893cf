// Package config loads a Node's two configurable values — its identifier
// and UDP port — from a TOML file (SPEC_FULL.md's Ambient Stack:
// Configuration). It does not read environment variables or CLI flags; the
// dhtnode command parses the flags and lets them override the file, and
// dht.New applies the random fallbacks for values left unset. A config file
// is strictly additive convenience; spec.md §6 only names the two
// recognized keys.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/retonato/simple-dht-node/krpc"
)

// File is the recognized shape of an optional TOML config file:
//
//	node_id = "deadbeef..." # 40 hex chars, optional
//	node_port = 6881        # 1..65535, optional
type File struct {
	NodeID   string `toml:"node_id"`
	NodePort int    `toml:"node_port"`
}

// Load reads and validates a TOML config file at path. A node_id, if
// present, must decode as a 40-character hex identifier; a node_port, if
// present, must be in 1..65535. Either field may be omitted to take the
// node's own random default.
func Load(path string) (File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if f.NodeID != "" {
		if _, err := krpc.ParseID(f.NodeID); err != nil {
			return File{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if f.NodePort != 0 && (f.NodePort < 1 || f.NodePort > 65535) {
		return File{}, fmt.Errorf("config: %s: node_port %d out of range", path, f.NodePort)
	}

	return f, nil
}
