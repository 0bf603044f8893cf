package dht

import (
	"github.com/ethereum/go-ethereum/log"
)

// LogStats logs the aggregate node count and summed in/out message counts
// across nodes, then resets every counter — a direct translation of
// _examples/original_source/dht_node/utils.py's log_stats, which the
// distilled spec.md drops but the original relies on for progress
// reporting (SPEC_FULL.md's Supplemented Features).
func LogStats(nodes ...*Node) {
	var totalIn, totalOut uint64
	for _, n := range nodes {
		in, out := n.Counters()
		totalIn += in
		totalOut += out
	}

	log.Info("node stats", "nodes", len(nodes), "messages_in", totalIn, "messages_out", totalOut)

	for _, n := range nodes {
		n.resetCounters()
	}
}
