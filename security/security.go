// Package security implements the node's two defenses against forged or
// abusive peers (§4.2): a distance-based validity check on every inbound
// node sighting, and a 24-hour TTL blocklist of IPs that fail it.
//
// Both are grounded on
// _examples/original_source/dht_node/utils.py's is_valid_node and
// dht_node.py's _blocked_ips TTLCache, translated to the pack's
// hashicorp/golang-lru/v2/expirable cache (go-ethereum depends on
// hashicorp/golang-lru throughout core/ and les/ for its caches).
package security

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/retonato/simple-dht-node/table"
)

// blocklistTTL and blocklistSize match the original's
// TTLCache(maxsize=1000, ttl=3600*24).
const (
	blocklistTTL  = 24 * time.Hour
	blocklistSize = 1000

	idHexLen = 40

	// minValidDistance is the floor for a node id to differ from the base
	// id: below it the id is close enough to the base to be treated as an
	// impersonation attempt against the table's coarse-distance admission
	// rule (§4.2, §8 property 2).
	minValidDistance = 30
)

// Blocklist is a 24-hour TTL set of IP addresses that have sent an invalid
// node sighting. It is safe for concurrent use.
type Blocklist struct {
	cache *lru.LRU[string, time.Time]
}

// NewBlocklist returns an empty blocklist.
func NewBlocklist() *Blocklist {
	return &Blocklist{
		cache: lru.NewLRU[string, time.Time](blocklistSize, nil, blocklistTTL),
	}
}

// Block marks ip as blocked for the next 24 hours.
func (b *Blocklist) Block(ip string) {
	b.cache.Add(ip, time.Now())
}

// Blocked reports whether ip is currently blocked.
func (b *Blocklist) Blocked(ip string) bool {
	_, ok := b.cache.Get(ip)
	return ok
}

// IsValid reports whether node is acceptable to admit into the routing
// table rooted at baseID, per §4.2:
//
//   - ip must not be the zero address 0.0.0.0
//   - port must be in 1..65535
//   - id must be exactly 40 hex characters
//   - id must equal baseID, or be at least 30 nibbles away from it
//
// The last rule is the anti-impersonation defense: because the table's
// admission rule is driven by a coarse prefix distance rather than true
// XOR closeness, a node claiming an id suspiciously close to baseID would
// otherwise be able to force its way into (and dominate) the table.
func IsValid(node table.Node, baseID string) bool {
	if node.IP == "0.0.0.0" {
		return false
	}
	if node.Port <= 0 || node.Port > 65535 {
		return false
	}
	if len(node.ID) != idHexLen {
		return false
	}

	if node.ID != baseID {
		if table.Distance(node.ID, baseID) < minValidDistance {
			return false
		}
	}

	return true
}
