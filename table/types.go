// Package table implements the DHT routing table: an identifier-keyed
// collection of known nodes clustered near a local base identifier (§3,
// §4.3 of the node's spec), grounded on the mutex-guarded,
// snapshot-returning style of
// _examples/lmars-pss-demo/vendor/.../swarm/network/kademlia.go, adapted to
// the spec's coarse prefix-distance metric rather than true XOR buckets.
package table

import "time"

// Questionable and Unresponsive are the freshness thresholds of §3: a
// StoredNode whose reference time (Communicated if set, else Added) is
// older than these is eligible for a ping probe, or for deletion.
const (
	Questionable = 5 * time.Minute
	Unresponsive = 15 * time.Minute
)

// MaxClosest bounds get_closest_nodes and the bootstrap fan-out.
const MaxClosest = 7

// minTableSize is the escape hatch in the admission rule (§4.3): below this
// size, any candidate is admitted regardless of distance, so the table can
// bootstrap from arbitrarily distant seeds.
const minTableSize = 7

// maxAdmitDistance is the distance ceiling for admission once the table
// holds minTableSize or more entries (§4.3).
const maxAdmitDistance = 36

// Node is a read-only, transient view of a DHT peer as observed on the
// wire. It has no relation to any entry stored in the routing table.
type Node struct {
	ID   string // 40 lowercase hex characters
	IP   string // dotted-quad
	Port int    // 1..65535
}

// Peer is a torrent peer announced through a StoredNode. Its identity is
// the triple (InfoHash, IP, Port); it lives inside exactly one
// StoredNode.Peers set (§3).
type Peer struct {
	InfoHash string
	IP       string
	Port     int
}

// StoredNode is a Node admitted to the routing table, augmented with
// freshness timestamps, its fixed distance from the base identifier, and
// the peers announced through it.
type StoredNode struct {
	Node
	Added        time.Time
	Communicated time.Time // zero value means "never communicated"
	Distance     int       // fixed at admission time, never recomputed
	Peers        map[Peer]struct{}
}

func (n *StoredNode) hasCommunicated() bool {
	return !n.Communicated.IsZero()
}

func (n *StoredNode) referenceTime() time.Time {
	if n.hasCommunicated() {
		return n.Communicated
	}
	return n.Added
}

// IsQuestionable reports whether n hasn't been heard from in over 5
// minutes and is therefore eligible for a ping probe.
func (n *StoredNode) IsQuestionable() bool {
	return time.Since(n.referenceTime()) > Questionable
}

// IsUnresponsive reports whether n hasn't been heard from in over 15
// minutes and is therefore eligible for deletion.
func (n *StoredNode) IsUnresponsive() bool {
	return time.Since(n.referenceTime()) > Unresponsive
}

// clone returns a deep copy of n so that snapshot reads never expose the
// table's internal map or its live peer set to a caller.
func (n *StoredNode) clone() *StoredNode {
	cp := *n
	cp.Peers = make(map[Peer]struct{}, len(n.Peers))
	for p := range n.Peers {
		cp.Peers[p] = struct{}{}
	}
	return &cp
}

// PeerList returns the peers of n as a slice, in unspecified order.
func (n *StoredNode) PeerList() []Peer {
	out := make([]Peer, 0, len(n.Peers))
	for p := range n.Peers {
		out = append(out, p)
	}
	return out
}

// Distance computes the reduced prefix-distance metric of §3:
// d(a,b) = 40 - |commonPrefix(hex(a), hex(b))|, range 0..40. This is NOT
// the full Kademlia XOR metric; it is a coarse hex-nibble bucket counter.
func Distance(a, b string) int {
	common := 0
	for common < len(a) && common < len(b) && a[common] == b[common] {
		common++
	}
	return len(a) - common
}
