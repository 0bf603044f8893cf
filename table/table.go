package table

import (
	"sort"
	"sync"
	"time"
)

// Table is the routing table: an identifier-keyed map of known nodes,
// exclusively owning its StoredNode collection (§3). Every operation takes
// the table's own mutex for its entire duration, and every read returns a
// freshly allocated snapshot — the internal map is never exposed by
// reference (§5, §9).
type Table struct {
	mu     sync.Mutex
	baseID string
	nodes  map[string]*StoredNode
}

// New returns an empty table clustered around baseID.
func New(baseID string) *Table {
	return &Table{
		baseID: baseID,
		nodes:  make(map[string]*StoredNode),
	}
}

// BaseID returns the table's local identifier.
func (t *Table) BaseID() string {
	return t.baseID
}

// SaveNode is idempotent admission (§4.3).
//
// If node.ID equals the base identifier, it has no effect (§3 invariant:
// the table never stores the base id).
//
// If node.ID is already present and communicated is non-zero, only the
// stored entry's Communicated field is updated; all other fields, notably
// Distance and Peers, are left unchanged.
//
// Otherwise — node.ID absent, or present but communicated is zero — a
// fresh StoredNode is computed and, iff its distance from the base is at
// most 36 or the table currently holds fewer than 7 entries, replaces
// whatever was stored at that id, resetting Added and discarding any
// previously accumulated Peers.
func (t *Table) SaveNode(node Node, communicated time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if node.ID == t.baseID {
		return
	}

	if existing, ok := t.nodes[node.ID]; ok && !communicated.IsZero() {
		existing.Communicated = communicated
		return
	}

	distance := Distance(t.baseID, node.ID)
	if distance <= maxAdmitDistance || len(t.nodes) < minTableSize {
		t.nodes[node.ID] = &StoredNode{
			Node:         node,
			Added:        time.Now(),
			Communicated: communicated,
			Distance:     distance,
			Peers:        make(map[Peer]struct{}),
		}
	}
}

// SavePeer adds peer to the peer set of the StoredNode identified by
// nodeID, with set semantics (§4.3). If nodeID isn't present, SavePeer has
// no effect.
func (t *Table) SavePeer(peer Peer, nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[nodeID]
	if !ok {
		return
	}
	n.Peers[peer] = struct{}{}
}

// GetAllNodes returns a snapshot of every stored node.
func (t *Table) GetAllNodes() []*StoredNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*StoredNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n.clone())
	}
	return out
}

// GetClosestNodes returns up to 7 stored nodes with the smallest distance
// to id; ties break in an unspecified but stable order (§4.3, §9).
func (t *Table) GetClosestNodes(id string) []*StoredNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([]*StoredNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		all = append(all, n.clone())
	}

	sort.Slice(all, func(i, j int) bool {
		di, dj := Distance(id, all[i].ID), Distance(id, all[j].ID)
		if di != dj {
			return di < dj
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > MaxClosest {
		all = all[:MaxClosest]
	}
	return all
}

// GetPeers collects every Peer across all stored nodes whose InfoHash
// matches infoHash; order is unspecified (§4.3).
func (t *Table) GetPeers(infoHash string) []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Peer
	for _, n := range t.nodes {
		for p := range n.Peers {
			if p.InfoHash == infoHash {
				out = append(out, p)
			}
		}
	}
	return out
}

// DeleteUnresponsiveNodes removes every StoredNode for which
// IsUnresponsive holds at the moment of evaluation (§4.3).
func (t *Table) DeleteUnresponsiveNodes() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, n := range t.nodes {
		if n.IsUnresponsive() {
			delete(t.nodes, id)
		}
	}
}

// Len returns the current number of stored nodes.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}
