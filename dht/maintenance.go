package dht

import (
	"net"
	"time"

	"github.com/retonato/simple-dht-node/krpc"
	"github.com/retonato/simple-dht-node/table"
)

// bootstrapNode is router.bittorrent.com, the hard-coded seed the original
// uses to join the network on an empty table (§4.5).
var bootstrapNode = table.Node{
	ID:   "32f54e697351ff4aec29cdbaabf2fbe3467cc267",
	IP:   "67.215.246.10",
	Port: 6881,
}

const (
	bootstrapRounds       = 10
	bootstrapRoundSpacing = 5 * time.Second
	maintenanceCycle      = 300 * time.Second
)

// maintainRoutingTable runs the node's one background maintenance
// activity: a one-time bootstrap if the table starts empty, followed by a
// steady-state cycle of pinging questionable nodes and evicting
// unresponsive ones (§4.5, mirroring _maintain_routing_table).
func (n *Node) maintainRoutingTable() {
	defer n.wg.Done()

	if len(n.table.GetAllNodes()) == 0 {
		n.bootstrap()
	}

	for {
		select {
		case <-n.stop:
			return
		default:
		}

		n.pingQuestionableNodes()
		n.table.DeleteUnresponsiveNodes()

		if n.sleep(maintenanceCycle) {
			return
		}
	}
}

// bootstrap seeds the table with the well-known bootstrap node, then sends
// find_node(self.id) to the closest known nodes 10 times, 5 seconds apart,
// exactly per the original's loop.
func (n *Node) bootstrap() {
	n.table.SaveNode(bootstrapNode, time.Time{})

	for i := 0; i < bootstrapRounds; i++ {
		select {
		case <-n.stop:
			return
		default:
		}

		for _, closest := range n.table.GetClosestNodes(n.ID.String()) {
			ip := net.ParseIP(closest.IP)
			if ip == nil {
				continue
			}
			n.SendMessage(krpc.Msg{
				T: transactionID(),
				Y: "q",
				Q: "find_node",
				A: &krpc.Args{ID: n.ID, Target: n.ID},
			}, ip, closest.Port)
		}

		if n.sleep(bootstrapRoundSpacing) {
			return
		}
	}
}

// pingQuestionableNodes sends a ping to every stored node that hasn't
// communicated in over 5 minutes (§4.5).
func (n *Node) pingQuestionableNodes() {
	for _, node := range n.table.GetAllNodes() {
		if !node.IsQuestionable() {
			continue
		}
		ip := net.ParseIP(node.IP)
		if ip == nil {
			continue
		}
		n.SendMessage(krpc.Msg{
			T: transactionID(),
			Y: "q",
			Q: "ping",
			A: &krpc.Args{ID: n.ID},
		}, ip, node.Port)
	}
}

// sleep waits for d or until n.stop is closed, whichever comes first,
// reporting whether stop fired. It replaces the original's
// threading.Event.wait(seconds), which doubles as both a sleep and an
// early-exit check.
func (n *Node) sleep(d time.Duration) (stopped bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-n.stop:
		return true
	case <-timer.C:
		return false
	}
}
