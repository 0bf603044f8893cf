package dht

import (
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/retonato/simple-dht-node/krpc"
	"github.com/retonato/simple-dht-node/security"
	"github.com/retonato/simple-dht-node/table"
)

// handlePingRequest answers a ping with the node's id, per BEP 5 and
// _examples/original_source/dht_node/dht_node.py's _on_ping_request.
func handlePingRequest(n *Node, msg krpc.Msg, sender table.Node) error {
	n.SendMessage(krpc.Msg{
		T: msg.T,
		Y: "r",
		R: &krpc.Return{ID: n.ID},
	}, net.ParseIP(sender.IP), sender.Port)
	return nil
}

// handleFindNodeRequest answers with the closest known nodes to the
// requested target (§4.4).
func handleFindNodeRequest(n *Node, msg krpc.Msg, sender table.Node) error {
	if msg.A == nil {
		return fmt.Errorf("dht: find_node request missing arguments")
	}
	target := msg.A.Target.String()

	closest := n.table.GetClosestNodes(target)
	n.SendMessage(krpc.Msg{
		T: msg.T,
		Y: "r",
		R: &krpc.Return{ID: n.ID, Nodes: krpc.EncodeNodes(toNodeInfos(closest))},
	}, net.ParseIP(sender.IP), sender.Port)
	return nil
}

// handleGetPeersRequest answers with known peers for the requested
// info_hash, or with the closest nodes to it on a miss (§4.4).
func handleGetPeersRequest(n *Node, msg krpc.Msg, sender table.Node) error {
	if msg.A == nil {
		return fmt.Errorf("dht: get_peers request missing arguments")
	}
	infoHash := msg.A.InfoHash.String()

	peers := n.table.GetPeers(infoHash)
	if len(peers) > 0 {
		values := make([]krpc.Peer, 0, len(peers))
		for _, p := range peers {
			ip := net.ParseIP(p.IP)
			if ip == nil {
				continue
			}
			values = append(values, krpc.Peer{IP: ip, Port: p.Port})
		}
		token, err := randomToken()
		if err != nil {
			return err
		}
		n.SendMessage(krpc.Msg{
			T: msg.T,
			Y: "r",
			R: &krpc.Return{ID: n.ID, Token: token, Values: values},
		}, net.ParseIP(sender.IP), sender.Port)
		return nil
	}

	closest := n.table.GetClosestNodes(infoHash)
	n.SendMessage(krpc.Msg{
		T: msg.T,
		Y: "r",
		R: &krpc.Return{ID: n.ID, Nodes: krpc.EncodeNodes(toNodeInfos(closest))},
	}, net.ParseIP(sender.IP), sender.Port)
	return nil
}

// handleAnnouncePeerRequest stores the announced peer and acknowledges
// with the node's id. Per §9 Open Question 2, the token is not validated
// against the one handed out by a prior get_peers — this matches the
// original's behavior exactly and is carried forward unchanged.
func handleAnnouncePeerRequest(n *Node, msg krpc.Msg, sender table.Node) error {
	if msg.A == nil {
		return fmt.Errorf("dht: announce_peer request missing arguments")
	}

	port := msg.A.Port
	if msg.A.ImpliedPort {
		port = sender.Port
	}

	n.table.SavePeer(table.Peer{
		InfoHash: msg.A.InfoHash.String(),
		IP:       sender.IP,
		Port:     port,
	}, sender.ID)

	n.SendMessage(krpc.Msg{
		T: msg.T,
		Y: "r",
		R: &krpc.Return{ID: n.ID},
	}, net.ParseIP(sender.IP), sender.Port)
	return nil
}

// handleFindNodeResponse admits every compact node carried in a
// find_node response, after re-validating each one individually: a
// response from a valid sender can still report nodes that are not valid;
// each of those has its ip blocklisted and is skipped (§4.4, mirroring
// _on_find_node_response).
func handleFindNodeResponse(n *Node, msg krpc.Msg, _ table.Node) error {
	if msg.R == nil {
		return fmt.Errorf("dht: find_node response missing return values")
	}

	for _, info := range krpc.DecodeNodes(msg.R.Nodes) {
		node := table.Node{ID: info.ID.String(), IP: info.IP.String(), Port: info.Port}
		if !security.IsValid(node, n.table.BaseID()) {
			log.Debug("invalid node in find_node response, blocking", "ip", node.IP, "id", node.ID)
			n.blocklist.Block(node.IP)
			continue
		}
		n.table.SaveNode(node, time.Time{})
	}
	return nil
}

func toNodeInfos(nodes []*table.StoredNode) []krpc.NodeInfo {
	out := make([]krpc.NodeInfo, 0, len(nodes))
	for _, sn := range nodes {
		ip := net.ParseIP(sn.IP)
		if ip == nil {
			continue
		}
		id, err := krpc.ParseID(sn.ID)
		if err != nil {
			continue
		}
		out = append(out, krpc.NodeInfo{ID: id, IP: ip, Port: sn.Port})
	}
	return out
}

// randomToken returns an opaque 2-byte get_peers token, matching the
// original's os.urandom(2). The node never validates it on a later
// announce_peer (§9 Open Question 2).
func randomToken() (string, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("dht: generating token: %w", err)
	}
	return string(b[:]), nil
}
