package dht

import (
	"errors"
	"net"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/ethereum/go-ethereum/log"

	"github.com/retonato/simple-dht-node/krpc"
	"github.com/retonato/simple-dht-node/security"
	"github.com/retonato/simple-dht-node/table"
)

// recvBufSize is the maximum size of a KRPC datagram the node will accept.
// BEP 5 implementations commonly cap at 65535 (the UDP payload ceiling);
// mirrors the original's socket.recvfrom(65535).
const recvBufSize = 65535

// socketReadTimeout matches the original's socket.settimeout(1): the read
// deadline is reset on every iteration so the loop can observe n.stop at
// roughly 1-second granularity without busy-waiting.
const socketReadTimeout = time.Second

// registerBuiltinHandlers wires the "all" chain (freshness refresh) and the
// per-label handlers described in §4.4.
func (n *Node) registerBuiltinHandlers() {
	n.AddMessageHandler(saveNodeOnAnyMessage)

	n.handlersByID[krpc.PingRequest] = []Handler{handlePingRequest}
	n.handlersByID[krpc.FindNodeRequest] = []Handler{handleFindNodeRequest}
	n.handlersByID[krpc.GetPeersRequest] = []Handler{handleGetPeersRequest}
	n.handlersByID[krpc.AnnouncePeerRequest] = []Handler{handleAnnouncePeerRequest}
	n.handlersByID[krpc.FindNodeResponse] = []Handler{handleFindNodeResponse}
	// PingResponse, GetPeersResponse, SampleInfohashes, Vote, Unknown: no
	// built-in action (§4.4), they still run through the "all" chain above.
	// ErrorMsg has no handler either; error messages carry no sender id, so
	// handleDatagram drops them before any chain runs.
}

// receiveLoop is the node's single reader: it owns n.conn for reads and
// runs until n.stop is closed. Every accepted datagram is classified,
// validated, and dispatched through the "all" chain followed by its
// per-label chain (§4.1, §4.4).
func (n *Node) receiveLoop() {
	defer n.wg.Done()

	buf := make([]byte, recvBufSize)
	for {
		select {
		case <-n.stop:
			n.conn.Close()
			return
		default:
		}

		n.conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
		size, addr, err := n.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-n.stop:
				return
			default:
			}
			log.Error("cannot receive message", "err", err)
			continue
		}
		n.messagesIn.Add(1)

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		senderIP := udpAddr.IP.String()

		if n.blocklist.Blocked(senderIP) {
			log.Debug("ignoring message from blocked ip", "ip", senderIP)
			continue
		}

		n.handleDatagram(buf[:size], senderIP, udpAddr.Port)
	}
}

// handleDatagram decodes, classifies, validates and dispatches one
// datagram (§4.1).
func (n *Node) handleDatagram(raw []byte, senderIP string, senderPort int) {
	var msg krpc.Msg
	if err := bencode.Unmarshal(raw, &msg); err != nil {
		log.Debug("cannot decode message", "err", err)
		return
	}

	senderID, ok := msg.SenderID()
	if !ok {
		return
	}

	label := krpc.Classify(msg)

	sender := table.Node{ID: senderID.String(), IP: senderIP, Port: senderPort}
	if !security.IsValid(sender, n.table.BaseID()) {
		log.Debug("invalid sender, blocking", "ip", senderIP, "id", sender.ID)
		n.blocklist.Block(senderIP)
		return
	}

	for _, h := range n.handlersAll {
		runHandler(h, n, msg, sender)
	}
	for _, h := range n.handlersByID[label] {
		runHandler(h, n, msg, sender)
	}
}

// runHandler invokes h, catching and logging any error so that one
// misbehaving handler never prevents the rest of the chain from running
// (§7); it mirrors the original's per-handler try/except.
func runHandler(h Handler, n *Node, msg krpc.Msg, sender table.Node) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("handler panicked", "sender", sender.ID, "recover", r)
		}
	}()
	if err := h(n, msg, sender); err != nil {
		log.Debug("handler error", "sender", sender.ID, "err", err)
	}
}

// saveNodeOnAnyMessage is the built-in "all" handler: every message, of any
// label, refreshes the sender's freshness timestamp in the routing table
// (§4.4, mirroring the original's _save_node).
func saveNodeOnAnyMessage(n *Node, _ krpc.Msg, sender table.Node) error {
	n.table.SaveNode(sender, time.Now())
	return nil
}
