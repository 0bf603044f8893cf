// Package dht implements the DHT node process: a UDP socket that speaks
// KRPC (package krpc) over a Kademlia-derived overlay, backed by a routing
// table (package table) and a validator/blocklist (package security).
//
// The process shape — a receive/dispatch loop and a separate maintenance
// loop, both stoppable from a single signal, sharing a mutex-guarded send
// path — is grounded on
// _examples/other_examples/27a65cfe_bcashier-torrent-web-seeder__vendor-github.com-anacrolix-dht-v2-server.go.go's
// Server and
// _examples/original_source/dht_node/dht_node.py's DHTNode, translated from
// Python's threading.Thread/Event pair to goroutines synchronized with a
// sync.WaitGroup and a stop channel.
package dht

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"sync"
	"sync/atomic"

	"github.com/anacrolix/torrent/bencode"
	"github.com/ethereum/go-ethereum/log"

	"github.com/retonato/simple-dht-node/krpc"
	"github.com/retonato/simple-dht-node/security"
	"github.com/retonato/simple-dht-node/table"
)

// Handler processes one inbound message alongside the sender it came from.
// An error is caught and logged by the dispatcher; it never stops the
// remaining handlers in the chain from running (§7).
type Handler func(n *Node, msg krpc.Msg, sender table.Node) error

// Node is a running (or not-yet-started) DHT node process.
type Node struct {
	ID   krpc.ID
	Port int

	table     *table.Table
	blocklist *security.Blocklist

	sendMu sync.Mutex
	conn   net.PacketConn

	handlersAll  []Handler
	handlersByID map[krpc.Label][]Handler

	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// Config configures a new Node. A zero value ID or non-positive Port
// selects a random choice, mirroring the original's
// secrets.token_hex(20)/random.randint(1025, 65535) defaults.
type Config struct {
	ID   krpc.ID
	Port int
}

// New constructs a Node from cfg, registering the built-in handlers of
// §4.4. It does not bind a socket; call Start for that.
func New(cfg Config) (*Node, error) {
	id := cfg.ID
	if id == (krpc.ID{}) {
		random, err := krpc.RandomID()
		if err != nil {
			return nil, fmt.Errorf("dht: generating node id: %w", err)
		}
		id = random
	}

	port := cfg.Port
	if port <= 0 {
		p, err := randomPort()
		if err != nil {
			return nil, fmt.Errorf("dht: choosing node port: %w", err)
		}
		port = p
	}

	n := &Node{
		ID:           id,
		Port:         port,
		table:        table.New(id.String()),
		blocklist:    security.NewBlocklist(),
		handlersByID: make(map[krpc.Label][]Handler),
		stop:         make(chan struct{}),
	}
	n.registerBuiltinHandlers()
	return n, nil
}

// randomPort picks a port in the same range as the original's
// random.randint(1025, 65535).
func randomPort() (int, error) {
	const lo, hi = 1025, 65535
	nBig, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		return 0, err
	}
	return lo + int(nBig.Int64()), nil
}

// Table exposes the node's routing table for inspection (e.g. by a stats
// reporter or a test).
func (n *Node) Table() *table.Table {
	return n.table
}

// AddMessageHandler appends fn to the handler chain run before every
// per-label handler, for every inbound message regardless of its label
// (§4.4). It mirrors the original's add_message_handler.
func (n *Node) AddMessageHandler(fn Handler) {
	n.handlersAll = append(n.handlersAll, fn)
}

// Counters returns the current messages-in/messages-out counts.
func (n *Node) Counters() (in, out uint64) {
	return n.messagesIn.Load(), n.messagesOut.Load()
}

// resetCounters zeroes both counters, used by LogStats.
func (n *Node) resetCounters() {
	n.messagesIn.Store(0)
	n.messagesOut.Store(0)
}

// Start binds the node's UDP socket and launches its receive/dispatch and
// maintenance loops. It returns once the socket is bound; the loops run in
// background goroutines until Stop is called.
func (n *Node) Start() error {
	log.Info("starting node", "id", n.ID, "port", n.Port)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: n.Port})
	if err != nil {
		return fmt.Errorf("dht: binding socket: %w", err)
	}
	conn.SetReadBuffer(1 << 20)
	n.conn = conn

	n.wg.Add(2)
	go n.receiveLoop()
	go n.maintainRoutingTable()

	return nil
}

// Stop signals both loops to exit and waits for them to finish, matching
// the original's spin-wait on thread liveness translated to a WaitGroup.
func (n *Node) Stop() {
	log.Info("stopping node", "id", n.ID)
	close(n.stop)
	n.wg.Wait()
}

// SendMessage bencodes msg and sends it to (ip, port), serialized behind a
// single mutex the same way the original guards self._socket.sendto with
// self._lock (§3, §7).
func (n *Node) SendMessage(msg krpc.Msg, ip net.IP, port int) {
	raw, err := bencode.Marshal(msg)
	if err != nil {
		log.Error("cannot encode message", "err", err)
		return
	}

	n.sendMu.Lock()
	defer n.sendMu.Unlock()

	_, err = n.conn.WriteTo(raw, &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		log.Error("cannot send message", "to", fmt.Sprintf("%s:%d", ip, port), "err", err)
		return
	}
	n.messagesOut.Add(1)
}

// transactionID returns a fresh, 2-byte transaction id, as the original
// generates with os.urandom(2) for outbound queries it doesn't track
// responses to.
func transactionID() string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return string(b[:])
}
