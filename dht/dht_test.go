package dht

import (
	"net"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retonato/simple-dht-node/krpc"
	"github.com/retonato/simple-dht-node/table"
)

// farIDFrom returns a hex id guaranteed to share no prefix with base, so
// its distance from base is always 40 and it always clears the validator's
// >=30 threshold (§4.2).
func farIDFrom(base string) string {
	repl := byte('0')
	if base[0] == '0' {
		repl = '1'
	}
	return string(repl) + base[1:]
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Config{})
	require.NoError(t, err)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	n.conn = conn

	return n
}

func mustEncode(t *testing.T, msg krpc.Msg) []byte {
	t.Helper()
	b, err := bencode.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestNewAssignsRandomIDAndPort(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)
	b, err := New(Config{})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.GreaterOrEqual(t, a.Port, 1025)
	assert.LessOrEqual(t, a.Port, 65535)
}

func TestNewHonorsExplicitConfig(t *testing.T) {
	id, err := krpc.RandomID()
	require.NoError(t, err)

	n, err := New(Config{ID: id, Port: 9999})
	require.NoError(t, err)
	assert.Equal(t, id, n.ID)
	assert.Equal(t, 9999, n.Port)
}

func TestAllHandlerRefreshesSenderOnAnyMessage(t *testing.T) {
	n := newTestNode(t)

	senderIDHex := farIDFrom(n.ID.String())
	senderID, err := krpc.ParseID(senderIDHex)
	require.NoError(t, err)

	msg := krpc.Msg{T: "aa", Y: "q", Q: "ping", A: &krpc.Args{ID: senderID}}
	n.handleDatagram(mustEncode(t, msg), "127.0.0.1", 4)

	nodes := n.table.GetAllNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, senderIDHex, nodes[0].ID)
	assert.False(t, nodes[0].Communicated.IsZero())
}

func TestHandleDatagramBlocksInvalidSender(t *testing.T) {
	n := newTestNode(t)

	// Shares at least the base id's first 35 nibbles: distance at most 5,
	// well under the required 30.
	near := n.ID.String()[:35] + "00000"
	nearID, err := krpc.ParseID(near)
	require.NoError(t, err)

	msg := krpc.Msg{T: "aa", Y: "q", Q: "ping", A: &krpc.Args{ID: nearID}}
	n.handleDatagram(mustEncode(t, msg), "10.0.0.5", 4)

	assert.True(t, n.blocklist.Blocked("10.0.0.5"))
	assert.Empty(t, n.table.GetAllNodes())
}

func TestPingRequestHandlerReplies(t *testing.T) {
	n := newTestNode(t)

	reply, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer reply.Close()
	replyAddr := reply.LocalAddr().(*net.UDPAddr)

	sender := table.Node{ID: farIDFrom(n.ID.String()), IP: "127.0.0.1", Port: replyAddr.Port}
	err = handlePingRequest(n, krpc.Msg{T: "zz", Y: "q", Q: "ping"}, sender)
	require.NoError(t, err)

	buf := make([]byte, 512)
	reply.SetReadDeadline(time.Now().Add(time.Second))
	size, _, err := reply.ReadFrom(buf)
	require.NoError(t, err)

	var got krpc.Msg
	require.NoError(t, bencode.Unmarshal(buf[:size], &got))
	assert.Equal(t, "zz", got.T)
	assert.Equal(t, "r", got.Y)
	require.NotNil(t, got.R)
	assert.Equal(t, n.ID, got.R.ID)
}

func TestFindNodeRequestHandlerReturnsClosestNodes(t *testing.T) {
	n := newTestNode(t)

	other := farIDFrom(n.ID.String())
	n.table.SaveNode(table.Node{ID: other, IP: "1.2.3.4", Port: 5}, time.Time{})

	reply, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer reply.Close()
	replyAddr := reply.LocalAddr().(*net.UDPAddr)

	sender := table.Node{ID: other, IP: "127.0.0.1", Port: replyAddr.Port}
	target, err := krpc.ParseID(n.ID.String())
	require.NoError(t, err)

	err = handleFindNodeRequest(n, krpc.Msg{T: "yy", Y: "q", Q: "find_node", A: &krpc.Args{Target: target}}, sender)
	require.NoError(t, err)

	buf := make([]byte, 512)
	reply.SetReadDeadline(time.Now().Add(time.Second))
	size, _, err := reply.ReadFrom(buf)
	require.NoError(t, err)

	var got krpc.Msg
	require.NoError(t, bencode.Unmarshal(buf[:size], &got))
	require.NotNil(t, got.R)
	nodes := krpc.DecodeNodes(got.R.Nodes)
	require.Len(t, nodes, 1)
	assert.Equal(t, other, nodes[0].ID.String())
}

func TestAnnouncePeerRequestHandlerUsesImpliedPort(t *testing.T) {
	n := newTestNode(t)

	senderIDHex := farIDFrom(n.ID.String())
	n.table.SaveNode(table.Node{ID: senderIDHex, IP: "127.0.0.1", Port: 111}, time.Time{})

	infoHash, err := krpc.RandomID()
	require.NoError(t, err)

	sender := table.Node{ID: senderIDHex, IP: "127.0.0.1", Port: 222}
	err = handleAnnouncePeerRequest(n, krpc.Msg{
		T: "xx", Y: "q", Q: "announce_peer",
		A: &krpc.Args{InfoHash: infoHash, Port: 9, ImpliedPort: true},
	}, sender)
	require.NoError(t, err)

	peers := n.table.GetPeers(infoHash.String())
	require.Len(t, peers, 1)
	assert.Equal(t, 222, peers[0].Port) // implied_port: use the datagram's source port, not a.port
}

func TestFindNodeResponseHandlerFiltersInvalidNodes(t *testing.T) {
	n := newTestNode(t)

	validID := farIDFrom(n.ID.String())
	invalidID := n.ID.String()[:35] + "11111"

	validParsed, _ := krpc.ParseID(validID)
	invalidParsed, _ := krpc.ParseID(invalidID)

	nodes := krpc.EncodeNodes([]krpc.NodeInfo{
		{ID: validParsed, IP: net.IPv4(1, 2, 3, 4), Port: 6881},
		{ID: invalidParsed, IP: net.IPv4(5, 6, 7, 8), Port: 6881},
	})

	err := handleFindNodeResponse(n, krpc.Msg{T: "ww", Y: "r", R: &krpc.Return{Nodes: nodes}}, table.Node{})
	require.NoError(t, err)

	stored := n.table.GetAllNodes()
	require.Len(t, stored, 1)
	assert.Equal(t, validID, stored[0].ID)
	assert.True(t, n.blocklist.Blocked("5.6.7.8"))
}
