package krpc

import (
	"net"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDRoundTrip(t *testing.T) {
	id, err := RandomID()
	require.NoError(t, err)

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseIDRejectsWrongLength(t *testing.T) {
	_, err := ParseID("deadbeef")
	assert.Error(t, err)
}

func TestCompactNodeRoundTrip(t *testing.T) {
	id, err := RandomID()
	require.NoError(t, err)

	nodes := []NodeInfo{{ID: id, IP: net.IPv4(192, 168, 1, 5), Port: 6881}}
	encoded := EncodeNodes(nodes)
	assert.Len(t, encoded, compactNodeRecLen)

	decoded := DecodeNodes(encoded)
	require.Len(t, decoded, 1)
	assert.Equal(t, id, decoded[0].ID)
	assert.True(t, decoded[0].IP.Equal(nodes[0].IP))
	assert.Equal(t, nodes[0].Port, decoded[0].Port)
}

func TestDecodeNodesDiscardsTrailingPartialRecord(t *testing.T) {
	id, err := RandomID()
	require.NoError(t, err)
	encoded := EncodeNodes([]NodeInfo{{ID: id, IP: net.IPv4(1, 2, 3, 4), Port: 1}})
	truncated := append(encoded, 0, 1, 2) // a short, incomplete trailing record

	decoded := DecodeNodes(truncated)
	assert.Len(t, decoded, 1)
}

func TestPeerBencodeRoundTrip(t *testing.T) {
	p := Peer{IP: net.IPv4(10, 0, 0, 1), Port: 443}
	raw, err := bencode.Marshal(p)
	require.NoError(t, err)

	var got Peer
	require.NoError(t, bencode.Unmarshal(raw, &got))
	assert.True(t, got.IP.Equal(p.IP))
	assert.Equal(t, p.Port, got.Port)
}

func TestErrorBencodeRoundTrip(t *testing.T) {
	e := Error{Code: ErrorCodeGenericError, Msg: "A Generic Error Ocurred"}
	raw, err := bencode.Marshal(e)
	require.NoError(t, err)

	var got Error
	require.NoError(t, bencode.Unmarshal(raw, &got))
	assert.Equal(t, e, got)
}

func TestClassifyRequests(t *testing.T) {
	cases := map[string]Label{
		"ping":              PingRequest,
		"find_node":         FindNodeRequest,
		"get_peers":         GetPeersRequest,
		"announce_peer":     AnnouncePeerRequest,
		"sample_infohashes": SampleInfohashes,
		"vote":              Vote,
		"something_else":    Unknown,
	}
	for q, want := range cases {
		got := Classify(Msg{Y: "q", Q: q})
		assert.Equal(t, want, got, q)
	}
}

func TestClassifyResponses(t *testing.T) {
	assert.Equal(t, PingResponse, Classify(Msg{Y: "r", R: &Return{}}))
	assert.Equal(t, FindNodeResponse, Classify(Msg{Y: "r", R: &Return{Nodes: []byte{1}}}))
	assert.Equal(t, GetPeersResponse, Classify(Msg{Y: "r", R: &Return{Values: []Peer{{}}}}))
	assert.Equal(t, Unknown, Classify(Msg{Y: "r"}))
}

func TestClassifyErrorAndUnknown(t *testing.T) {
	assert.Equal(t, ErrorMsg, Classify(Msg{Y: "e"}))
	assert.Equal(t, Unknown, Classify(Msg{Y: "z"}))
}

func TestSenderID(t *testing.T) {
	id, err := RandomID()
	require.NoError(t, err)

	queryID, ok := Msg{Y: "q", A: &Args{ID: id}}.SenderID()
	assert.True(t, ok)
	assert.Equal(t, id, queryID)

	responseID, ok := Msg{Y: "r", R: &Return{ID: id}}.SenderID()
	assert.True(t, ok)
	assert.Equal(t, id, responseID)

	_, ok = Msg{Y: "e"}.SenderID()
	assert.False(t, ok)

	_, ok = Msg{Y: "q"}.SenderID()
	assert.False(t, ok)
}
