// Package krpc represents the messages that nodes in the network send to
// each other as specified by the protocol (BEP 5, Mainline DHT).
// They are also referred to as the KRPC messages.
// There are three types of messages: QUERY, RESPONSE, ERROR
// The message is a dictionary that is then
// "bencoded" (serialization & compression format adopted by the BitTorrent)
// and sent via the UDP connection to peers.
//
// A KRPC message is a single dictionary with two keys common to every message and additional keys depending on the type of message.
// Every message has a key "t" with a string value representing a transaction ID.
// This transaction ID is generated by the querying node and is echoed in the response, so responses
// may be correlated with multiple queries to the same node. The other key contained in every KRPC
// message is "y" with a single character value describing the type of message. The value of the "y"
// key is one of "q" for query, "r" for response, or "e" for error.
//
// This node only speaks the four standard queries (ping, find_node, get_peers, announce_peer); other
// BEP extensions (want/BEP32, noseed+scrape/BEP33, sample_infohashes/BEP51, v/BEP44, ip/BEP42) are
// explicitly out of scope (see the node's Non-goals) and their fields are not modeled here; Classify
// only gives sample_infohashes and vote queries their own labels.
package krpc

import "github.com/anacrolix/torrent/bencode"

// Msg is a single KRPC dictionary.
type Msg struct {
	Q string  `bencode:"q,omitempty"` // Query method (one of 4: "ping", "find_node", "get_peers", "announce_peer")
	A *Args   `bencode:"a,omitempty"` // named arguments sent with a query
	T string  `bencode:"t"`           // required: transaction ID
	Y string  `bencode:"y"`           // required: type of the message: q for QUERY, r for RESPONSE, e for ERROR
	R *Return `bencode:"r,omitempty"` // RESPONSE type only
	E *Error  `bencode:"e,omitempty"` // ERROR type only
}

// Args carries the named arguments of a query.
type Args struct {
	ID       ID     `bencode:"id"`                  // ID of the querying Node
	InfoHash ID     `bencode:"info_hash,omitempty"` // InfoHash of the torrent
	Target   ID     `bencode:"target,omitempty"`    // ID of the node sought
	Token    string `bencode:"token,omitempty"`

	// Port is the sender's torrent port (BEP 5). ImpliedPort, when truthy,
	// means "use the port this datagram actually arrived from instead".
	Port        int  `bencode:"port,omitempty"`
	ImpliedPort bool `bencode:"implied_port,omitempty"`
}

// Return carries the named return values of a response.
type Return struct {
	ID ID `bencode:"id"` // ID of the queried (and responding) node

	// Compact node info for the k closest nodes to the requested target,
	// included in responses to find_node and (on a miss) get_peers.
	Nodes []byte `bencode:"nodes,omitempty"`

	Token  string `bencode:"token,omitempty"`  // opaque token handed out by get_peers
	Values []Peer `bencode:"values,omitempty"` // compact peer info, on a get_peers hit
}

// Error is the KRPC error list: [code, message].
type Error struct {
	Code int
	Msg  string
}

// Standard KRPC error codes (BEP 5).
const (
	ErrorCodeGenericError  = 201
	ErrorCodeServerError   = 202
	ErrorCodeProtocolError = 203
	ErrorCodeMethodUnknown = 204
)

// MarshalBencode implements bencode.Marshaler, encoding Error as the
// two-element [code, message] list BEP 5 specifies rather than a dict.
func (e Error) MarshalBencode() ([]byte, error) {
	return bencode.Marshal([]interface{}{e.Code, e.Msg})
}

// UnmarshalBencode implements bencode.Unmarshaler. Inbound errors are only
// ever logged (§7), never acted on, so a malformed list is tolerated.
func (e *Error) UnmarshalBencode(b []byte) error {
	var l []interface{}
	if err := bencode.Unmarshal(b, &l); err != nil {
		return nil
	}
	if len(l) > 0 {
		if code, ok := l[0].(int64); ok {
			e.Code = int(code)
		}
	}
	if len(l) > 1 {
		if msg, ok := l[1].(string); ok {
			e.Msg = msg
		}
	}
	return nil
}

// SenderID returns the identifier of the sender of m: a.id for a query, r.id
// for a response. ok is false if absent, in which case the datagram must be
// dropped (§4.1).
func (m Msg) SenderID() (id ID, ok bool) {
	switch m.Y {
	case "q":
		if m.A == nil {
			return id, false
		}
		return m.A.ID, true
	case "r":
		if m.R == nil {
			return id, false
		}
		return m.R.ID, true
	}
	return id, false
}
