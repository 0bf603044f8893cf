package krpc

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/anacrolix/torrent/bencode"
)

// NodeInfo is a parsed compact node record: identifier, address and port,
// exactly as carried in 26-byte wire records (§4.6). It has no relation to
// any entry stored in the routing table; it's a transit, read-only view.
type NodeInfo struct {
	ID   ID
	IP   net.IP
	Port int
}

// Wire sizes: a compact peer record is 4-byte IP + 2-byte port; a compact
// node record additionally prefixes the 20-byte id (§4.6).
const (
	compactPeerLen    = 4 + 2
	compactNodeRecLen = IDLen + compactPeerLen
)

// EncodeNodes packs nodes into the concatenated 26-byte-per-node compact
// format described in §4.6. IPv4 addresses are packed as four network-order
// octets (the recommended, symmetric choice from §9 Open Question 1) rather
// than replicating the original implementation's ip.encode("ascii") bug.
func EncodeNodes(nodes []NodeInfo) []byte {
	out := make([]byte, 0, len(nodes)*compactNodeRecLen)
	for _, n := range nodes {
		ip4 := n.IP.To4()
		if ip4 == nil {
			continue
		}
		var rec [compactNodeRecLen]byte
		copy(rec[:IDLen], n.ID[:])
		copy(rec[IDLen:IDLen+4], ip4)
		binary.BigEndian.PutUint16(rec[IDLen+4:], uint16(n.Port))
		out = append(out, rec[:]...)
	}
	return out
}

// DecodeNodes parses compact node info, consuming the input 26 bytes at a
// time; a trailing partial record is discarded (§4.6).
func DecodeNodes(b []byte) []NodeInfo {
	n := len(b) / compactNodeRecLen
	nodes := make([]NodeInfo, 0, n)
	for i := 0; i < n; i++ {
		rec := b[i*compactNodeRecLen : (i+1)*compactNodeRecLen]
		var id ID
		copy(id[:], rec[:IDLen])
		ip := net.IPv4(rec[IDLen], rec[IDLen+1], rec[IDLen+2], rec[IDLen+3])
		port := binary.BigEndian.Uint16(rec[IDLen+4:])
		nodes = append(nodes, NodeInfo{ID: id, IP: ip, Port: int(port)})
	}
	return nodes
}

// Peer is a BEP 5 compact peer record: 4-byte IPv4 address and a
// big-endian port, with no identifier of its own.
type Peer struct {
	IP   net.IP
	Port int
}

// MarshalBencode implements bencode.Marshaler, encoding Peer as the 6-byte
// compact peer string.
func (p Peer) MarshalBencode() ([]byte, error) {
	ip4 := p.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("krpc: peer ip %v is not ipv4", p.IP)
	}
	var rec [compactPeerLen]byte
	copy(rec[:4], ip4)
	binary.BigEndian.PutUint16(rec[4:], uint16(p.Port))
	return bencode.Marshal(rec[:])
}

// UnmarshalBencode implements bencode.Unmarshaler.
func (p *Peer) UnmarshalBencode(b []byte) error {
	var s []byte
	if err := bencode.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("krpc: unmarshalling peer: %w", err)
	}
	if len(s) != compactPeerLen {
		return fmt.Errorf("krpc: peer has wrong length %d", len(s))
	}
	p.IP = net.IPv4(s[0], s[1], s[2], s[3])
	p.Port = int(binary.BigEndian.Uint16(s[4:]))
	return nil
}
