package krpc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/anacrolix/torrent/bencode"
)

// IDLen is the length in raw bytes of a DHT node or info-hash identifier.
const IDLen = 20

// ID is a 160-bit identifier as carried on the wire: 20 raw bytes. In
// memory, callers work with its 40-character lowercase hex form via
// String/ParseID; ID itself only models the wire representation.
type ID [IDLen]byte

// String renders id as 40 lowercase hex characters.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID decodes a 40-character hex string into an ID. It rejects any
// string that isn't exactly 40 hex characters, since the routing table and
// validator both depend on identifiers having a fixed, well-formed shape.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != IDLen*2 {
		return id, fmt.Errorf("krpc: invalid id length %d, want %d", len(s), IDLen*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("krpc: invalid id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

// RandomID returns a cryptographically random identifier, used when no
// node_id is configured.
func RandomID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("krpc: generating random id: %w", err)
	}
	return id, nil
}

// MarshalBencode implements bencode.Marshaler, encoding the id as a raw
// 20-byte bencode string rather than its hex form.
func (id ID) MarshalBencode() ([]byte, error) {
	return bencode.Marshal(id[:])
}

// UnmarshalBencode implements bencode.Unmarshaler.
func (id *ID) UnmarshalBencode(b []byte) error {
	var s []byte
	if err := bencode.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("krpc: unmarshalling id: %w", err)
	}
	if len(s) != IDLen {
		return fmt.Errorf("krpc: id has wrong length %d", len(s))
	}
	copy(id[:], s)
	return nil
}
