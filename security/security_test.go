package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/retonato/simple-dht-node/table"
)

const base = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestIsValidRejectsZeroIP(t *testing.T) {
	n := table.Node{ID: "ffffffffffffffffffffffffffffffffffffffff", IP: "0.0.0.0", Port: 1}
	assert.False(t, IsValid(n, base))
}

func TestIsValidRejectsBadPort(t *testing.T) {
	n := table.Node{ID: "ffffffffffffffffffffffffffffffffffffffff", IP: "1.2.3.4", Port: 0}
	assert.False(t, IsValid(n, base))
	n.Port = 70000
	assert.False(t, IsValid(n, base))
}

func TestIsValidRejectsBadIDLength(t *testing.T) {
	n := table.Node{ID: "deadbeef", IP: "1.2.3.4", Port: 1}
	assert.False(t, IsValid(n, base))
}

func TestIsValidAllowsExactBaseID(t *testing.T) {
	n := table.Node{ID: base, IP: "1.2.3.4", Port: 1}
	assert.True(t, IsValid(n, base))
}

func TestIsValidDistanceBoundary(t *testing.T) {
	far := "ffffffffffffffffffffffffffffffffffffffff"
	n := table.Node{ID: far, IP: "1.2.3.4", Port: 1}
	assert.True(t, IsValid(n, base))

	tooClose := base[:11] + far[11:] // distance 29, shares 11 nibbles
	n.ID = tooClose
	assert.False(t, IsValid(n, base))

	exactlyThirty := base[:10] + far[10:] // distance 30
	n.ID = exactlyThirty
	assert.True(t, IsValid(n, base))
}

func TestBlocklist(t *testing.T) {
	bl := NewBlocklist()
	assert.False(t, bl.Blocked("1.2.3.4"))
	bl.Block("1.2.3.4")
	assert.True(t, bl.Blocked("1.2.3.4"))
	assert.False(t, bl.Blocked("5.6.7.8"))
}
