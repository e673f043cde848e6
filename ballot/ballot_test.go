package ballot

import (
	"crypto/ed25519"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/herder/types"
)

func randValue(f *fuzz.Fuzzer) Value {
	var v Value
	f.Fuzz(&v.TxSetHash)
	f.Fuzz(&v.CloseTime)
	f.Fuzz(&v.BaseFee)
	return v
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	nodeID := types.NodeIDFromPublicKey(pub)

	f := fuzz.New().NilChance(0)
	v := randValue(f)

	b := Sign(priv, nodeID, v)
	assert.True(t, b.Verify())
	assert.Equal(t, nodeID, b.NodeID)
	assert.Equal(t, v, b.Value)
}

func TestVerifyRejectsTamperedValue(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	nodeID := types.NodeIDFromPublicKey(pub)

	b := Sign(priv, nodeID, Value{CloseTime: 100, BaseFee: 100})
	b.Value.BaseFee = 200
	assert.False(t, b.Verify())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	nodeID := types.NodeIDFromPublicKey(pub)

	f := fuzz.New().NilChance(0)
	for i := 0; i < 20; i++ {
		v := randValue(f)
		b := Sign(priv, nodeID, v)

		decoded, ok := Decode(b.Encode())
		require.True(t, ok)
		assert.Equal(t, b, decoded)
		assert.True(t, decoded.Verify())
	}
}

// TestDecodeNeverPanicsOnGarbage fuzzes Decode with arbitrary garbage: peer-supplied bytes
// must never crash the process, only ever report ok=false.
func TestDecodeNeverPanicsOnGarbage(t *testing.T) {
	f := fuzz.New().NilChance(0)
	for i := 0; i < 200; i++ {
		var n uint8
		f.Fuzz(&n)
		garbage := make([]byte, n)
		f.Fuzz(&garbage)

		assert.NotPanics(t, func() {
			Decode(garbage)
		})
	}
}

func TestQuorumSetHashDependsOnValidatorOrder(t *testing.T) {
	pub1, _, _ := ed25519.GenerateKey(nil)
	pub2, _, _ := ed25519.GenerateKey(nil)
	a, b := types.NodeIDFromPublicKey(pub1), types.NodeIDFromPublicKey(pub2)

	qs1 := QuorumSet{Threshold: 1, Validators: []types.NodeID{a, b}}
	qs2 := QuorumSet{Threshold: 1, Validators: []types.NodeID{b, a}}
	assert.NotEqual(t, qs1.Hash(), qs2.Hash(), "validator order is part of the canonical encoding")

	qs3 := QuorumSet{Threshold: 1, Validators: []types.NodeID{a, b}}
	assert.Equal(t, qs1.Hash(), qs3.Hash())
}

func TestQuorumSetContains(t *testing.T) {
	pub1, _, _ := ed25519.GenerateKey(nil)
	pub2, _, _ := ed25519.GenerateKey(nil)
	a, b := types.NodeIDFromPublicKey(pub1), types.NodeIDFromPublicKey(pub2)

	qs := QuorumSet{Threshold: 1, Validators: []types.NodeID{a}}
	assert.True(t, qs.Contains(a))
	assert.False(t, qs.Contains(b))
}
