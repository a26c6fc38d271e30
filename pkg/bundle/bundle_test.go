package bundle

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofnest/proofnest/pkg/chain"
	"github.com/proofnest/proofnest/pkg/record"
)

func testKeys(t *testing.T) (ed25519.PrivateKey, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, pub
}

func TestDecisionBundleRoundTrip(t *testing.T) {
	priv, pub := testKeys(t)
	content := map[string]any{
		"decision_id": "d-1",
		"action":      "Grant access",
		"reasoning":   "Identity verified",
		"outcome":     "approved",
	}

	b, err := Decision(content, priv, pub)
	require.NoError(t, err)

	assert.Equal(t, TypeDecision, b.Type())
	assert.True(t, b.Verify(), "bundle must verify against its own signer key")
	assert.True(t, b.VerifyWith(pub))
}

func TestVerifyAgainstWrongKeyFails(t *testing.T) {
	priv, pub := testKeys(t)
	_, otherPub := testKeys(t)

	b, err := Decision(map[string]any{"k": "v"}, priv, pub)
	require.NoError(t, err)

	assert.False(t, b.VerifyWith(otherPub))
	assert.False(t, b.VerifyWith(nil))
}

func TestToMapStableKeys(t *testing.T) {
	priv, pub := testKeys(t)
	b, err := Decision(map[string]any{"decision_id": "d-2"}, priv, pub)
	require.NoError(t, err)

	m := b.ToMap()
	assert.Contains(t, m, "type")
	assert.Contains(t, m, "payload")
	assert.Contains(t, m, "signer")
	assert.Contains(t, m, "signature")
	assert.Equal(t, "decision", m["type"])
}

func TestFromMapRestoresVerifiableBundle(t *testing.T) {
	priv, pub := testKeys(t)
	b, err := Decision(map[string]any{"decision_id": "d-3", "action": "x"}, priv, pub)
	require.NoError(t, err)

	restored, err := FromMap(b.ToMap())
	require.NoError(t, err)
	assert.Equal(t, TypeDecision, restored.Type())
	assert.True(t, restored.Verify())
}

func TestFromMapRejectsGarbage(t *testing.T) {
	_, err := FromMap(map[string]any{})
	assert.Error(t, err)

	_, err = FromMap(map[string]any{"type": "decision", "signer": "zz"})
	assert.Error(t, err)
}

func TestBadPrivateKeyRejected(t *testing.T) {
	_, pub := testKeys(t)
	_, err := Decision(map[string]any{"k": "v"}, []byte("short"), pub)
	assert.Error(t, err)
}

func TestBundleFromNestIdentity(t *testing.T) {
	n, err := chain.New("bundle-agent")
	require.NoError(t, err)

	r, err := n.Decide("Grant access", "Identity verified",
		chain.WithConfidence(0.95), chain.WithRisk(record.RiskLow))
	require.NoError(t, err)

	content := map[string]any{
		"decision_id": r.DecisionID(),
		"action":      r.Action(),
		"reasoning":   r.Reasoning(),
		"outcome":     "approved",
		"risk_level":  string(r.RiskLevel()),
	}
	b, err := Decision(content, n.Identity().SigningKey(), n.Identity().PublicKey())
	require.NoError(t, err)

	assert.Equal(t, TypeDecision, b.Type())
	assert.True(t, b.VerifyWith(n.Identity().PublicKey()))
}
