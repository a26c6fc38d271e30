// Package bundle packages payload content with a signature into a portable,
// independently verifiable artifact.
//
// A bundle is built once from a content map and a key pair. The signature
// covers the RFC 8785 canonical encoding of the payload, so any verifier that
// canonicalizes the same way can check it offline with just the bundle.
package bundle

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/proofnest/proofnest/pkg/canonical"
	"github.com/proofnest/proofnest/pkg/identity"
)

// Type tags the kind of payload a bundle carries.
type Type string

// TypeDecision marks a bundle wrapping a decision export.
const TypeDecision Type = "decision"

// ProofBundle is a signed wrapper around arbitrary structured content.
type ProofBundle struct {
	bundleType Type
	payload    map[string]any
	signer     []byte
	signature  []byte
}

// Decision canonicalizes content, signs it with privateKey and returns a
// bundle of type decision with publicKey as the signer.
func Decision(content map[string]any, privateKey, publicKey []byte) (*ProofBundle, error) {
	return build(TypeDecision, content, privateKey, publicKey)
}

func build(t Type, content map[string]any, privateKey, publicKey []byte) (*ProofBundle, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("bundle: private key must be %d bytes", ed25519.PrivateKeySize)
	}
	payload, err := canonical.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("bundle: canonicalizing payload: %w", err)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(privateKey), payload)

	signer := make([]byte, len(publicKey))
	copy(signer, publicKey)
	return &ProofBundle{
		bundleType: t,
		payload:    content,
		signer:     signer,
		signature:  sig,
	}, nil
}

// Type returns the bundle kind.
func (b *ProofBundle) Type() Type { return b.bundleType }

// Payload returns the wrapped content.
func (b *ProofBundle) Payload() map[string]any { return b.payload }

// Signer returns the signer public key bytes.
func (b *ProofBundle) Signer() []byte {
	out := make([]byte, len(b.signer))
	copy(out, b.signer)
	return out
}

// Signature returns the detached signature bytes.
func (b *ProofBundle) Signature() []byte {
	out := make([]byte, len(b.signature))
	copy(out, b.signature)
	return out
}

// Verify recomputes the canonical payload encoding and checks the signature
// against the embedded signer key. A bad signature is false, never an error.
func (b *ProofBundle) Verify() bool {
	return b.VerifyWith(b.signer)
}

// VerifyWith checks the signature against an externally supplied public key.
func (b *ProofBundle) VerifyWith(publicKey []byte) bool {
	payload, err := canonical.Marshal(b.payload)
	if err != nil {
		return false
	}
	return identity.Verify(publicKey, payload, b.signature)
}

// ToMap serializes the bundle with its stable wire keys.
func (b *ProofBundle) ToMap() map[string]any {
	return map[string]any{
		"type":      string(b.bundleType),
		"payload":   b.payload,
		"signer":    hex.EncodeToString(b.signer),
		"signature": hex.EncodeToString(b.signature),
	}
}

// FromMap rebuilds a bundle serialized by ToMap. The signature is not checked
// here; callers run Verify.
func FromMap(m map[string]any) (*ProofBundle, error) {
	typeTag, _ := m["type"].(string)
	if typeTag == "" {
		return nil, fmt.Errorf("bundle: missing type")
	}
	payload, _ := m["payload"].(map[string]any)
	signerHex, _ := m["signer"].(string)
	sigHex, _ := m["signature"].(string)

	signer, err := hex.DecodeString(signerHex)
	if err != nil {
		return nil, fmt.Errorf("bundle: invalid signer hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("bundle: invalid signature hex: %w", err)
	}
	return &ProofBundle{
		bundleType: Type(typeTag),
		payload:    payload,
		signer:     signer,
		signature:  sig,
	}, nil
}
