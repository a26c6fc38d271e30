// Package identity manages the signing identity attached to a decision chain.
//
// Keys are hybrid: Ed25519 (RFC 8032) for signatures plus ML-KEM-768 (NIST
// FIPS 203) for key encapsulation, so recorded material stays useful under a
// post-quantum threat model. The DID is derived from the Ed25519 public key
// and is stable for the lifetime of the identity.
package identity

import (
	"crypto/ed25519"
	"crypto/mlkem"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/proofnest/proofnest/pkg/canonical"
)

// DIDPrefix is the scheme prefix of every ProofNest DID.
const DIDPrefix = "did:pn:"

// MaxAgentIDLen bounds agent identifiers. Agent ids may be used to derive
// filesystem paths, so the charset is conservative.
const MaxAgentIDLen = 64

// SignatureAlgorithm names the signing scheme used for record signatures.
const SignatureAlgorithm = "ed25519"

// ErrInvalidAgentID is returned for agent ids that are empty, too long, or
// contain characters outside [A-Za-z0-9._-].
var ErrInvalidAgentID = errors.New("invalid agent id")

// ValidateAgentID rejects identifiers that could traverse paths or otherwise
// escape the conservative charset. This runs before any chain state exists.
func ValidateAgentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAgentID)
	}
	if len(id) > MaxAgentIDLen {
		return fmt.Errorf("%w: %d characters exceeds limit of %d", ErrInvalidAgentID, len(id), MaxAgentIDLen)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%w: parent-directory sequence", ErrInvalidAgentID)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
		default:
			return fmt.Errorf("%w: character %q at index %d", ErrInvalidAgentID, c, i)
		}
	}
	return nil
}

// Identity is the opaque signing capability handed to a chain engine.
type Identity struct {
	agentID     string
	did         string
	ed25519Pub  ed25519.PublicKey
	ed25519Priv ed25519.PrivateKey
	mlkemDecap  *mlkem.DecapsulationKey768
	createdAt   time.Time
}

// New generates a fresh hybrid identity for agentID.
func New(agentID string) (*Identity, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: ed25519 key generation failed: %w", err)
	}
	decap, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, fmt.Errorf("identity: ml-kem key generation failed: %w", err)
	}

	return &Identity{
		agentID:     agentID,
		did:         DIDPrefix + canonical.DigestBytes(pub)[:32],
		ed25519Pub:  pub,
		ed25519Priv: priv,
		mlkemDecap:  decap,
		createdAt:   time.Now().UTC(),
	}, nil
}

// AgentID returns the validated agent identifier.
func (i *Identity) AgentID() string { return i.agentID }

// DID returns the did:pn: identifier derived from the public key.
func (i *Identity) DID() string { return i.did }

// KeyID is the short key identifier embedded in signature descriptors.
func (i *Identity) KeyID() string {
	return canonical.DigestBytes(i.ed25519Pub)[:16]
}

// PublicKey returns the Ed25519 verification key.
func (i *Identity) PublicKey() []byte {
	out := make([]byte, len(i.ed25519Pub))
	copy(out, i.ed25519Pub)
	return out
}

// SigningKey returns the Ed25519 private key. Callers own keeping it secret.
func (i *Identity) SigningKey() []byte {
	out := make([]byte, len(i.ed25519Priv))
	copy(out, i.ed25519Priv)
	return out
}

// EncapsulationKey returns the ML-KEM-768 encapsulation key bytes.
func (i *Identity) EncapsulationKey() []byte {
	return i.mlkemDecap.EncapsulationKey().Bytes()
}

// CreatedAt reports when the identity was generated.
func (i *Identity) CreatedAt() time.Time { return i.createdAt }

// Sign produces an Ed25519 signature over data.
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.ed25519Priv, data)
}

// Verify checks an Ed25519 signature against a raw public key.
func Verify(pubKey, data, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig)
}

// VerifyHex checks a hex-encoded signature against a hex-encoded public key.
func VerifyHex(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("identity: invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("identity: invalid signature hex: %w", err)
	}
	return Verify(pubKey, data, sig), nil
}
