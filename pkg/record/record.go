// Package record defines the immutable unit of a ProofNest decision chain.
//
// A DecisionRecord is constructed once, self-hashes at construction, and
// exposes no mutators: immutability is enforced at the type level. The record
// hash is the SHA3-256 digest of the RFC 8785 canonical JSON encoding of a
// fixed map: decision_id, timestamp, actor (id/type/model), action, reasoning,
// alternatives, confidence, risk_level and previous_hash (empty string for the
// first record). The signature is never part of the hashed content.
package record

import (
	"errors"
	"fmt"

	"github.com/proofnest/proofnest/pkg/canonical"
)

// RiskLevel classifies the stakes of a decision.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ErrConfidenceRange is returned when confidence falls outside [0, 1].
var ErrConfidenceRange = errors.New("confidence must be in [0.0, 1.0]")

// ErrRiskLevel is returned for an unknown risk level tag.
var ErrRiskLevel = errors.New("unknown risk level")

// ParseRiskLevel maps a lower-case tag to its RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrRiskLevel, s)
}

// SignatureDescriptor carries a detached signature over the canonical record
// encoding. Value and KeyID are hex; Algorithm names the scheme.
type SignatureDescriptor struct {
	Value     string `json:"value"`
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"key_id"`
}

// Params collects the inputs to New. PreviousHash is empty for
// the first record of a chain.
type Params struct {
	DecisionID   string
	Timestamp    string
	Actor        Actor
	Action       string
	Reasoning    string
	Alternatives []string
	Confidence   float64
	RiskLevel    RiskLevel
	PreviousHash string
}

// DecisionRecord is an immutable, hash-linked decision. All fields are
// unexported; construction is the only way to obtain one.
type DecisionRecord struct {
	decisionID   string
	timestamp    string
	actor        Actor
	action       string
	reasoning    string
	alternatives []string
	confidence   float64
	riskLevel    RiskLevel
	previousHash string
	recordHash   string
	signature    *SignatureDescriptor
}

// New validates p, computes the record hash and returns the frozen record.
func New(p Params) (*DecisionRecord, error) {
	if p.Confidence < 0.0 || p.Confidence > 1.0 {
		return nil, fmt.Errorf("%w: got %v", ErrConfidenceRange, p.Confidence)
	}
	if _, err := ParseRiskLevel(string(p.RiskLevel)); err != nil {
		return nil, err
	}

	alts := make([]string, len(p.Alternatives))
	copy(alts, p.Alternatives)

	r := &DecisionRecord{
		decisionID:   p.DecisionID,
		timestamp:    p.Timestamp,
		actor:        p.Actor,
		action:       p.Action,
		reasoning:    p.Reasoning,
		alternatives: alts,
		confidence:   p.Confidence,
		riskLevel:    p.RiskLevel,
		previousHash: p.PreviousHash,
	}

	hash, err := canonical.Digest(r.hashContent())
	if err != nil {
		return nil, fmt.Errorf("record: hash computation failed: %w", err)
	}
	r.recordHash = hash
	return r, nil
}

// hashContent is the exact map digested into the record hash. Key order is
// irrelevant: JCS sorts keys during canonicalization.
func (r *DecisionRecord) hashContent() map[string]any {
	alts := make([]any, len(r.alternatives))
	for i, a := range r.alternatives {
		alts[i] = a
	}
	return map[string]any{
		"decision_id":   r.decisionID,
		"timestamp":     r.timestamp,
		"actor":         r.actor.ToMap(),
		"action":        r.action,
		"reasoning":     r.reasoning,
		"alternatives":  alts,
		"confidence":    r.confidence,
		"risk_level":    string(r.riskLevel),
		"previous_hash": r.previousHash,
	}
}

// CanonicalBytes returns the canonical encoding that recordHash was computed
// over. Signers operate on these bytes.
func (r *DecisionRecord) CanonicalBytes() ([]byte, error) {
	return canonical.Marshal(r.hashContent())
}

// Recompute re-derives the record hash from the visible fields. Verifiers use
// it to catch records corrupted or constructed out-of-band.
func (r *DecisionRecord) Recompute() (string, error) {
	return canonical.Digest(r.hashContent())
}

// WithSignature returns a copy of r carrying sig. The original is untouched
// and the hash is unchanged: signatures are outside the hashed content.
func (r *DecisionRecord) WithSignature(sig SignatureDescriptor) *DecisionRecord {
	dup := *r
	dup.alternatives = r.Alternatives()
	dup.signature = &sig
	return &dup
}

func (r *DecisionRecord) DecisionID() string   { return r.decisionID }
func (r *DecisionRecord) Timestamp() string    { return r.timestamp }
func (r *DecisionRecord) Actor() Actor         { return r.actor }
func (r *DecisionRecord) Action() string       { return r.action }
func (r *DecisionRecord) Reasoning() string    { return r.reasoning }
func (r *DecisionRecord) Confidence() float64  { return r.confidence }
func (r *DecisionRecord) RiskLevel() RiskLevel { return r.riskLevel }
func (r *DecisionRecord) PreviousHash() string { return r.previousHash }
func (r *DecisionRecord) RecordHash() string   { return r.recordHash }

// Alternatives returns a fresh copy; callers cannot reach the backing array.
func (r *DecisionRecord) Alternatives() []string {
	out := make([]string, len(r.alternatives))
	copy(out, r.alternatives)
	return out
}

// Signature returns a copy of the attached signature, or nil when unsigned.
func (r *DecisionRecord) Signature() *SignatureDescriptor {
	if r.signature == nil {
		return nil
	}
	sig := *r.signature
	return &sig
}

// ToMap exports the record in the nested wire shape consumed by auditors.
// Alternatives are always a plain list regardless of the in-memory form.
func (r *DecisionRecord) ToMap() map[string]any {
	alts := make([]any, len(r.alternatives))
	for i, a := range r.alternatives {
		alts[i] = a
	}
	m := map[string]any{
		"decision_id": r.decisionID,
		"timestamp":   r.timestamp,
		"actor":       r.actor.ToMap(),
		"decision": map[string]any{
			"action":                  r.action,
			"reasoning":               r.reasoning,
			"alternatives_considered": alts,
			"confidence":              r.confidence,
			"risk_level":              string(r.riskLevel),
		},
		"chain": map[string]any{
			"record_hash":   r.recordHash,
			"previous_hash": r.previousHash,
		},
		"quantum_safe": true,
	}
	if r.signature != nil {
		m["signature"] = map[string]any{
			"value":     r.signature.Value,
			"algorithm": r.signature.Algorithm,
			"key_id":    r.signature.KeyID,
		}
	}
	return m
}
