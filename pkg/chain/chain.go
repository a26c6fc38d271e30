// Package chain implements the tamper-evident decision chain engine.
//
// A Nest owns an ordered, append-only sequence of hash-linked decision
// records produced by a single actor. Record timestamps never decrease and
// every record links to the hash of its predecessor; Verify walks the whole
// chain and recomputes each hash to detect tampering.
package chain

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proofnest/proofnest/pkg/audit"
	"github.com/proofnest/proofnest/pkg/identity"
	"github.com/proofnest/proofnest/pkg/record"
)

// TimestampFormat is the fixed-width ISO-8601 UTC layout of record
// timestamps. Zero padding makes lexicographic order equal temporal order.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// minIncrement is the adjustment applied when the clock would emit a
// timestamp behind the chain head.
const minIncrement = time.Microsecond

// AnchorFunc submits a content digest to an external timestamping channel and
// returns a serialized receipt. Errors are swallowed by the engine: anchoring
// is best-effort and never blocks chain growth.
type AnchorFunc func(digest string) (string, error)

// Store persists records as they are appended and replays them on startup so
// a chain can continue across process restarts.
type Store interface {
	SaveRecord(agentID string, r *record.DecisionRecord) error
	LoadChain(agentID string) ([]*record.DecisionRecord, error)
}

// Nest is a single-writer decision chain engine.
type Nest struct {
	mu             sync.RWMutex
	actor          record.Actor
	id             *identity.Identity
	records        []*record.DecisionRecord
	externalAnchor AnchorFunc
	signEnabled    bool
	clock          func() time.Time
	log            audit.Logger
	store          Store
}

// Option configures a Nest at construction.
type Option func(*Nest)

// WithModel records the model tag of an AI actor.
func WithModel(model string) Option {
	return func(n *Nest) { n.actor.Model = model }
}

// WithActorType overrides the default AI actor type.
func WithActorType(t record.ActorType) Option {
	return func(n *Nest) { n.actor.Type = t }
}

// WithExternalAnchor installs a best-effort anchoring callback invoked with
// each new record's hash.
func WithExternalAnchor(fn AnchorFunc) Option {
	return func(n *Nest) { n.externalAnchor = fn }
}

// WithSignatures enables signing of each record with the nest identity.
func WithSignatures(enabled bool) Option {
	return func(n *Nest) { n.signEnabled = enabled }
}

// WithIdentity injects a pre-built identity instead of generating one.
func WithIdentity(id *identity.Identity) Option {
	return func(n *Nest) { n.id = id }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(n *Nest) { n.clock = clock }
}

// WithAuditLogger installs an operational event sink.
func WithAuditLogger(log audit.Logger) Option {
	return func(n *Nest) { n.log = log }
}

// WithStore installs a persistence backend. Existing records for the agent
// are replayed at construction and the chain continues from the stored head.
func WithStore(s Store) Option {
	return func(n *Nest) { n.store = s }
}

// New validates agentID, establishes the signing identity and returns an
// empty (or, with a store, replayed) chain engine.
func New(agentID string, opts ...Option) (*Nest, error) {
	n := &Nest{
		actor: record.Actor{ID: agentID, Type: record.ActorAI},
		clock: time.Now,
		log:   audit.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.id == nil {
		id, err := identity.New(agentID)
		if err != nil {
			return nil, err
		}
		n.id = id
	} else if err := identity.ValidateAgentID(agentID); err != nil {
		return nil, err
	}

	if n.store != nil {
		loaded, err := n.store.LoadChain(agentID)
		if err != nil {
			return nil, err
		}
		for _, r := range loaded {
			if err := n.appendLoaded(r); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

// DID returns the did:pn: identifier of the nest identity.
func (n *Nest) DID() string { return n.id.DID() }

// Actor returns the actor descriptor attached to each record.
func (n *Nest) Actor() record.Actor { return n.actor }

// Identity exposes the signing collaborator, e.g. for bundle export.
func (n *Nest) Identity() *identity.Identity { return n.id }

// Len returns the current chain length.
func (n *Nest) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.records)
}

// Chain returns a copy of the record sequence.
func (n *Nest) Chain() []*record.DecisionRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*record.DecisionRecord, len(n.records))
	copy(out, n.records)
	return out
}

// DecideOption customizes a single decision.
type DecideOption func(*decideParams)

type decideParams struct {
	alternatives []string
	confidence   float64
	risk         record.RiskLevel
}

// WithAlternatives records the options that were considered and rejected.
func WithAlternatives(alts ...string) DecideOption {
	return func(p *decideParams) { p.alternatives = alts }
}

// WithConfidence sets the confidence level in [0, 1].
func WithConfidence(c float64) DecideOption {
	return func(p *decideParams) { p.confidence = c }
}

// WithRisk sets the risk classification of the decision.
func WithRisk(r record.RiskLevel) DecideOption {
	return func(p *decideParams) { p.risk = r }
}

// Decide appends a new decision to the chain and returns the frozen record.
//
// Timestamp generation, previous-hash linkage and the append run atomically
// under the engine lock. The external anchor callback is invoked after the
// append, outside the lock; its failure never affects the chain.
func (n *Nest) Decide(action, reasoning string, opts ...DecideOption) (*record.DecisionRecord, error) {
	p := decideParams{confidence: 1.0, risk: record.RiskMedium}
	for _, opt := range opts {
		opt(&p)
	}

	n.mu.Lock()
	ts := n.nextTimestamp()
	prevHash := ""
	if len(n.records) > 0 {
		prevHash = n.records[len(n.records)-1].RecordHash()
	}

	r, err := record.New(record.Params{
		DecisionID:   uuid.New().String(),
		Timestamp:    ts,
		Actor:        n.actor,
		Action:       action,
		Reasoning:    reasoning,
		Alternatives: p.alternatives,
		Confidence:   p.confidence,
		RiskLevel:    p.risk,
		PreviousHash: prevHash,
	})
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}

	if n.signEnabled {
		r, err = n.sign(r)
		if err != nil {
			n.mu.Unlock()
			return nil, err
		}
	}

	n.records = append(n.records, r)
	// Persist under the lock so stored order matches chain order. The store
	// is local disk; only the anchor callback may touch the network.
	if n.store != nil {
		if err := n.store.SaveRecord(n.actor.ID, r); err != nil {
			_ = n.log.Record(n.actor.ID, audit.EventSystem, "store_save_failed", map[string]any{
				"decision_id": r.DecisionID(),
				"error":       err.Error(),
			})
		}
	}
	n.mu.Unlock()

	n.anchor(r)

	_ = n.log.Record(n.actor.ID, audit.EventDecision, action, map[string]any{
		"decision_id": r.DecisionID(),
		"record_hash": r.RecordHash(),
		"risk_level":  string(r.RiskLevel()),
	})
	return r, nil
}

// nextTimestamp returns the current UTC instant, advanced past the chain head
// when the clock lags (skew, fast successive calls). Callers hold the lock.
func (n *Nest) nextTimestamp() string {
	ts := n.clock().UTC().Format(TimestampFormat)
	if len(n.records) == 0 {
		return ts
	}
	prev := n.records[len(n.records)-1].Timestamp()
	if ts >= prev {
		return ts
	}
	prevTime, err := time.Parse(TimestampFormat, prev)
	if err != nil {
		// Head timestamp was produced by this engine; treat parse failure as
		// clock corruption and refuse to go backward.
		return prev
	}
	return prevTime.Add(minIncrement).UTC().Format(TimestampFormat)
}

// sign attaches an Ed25519 signature over the canonical record encoding.
func (n *Nest) sign(r *record.DecisionRecord) (*record.DecisionRecord, error) {
	payload, err := r.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	sig := n.id.Sign(payload)
	return r.WithSignature(record.SignatureDescriptor{
		Value:     hex.EncodeToString(sig),
		Algorithm: identity.SignatureAlgorithm,
		KeyID:     n.id.KeyID(),
	}), nil
}

// anchor invokes the external anchor callback with the record hash. Failures
// and panics are swallowed: anchoring is a side channel, not a precondition.
func (n *Nest) anchor(r *record.DecisionRecord) {
	if n.externalAnchor == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			_ = n.log.Record(n.actor.ID, audit.EventAnchor, "anchor_panic", map[string]any{
				"record_hash": r.RecordHash(),
			})
		}
	}()
	if _, err := n.externalAnchor(r.RecordHash()); err != nil {
		_ = n.log.Record(n.actor.ID, audit.EventAnchor, "anchor_failed", map[string]any{
			"record_hash": r.RecordHash(),
			"error":       err.Error(),
		})
	}
}

// AppendRecord inserts a record built elsewhere, enforcing linkage and
// monotonicity. Backdated records fail with TimestampViolationError; broken
// linkage or an unreproducible hash fails with IntegrityError.
func (n *Nest) AppendRecord(r *record.DecisionRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.appendLoaded(r)
}

func (n *Nest) appendLoaded(r *record.DecisionRecord) error {
	idx := len(n.records)
	if idx > 0 {
		head := n.records[idx-1]
		if r.PreviousHash() != head.RecordHash() {
			return &IntegrityError{Index: idx, Reason: "previous_hash does not match chain head"}
		}
		if r.Timestamp() < head.Timestamp() {
			return &TimestampViolationError{Timestamp: r.Timestamp(), Previous: head.Timestamp()}
		}
	}
	computed, err := r.Recompute()
	if err != nil {
		return err
	}
	if computed != r.RecordHash() {
		return &IntegrityError{Index: idx, Reason: "record hash is not reproducible from record fields"}
	}
	n.records = append(n.records, r)
	return nil
}

// Verify walks the chain and returns nil when every record links to its
// predecessor, timestamps never decrease, and every hash is recomputable.
// An empty chain trivially verifies. Verification never mutates state.
func (n *Nest) Verify() error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for i, r := range n.records {
		if i > 0 {
			prev := n.records[i-1]
			if r.PreviousHash() != prev.RecordHash() {
				return &IntegrityError{Index: i, Reason: "previous_hash does not match predecessor record_hash"}
			}
			if r.Timestamp() < prev.Timestamp() {
				return &IntegrityError{Index: i, Reason: "timestamp precedes predecessor"}
			}
		}
		computed, err := r.Recompute()
		if err != nil {
			return &IntegrityError{Index: i, Reason: "record hash not recomputable: " + err.Error()}
		}
		if computed != r.RecordHash() {
			return &IntegrityError{Index: i, Reason: "record_hash mismatch (content altered)"}
		}
	}
	return nil
}

// VerifyOK is the boolean form of Verify.
func (n *Nest) VerifyOK() bool {
	return n.Verify() == nil
}
