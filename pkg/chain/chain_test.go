package chain

import (
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/proofnest/proofnest/pkg/identity"
	"github.com/proofnest/proofnest/pkg/record"
)

func TestNewBasic(t *testing.T) {
	n, err := New("test-agent", WithModel("test-model"))
	if err != nil {
		t.Fatal(err)
	}
	if n.Actor().ID != "test-agent" {
		t.Fatalf("unexpected actor id %s", n.Actor().ID)
	}
	if n.Actor().Model != "test-model" {
		t.Fatalf("unexpected actor model %s", n.Actor().Model)
	}
	if n.Len() != 0 {
		t.Fatal("new chain should be empty")
	}
}

func TestDIDFormat(t *testing.T) {
	n, err := New("test")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(n.DID(), "did:pn:") {
		t.Fatalf("DID %q must start with did:pn:", n.DID())
	}
}

func TestDIDStableAcrossDecisions(t *testing.T) {
	n, _ := New("did-agent")
	before := n.DID()
	n.Decide("Action 1", "Reason", WithRisk(record.RiskLow))
	n.Decide("Action 2", "Reason", WithRisk(record.RiskLow))
	if n.DID() != before {
		t.Fatal("DID must be stable across decisions")
	}
}

func TestInvalidAgentIDPathTraversal(t *testing.T) {
	if _, err := New("test/../../../etc/passwd"); err == nil {
		t.Fatal("path-traversal agent id should be rejected")
	}
}

func TestInvalidAgentIDTooLong(t *testing.T) {
	if _, err := New(strings.Repeat("a", 100)); err == nil {
		t.Fatal("agent id over 64 chars should be rejected")
	}
}

func TestDecideAppendsToChain(t *testing.T) {
	n, _ := New("add-chain")
	r, err := n.Decide("Approve request", "All criteria met", WithRisk(record.RiskLow))
	if err != nil {
		t.Fatal(err)
	}
	if n.Len() != 1 {
		t.Fatalf("expected chain length 1, got %d", n.Len())
	}
	if r.Action() != "Approve request" || r.Reasoning() != "All criteria met" {
		t.Fatal("record fields must echo the decision inputs")
	}
	if r.RiskLevel() != record.RiskLow {
		t.Fatalf("unexpected risk level %s", r.RiskLevel())
	}
	if len(r.RecordHash()) != 64 {
		t.Fatalf("expected 64-char hash, got %d", len(r.RecordHash()))
	}
}

func TestDecideWithAlternativesAndConfidence(t *testing.T) {
	n, _ := New("alt-agent")
	r, err := n.Decide("Option A", "Best option",
		WithAlternatives("Option B", "Option C"),
		WithConfidence(0.85),
		WithRisk(record.RiskLow))
	if err != nil {
		t.Fatal(err)
	}
	alts := r.Alternatives()
	if len(alts) != 2 || alts[0] != "Option B" || alts[1] != "Option C" {
		t.Fatalf("unexpected alternatives %v", alts)
	}
	if r.Confidence() != 0.85 {
		t.Fatalf("unexpected confidence %v", r.Confidence())
	}
}

func TestDecideOutOfRangeConfidence(t *testing.T) {
	n, _ := New("conf-agent")
	if _, err := n.Decide("A", "R", WithConfidence(1.5)); err == nil {
		t.Fatal("out-of-range confidence should be rejected")
	}
	if n.Len() != 0 {
		t.Fatal("failed decide must not grow the chain")
	}
}

func TestChainLinksCorrectly(t *testing.T) {
	n, _ := New("link-test")
	r1, _ := n.Decide("Action 1", "Reason 1", WithRisk(record.RiskLow))
	r2, _ := n.Decide("Action 2", "Reason 2", WithRisk(record.RiskLow))
	if r2.PreviousHash() != r1.RecordHash() {
		t.Fatal("second record must link to the first record's hash")
	}
}

func TestRapidDecisionsMaintainOrder(t *testing.T) {
	n, _ := New("rapid")
	var records []*record.DecisionRecord
	for i := 0; i < 10; i++ {
		r, err := n.Decide("Action", "Reason", WithRisk(record.RiskLow))
		if err != nil {
			t.Fatal(err)
		}
		records = append(records, r)
	}

	timestamps := make([]string, len(records))
	for i, r := range records {
		timestamps[i] = r.Timestamp()
	}
	if !sort.StringsAreSorted(timestamps) {
		t.Fatalf("timestamps out of order: %v", timestamps)
	}
	for i := 1; i < len(records); i++ {
		if records[i].PreviousHash() != records[i-1].RecordHash() {
			t.Fatalf("broken linkage at %d", i)
		}
	}
}

func TestBackwardClockIsAdvanced(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Second)}
	i := 0
	n, _ := New("skew", WithClock(func() time.Time {
		ts := ticks[i]
		if i < len(ticks)-1 {
			i++
		}
		return ts
	}))

	r1, _ := n.Decide("A", "R", WithRisk(record.RiskLow))
	r2, _ := n.Decide("B", "R", WithRisk(record.RiskLow))

	if r2.Timestamp() <= r1.Timestamp() {
		t.Fatalf("engine must advance past the head on clock skew: %s then %s", r1.Timestamp(), r2.Timestamp())
	}
	if err := n.Verify(); err != nil {
		t.Fatalf("chain should verify after skew adjustment: %v", err)
	}
}

func TestTimestampFormatShape(t *testing.T) {
	n, _ := New("fmt")
	r, _ := n.Decide("Test", "Test", WithRisk(record.RiskLow))
	ts := r.Timestamp()

	if !strings.HasSuffix(ts, "Z") {
		t.Fatalf("timestamp %q must end with Z", ts)
	}
	if !strings.Contains(ts, "T") {
		t.Fatalf("timestamp %q must contain the ISO separator", ts)
	}
	if _, err := time.Parse(TimestampFormat, ts); err != nil {
		t.Fatalf("timestamp %q not parseable: %v", ts, err)
	}
}

func TestEmptyChainVerifies(t *testing.T) {
	n, _ := New("empty")
	if err := n.Verify(); err != nil {
		t.Fatalf("empty chain must verify: %v", err)
	}
	if !n.VerifyOK() {
		t.Fatal("VerifyOK must be true for an empty chain")
	}
}

func TestChainWithDecisionsVerifies(t *testing.T) {
	n, _ := New("verify-agent")
	n.Decide("Test action 1", "Test reasoning 1", WithRisk(record.RiskLow))
	n.Decide("Test action 2", "Test reasoning 2", WithRisk(record.RiskMedium))
	n.Decide("Test action 3", "Test reasoning 3", WithRisk(record.RiskHigh))
	if err := n.Verify(); err != nil {
		t.Fatalf("untouched chain must verify: %v", err)
	}
}

func TestAppendRecordBrokenLinkage(t *testing.T) {
	n, _ := New("tamper")
	n.Decide("Original action", "Original reason", WithRisk(record.RiskLow))

	forged, err := record.New(record.Params{
		DecisionID:   "forged",
		Timestamp:    "2030-01-01T00:00:00.000000Z",
		Actor:        n.Actor(),
		Action:       "Forged",
		Reasoning:    "Forged",
		Confidence:   0.5,
		RiskLevel:    record.RiskLow,
		PreviousHash: strings.Repeat("0", 64),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = n.AppendRecord(forged)
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if n.Len() != 1 {
		t.Fatal("rejected record must not be appended")
	}
}

func TestAppendRecordBackdated(t *testing.T) {
	n, _ := New("backdate")
	head, _ := n.Decide("Now", "Reason", WithRisk(record.RiskLow))

	backdated, err := record.New(record.Params{
		DecisionID:   "old",
		Timestamp:    "1970-01-01T00:00:00.000000Z",
		Actor:        n.Actor(),
		Action:       "Historic",
		Reasoning:    "Backdating attempt",
		Confidence:   0.5,
		RiskLevel:    record.RiskLow,
		PreviousHash: head.RecordHash(),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = n.AppendRecord(backdated)
	var violation *TimestampViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected TimestampViolationError, got %v", err)
	}
}

func TestAppendRecordValid(t *testing.T) {
	n, _ := New("append-ok")
	head, _ := n.Decide("First", "Reason", WithRisk(record.RiskLow))

	next, err := record.New(record.Params{
		DecisionID:   "next",
		Timestamp:    "2030-01-01T00:00:00.000000Z",
		Actor:        n.Actor(),
		Action:       "Second",
		Reasoning:    "Continuation",
		Confidence:   0.5,
		RiskLevel:    record.RiskLow,
		PreviousHash: head.RecordHash(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.AppendRecord(next); err != nil {
		t.Fatal(err)
	}
	if err := n.Verify(); err != nil {
		t.Fatalf("chain should verify after valid append: %v", err)
	}
}

func TestSignaturesOnDecisions(t *testing.T) {
	n, err := New("sig-agent", WithSignatures(true))
	if err != nil {
		t.Fatal(err)
	}
	r, err := n.Decide("Signed action", "Important decision", WithRisk(record.RiskHigh))
	if err != nil {
		t.Fatal(err)
	}

	sig := r.Signature()
	if sig == nil || sig.Value == "" {
		t.Fatal("signing-enabled decisions must carry a signature")
	}

	payload, err := r.CanonicalBytes()
	if err != nil {
		t.Fatal(err)
	}
	ok, err := identity.VerifyHex(hex.EncodeToString(n.Identity().PublicKey()), sig.Value, payload)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("signature must verify against the nest public key")
	}
}

func TestUnsignedByDefault(t *testing.T) {
	n, _ := New("nosig")
	r, _ := n.Decide("A", "R", WithRisk(record.RiskLow))
	if r.Signature() != nil {
		t.Fatal("signatures are opt-in")
	}
}

func TestExternalAnchorInvoked(t *testing.T) {
	var got []string
	n, _ := New("anchor-agent", WithExternalAnchor(func(digest string) (string, error) {
		got = append(got, digest)
		return `{"type":"test"}`, nil
	}))

	r, _ := n.Decide("Approve transaction", "All checks passed", WithRisk(record.RiskHigh))
	if len(got) != 1 || got[0] != r.RecordHash() {
		t.Fatalf("anchor callback should receive the record hash, got %v", got)
	}
}

func TestExternalAnchorFailureIgnored(t *testing.T) {
	n, _ := New("anchor-fail", WithExternalAnchor(func(string) (string, error) {
		return "", errors.New("calendar down")
	}))

	if _, err := n.Decide("A", "R", WithRisk(record.RiskLow)); err != nil {
		t.Fatalf("anchor failure must not fail the decision: %v", err)
	}
	if n.Len() != 1 {
		t.Fatal("record must be appended despite anchor failure")
	}
}

func TestExternalAnchorPanicIgnored(t *testing.T) {
	n, _ := New("anchor-panic", WithExternalAnchor(func(string) (string, error) {
		panic("broken callback")
	}))

	if _, err := n.Decide("A", "R", WithRisk(record.RiskLow)); err != nil {
		t.Fatalf("anchor panic must not fail the decision: %v", err)
	}
	if err := n.Verify(); err != nil {
		t.Fatal(err)
	}
}

func TestChainReturnsCopy(t *testing.T) {
	n, _ := New("copy")
	n.Decide("A", "R", WithRisk(record.RiskLow))
	snapshot := n.Chain()
	snapshot[0] = nil
	if n.Chain()[0] == nil {
		t.Fatal("mutating the snapshot must not affect the engine")
	}
}
