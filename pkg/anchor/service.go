package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/proofnest/proofnest/pkg/audit"
	"github.com/proofnest/proofnest/pkg/canonical"
)

// DefaultCalendars are the public OpenTimestamps calendar servers tried in
// order when no override is configured.
var DefaultCalendars = []string{
	"https://a.pool.opentimestamps.org",
	"https://b.pool.opentimestamps.org",
	"https://a.pool.eternitywall.com",
	"https://ots.btc.catallaxy.com",
}

// SubmitFunc submits a raw digest to one calendar server and returns the
// opaque timestamp proof, or an error on failure. Injection point: tests and
// alternative transports replace it to avoid real network access.
type SubmitFunc func(ctx context.Context, calendarURL string, digest []byte) ([]byte, error)

// submitTimeout caps each calendar attempt.
const submitTimeout = 10 * time.Second

// Service creates, persists and retrieves timestamp anchors.
type Service struct {
	dataDir   string
	preferred Method
	calendars []string
	submit    SubmitFunc
	clock     func() time.Time
	log       audit.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDataDir overrides the anchor storage directory.
func WithDataDir(dir string) Option {
	return func(s *Service) { s.dataDir = dir }
}

// WithPreferredMethod selects the anchoring backend used by Anchor.
func WithPreferredMethod(m Method) Option {
	return func(s *Service) { s.preferred = m }
}

// WithCalendars overrides the calendar server list.
func WithCalendars(urls []string) Option {
	return func(s *Service) { s.calendars = urls }
}

// WithSubmitFunc overrides calendar submission.
func WithSubmitFunc(fn SubmitFunc) Option {
	return func(s *Service) { s.submit = fn }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithAuditLogger installs an operational event sink.
func WithAuditLogger(log audit.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService builds a Service. The data directory defaults to
// <user-config-dir>/proofnest/anchors and is created if missing.
func NewService(opts ...Option) (*Service, error) {
	s := &Service{
		preferred: MethodOpenTimestamps,
		calendars: DefaultCalendars,
		submit:    httpSubmit,
		clock:     time.Now,
		log:       audit.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("anchor: no default data dir: %w", err)
		}
		s.dataDir = filepath.Join(base, "proofnest", "anchors")
	}
	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return nil, fmt.Errorf("anchor: creating data dir: %w", err)
	}
	return s, nil
}

// DataDir returns the anchor storage directory.
func (s *Service) DataDir() string { return s.dataDir }

// PreferredMethod returns the configured backend.
func (s *Service) PreferredMethod() Method { return s.preferred }

// Anchor submits digest via the preferred method, persists the receipt and
// returns it. OP_RETURN fails with ErrOPReturnUnimplemented; MERKLE_PROOF
// records a proofless anchor (proofs for that method are built out-of-band).
func (s *Service) Anchor(ctx context.Context, digest string) (*Anchor, error) {
	if err := canonical.CheckDigest(digest); err != nil {
		return nil, err
	}
	switch s.preferred {
	case MethodOpenTimestamps:
		return s.anchorOTS(ctx, digest)
	case MethodOPReturn:
		return nil, s.anchorOPReturn(digest)
	case MethodMerkleProof:
		a := &Anchor{
			MerkleRoot: digest,
			Method:     MethodMerkleProof,
			Timestamp:  nowUTC(s.clock),
		}
		if err := s.save(a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("anchor: unknown method %q", s.preferred)
	}
}

// anchorOTS tries each calendar in order, stopping at the first success. If
// every backend fails the anchor is still created and persisted with no
// proof: anchoring is best-effort and must never stall the caller.
func (s *Service) anchorOTS(ctx context.Context, digest string) (*Anchor, error) {
	raw, err := parseDigest(digest)
	if err != nil {
		return nil, err
	}

	var proof []byte
	for _, cal := range s.calendars {
		attempt, err := s.submitToCalendar(ctx, cal, raw)
		if err != nil {
			_ = s.log.Record("", audit.EventAnchor, "calendar_failed", map[string]any{
				"calendar":    cal,
				"merkle_root": digest,
				"error":       err.Error(),
			})
			continue
		}
		if len(attempt) > 0 {
			proof = attempt
			break
		}
	}

	a := &Anchor{
		MerkleRoot: digest,
		Method:     MethodOpenTimestamps,
		Timestamp:  nowUTC(s.clock),
		OTSProof:   proof,
	}
	if err := s.save(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) submitToCalendar(ctx context.Context, calendarURL string, digest []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	return s.submit(ctx, calendarURL, digest)
}

// anchorOPReturn always fails: direct on-chain transaction anchoring requires
// wallet infrastructure this module deliberately does not carry.
func (s *Service) anchorOPReturn(digest string) error {
	return fmt.Errorf("%w (digest %s)", ErrOPReturnUnimplemented, digest[:16])
}

// save persists one anchor as a new JSON file. Files are append-only: no
// anchor file is ever rewritten, so concurrent anchoring of the same digest
// yields multiple files and GetAnchors returns all of them.
func (s *Service) save(a *Anchor) error {
	name := fmt.Sprintf("%s_%s.json", a.MerkleRoot[:16], uuid.New().String()[:8])
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("anchor: marshaling receipt: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, name), data, 0600); err != nil {
		return fmt.Errorf("anchor: writing receipt: %w", err)
	}
	return nil
}

// GetAnchors returns every persisted anchor for digest, matched by the
// 16-char filename prefix. An empty slice, never an error, when none exist.
func (s *Service) GetAnchors(digest string) ([]*Anchor, error) {
	if err := canonical.CheckDigest(digest); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(s.dataDir, digest[:16]+"_*.json"))
	if err != nil {
		return nil, fmt.Errorf("anchor: globbing receipts: %w", err)
	}

	anchors := make([]*Anchor, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("anchor: reading receipt %s: %w", filepath.Base(path), err)
		}
		var a Anchor
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("anchor: decoding receipt %s: %w", filepath.Base(path), err)
		}
		anchors = append(anchors, &a)
	}
	return anchors, nil
}

// httpSubmit is the default SubmitFunc: an OTS-style digest POST to the
// calendar. Real proof upgrades are out of scope; the raw calendar response
// is treated as the opaque pending proof.
func httpSubmit(ctx context.Context, calendarURL string, digest []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, calendarURL+"/digest", bytes.NewReader(digest))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
