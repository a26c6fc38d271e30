// Command proofnest records, verifies, exports and anchors tamper-evident
// decision chains from the command line.
//
// Usage:
//
//	proofnest decide -action <text> -reasoning <text> [-risk low|medium|high|critical]
//	proofnest verify
//	proofnest export
//	proofnest anchor -digest <64-hex>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/proofnest/proofnest/pkg/anchor"
	"github.com/proofnest/proofnest/pkg/audit"
	"github.com/proofnest/proofnest/pkg/chain"
	"github.com/proofnest/proofnest/pkg/config"
	"github.com/proofnest/proofnest/pkg/export"
	"github.com/proofnest/proofnest/pkg/record"
	"github.com/proofnest/proofnest/pkg/store"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: proofnest <decide|verify|export|anchor> [flags]")
	}

	cfg := config.Load()
	var err error
	switch os.Args[1] {
	case "decide":
		err = runDecide(cfg, os.Args[2:])
	case "verify":
		err = runVerify(cfg)
	case "export":
		err = runExport(cfg)
	case "anchor":
		err = runAnchor(cfg, os.Args[2:])
	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newNest(cfg *config.Config, opts ...chain.Option) (*chain.Nest, func(), error) {
	cleanup := func() {}
	opts = append(opts, chain.WithAuditLogger(audit.NewLogger()))
	if cfg.AgentModel != "" {
		opts = append(opts, chain.WithModel(cfg.AgentModel))
	}
	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = st.Close() }
		opts = append(opts, chain.WithStore(st))
	}
	n, err := chain.New(cfg.AgentID, opts...)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return n, cleanup, nil
}

func newService(cfg *config.Config) (*anchor.Service, error) {
	opts := []anchor.Option{
		anchor.WithPreferredMethod(anchor.Method(cfg.Method)),
		anchor.WithAuditLogger(audit.NewLogger()),
	}
	if cfg.DataDir != "" {
		opts = append(opts, anchor.WithDataDir(cfg.DataDir))
	}
	if cfg.ProfileDir != "" {
		profile, err := config.LoadCalendarProfile(cfg.ProfileDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, anchor.WithCalendars(profile.Calendars))
	}
	return anchor.NewService(opts...)
}

func runDecide(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("decide", flag.ExitOnError)
	action := fs.String("action", "", "what was decided")
	reasoning := fs.String("reasoning", "", "why it was decided")
	risk := fs.String("risk", "medium", "risk level: low|medium|high|critical")
	confidence := fs.Float64("confidence", 1.0, "confidence in [0,1]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *action == "" || *reasoning == "" {
		return fmt.Errorf("decide requires -action and -reasoning")
	}
	riskLevel, err := record.ParseRiskLevel(*risk)
	if err != nil {
		return err
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	n, cleanup, err := newNest(cfg, chain.WithExternalAnchor(anchor.NewCallback(svc)))
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := n.Decide(*action, *reasoning,
		chain.WithRisk(riskLevel), chain.WithConfidence(*confidence))
	if err != nil {
		return err
	}
	fmt.Printf("recorded decision %s\nrecord_hash: %s\n", r.DecisionID(), r.RecordHash())
	return nil
}

func runVerify(cfg *config.Config) error {
	n, cleanup, err := newNest(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := n.Verify(); err != nil {
		return fmt.Errorf("chain INVALID: %w", err)
	}
	fmt.Printf("chain valid (%d records)\n", n.Len())
	return nil
}

func runExport(cfg *config.Config) error {
	n, cleanup, err := newNest(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := export.ChainJSON(n)
	if err != nil {
		return err
	}
	if err := export.Validate(data); err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runAnchor(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("anchor", flag.ExitOnError)
	digest := fs.String("digest", "", "64-hex content digest to anchor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	a, err := svc.Anchor(context.Background(), *digest)
	if err != nil {
		return err
	}
	status := "no proof obtained (all calendars unavailable)"
	if len(a.OTSProof) > 0 {
		status = fmt.Sprintf("proof obtained (%d bytes)", len(a.OTSProof))
	}
	fmt.Printf("anchored %s via %s at %s: %s\n", a.MerkleRoot[:16], a.Method, a.Timestamp, status)
	return nil
}
