// Package anchor binds content digests to an external clock through
// Bitcoin-calendar timestamping services.
//
// The service submits a digest to one of several pluggable backends, persists
// the resulting receipt as an append-only JSON file, and validates proof
// structure. Calendar unavailability is never an error: the anchor is still
// created and persisted with no proof, recording the attempt. The only hard
// failure is OP_RETURN anchoring, which is deliberately unimplemented.
package anchor

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/proofnest/proofnest/pkg/canonical"
)

// Method selects the timestamping backend.
type Method string

const (
	// MethodOpenTimestamps submits to OTS calendar servers.
	MethodOpenTimestamps Method = "ots"
	// MethodMerkleProof tags anchors built out-of-band from a Merkle batch.
	// The service never constructs such proofs itself.
	MethodMerkleProof Method = "merkle"
	// MethodOPReturn would anchor via a direct OP_RETURN transaction.
	// Unimplemented: requesting it fails loudly.
	MethodOPReturn Method = "op_return"
)

// ErrOPReturnUnimplemented is returned whenever OP_RETURN anchor creation is
// requested. The supported alternative is named in the message.
var ErrOPReturnUnimplemented = errors.New("op_return anchoring not implemented: use opentimestamps (ots) instead")

// timestampFormat is the Z-suffixed UTC layout of anchor timestamps.
const timestampFormat = "2006-01-02T15:04:05.000000Z"

// OTS proof structure constants. The check is structural only; it does not
// confirm Bitcoin block inclusion.
const (
	minOTSProofLen = 50
	otsVersionByte = 0x01
)

// Anchor is a timestamp receipt binding a digest to a point in time. Anchors
// are never rewritten in place; re-verification produces a new evaluation.
type Anchor struct {
	MerkleRoot  string `json:"merkle_root"`
	Method      Method `json:"method"`
	Timestamp   string `json:"timestamp"`
	TxID        string `json:"txid,omitempty"`
	BlockHeight int64  `json:"block_height,omitempty"`
	OTSProof    []byte `json:"ots_proof,omitempty"`
	Verified    bool   `json:"verified"`
}

// ValidateOTSFormat checks the structural shape of an OTS proof: present, at
// least 50 bytes, version byte 0x01.
func ValidateOTSFormat(a *Anchor) bool {
	if a == nil || len(a.OTSProof) < minOTSProofLen {
		return false
	}
	return a.OTSProof[0] == otsVersionByte
}

// VerifyOPReturn checks a manually supplied OP_RETURN anchor: the digest must
// be well-formed and a txid must be present, otherwise there is nothing to
// verify. Creation of such anchors is unimplemented, but verification of
// out-of-band ones is still defined.
func VerifyOPReturn(a *Anchor) bool {
	if a == nil || a.TxID == "" {
		return false
	}
	return canonical.CheckDigest(a.MerkleRoot) == nil
}

// parseDigest decodes a 64-hex-char digest into raw bytes.
func parseDigest(digest string) ([]byte, error) {
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("anchor: digest must be 64 hex characters")
	}
	return raw, nil
}

func nowUTC(clock func() time.Time) string {
	return clock().UTC().Format(timestampFormat)
}
