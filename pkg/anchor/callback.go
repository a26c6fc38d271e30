package anchor

import (
	"context"
	"encoding/json"

	"github.com/proofnest/proofnest/pkg/chain"
)

// NewCallback wraps svc as a chain external-anchor hook. The returned
// function anchors the digest via the service's preferred method and
// re-serializes the receipt as a compact JSON string.
func NewCallback(svc *Service) chain.AnchorFunc {
	return func(digest string) (string, error) {
		a, err := svc.Anchor(context.Background(), digest)
		if err != nil {
			return "", err
		}
		receipt, err := json.Marshal(map[string]any{
			"type":        "bitcoin",
			"method":      string(a.Method),
			"merkle_root": a.MerkleRoot,
			"timestamp":   a.Timestamp,
		})
		if err != nil {
			return "", err
		}
		return string(receipt), nil
	}
}
