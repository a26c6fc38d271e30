// Package export serializes decision chains to portable JSON and validates
// the export shape against a JSON Schema, so downstream auditors can reject
// malformed exports before attempting verification.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/proofnest/proofnest/pkg/chain"
)

// chainSchema describes one exported decision record. The export is a JSON
// array of these objects.
const chainSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["decision_id", "timestamp", "actor", "decision", "chain", "quantum_safe"],
    "properties": {
      "decision_id": {"type": "string", "minLength": 1},
      "timestamp": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}(\\.[0-9]+)?Z$"},
      "actor": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string"},
          "type": {"enum": ["human", "ai", "system"]},
          "model": {"type": "string"}
        }
      },
      "decision": {
        "type": "object",
        "required": ["action", "reasoning", "alternatives_considered", "confidence", "risk_level"],
        "properties": {
          "action": {"type": "string"},
          "reasoning": {"type": "string"},
          "alternatives_considered": {"type": "array", "items": {"type": "string"}},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "risk_level": {"enum": ["low", "medium", "high", "critical"]}
        }
      },
      "chain": {
        "type": "object",
        "required": ["record_hash", "previous_hash"],
        "properties": {
          "record_hash": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
          "previous_hash": {"type": "string", "pattern": "^([0-9a-f]{64})?$"}
        }
      },
      "quantum_safe": {"type": "boolean"},
      "signature": {
        "type": "object",
        "required": ["value", "algorithm", "key_id"],
        "properties": {
          "value": {"type": "string"},
          "algorithm": {"type": "string"},
          "key_id": {"type": "string"}
        }
      }
    }
  }
}`

const schemaURL = "https://proofnest.schemas.local/chain-export.schema.json"

var compiledSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(chainSchema)); err != nil {
		panic(fmt.Sprintf("export: schema resource: %v", err))
	}
	return c.MustCompile(schemaURL)
}

// ChainJSON exports every record of n as an indented JSON array in the
// documented wire shape.
func ChainJSON(n *chain.Nest) ([]byte, error) {
	records := n.Chain()
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.ToMap()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshaling chain: %w", err)
	}
	return data, nil
}

// Validate checks an exported chain document against the export schema.
func Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("export: invalid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("export: schema validation failed: %w", err)
	}
	return nil
}
