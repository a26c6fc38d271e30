// Package config loads runtime configuration from environment variables,
// with an optional YAML calendar profile for the anchor service.
package config

import "os"

// Config holds runtime configuration.
type Config struct {
	AgentID    string
	AgentModel string
	DataDir    string
	StorePath  string
	Method     string
	ProfileDir string
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	agentID := os.Getenv("PROOFNEST_AGENT_ID")
	if agentID == "" {
		agentID = "proofnest-agent"
	}

	method := os.Getenv("PROOFNEST_ANCHOR_METHOD")
	if method == "" {
		method = "ots"
	}

	return &Config{
		AgentID:    agentID,
		AgentModel: os.Getenv("PROOFNEST_AGENT_MODEL"),
		DataDir:    os.Getenv("PROOFNEST_DATA_DIR"),
		StorePath:  os.Getenv("PROOFNEST_STORE_PATH"),
		Method:     method,
		ProfileDir: os.Getenv("PROOFNEST_PROFILE_DIR"),
	}
}
