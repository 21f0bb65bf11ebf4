package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"
)

// strategyFile is the YAML override document. Only trading and data
// parameters can be overridden; infrastructure settings stay env-only.
type strategyFile struct {
	Trading *TradingConfig `yaml:"trading"`
	Data    *DataConfig    `yaml:"data"`
}

// applyStrategyFile merges a strict-parsed YAML strategy file into cfg.
// Unknown fields fail immediately so typos never silently no-op.
func applyStrategyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var sf strategyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return err
	}

	if sf.Trading != nil {
		cfg.Trading = *sf.Trading
	}
	if sf.Data != nil {
		cfg.Data = *sf.Data
	}
	return nil
}

// Hash returns a SHA-256 over the effective trading and data parameters.
// Logged at the start of every run so results can be tied back to the
// exact configuration that produced them.
func (c *Config) Hash() (string, error) {
	// Struct (not map) marshalling keeps field order deterministic.
	jsonBytes, err := json.Marshal(struct {
		Trading TradingConfig `json:"trading"`
		Data    DataConfig    `json:"data"`
	}{c.Trading, c.Data})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
