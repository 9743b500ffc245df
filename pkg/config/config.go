// Package config loads and validates the static parameters a replica reads
// once at start: node identity, transport binding, sync folder, peer list,
// snapshot path, and timer periods.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind identifies which CRDT variant a node replicates.
type Kind string

const (
	KindGCounter    Kind = "g_counter"
	KindPNCounter   Kind = "pn_counter"
	KindGSet        Kind = "g_set"
	KindTwoPhaseSet Kind = "two_phase_set"
	KindORSet       Kind = "or_set"
	KindLWW         Kind = "lww"
)

func (k Kind) valid() bool {
	switch k {
	case KindGCounter, KindPNCounter, KindGSet, KindTwoPhaseSet, KindORSet, KindLWW:
		return true
	}
	return false
}

// PeerAddr is one configured gossip target.
type PeerAddr struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (p PeerAddr) String() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// NodeConfig is the JSON shape described by the external interface: it is
// loaded once at start and never mutated afterward.
type NodeConfig struct {
	NodeID          string     `json:"node_id"`
	Host            string     `json:"host"`
	Port            int        `json:"port"`
	SyncFolder      string     `json:"sync_folder"`
	StateFile       string     `json:"state_file"`
	Peers           []PeerAddr `json:"peers"`
	SyncIntervalSec int        `json:"sync_interval"`
	ScanIntervalSec int        `json:"scan_interval"`
	SaveIntervalSec int        `json:"save_interval"`
	LoggingConfig   string     `json:"logging_config"`
	CRDTType        Kind       `json:"crdt_type"`
}

const (
	defaultSyncIntervalSec = 10
	defaultScanIntervalSec = 30
)

// Load reads, parses and validates a NodeConfig from path. Any failure here
// is a configuration error: fatal at start, per the error-handling policy.
func Load(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.SyncIntervalSec == 0 {
		cfg.SyncIntervalSec = defaultSyncIntervalSec
	}
	if cfg.ScanIntervalSec == 0 {
		cfg.ScanIntervalSec = defaultScanIntervalSec
	}
	if cfg.SaveIntervalSec == 0 {
		cfg.SaveIntervalSec = cfg.ScanIntervalSec
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants the spec requires of a NodeConfig.
func (c *NodeConfig) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	if !c.CRDTType.valid() {
		return fmt.Errorf("unknown crdt_type %q", c.CRDTType)
	}
	if c.CRDTType == KindLWW && c.SyncFolder == "" {
		return fmt.Errorf("sync_folder is required for crdt_type lww")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state_file is required")
	}
	return nil
}

// LoggingFileConfig is the optional YAML file NodeConfig.LoggingConfig may
// point at, kept separate from the wire-critical JSON node config.
type LoggingFileConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LoadLoggingConfig reads an optional logging_config file. A missing path
// (empty string) is not an error; the caller falls back to CLI flags.
func LoadLoggingConfig(path string) (*LoggingFileConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logging_config %s: %w", path, err)
	}
	var lc LoggingFileConfig
	if err := yaml.Unmarshal(data, &lc); err != nil {
		return nil, fmt.Errorf("parse logging_config %s: %w", path, err)
	}
	return &lc, nil
}
