package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/mezonai/herder/logx"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadHerderConfig reads and parses herder.yml.
func LoadHerderConfig(path string) (*HerderConfig, error) {
	logx.Info("CONFIG", fmt.Sprintf("loading herder config from %s", path))
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg := cfgFile.Herder.WithDefaults()
	logx.Info("CONFIG", fmt.Sprintf("loaded config: quorum_threshold=%d validators=%d watcher=%v",
		cfg.QuorumSet.Threshold, len(cfg.QuorumSet.Validators), cfg.ValidationKeyPath == ""))
	return &cfg, nil
}

// LoadEd25519PrivKey loads a hex-encoded ed25519 private key from a file.
// An empty path means watcher mode: the node never proposes.
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read validation key: %w", err)
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode validation key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("validation key has wrong size: got %d want %d", len(key), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(key), nil
}

// TuningConfig groups the handful of knobs that .ini deployments override
// per-environment without touching herder.yml (the static quorum/identity file).
type TuningConfig struct {
	LedgerValidityBracket    int `ini:"ledger_validity_bracket"`
	ExpLedgerTimespanSeconds int `ini:"exp_ledger_timespan_seconds"`
	NodeExpirationSeconds    int `ini:"node_expiration_seconds"`
}

// LoadTuningConfig reads the [herder] section of an .ini overrides file.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load tuning ini: %w", err)
	}
	section := cfg.Section("herder")
	tuning := &TuningConfig{}
	if err := section.MapTo(tuning); err != nil {
		return nil, fmt.Errorf("map tuning ini: %w", err)
	}
	return tuning, nil
}
