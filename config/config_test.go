package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDefaultsFillsOnlyZeroFields(t *testing.T) {
	cfg := HerderConfig{ExpLedgerTimespanSeconds: 9}.WithDefaults()
	assert.Equal(t, int64(9), cfg.ExpLedgerTimespanSeconds, "an explicit value must survive defaulting")
	assert.Equal(t, uint64(DefaultLedgerValidityBracket), cfg.LedgerValidityBracket)
	assert.Equal(t, DefaultNodeExpirationSeconds, cfg.NodeExpirationSeconds)
	assert.Equal(t, DefaultMaxTimeSlipSeconds, cfg.MaxTimeSlipSeconds)
	assert.Equal(t, DefaultMaxFBATimeoutSeconds, cfg.MaxFBATimeoutSeconds)
	assert.Equal(t, DefaultLedgersToWaitToParticipate, cfg.LedgersToWaitToParticipate)
}

func TestLoadHerderConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herder.yml")
	yamlBody := `
herder:
  validation_key_path: ""
  quorum_set:
    threshold: 2
    validators:
      - node_id: abc
      - node_id: def
  desired_base_fee: 100
  start_new_network: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0600))

	cfg, err := LoadHerderConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), cfg.QuorumSet.Threshold)
	assert.Len(t, cfg.QuorumSet.Validators, 2)
	assert.Equal(t, uint64(100), cfg.DesiredBaseFee)
	assert.True(t, cfg.StartNewNetwork)
	assert.Equal(t, int64(DefaultMaxFBATimeoutSeconds), cfg.MaxFBATimeoutSeconds, "unset knobs still get defaulted")
}

func TestLoadHerderConfigMissingFile(t *testing.T) {
	_, err := LoadHerderConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadEd25519PrivKeyEmptyPathMeansWatcher(t *testing.T) {
	priv, err := LoadEd25519PrivKey("")
	require.NoError(t, err)
	assert.Nil(t, priv)
}

func TestLoadEd25519PrivKeyRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.hex")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0600))

	loaded, err := LoadEd25519PrivKey(path)
	require.NoError(t, err)
	assert.Equal(t, priv, loaded)
}

func TestLoadEd25519PrivKeyRejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hex")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString([]byte("too-short"))), 0600))

	_, err := LoadEd25519PrivKey(path)
	assert.Error(t, err)
}

func TestLoadTuningConfigOverridesSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.ini")
	iniBody := "[herder]\nledger_validity_bracket = 42\nexp_ledger_timespan_seconds = 7\n"
	require.NoError(t, os.WriteFile(path, []byte(iniBody), 0600))

	tuning, err := LoadTuningConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 42, tuning.LedgerValidityBracket)
	assert.Equal(t, 7, tuning.ExpLedgerTimespanSeconds)
}
