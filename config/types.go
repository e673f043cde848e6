package config

// ValidatorEntry is one member of the local quorum set, as loaded from config.
type ValidatorEntry struct {
	NodeID string `yaml:"node_id"`
}

// QuorumSetConfig mirrors FBAQuorumSet before it is hashed/wired into the kernel.
type QuorumSetConfig struct {
	Threshold  uint32           `yaml:"threshold"`
	Validators []ValidatorEntry `yaml:"validators"`
}

// HerderConfig holds every tuning knob the node's configuration file exposes.
type HerderConfig struct {
	// ValidationKeyPath points at a hex-encoded ed25519 private key file.
	// Empty means watcher mode: no proposing, no self-envelopes.
	ValidationKeyPath string          `yaml:"validation_key_path"`
	QuorumSet          QuorumSetConfig `yaml:"quorum_set"`
	DesiredBaseFee     uint64          `yaml:"desired_base_fee"`
	StartNewNetwork    bool            `yaml:"start_new_network"`

	LedgerValidityBracket    uint64 `yaml:"ledger_validity_bracket"`
	NodeExpirationSeconds    int64  `yaml:"node_expiration_seconds"`
	ExpLedgerTimespanSeconds int64  `yaml:"exp_ledger_timespan_seconds"`
	MaxTimeSlipSeconds       int64  `yaml:"max_time_slip_seconds"`
	MaxFBATimeoutSeconds     int64  `yaml:"max_fba_timeout_seconds"`
	LedgersToWaitToParticipate int  `yaml:"ledgers_to_wait_to_participate"`
}

// ConfigFile is the top-level structure of herder.yml.
type ConfigFile struct {
	Herder HerderConfig `yaml:"herder"`
}
